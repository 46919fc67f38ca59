package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrConfiguration indicates a required endpoint or setting is missing.
	// It is reported at startup and again when the broken operation is
	// attempted; it never terminates the process.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport indicates a network or HTTP failure while talking to the
	// provider.  It is surfaced per request.
	ErrTransport = errors.New("transport failure")

	// ErrProviderResponse indicates the provider returned an explicit OAuth
	// error response.
	ErrProviderResponse = errors.New("provider error response")

	// ErrInvalidState indicates the state parameter was tampered with,
	// malformed, or addressed to an unknown provider.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidToken indicates an id_token failed structural parsing,
	// signature verification, or a claims check.
	ErrInvalidToken = errors.New("invalid id_token")

	// ErrInvalidCookie indicates a credential cookie failed signature
	// verification or could not be opened.
	ErrInvalidCookie = errors.New("invalid credential cookie")

	ErrMissingIdToken    = errors.New("id_token is missing")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrUnsupportedAlg    = errors.New("unsupported signing algorithm")
	ErrIdGeneratorFailed = errors.New("id generation failed")
)

package oidc

import (
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// providerOptions is the set of available options for NewProvider
type providerOptions struct {
	withLogger   hclog.Logger
	withNow      func() time.Time
	withSealer   Sealer
	withFallback Fallback
}

// providerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func providerDefaults() providerOptions {
	return providerOptions{
		withNow: time.Now,
	}
}

// getProviderOpts gets the provider defaults and applies the opt overrides
// passed in.
func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withLogger = l
		}
	}
}

// WithNow provides an optional time source, which is handy for testing
// staleness and expiry checks.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withNow = now
		}
	}
}

// WithSealer provides the host's authenticated-encryption primitive used for
// the state parameter and the sealed-cookie credential mode.  When absent a
// JWS HS256 sealer over the provider's cookie key is used.
func WithSealer(s Sealer) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withSealer = s
		}
	}
}

// WithFallback provides the host's underlying (non-OIDC) authentication used
// as a last resort when no credentials can be obtained.
func WithFallback(f Fallback) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withFallback = f
		}
	}
}

// authRequestOptions is the set of available options for
// Provider.AuthRequest
type authRequestOptions struct {
	withParams url.Values
}

func authRequestDefaults() authRequestOptions {
	return authRequestOptions{}
}

func getAuthRequestOpts(opt ...Option) authRequestOptions {
	opts := authRequestDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthParams provides optional additional query parameters for an
// authorization redirect (for example "prompt" or "login_hint").
func WithAuthParams(params url.Values) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withParams = params
		}
	}
}

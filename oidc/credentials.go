package oidc

import (
	"encoding/json"
	"fmt"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// CredentialMode selects how a verified credential set is persisted between
// requests.
type CredentialMode int

const (
	// SessionMode writes the subject into the host's session store under
	// SessionCredentialsKey; no cookie is produced.
	SessionMode CredentialMode = iota

	// SignedCookieMode serializes the retained claims as a token self-signed
	// with the provider's symmetric key.  The relying party is asserting its
	// own short-lived session here, not re-presenting the IdP's token.
	SignedCookieMode

	// SealedCookieMode delegates to the host's authenticated cookie
	// primitive (the Sealer), carrying the subject plus the retained claim
	// set.
	SealedCookieMode
)

// SessionCredentialsKey is the session entry holding credentials in
// SessionMode.
const SessionCredentialsKey = "credentials"

// Credentials is a verified credential set: the claims of a validated
// id_token merged with the raw access/refresh tokens of the token response.
type Credentials map[string]interface{}

// Subject returns the "sub" claim, or "" when absent.
func (c Credentials) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// retainedCookieClaims is the restricted claim set that survives cookie
// persistence.  Everything else (tokens included) stays in-memory only.
var retainedCookieClaims = []string{"sub"}

func filterCredentials(c Credentials, keep []string) Credentials {
	filtered := make(Credentials, len(keep))
	for _, name := range keep {
		if v, ok := c[name]; ok {
			filtered[name] = v
		}
	}
	return filtered
}

// Session is the host's per-browser session store.
type Session interface {
	Get(name string) (interface{}, bool)
	Set(name string, value interface{})
}

// EncodeCookie maps a credential set to its cookie representation for the
// configured mode.  Only the retained claims are persisted; decoding gives
// back exactly that filtered set.  In SessionMode no cookie is used and an
// empty string is returned.
func (p *Provider) EncodeCookie(c Credentials) (string, error) {
	const op = "Provider.EncodeCookie"
	retained := filterCredentials(c, retainedCookieClaims)
	switch p.config.Mode {
	case SessionMode:
		return "", nil
	case SignedCookieMode:
		signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: p.cookieKey}, nil)
		if err != nil {
			return "", fmt.Errorf("%s: unable to create signer: %w", op, err)
		}
		cookie, err := jwt.Signed(signer).Claims(map[string]interface{}(retained)).CompactSerialize()
		if err != nil {
			return "", fmt.Errorf("%s: unable to sign cookie: %w", op, err)
		}
		return cookie, nil
	case SealedCookieMode:
		payload, err := json.Marshal(retained)
		if err != nil {
			return "", fmt.Errorf("%s: unable to marshal credentials: %w", op, err)
		}
		cookie, err := p.sealer.Seal(payload)
		if err != nil {
			return "", fmt.Errorf("%s: unable to seal cookie: %w", op, err)
		}
		return cookie, nil
	default:
		return "", fmt.Errorf("%s: unknown credential mode %d: %w", op, p.config.Mode, ErrInvalidParameter)
	}
}

// DecodeCookie is the inverse of EncodeCookie: it recovers the retained
// claims and the subject.  Tampered or malformed cookies fail with
// ErrInvalidCookie.
func (p *Provider) DecodeCookie(cookie string) (string, Credentials, error) {
	const op = "Provider.DecodeCookie"
	var creds Credentials
	switch p.config.Mode {
	case SessionMode:
		return "", nil, fmt.Errorf("%s: no cookie in session mode: %w", op, ErrInvalidParameter)
	case SignedCookieMode:
		parsed, err := jwt.ParseSigned(cookie)
		if err != nil {
			return "", nil, fmt.Errorf("%s: malformed cookie: %w", op, ErrInvalidCookie)
		}
		var claims map[string]interface{}
		if err := parsed.Claims(p.cookieKey, &claims); err != nil {
			return "", nil, fmt.Errorf("%s: cookie failed verification: %w", op, ErrInvalidCookie)
		}
		creds = filterCredentials(claims, retainedCookieClaims)
	case SealedCookieMode:
		payload, err := p.sealer.Open(cookie)
		if err != nil {
			return "", nil, fmt.Errorf("%s: cookie failed verification: %w", op, ErrInvalidCookie)
		}
		if err := json.Unmarshal(payload, &creds); err != nil {
			return "", nil, fmt.Errorf("%s: malformed cookie payload: %w", op, ErrInvalidCookie)
		}
		creds = filterCredentials(creds, retainedCookieClaims)
	default:
		return "", nil, fmt.Errorf("%s: unknown credential mode %d: %w", op, p.config.Mode, ErrInvalidParameter)
	}
	sub := creds.Subject()
	if sub == "" {
		return "", nil, fmt.Errorf("%s: cookie has no subject: %w", op, ErrInvalidCookie)
	}
	return sub, creds, nil
}

// StoreCredentials persists the retained credentials into the session in
// SessionMode.  Cookie modes don't touch the session; the host writes the
// EncodeCookie value instead.
func (p *Provider) StoreCredentials(sess Session, c Credentials) {
	if p.config.Mode != SessionMode || sess == nil || len(c) == 0 {
		return
	}
	sess.Set(SessionCredentialsKey, map[string]interface{}(filterCredentials(c, retainedCookieClaims)))
}

// RetrieveCredentials reads previously stored credentials back from the
// session.  It reports false in cookie modes or when nothing is stored.
func (p *Provider) RetrieveCredentials(sess Session) (string, Credentials, bool) {
	if p.config.Mode != SessionMode || sess == nil {
		return "", nil, false
	}
	v, ok := sess.Get(SessionCredentialsKey)
	if !ok {
		return "", nil, false
	}
	stored, ok := v.(map[string]interface{})
	if !ok || len(stored) == 0 {
		return "", nil, false
	}
	creds := Credentials(stored)
	sub := creds.Subject()
	if sub == "" {
		return "", nil, false
	}
	return sub, creds, true
}

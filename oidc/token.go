package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// IdToken is an oidc id_token
type IdToken string

// RedactedIdToken is the redacted string or json for an oidc id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string {
	return RedactedIdToken
}

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// Claims retrieves the IdToken claims without verifying the token.
func (t IdToken) Claims(claims interface{}) error {
	const op = "IdToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

const tokenExpirySkew = 10 * time.Second

// Token is the result of a code exchange or refresh with the provider's
// token endpoint.
type Token struct {
	IdToken      IdToken
	AccessToken  AccessToken
	RefreshToken RefreshToken

	// Expiry of the AccessToken.  Zero means the provider didn't report one.
	Expiry time.Time
}

// Expired reports whether the access token is past its expiry, allowing for
// a small skew.
func (t *Token) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return t.Expiry.Round(0).Before(time.Now().Add(tokenExpirySkew))
}

// Valid reports whether the token has an unexpired access token.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}

// StaticTokenSource returns an oauth2.TokenSource for the access token,
// which interoperates with the golang.org/x/oauth2 ecosystem.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	if t == nil {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  string(t.AccessToken),
		RefreshToken: string(t.RefreshToken),
		Expiry:       t.Expiry,
	})
}

// tokenResponse is the wire shape of a token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IdToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func parseTokenResponse(body []byte, now func() time.Time) (*Token, error) {
	const op = "parseTokenResponse"
	var raw tokenResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%s: malformed token response: %w", op, err)
	}
	t := &Token{
		IdToken:      IdToken(raw.IdToken),
		AccessToken:  AccessToken(raw.AccessToken),
		RefreshToken: RefreshToken(raw.RefreshToken),
	}
	if raw.ExpiresIn > 0 {
		t.Expiry = now().Add(time.Duration(raw.ExpiresIn) * time.Second)
	}
	return t, nil
}

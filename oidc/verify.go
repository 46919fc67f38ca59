package oidc

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
	"strings"
	"time"

	strutil "github.com/openrp/oidcauth/oidc/internal/strutils"
	"gopkg.in/square/go-jose.v2"
)

// excludedClaims are protocol-reserved claims stripped from a verified
// id_token before the claims become application-visible credentials.  "sub"
// is always retained.
var excludedClaims = map[string]bool{
	"iss":           true,
	"aud":           true,
	"exp":           true,
	"iat":           true,
	"auth_time":     true,
	"nonce":         true,
	"acr":           true,
	"amr":           true,
	"azp":           true,
	"session_state": true,
	"typ":           true,
	"nbf":           true,
}

// UnmarshalClaims parses the payload of a compact JWS token into claims
// without verifying its signature.
func UnmarshalClaims(token string, claims interface{}) error {
	const op = "UnmarshalClaims"
	parsed, err := jose.ParseSigned(token)
	if err != nil {
		return fmt.Errorf("%s: malformed token: %w", op, err)
	}
	if err := json.Unmarshal(parsed.UnsafePayloadWithoutVerification(), claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return nil
}

// VerifyIDToken validates an id_token returned by the token endpoint and
// returns its application-visible claims with the protocol-reserved ones
// stripped.
//
// The checks are: structure, signature against the signing-key cache (the
// unverified header's kid selects the key; when absent or unknown every
// cached key is tried, which supports providers that omit kid while a single
// key is active), accepted algorithm, audience against the client id, issuer
// when one is configured, expiry within the configured time skew, and
// access-token hash binding when an access token accompanies the id_token.
//
// When the config sets SkipSignatureVerification the signature and algorithm
// checks are skipped; the token is still parsed and every claims check still
// applies.  Any failure is an ErrInvalidToken; the raw token never appears
// in the error.
func (p *Provider) VerifyIDToken(ctx context.Context, idToken IdToken, accessToken AccessToken) (map[string]interface{}, error) {
	const op = "Provider.VerifyIDToken"
	if idToken == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidToken)
	}

	parsed, err := jose.ParseSigned(string(idToken))
	if err != nil {
		return nil, fmt.Errorf("%s: malformed id_token: %w", op, ErrInvalidToken)
	}
	if len(parsed.Signatures) == 0 {
		return nil, fmt.Errorf("%s: id_token has no signature: %w", op, ErrInvalidToken)
	}
	header := parsed.Signatures[0].Header

	var payload []byte
	if p.config.SkipSignatureVerification {
		payload = parsed.UnsafePayloadWithoutVerification()
	} else {
		if !algAccepted(p.algs, header.Algorithm) {
			return nil, fmt.Errorf("%s: algorithm %q not accepted: %w", op, header.Algorithm, ErrInvalidToken)
		}
		if err := p.refreshKeysIfStale(ctx); err != nil {
			return nil, fmt.Errorf("%s: signing keys unavailable: %v: %w", op, err, ErrInvalidToken)
		}
		payload, err = p.verifySignature(parsed, header.KeyID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal claims: %w", op, ErrInvalidToken)
	}
	if err := p.checkClaims(claims, header.Algorithm, accessToken); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return filterReservedClaims(claims), nil
}

// verifySignature returns the verified payload.  The kid from the token
// header selects the cached key; an unknown or empty kid falls back to
// trying the whole cached set.
func (p *Provider) verifySignature(parsed *jose.JSONWebSignature, kid string) ([]byte, error) {
	const op = "Provider.verifySignature"
	var candidates []jose.JSONWebKey
	if key, ok := p.keys.get(kid); ok {
		candidates = []jose.JSONWebKey{key}
	} else {
		candidates = p.keys.all()
	}
	for _, key := range candidates {
		if payload, err := parsed.Verify(key); err == nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("%s: no active signing key validates the signature: %w", op, ErrInvalidToken)
}

func (p *Provider) checkClaims(claims map[string]interface{}, alg string, accessToken AccessToken) error {
	const op = "Provider.checkClaims"

	if !audienceContains(claims["aud"], p.config.ClientId) {
		return fmt.Errorf("%s: audience mismatch: %w", op, ErrInvalidToken)
	}
	if p.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != p.issuer {
			return fmt.Errorf("%s: issuer mismatch: %w", op, ErrInvalidToken)
		}
	}

	now := p.now()
	leeway := p.config.TimeSkew
	if exp, ok := claimTime(claims["exp"]); ok {
		if now.After(exp.Add(leeway)) {
			return fmt.Errorf("%s: token is expired: %w", op, ErrInvalidToken)
		}
	}
	if nbf, ok := claimTime(claims["nbf"]); ok {
		if now.Before(nbf.Add(-leeway)) {
			return fmt.Errorf("%s: token is not yet valid: %w", op, ErrInvalidToken)
		}
	}

	// the at_hash binding is only checked when an access token accompanies
	// the id_token and the provider included the claim
	if accessToken != "" {
		if atHash, ok := claims["at_hash"].(string); ok {
			want, err := computeAtHash(alg, accessToken)
			if err != nil {
				return fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}
			if atHash != want {
				return fmt.Errorf("%s: access_token hash mismatch: %w", op, ErrInvalidToken)
			}
		}
	}
	return nil
}

func algAccepted(accepted []Alg, alg string) bool {
	names := make([]string, 0, len(accepted))
	for _, a := range accepted {
		names = append(names, string(a))
	}
	return strutil.StrListContains(names, alg)
}

// audienceContains handles the two wire forms of the "aud" claim, a single
// string or an array.
func audienceContains(aud interface{}, clientID string) bool {
	switch v := aud.(type) {
	case string:
		return v == clientID
	case []interface{}:
		for _, a := range v {
			if s, ok := a.(string); ok && s == clientID {
				return true
			}
		}
	}
	return false
}

func claimTime(v interface{}) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case json.Number:
		sec, err := n.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(sec, 0), true
	}
	return time.Time{}, false
}

// computeAtHash implements the OIDC at_hash binding: the base64url encoding
// of the left half of the access token hashed with the hash function that
// matches the id_token's signing algorithm.
func computeAtHash(alg string, accessToken AccessToken) (string, error) {
	const op = "computeAtHash"
	var h hash.Hash
	switch {
	case strings.HasSuffix(alg, "256"):
		h = sha256.New()
	case strings.HasSuffix(alg, "384"):
		h = sha512.New384()
	case strings.HasSuffix(alg, "512"):
		h = sha512.New()
	default:
		return "", fmt.Errorf("%s: no hash for algorithm %q: %w", op, alg, ErrUnsupportedAlg)
	}
	h.Write([]byte(accessToken))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}

// filterReservedClaims drops the protocol-reserved claims, keeping "sub" and
// everything application-specific.
func filterReservedClaims(claims map[string]interface{}) map[string]interface{} {
	filtered := make(map[string]interface{}, len(claims))
	for name, value := range claims {
		if excludedClaims[name] {
			continue
		}
		filtered[name] = value
	}
	return filtered
}

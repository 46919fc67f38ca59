package oidc

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
)

// TestGenerateKeys will generate a test ECDSA P-256 pub/priv key pair.
func TestGenerateKeys(t *testing.T) (pub crypto.PublicKey, priv crypto.PrivateKey) {
	t.Helper()
	require := require.New(t)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	return privateKey.Public(), privateKey
}

// TestSignIDToken signs the claims into a compact id_token using the given
// key.  The kid, when non-empty, is carried in the token header.
func TestSignIDToken(t *testing.T, priv crypto.PrivateKey, alg Alg, kid string, claims map[string]interface{}) IdToken {
	t.Helper()
	require := require.New(t)
	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.SignatureAlgorithm(alg),
			Key:       jose.JSONWebKey{Key: priv, KeyID: kid},
		},
		nil,
	)
	require.NoError(err)
	payload, err := json.Marshal(claims)
	require.NoError(err)
	sig, err := signer.Sign(payload)
	require.NoError(err)
	token, err := sig.CompactSerialize()
	require.NoError(err)
	return IdToken(token)
}

// TestJWKS wraps a public key into a JWKS document under the given kid.
func TestJWKS(t *testing.T, pub crypto.PublicKey, alg Alg, kid string) *jose.JSONWebKeySet {
	t.Helper()
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{Key: pub, KeyID: kid, Algorithm: string(alg), Use: "sig"},
		},
	}
}

// TestIDTokenClaims returns a minimal valid claim set for the provider's
// client id, expiring in lifetime.
func TestIDTokenClaims(t *testing.T, issuer, clientID, subject string, lifetime time.Duration) map[string]interface{} {
	t.Helper()
	now := time.Now()
	return map[string]interface{}{
		"iss": issuer,
		"aud": clientID,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
	}
}

// testSession is an in-memory Session for tests.
type testSession map[string]interface{}

func (s testSession) Get(name string) (interface{}, bool) {
	v, ok := s[name]
	return v, ok
}

func (s testSession) Set(name string, value interface{}) {
	s[name] = value
}

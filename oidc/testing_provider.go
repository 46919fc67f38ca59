package oidc

import (
	"bytes"
	"crypto"
	"encoding/json"
	"encoding/pem"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestIdP is a local server supporting the provider capabilities this engine
// talks to: authorization, token, jwks, userinfo, end-session and discovery.
// It makes writing flow tests possible without a network.
type TestIdP struct {
	httpServer *httptest.Server
	caCert     string

	pub  crypto.PublicKey
	priv crypto.PrivateKey
	kid  string
	alg  Alg

	mu               sync.Mutex
	clientID         string
	clientSecret     string
	expectedAuthCode string
	replySubject     string
	replyUserinfo    map[string]interface{}
	customClaims     map[string]interface{}
	idTokenLifetime  time.Duration
	omitIDToken      bool
	tokenErrStatus   int
	tokenErrBody     string
	jwksCacheControl string
	jwksFetches      int

	t *testing.T
}

// StartTestIdP creates a disposable TestIdP on a TLS httptest server.
func StartTestIdP(t *testing.T) *TestIdP {
	t.Helper()
	require := require.New(t)

	p := &TestIdP{
		t:               t,
		kid:             "test-kid-1",
		alg:             ES256,
		replySubject:    "alice@example.com",
		idTokenLifetime: 5 * time.Minute,
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
	}
	p.pub, p.priv = TestGenerateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(ioutil.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestIdP.
func (p *TestIdP) Stop() {
	p.httpServer.Close()
}

// Addr returns the TestIdP base URL.
func (p *TestIdP) Addr() string { return p.httpServer.URL }

// CACert returns the PEM-encoded CA certificate used by the TestIdP.
func (p *TestIdP) CACert() string { return p.caCert }

// SigningAlg returns the algorithm used to sign issued id_tokens.
func (p *TestIdP) SigningAlg() Alg { return p.alg }

// SigningKeys returns the key pair used to sign issued id_tokens.
func (p *TestIdP) SigningKeys() (pub crypto.PublicKey, priv crypto.PrivateKey) {
	return p.pub, p.priv
}

// Endpoints returns absolute endpoint templates for a Config pointed at this
// TestIdP.  The discovery endpoint is intentionally absent; see
// DiscoveryEndpoints.
func (p *TestIdP) Endpoints() EndpointTemplates {
	return EndpointTemplates{
		EndpointAuthorization: p.Addr() + "/auth",
		EndpointToken:         p.Addr() + "/token",
		EndpointUserInfo:      p.Addr() + "/userinfo",
		EndpointEndSession:    p.Addr() + "/end-session",
		EndpointJWKS:          p.Addr() + "/jwks",
	}
}

// DiscoveryEndpoints returns endpoint templates carrying only the discovery
// endpoint, for tests exercising the discovery overlay.
func (p *TestIdP) DiscoveryEndpoints() EndpointTemplates {
	return EndpointTemplates{
		EndpointDiscovery: p.Addr() + "/.well-known/openid-configuration",
	}
}

// SetClientCreds configures the client information required for the token
// exchange.
func (p *TestIdP) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the only authorization code /token accepts.
func (p *TestIdP) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetReplySubject configures the subject embedded in issued id_tokens.
func (p *TestIdP) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims lets you add claims to the issued id_token.
func (p *TestIdP) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetIDTokenLifetime configures how far in the future issued id_tokens
// expire.  Negative values issue already-expired tokens.
func (p *TestIdP) SetIDTokenLifetime(lifetime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenLifetime = lifetime
}

// OmitIDTokens forces an error state where /token does not return an
// id_token.
func (p *TestIdP) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// SetTokenError makes /token reply with the given status and raw JSON body.
func (p *TestIdP) SetTokenError(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrStatus = status
	p.tokenErrBody = body
}

// SetJWKSCacheControl configures the Cache-Control header of /jwks
// responses, e.g. "max-age=60".  Empty omits the header.
func (p *TestIdP) SetJWKSCacheControl(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwksCacheControl = value
}

// JWKSFetchCount reports how many times /jwks has been fetched.
func (p *TestIdP) JWKSFetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwksFetches
}

// ServeHTTP implements the TestIdP endpoints.
func (p *TestIdP) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		p.writeJSON(w, map[string]interface{}{
			"issuer":                 p.Addr(),
			"authorization_endpoint": p.Addr() + "/auth",
			"token_endpoint":         p.Addr() + "/token",
			"userinfo_endpoint":      p.Addr() + "/userinfo",
			"end_session_endpoint":   p.Addr() + "/end-session",
			"jwks_uri":               p.Addr() + "/jwks",
		})
	case "/auth":
		redirect := req.URL.Query().Get("redirect_uri")
		if redirect == "" {
			http.Error(w, "missing redirect_uri", http.StatusBadRequest)
			return
		}
		u, err := url.Parse(redirect)
		if err != nil {
			http.Error(w, "bad redirect_uri", http.StatusBadRequest)
			return
		}
		q := u.Query()
		q.Set("code", p.expectedAuthCode)
		q.Set("state", req.URL.Query().Get("state"))
		u.RawQuery = q.Encode()
		http.Redirect(w, req, u.String(), http.StatusFound)
	case "/token":
		p.serveToken(w, req)
	case "/jwks":
		p.jwksFetches++
		if p.jwksCacheControl != "" {
			w.Header().Set("Cache-Control", p.jwksCacheControl)
		}
		p.writeJSON(w, TestJWKS(p.t, p.pub, p.alg, p.kid))
	case "/userinfo":
		p.writeJSON(w, p.replyUserinfo)
	case "/end-session":
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, req)
	}
}

func (p *TestIdP) serveToken(w http.ResponseWriter, req *http.Request) {
	if p.tokenErrStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenErrStatus)
		_, _ = w.Write([]byte(p.tokenErrBody))
		return
	}
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	switch req.PostFormValue("grant_type") {
	case "authorization_code":
		if p.expectedAuthCode == "" || req.PostFormValue("code") != p.expectedAuthCode {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	case "refresh_token":
		// any refresh token is accepted
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		return
	}

	accessToken := "notarealtoken"
	reply := map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": "notarealtoken-refresh",
		"token_type":    "Bearer",
		"expires_in":    int64(300),
	}
	if !p.omitIDToken {
		claims := map[string]interface{}{
			"iss": p.Addr(),
			"aud": p.clientID,
			"sub": p.replySubject,
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(p.idTokenLifetime).Unix(),
		}
		if atHash, err := computeAtHash(string(p.alg), AccessToken(accessToken)); err == nil {
			claims["at_hash"] = atHash
		}
		for k, v := range p.customClaims {
			claims[k] = v
		}
		reply["id_token"] = string(TestSignIDToken(p.t, p.priv, p.alg, p.kid, claims))
	}
	p.writeJSON(w, reply)
}

func (p *TestIdP) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(v)
	require.NoError(p.t, err)
	_, _ = w.Write(body)
}

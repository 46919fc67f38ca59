package oidc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURL = "https://rp.example.com/callback"

func testFlowProvider(t *testing.T, idp *TestIdP, opt ...Option) *Provider {
	t.Helper()
	idp.SetClientCreds("test-client-id", "test-client-secret")
	p, err := NewProvider(&Config{
		Ident:        "test-rp",
		ClientId:     "test-client-id",
		ClientSecret: "test-client-secret",
		Issuer:       idp.Addr(),
		ProviderCA:   idp.CACert(),
		Endpoints:    idp.Endpoints(),
	}, opt...)
	require.NoError(t, err)
	return p
}

// testFallback is a canned base authentication.
type testFallback struct {
	subject string
	creds   Credentials
	err     error
}

func (f *testFallback) Authenticate(ctx context.Context, sess Session) (string, Credentials, error) {
	return f.subject, f.creds, f.err
}

func TestProvider_Authenticate_FreshLogin(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	idp.SetExpectedAuthCode("code-1")
	p := testFlowProvider(t, idp)

	state, err := p.EncodeState(RequestState{SessionID: 7, UIStateID: 3, ActionID: "reload"})
	require.NoError(err)

	sess := testSession{}
	result, err := p.Authenticate(ctx, Callback{
		Code:        "code-1",
		State:       state,
		RedirectURL: testRedirectURL,
	}, sess)
	require.NoError(err)

	assert.Equal("alice@example.com", result.Subject)
	assert.Equal(Authenticated, result.State)
	require.NotNil(result.Resume)
	assert.Equal(7, result.Resume.SessionID)
	assert.Equal(3, result.Resume.UIStateID)
	assert.Equal("reload", result.Resume.ActionID)

	// the in-memory credentials carry the raw tokens
	assert.Equal("notarealtoken", result.Credentials["access_token"])
	assert.Equal("notarealtoken-refresh", result.Credentials["refresh_token"])

	// only the subject survives into the session
	sub, stored, ok := p.RetrieveCredentials(sess)
	require.True(ok)
	assert.Equal("alice@example.com", sub)
	assert.Equal(Credentials{"sub": "alice@example.com"}, stored)
}

func TestProvider_Authenticate_RejectedCode(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	idp.SetExpectedAuthCode("the-right-code")

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})
	p := testFlowProvider(t, idp, WithLogger(logger))

	state, err := p.EncodeState(RequestState{SessionID: 1, UIStateID: 1})
	require.NoError(err)

	result, err := p.Authenticate(ctx, Callback{
		Code:        "a-stale-code",
		State:       state,
		RedirectURL: testRedirectURL,
	}, testSession{})
	require.NoError(err, "a rejected exchange is not an Authenticate error")

	assert.Empty(result.Subject)
	assert.Equal(NoSession, result.State)
	assert.Nil(result.Resume)
	assert.Contains(buf.String(), "invalid_grant")
}

func TestProvider_Authenticate_TamperedState(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	idp.SetExpectedAuthCode("code-1")
	p := testFlowProvider(t, idp)

	// the session already holds credentials from an earlier login
	sess := testSession{}
	p.StoreCredentials(sess, Credentials{"sub": "bob@example.com"})

	result, err := p.Authenticate(ctx, Callback{
		Code:        "code-1",
		State:       "#test-rp#forged-payload",
		RedirectURL: testRedirectURL,
	}, sess)
	require.NoError(err)

	// the code is discarded, the stored credentials win, and there is no
	// flow to resume
	assert.Equal("bob@example.com", result.Subject)
	assert.Equal(Authenticated, result.State)
	assert.Nil(result.Resume)
}

func TestProvider_Authenticate_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fallback-succeeds", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		fallback := &testFallback{
			subject: "carol@example.com",
			creds:   Credentials{"sub": "carol@example.com"},
		}
		p := testFlowProvider(t, idp, WithFallback(fallback))

		sess := testSession{}
		result, err := p.Authenticate(ctx, Callback{}, sess)
		require.NoError(err)
		assert.Equal("carol@example.com", result.Subject)
		assert.Equal(Authenticated, result.State)
		assert.Nil(result.Resume)

		sub, _, ok := p.RetrieveCredentials(sess)
		require.True(ok)
		assert.Equal("carol@example.com", sub)
	})
	t.Run("fallback-fails", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		fallback := &testFallback{err: errors.New("bad password")}
		p := testFlowProvider(t, idp, WithFallback(fallback))

		result, err := p.Authenticate(ctx, Callback{}, testSession{})
		require.NoError(err)
		assert.Empty(result.Subject)
		assert.Equal(NoSession, result.State)
	})
	t.Run("no-fallback", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)

		result, err := p.Authenticate(ctx, Callback{}, testSession{})
		require.NoError(err)
		assert.Empty(result.Subject)
		assert.Equal(NoSession, result.State)
	})
}

func TestProvider_Authenticate_MissingIdToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	idp.SetExpectedAuthCode("code-1")
	idp.OmitIDTokens()
	p := testFlowProvider(t, idp)

	state, err := p.EncodeState(RequestState{SessionID: 1, UIStateID: 1})
	require.NoError(err)

	result, err := p.Authenticate(ctx, Callback{
		Code:        "code-1",
		State:       state,
		RedirectURL: testRedirectURL,
	}, testSession{})
	require.NoError(err)
	assert.Empty(result.Subject)
	assert.Equal(NoSession, result.State)
}

func TestProvider_Authenticate_NilProvider(t *testing.T) {
	t.Parallel()
	var p *Provider
	_, err := p.Authenticate(context.Background(), Callback{}, testSession{})
	assert.Truef(t, errors.Is(err, ErrNilParameter), "wanted ErrNilParameter, got %v", err)
}

func TestProvider_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)

		token, err := p.Refresh(ctx, "notarealtoken-refresh")
		require.NoError(err)
		assert.Equal(AccessToken("notarealtoken"), token.AccessToken)
		assert.Equal(RefreshToken("notarealtoken-refresh"), token.RefreshToken)
		assert.True(token.Valid())
	})
	t.Run("provider-error", func(t *testing.T) {
		assert := assert.New(t)
		idp := StartTestIdP(t)
		idp.SetTokenError(503, `{"error":"temporarily_unavailable"}`)
		p := testFlowProvider(t, idp)

		_, err := p.Refresh(ctx, "notarealtoken-refresh")
		assert.Truef(errors.Is(err, ErrTransport), "wanted ErrTransport, got %v", err)
	})
}

func TestProvider_UserInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)

		claims, err := p.UserInfo(ctx, "notarealtoken")
		require.NoError(err)
		assert.Equal("red", claims["color"])
		assert.Equal("umami", claims["flavor"])
	})
	t.Run("no-endpoint", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p, err := NewProvider(&Config{ClientId: "test-client-id"})
		require.NoError(err)

		claims, err := p.UserInfo(ctx, "notarealtoken")
		require.NoError(err)
		assert.Empty(claims)
	})
}

func TestProvider_Logout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("provider-confirms", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)

		ok, err := p.Logout(ctx, true, "notarealtoken-refresh")
		require.NoError(err)
		assert.True(ok)
	})
	t.Run("base-failure-sticks", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)

		ok, err := p.Logout(ctx, false, "notarealtoken-refresh")
		require.NoError(err)
		assert.False(ok)
	})
	t.Run("no-refresh-token-passthrough", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)

		ok, err := p.Logout(ctx, true, "")
		require.NoError(err)
		assert.True(ok)
	})
	t.Run("no-endpoint-passthrough", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p, err := NewProvider(&Config{ClientId: "test-client-id"})
		require.NoError(err)

		ok, err := p.Logout(ctx, true, "notarealtoken-refresh")
		require.NoError(err)
		assert.True(ok)
	})
	t.Run("unexpected-status", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		idp := StartTestIdP(t)
		p := testFlowProvider(t, idp)
		// the userinfo handler answers 200, not the required 204
		p.endpoints[EndpointEndSession] = idp.Addr() + "/userinfo"

		ok, err := p.Logout(ctx, true, "notarealtoken-refresh")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrProviderResponse), "wanted ErrProviderResponse, got %v", err)
		assert.False(ok)
	})
}

func TestFlowState_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("no-session", NoSession.String())
	assert.Equal("pending-redirect", PendingRedirect.String())
	assert.Equal("awaiting-callback", AwaitingCallback.String())
	assert.Equal("authenticated", Authenticated.String())
	assert.Equal("unknown", FlowState(42).String())
}

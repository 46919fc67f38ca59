package oidc

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	strutil "github.com/openrp/oidcauth/oidc/internal/strutils"
)

// AuthRequest builds the authorization redirect for a login attempt.  The
// returned descriptor always requests the "openid" scope unioned with the
// caller's scopes, asks for a code response with offline access, and carries
// the sealed request state.  Issuing the actual browser redirect is the
// host's responsibility.
//
// Supported options: WithAuthParams.
func (p *Provider) AuthRequest(sessionID, uiStateID int, actionID, redirectURL string, scopes []string, opt ...Option) (*Request, error) {
	const op = "Provider.AuthRequest"
	endpoint := p.endpoints[EndpointAuthorization]
	if endpoint == "" {
		return nil, fmt.Errorf("%s: no authorization endpoint: %w", op, ErrConfiguration)
	}
	state, err := p.EncodeState(RequestState{
		SessionID: sessionID,
		UIStateID: uiStateID,
		ActionID:  actionID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getAuthRequestOpts(opt...)

	scopes = strutil.RemoveDuplicatesStable(append([]string{"openid"}, scopes...), false)

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientId},
		"redirect_uri":  {redirectURL},
		"scope":         {strings.Join(scopes, " ")},
		"access_type":   {"offline"},
		"state":         {state},
	}
	for k, vs := range opts.withParams {
		params[k] = vs
	}
	return &Request{Method: http.MethodGet, URL: endpoint, Params: params}, nil
}

// TokenRequest builds the authorization_code exchange for the code the
// provider sent to the redirect URL.
func (p *Provider) TokenRequest(redirectURL, code string) (*Request, error) {
	const op = "Provider.TokenRequest"
	endpoint := p.endpoints[EndpointToken]
	if endpoint == "" {
		return nil, fmt.Errorf("%s: no token endpoint: %w", op, ErrConfiguration)
	}
	return &Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Body: url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {redirectURL},
			"client_id":     {p.config.ClientId},
			"client_secret": {string(p.config.ClientSecret)},
		},
	}, nil
}

// RefreshRequest builds the refresh_token grant exchange.
func (p *Provider) RefreshRequest(refreshToken RefreshToken) (*Request, error) {
	const op = "Provider.RefreshRequest"
	endpoint := p.endpoints[EndpointToken]
	if endpoint == "" {
		return nil, fmt.Errorf("%s: no token endpoint: %w", op, ErrConfiguration)
	}
	return &Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Body: url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {p.config.ClientId},
			"client_secret": {string(p.config.ClientSecret)},
			"refresh_token": {string(refreshToken)},
		},
	}, nil
}

// EndSessionRequest builds the logout/revocation exchange.
func (p *Provider) EndSessionRequest(refreshToken RefreshToken) (*Request, error) {
	const op = "Provider.EndSessionRequest"
	endpoint := p.endpoints[EndpointEndSession]
	if endpoint == "" {
		return nil, fmt.Errorf("%s: no end_session endpoint: %w", op, ErrConfiguration)
	}
	return &Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Body: url.Values{
			"client_id":     {p.config.ClientId},
			"client_secret": {string(p.config.ClientSecret)},
			"refresh_token": {string(refreshToken)},
		},
	}, nil
}

// UserInfoRequest builds the userinfo exchange.
func (p *Provider) UserInfoRequest(accessToken AccessToken) (*Request, error) {
	const op = "Provider.UserInfoRequest"
	endpoint := p.endpoints[EndpointUserInfo]
	if endpoint == "" {
		return nil, fmt.Errorf("%s: no userinfo endpoint: %w", op, ErrConfiguration)
	}
	return &Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Body: url.Values{
			"access_token": {string(accessToken)},
		},
	}, nil
}

// discoveryRequest returns the discovery exchange, or nil when no discovery
// endpoint is configured.
func (p *Provider) discoveryRequest() *Request {
	endpoint := p.endpoints[EndpointDiscovery]
	if endpoint == "" {
		return nil
	}
	return &Request{Method: http.MethodGet, URL: endpoint}
}

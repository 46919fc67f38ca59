package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// FlowState names the stages of one login flow, for hosts that want to
// surface or trace where an authentication attempt currently is.
type FlowState int

const (
	NoSession FlowState = iota
	PendingRedirect
	AwaitingCallback
	Authenticated
)

func (s FlowState) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case PendingRedirect:
		return "pending-redirect"
	case AwaitingCallback:
		return "awaiting-callback"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Callback is what the provider sent back to the redirect URI.
type Callback struct {
	// Code is the authorization code, empty when the request isn't an
	// authorization response.
	Code string

	// State is the raw state query parameter.
	State string

	// RedirectURL is the redirect URI the code was issued for; the token
	// exchange must present the same value.
	RedirectURL string
}

// Resume tells the host how to pick up the request that was interrupted by
// the login round trip.
type Resume struct {
	SessionID int
	UIStateID int

	// ActionID, when non-empty, names the pending host callback action to
	// trigger on resume.
	ActionID string
}

// AuthResult is the outcome of handling one request through the login flow.
type AuthResult struct {
	// Subject is the authenticated subject, "" when no credentials could be
	// obtained.
	Subject string

	// Credentials is the full in-memory credential set, including the raw
	// access/refresh tokens after a fresh login.
	Credentials Credentials

	// Resume is non-nil only when this request completed a fresh login; the
	// host should redirect back to the original application URL with it.
	Resume *Resume

	// State is the flow state this request ended in.
	State FlowState
}

// Fallback is the host's underlying non-OIDC authentication, consulted as a
// last resort when a request carries no code and no stored credentials.
type Fallback interface {
	Authenticate(ctx context.Context, sess Session) (subject string, creds Credentials, err error)
}

// Authenticate drives the callback half of the login flow.  Its failure
// policy is deliberate and load-bearing: a state that doesn't decode means
// the request is treated as if no code were present, and a failed exchange
// or verification falls back to existing credentials, then to the host's
// base authentication.  The end user is never shown a protocol error; the
// only visible effect of a failed attempt is being asked to log in again.
func (p *Provider) Authenticate(ctx context.Context, cb Callback, sess Session) (*AuthResult, error) {
	const op = "Provider.Authenticate"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}

	code := cb.Code
	var state RequestState
	if code != "" {
		var err error
		state, err = p.DecodeState(cb.State)
		if err != nil {
			// stale or forged state: pretend no code arrived
			p.logger.Debug("discarding callback code, state did not decode")
			code = ""
		}
	}

	var creds Credentials
	var resume *Resume
	if code != "" {
		creds = p.requestCredentials(ctx, cb.RedirectURL, code)
		if len(creds) > 0 {
			resume = &Resume{
				SessionID: state.SessionID,
				UIStateID: state.UIStateID,
				ActionID:  state.ActionID,
			}
		}
	}

	if len(creds) == 0 {
		if _, stored, ok := p.RetrieveCredentials(sess); ok {
			creds = stored
		} else if p.fallback != nil {
			_, base, err := p.fallback.Authenticate(ctx, sess)
			if err != nil {
				p.logger.Debug("base authentication failed", "error", err)
			} else {
				creds = base
			}
		}
	}

	if len(creds) > 0 {
		p.StoreCredentials(sess, creds)
	}

	result := &AuthResult{
		Subject:     creds.Subject(),
		Credentials: creds,
		Resume:      resume,
		State:       NoSession,
	}
	if result.Subject != "" {
		result.State = Authenticated
	}
	return result, nil
}

// requestCredentials exchanges the code and verifies the id_token.  Every
// failure is logged and collapses to nil credentials; the caller falls back.
func (p *Provider) requestCredentials(ctx context.Context, redirectURL, code string) Credentials {
	req, err := p.TokenRequest(redirectURL, code)
	if err != nil {
		p.logger.Error("unable to build token request", "error", err)
		return nil
	}
	resp, body, err := p.send(ctx, req)
	if err != nil {
		p.logger.Error("token exchange failed", "error", err)
		return nil
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		p.logger.Error(providerErrorMessage(resp, body))
		return nil
	case resp.StatusCode != http.StatusOK:
		p.logger.Error("authentication error", "status", resp.StatusCode)
		return nil
	}

	token, err := parseTokenResponse(body, p.now)
	if err != nil {
		p.logger.Error("malformed token response", "error", err)
		return nil
	}
	if token.IdToken == "" {
		p.logger.Error("unable to authenticate", "error", ErrMissingIdToken)
		return nil
	}
	claims, err := p.VerifyIDToken(ctx, token.IdToken, token.AccessToken)
	if err != nil {
		p.logger.Error("invalid id_token", "error", err)
		return nil
	}

	creds := Credentials(claims)
	creds["access_token"] = string(token.AccessToken)
	if token.RefreshToken != "" {
		creds["refresh_token"] = string(token.RefreshToken)
	}
	return creds
}

// providerErrorMessage extracts the OAuth error/error_description pair from
// a 400 token response, falling back to the raw body.
func providerErrorMessage(resp *http.Response, body []byte) string {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var providerErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &providerErr); err == nil && providerErr.Error != "" {
			if providerErr.Description != "" {
				return providerErr.Error + ": " + providerErr.Description
			}
			return providerErr.Error
		}
	}
	return string(body)
}

// Refresh exchanges a refresh token for a fresh token set.
func (p *Provider) Refresh(ctx context.Context, refreshToken RefreshToken) (*Token, error) {
	const op = "Provider.Refresh"
	req, err := p.RefreshRequest(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_, body, err := p.sendOK(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := parseTokenResponse(body, p.now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// UserInfo fetches the userinfo claims for an access token.  It returns an
// empty map when no userinfo endpoint is configured.
func (p *Provider) UserInfo(ctx context.Context, accessToken AccessToken) (map[string]interface{}, error) {
	const op = "Provider.UserInfo"
	if p.endpoints[EndpointUserInfo] == "" {
		return map[string]interface{}{}, nil
	}
	req, err := p.UserInfoRequest(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, body, err := p.sendOK(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims := map[string]interface{}{}
	if resp.StatusCode != http.StatusOK {
		return claims, nil
	}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("%s: malformed userinfo response: %w", op, err)
	}
	return claims, nil
}

// Logout completes the transition back to no-session.  baseStatus is the
// host's own logout outcome; when a refresh token is supplied and an
// end_session endpoint is configured, success additionally requires the
// provider to answer 204.  The returned error aggregates what went wrong
// without affecting the boolean contract.
func (p *Provider) Logout(ctx context.Context, baseStatus bool, refreshToken RefreshToken) (bool, error) {
	const op = "Provider.Logout"
	status := baseStatus
	var result *multierror.Error

	if refreshToken != "" && p.endpoints[EndpointEndSession] != "" {
		req, err := p.EndSessionRequest(refreshToken)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", op, err))
			status = false
		} else {
			resp, _, err := p.send(ctx, req)
			switch {
			case err != nil:
				result = multierror.Append(result, fmt.Errorf("%s: %w", op, err))
				status = false
			case resp.StatusCode != http.StatusNoContent:
				result = multierror.Append(result, fmt.Errorf("%s: end_session returned status %d: %w", op, resp.StatusCode, ErrProviderResponse))
				status = false
			}
		}
	}
	return status, result.ErrorOrNil()
}

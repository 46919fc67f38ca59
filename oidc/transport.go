package oidc

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
)

// Request is a plain descriptor of one HTTP exchange with the provider.
// Separating the request shape from its execution keeps every builder
// testable without network access, and lets a host substitute its own
// client.
type Request struct {
	Method string
	URL    string

	// Params are sent as the query string.
	Params url.Values

	// Body is sent form-encoded.  Empty means no body.
	Body url.Values
}

// send executes the request with the provider's client and returns the
// response along with its fully-read body.  Status handling is left to the
// caller; only network-level failures produce an error, wrapped as
// ErrTransport.
func (p *Provider) send(ctx context.Context, r *Request) (*http.Response, []byte, error) {
	const op = "Provider.send"
	if r == nil {
		return nil, nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}

	var body *strings.Reader
	if len(r.Body) > 0 {
		body = strings.NewReader(r.Body.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: unable to build request for %s: %w", op, r.URL, err)
	}
	if len(r.Params) > 0 {
		req.URL.RawQuery = r.Params.Encode()
	}
	if len(r.Body) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %s %s: %v: %w", op, r.Method, r.URL, err, ErrTransport)
	}
	defer resp.Body.Close()
	payload, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: reading %s response: %v: %w", op, r.URL, err, ErrTransport)
	}
	return resp, payload, nil
}

// sendOK is send plus a non-2xx check: any non-success status is an
// ErrTransport for the caller.  The token exchange uses send directly
// because its 400 response carries a provider error document.
func (p *Provider) sendOK(ctx context.Context, r *Request) (*http.Response, []byte, error) {
	const op = "Provider.sendOK"
	resp, body, err := p.send(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%s: %s returned status %d: %w", op, r.URL, resp.StatusCode, ErrTransport)
	}
	return resp, body, nil
}

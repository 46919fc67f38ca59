package oidc

import (
	"context"
	"encoding/json"
	"fmt"
)

// discoveryDocument is the subset of the provider metadata this engine
// consumes.
type discoveryDocument struct {
	Issuer        string `json:"issuer"`
	Authorization string `json:"authorization_endpoint"`
	Token         string `json:"token_endpoint"`
	UserInfo      string `json:"userinfo_endpoint"`
	EndSession    string `json:"end_session_endpoint"`
	JWKS          string `json:"jwks_uri"`
}

// discover fetches the provider metadata when a discovery endpoint is
// configured and overlays it onto the configured endpoint set: fields the
// document names overwrite, absent fields keep their configured values, and
// jwks_uri only fills in when not already configured.  The document's issuer
// is adopted.
func (p *Provider) discover(ctx context.Context) error {
	const op = "Provider.discover"
	req := p.discoveryRequest()
	if req == nil {
		return nil
	}
	_, body, err := p.sendOK(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var doc discoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%s: malformed discovery document: %v: %w", op, err, ErrTransport)
	}

	if doc.Issuer != "" {
		p.issuer = doc.Issuer
	}
	overlay := EndpointSet{
		EndpointAuthorization: doc.Authorization,
		EndpointToken:         doc.Token,
		EndpointUserInfo:      doc.UserInfo,
		EndpointEndSession:    doc.EndSession,
	}
	for name, endpoint := range overlay {
		if endpoint != "" {
			p.endpoints[name] = endpoint
		}
	}
	if doc.JWKS != "" && p.endpoints[EndpointJWKS] == "" {
		p.endpoints[EndpointJWKS] = doc.JWKS
	}
	p.logger.Debug("discovery document applied", "issuer", p.issuer)
	return nil
}

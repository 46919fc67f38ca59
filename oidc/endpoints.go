package oidc

import (
	"sort"
	"strings"
)

// EndpointName is the logical name of a provider endpoint.  The values match
// the field names used by the OIDC discovery document, so a discovery
// response can be overlaid directly onto an EndpointSet.
type EndpointName string

const (
	EndpointAuthorization EndpointName = "authorization_endpoint"
	EndpointToken         EndpointName = "token_endpoint"
	EndpointDiscovery     EndpointName = "discovery_endpoint"
	EndpointUserInfo      EndpointName = "userinfo_endpoint"
	EndpointEndSession    EndpointName = "end_session_endpoint"
	EndpointJWKS          EndpointName = "jwks_uri"
)

// requiredEndpoints must be resolvable before any login attempt.
var requiredEndpoints = []EndpointName{EndpointAuthorization, EndpointToken}

// EndpointTemplates maps a logical endpoint name to a URL template.  A
// template may reference {scheme}, {host}, {port} and {base_url}, plus any
// extra fields the selected preset requires (for example {realm} or
// {tenant}).
type EndpointTemplates map[EndpointName]string

// EndpointSet maps a logical endpoint name to an absolute URL.  An absent or
// empty entry means the endpoint is not configured.
type EndpointSet map[EndpointName]string

// Resolve interpolates every template with the given fields.
func (t EndpointTemplates) Resolve(fields map[string]string) EndpointSet {
	pairs := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	resolved := make(EndpointSet, len(t))
	for name, tmpl := range t {
		if tmpl == "" {
			continue
		}
		resolved[name] = r.Replace(tmpl)
	}
	return resolved
}

// missingRequired returns the sorted names of required endpoints without a
// value.
func (e EndpointSet) missingRequired() []string {
	var missing []string
	for _, name := range requiredEndpoints {
		if e[name] == "" {
			missing = append(missing, string(name))
		}
	}
	sort.Strings(missing)
	return missing
}

// preset carries the per-IdP defaults that the generic engine is specialized
// with: a default host, default endpoint templates and the extra template
// fields the IdP requires.  Representing the specializations as data keeps a
// single Provider implementation for all of them.
type preset struct {
	host      string
	templates EndpointTemplates
	extra     map[string]string
	required  []string
}

const wellKnownDiscoveryPath = "/.well-known/openid-configuration"

var presets = map[string]preset{
	"generic": {},
	"discovery": {
		templates: EndpointTemplates{
			EndpointDiscovery: "{base_url}" + wellKnownDiscoveryPath,
		},
	},
	"keycloak": {
		templates: EndpointTemplates{
			EndpointDiscovery: "{base_url}/auth/realms/{realm}" + wellKnownDiscoveryPath,
		},
		required: []string{"realm"},
	},
	"google": {
		host: "accounts.google.com",
		templates: EndpointTemplates{
			EndpointDiscovery: "{base_url}" + wellKnownDiscoveryPath,
		},
	},
	"azure": {
		host: "login.microsoftonline.com",
		templates: EndpointTemplates{
			EndpointDiscovery: "{base_url}/{tenant}/v2.0" + wellKnownDiscoveryPath,
		},
		extra: map[string]string{"tenant": "common"},
	},
}

// PresetNames returns the sorted names of the known provider presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

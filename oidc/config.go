package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
	strutil "github.com/openrp/oidcauth/oidc/internal/strutils"
)

type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultTimeout is the communication timeout with the provider when the
// Config doesn't specify one.
const DefaultTimeout = 5 * time.Second

// Config represents the configuration of one relying-party view of an
// identity provider.  It is immutable once a Provider has been constructed
// from it.
type Config struct {
	// Ident identifies this provider instance.  It prefixes every state
	// parameter so a shared callback endpoint can dispatch to the right
	// provider.  A random ident is generated when empty.
	Ident string

	// Preset selects per-IdP defaults (host, endpoint templates, extra
	// template fields).  See PresetNames().  Empty means "generic".
	Preset string

	// ClientId is the relying party id
	ClientId string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// Issuer is the provider identifier.  The id_token "iss" claim is only
	// checked when Issuer is non-empty.  Discovery overwrites it.
	Issuer string

	// SupportedSigningAlgs is the list of accepted id_token signing
	// algorithms.  Defaults to DefaultSupportedAlgs().
	SupportedSigningAlgs []Alg

	// TimeSkew is the acceptable clock drift with the issuer when checking
	// token expiry.
	TimeSkew time.Duration

	// SkipSignatureVerification disables id_token signature checks.  Claims
	// are still parsed and validated.  Never enable this outside of explicit
	// test or migration configurations.
	SkipSignatureVerification bool

	// CookieKey is the base64url-encoded symmetric key used to sign the
	// self-issued credential cookie and, absent a host Sealer, to
	// authenticate the state parameter.  A random 32-byte key is generated
	// when empty; see Provider.CookieKey() to persist it.
	CookieKey string

	// Mode selects how credentials are persisted.  See CredentialMode.
	Mode CredentialMode

	// Host, Port and SSL feed the {scheme}/{host}/{port}/{base_url} endpoint
	// template fields.  Port defaults to 443 when SSL is set, else 80.
	Host string
	Port int
	SSL  bool

	// Proxy is an optional HTTP/S proxy URL for provider requests.
	Proxy string

	// SkipTLSVerify disables server certificate verification on provider
	// requests.
	SkipTLSVerify bool

	// ProviderCA is an optional CA cert PEM to trust when sending requests
	// to the provider.
	ProviderCA string

	// Timeout bounds every provider exchange.  Defaults to DefaultTimeout.
	Timeout time.Duration

	// Endpoints are the configured endpoint URL templates.  Entries override
	// the preset's templates.
	Endpoints EndpointTemplates

	// Extra supplies preset-specific template fields, such as "realm" for
	// keycloak or "tenant" for azure.
	Extra map[string]string
}

// Validate the provider configuration.  It verifies the required client id is
// present, the preset is known and has its extra fields, and the accepted
// algorithms are supported.  It does not verify any endpoint is reachable.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientId == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	preset, ok := presets[c.presetName()]
	if !ok {
		result = multierror.Append(result, fmt.Errorf("%s: unknown preset %q: %w", op, c.Preset, ErrInvalidParameter))
	}
	for _, field := range preset.required {
		if c.Extra[field] == "" {
			result = multierror.Append(result, fmt.Errorf("%s: preset %q requires the extra field %q: %w", op, c.presetName(), field, ErrInvalidParameter))
		}
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrUnsupportedAlg))
		}
	}
	if c.Issuer != "" {
		u, err := url.Parse(c.Issuer)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: issuer %s is invalid: %w", op, c.Issuer, err))
		} else if !strutil.StrListContains([]string{"https", "http"}, u.Scheme) {
			result = multierror.Append(result, fmt.Errorf("%s: issuer %s scheme is not http or https: %w", op, c.Issuer, ErrInvalidParameter))
		}
	}
	if c.CookieKey != "" {
		if _, err := base64.RawURLEncoding.DecodeString(c.CookieKey); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: cookie key is not base64url: %w", op, ErrInvalidParameter))
		}
	}
	if c.Mode < SessionMode || c.Mode > SealedCookieMode {
		result = multierror.Append(result, fmt.Errorf("%s: unknown credential mode %d: %w", op, c.Mode, ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

func (c *Config) presetName() string {
	if c.Preset == "" {
		return "generic"
	}
	return c.Preset
}

// templateFields assembles the interpolation fields for the endpoint
// templates: scheme/host/port/base_url derived from the preset and the
// Host/Port/SSL settings, plus the preset's defaults and the Extra entries.
func (c *Config) templateFields() map[string]string {
	preset := presets[c.presetName()]

	host := c.Host
	if host == "" {
		host = preset.host
	}
	if host == "" {
		host = "localhost"
	}
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	port := c.Port
	if port == 0 {
		if c.SSL {
			port = 443
		} else {
			port = 80
		}
	}

	fields := map[string]string{
		"scheme":   scheme,
		"host":     host,
		"port":     fmt.Sprintf("%d", port),
		"base_url": fmt.Sprintf("%s://%s:%d", scheme, host, port),
	}
	for k, v := range preset.extra {
		fields[k] = v
	}
	for k, v := range c.Extra {
		fields[k] = v
	}
	return fields
}

// resolveEndpoints produces the endpoint set from the preset templates
// overridden by the configured ones.
func (c *Config) resolveEndpoints() EndpointSet {
	templates := make(EndpointTemplates)
	for name, tmpl := range presets[c.presetName()].templates {
		templates[name] = tmpl
	}
	for name, tmpl := range c.Endpoints {
		templates[name] = tmpl
	}
	return templates.Resolve(c.templateFields())
}

func (c *Config) supportedAlgs() []Alg {
	if len(c.SupportedSigningAlgs) == 0 {
		return DefaultSupportedAlgs()
	}
	return c.SupportedSigningAlgs
}

func (c *Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

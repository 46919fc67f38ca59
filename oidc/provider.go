package oidc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	sdkHttp "github.com/openrp/oidcauth/sdk/http"
	sdkId "github.com/openrp/oidcauth/sdk/id"
)

// Provider is one relying-party view of an identity provider.  It owns the
// provider's endpoint set, its signing-key cache and its credential codec.
// All methods are safe for concurrent use once Initialize has returned.
type Provider struct {
	config    *Config
	ident     string
	endpoints EndpointSet
	issuer    string
	algs      []Alg

	client    *http.Client
	sealer    Sealer
	cookieKey []byte
	keys      *keySet
	fallback  Fallback

	logger hclog.Logger
	now    func() time.Time
}

// NewProvider creates a Provider from the config.  It resolves the endpoint
// templates and prepares the transport, but performs no network calls; see
// Initialize for the startup discovery and key-priming sequence.
//
// Supported options: WithLogger, WithNow, WithSealer, WithFallback.
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ident := c.Ident
	if ident == "" {
		var err error
		ident, err = sdkId.New("rp")
		if err != nil {
			return nil, fmt.Errorf("%s: unable to generate provider ident: %w", op, ErrIdGeneratorFailed)
		}
	}

	cookieKey, err := cookieKeyBytes(c.CookieKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sealer := opts.withSealer
	if sealer == nil {
		sealer, err = NewJWSSealer(cookieKey)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create default sealer: %w", op, err)
		}
	}

	client, err := sdkHttp.NewClient(sdkHttp.ClientConfig{
		CAPem:      c.ProviderCA,
		Proxy:      c.Proxy,
		SkipVerify: c.SkipTLSVerify,
		Timeout:    c.timeout(),
	})
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	p := &Provider{
		config:    c,
		ident:     ident,
		endpoints: c.resolveEndpoints(),
		issuer:    c.Issuer,
		algs:      c.supportedAlgs(),
		client:    client,
		sealer:    sealer,
		cookieKey: cookieKey,
		keys:      newKeySet(),
		fallback:  opts.withFallback,
		logger:    logger,
		now:       opts.withNow,
	}
	return p, nil
}

func cookieKeyBytes(encoded string) ([]byte, error) {
	const op = "cookieKeyBytes"
	if encoded != "" {
		key, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%s: cookie key is not base64url: %w", op, ErrInvalidParameter)
		}
		return key, nil
	}
	key, err := uuid.GenerateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate cookie key: %w", op, err)
	}
	return key, nil
}

// Ident returns the provider identifier used in the state parameter prefix.
func (p *Provider) Ident() string {
	return p.ident
}

// CookieKey returns the base64url encoding of the cookie-signing key, so a
// host can persist a generated key across restarts.
func (p *Provider) CookieKey() string {
	return base64.RawURLEncoding.EncodeToString(p.cookieKey)
}

// Endpoint returns the resolved URL for the named endpoint, or "" when it is
// not configured.
func (p *Provider) Endpoint(name EndpointName) string {
	return p.endpoints[name]
}

// Initialize runs the startup sequence: the optional discovery exchange, the
// required-endpoint check and one signing-key refresh.  A missing required
// endpoint is logged as a configuration error but does not fail Initialize;
// login attempts against the missing endpoint fail with ErrConfiguration at
// the point of use.  Initialize is not safe to call concurrently with other
// Provider methods.
func (p *Provider) Initialize(ctx context.Context) error {
	const op = "Provider.Initialize"
	if err := p.discover(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if missing := p.endpoints.missingRequired(); len(missing) > 0 {
		p.logger.Error("endpoints without values", "endpoints", missing)
	}
	if err := p.refreshKeysIfStale(ctx); err != nil {
		// an unreachable JWKS endpoint degrades verification, it doesn't
		// prevent startup
		p.logger.Error("unable to prime signing keys", "error", err)
	}
	return nil
}

// Registry maps provider idents to Provider instances so a single callback
// endpoint can serve several configured IdPs.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Register adds the provider under its ident.
func (r *Registry) Register(p *Provider) error {
	const op = "Registry.Register"
	if p == nil {
		return fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Ident()]; ok {
		return fmt.Errorf("%s: provider %q already registered: %w", op, p.Ident(), ErrInvalidParameter)
	}
	r.providers[p.Ident()] = p
	return nil
}

// Lookup returns the provider registered under ident.
func (r *Registry) Lookup(ident string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[ident]
	return p, ok
}

// Dispatch selects the provider addressed by a raw state parameter.  It only
// reads the ident prefix; the sealed payload is verified later by the
// selected provider's DecodeState.
func (r *Registry) Dispatch(stateParam string) (*Provider, error) {
	const op = "Registry.Dispatch"
	ident, _, err := splitStateParam(stateParam)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, ok := r.Lookup(ident)
	if !ok {
		return nil, fmt.Errorf("%s: no provider %q: %w", op, ident, ErrUnknownProvider)
	}
	return p, nil
}

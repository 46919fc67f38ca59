package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pquerna/cachecontrol/cacheobject"
	"gopkg.in/square/go-jose.v2"
)

// keySet caches the provider's signing keys, keyed by kid (possibly the
// empty string for providers that omit it).  The mutex guards the whole
// check-then-refresh sequence so concurrent stale callers coalesce into a
// single JWKS fetch.  The key map is replaced wholesale on a successful
// refresh and left intact on failure.
type keySet struct {
	mu sync.Mutex

	keys map[string]jose.JSONWebKey

	// expiration is derived from the JWKS response's Cache-Control max-age.
	// nil means the set is stale and the next use refreshes it, which also
	// covers the initial empty state.
	expiration *time.Time
}

func newKeySet() *keySet {
	return &keySet{keys: make(map[string]jose.JSONWebKey)}
}

// get returns the key for kid.
func (k *keySet) get(kid string) (jose.JSONWebKey, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keys[kid]
	return key, ok
}

// all returns every cached key, for providers that sign without a kid.
func (k *keySet) all() []jose.JSONWebKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys := make([]jose.JSONWebKey, 0, len(k.keys))
	for _, key := range k.keys {
		keys = append(keys, key)
	}
	return keys
}

func (k *keySet) kids() []string {
	kids := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

// refreshKeysIfStale refreshes the signing-key cache when a JWKS endpoint is
// configured and the cache is stale.  A fetch failure leaves the previous
// keys in place and surfaces as an ErrTransport; callers treat that as a
// verification failure for the current request, never as fatal.
func (p *Provider) refreshKeysIfStale(ctx context.Context) error {
	const op = "Provider.refreshKeysIfStale"
	jwksURL := p.endpoints[EndpointJWKS]
	if jwksURL == "" {
		return nil
	}

	k := p.keys
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.expiration != nil && p.now().Before(*k.expiration) {
		return nil
	}

	logger := p.logger.Named("keys")
	resp, body, err := p.send(ctx, &Request{Method: http.MethodGet, URL: jwksURL})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s returned status %d: %w", op, jwksURL, resp.StatusCode, ErrTransport)
	}
	var doc jose.JSONWebKeySet
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%s: malformed JWKS document: %v: %w", op, err, ErrTransport)
	}

	fresh := make(map[string]jose.JSONWebKey, len(doc.Keys))
	for _, key := range doc.Keys {
		fresh[key.KeyID] = key
	}

	// log the change as a diff of kid sets only, never key material
	oldKids := k.kids()
	k.keys = fresh
	newKids := k.kids()
	if !equalStrings(oldKids, newKids) {
		logger.Debug("new signing keys fetched", "old", oldKids, "new", newKids)
	} else {
		logger.Debug("same signing keys fetched", "kids", newKids)
	}

	k.expiration = nil
	if directives, err := cacheobject.ParseResponseCacheControl(resp.Header.Get("Cache-Control")); err == nil && directives.MaxAge >= 0 {
		expiration := p.now().Add(time.Duration(directives.MaxAge) * time.Second)
		k.expiration = &expiration
		logger.Debug("signing keys max age", "seconds", int64(directives.MaxAge))
	} else {
		logger.Debug("no expiration date for signing keys")
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

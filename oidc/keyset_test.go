package oidc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeysetProvider(t *testing.T, idp *TestIdP, opt ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{
		Ident:        "test-rp",
		ClientId:     "test-client-id",
		ClientSecret: "test-client-secret",
		ProviderCA:   idp.CACert(),
		Endpoints:    idp.Endpoints(),
	}, opt...)
	require.NoError(t, err)
	return p
}

func TestProvider_refreshKeysIfStale_Freshness(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	idp.SetJWKSCacheControl("public, max-age=60")

	var mu sync.Mutex
	current := time.Now()
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}

	p := testKeysetProvider(t, idp, WithNow(now))

	require.NoError(p.refreshKeysIfStale(ctx))
	assert.Equal(1, idp.JWKSFetchCount())

	// within max-age: no fetch
	advance(59 * time.Second)
	require.NoError(p.refreshKeysIfStale(ctx))
	assert.Equal(1, idp.JWKSFetchCount())

	// past max-age: exactly one more fetch
	advance(2 * time.Second)
	require.NoError(p.refreshKeysIfStale(ctx))
	assert.Equal(2, idp.JWKSFetchCount())
}

func TestProvider_refreshKeysIfStale_NoMaxAge(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	p := testKeysetProvider(t, idp)

	// without a numeric max-age the set is stale on every use
	require.NoError(p.refreshKeysIfStale(ctx))
	require.NoError(p.refreshKeysIfStale(ctx))
	assert.Equal(2, idp.JWKSFetchCount())
}

func TestProvider_refreshKeysIfStale_Coalesces(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	idp.SetJWKSCacheControl("max-age=60")
	p := testKeysetProvider(t, idp)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.refreshKeysIfStale(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}
	assert.Equal(1, idp.JWKSFetchCount())
}

func TestProvider_refreshKeysIfStale_KeepsKeysOnFailure(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	idp := StartTestIdP(t)
	p := testKeysetProvider(t, idp)

	require.NoError(p.refreshKeysIfStale(ctx))
	before := p.keys.all()
	require.NotEmpty(before)

	// provider is gone: the refresh fails but the previous keys survive
	idp.Stop()
	err := p.refreshKeysIfStale(ctx)
	require.Error(err)
	assert.Truef(errors.Is(err, ErrTransport), "wanted ErrTransport, got %v", err)
	assert.Equal(before, p.keys.all())
}

func TestProvider_refreshKeysIfStale_NoJWKSEndpoint(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	p, err := NewProvider(&Config{ClientId: "test-client-id"})
	require.NoError(err)
	require.NoError(p.refreshKeysIfStale(context.Background()))
	require.Empty(p.keys.all())
}

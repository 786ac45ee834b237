package cache

import (
	"context"
	"errors"
	"time"

	"github.com/piwi3910/tenantcore/internal/isolation"
	"github.com/piwi3910/tenantcore/internal/metrics"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// TenantCache wraps a Sharded cache so that every key is derived through the
// isolation resolver before it reaches storage. Entries written by different
// tenants land under disjoint keys by construction.
type TenantCache struct {
	cache         *Sharded
	resolver      *isolation.Resolver
	level         isolation.Level
	allowUnscoped bool
}

// NewTenantCache creates a tenant-scoped cache at the resolver's default
// level. allowUnscoped mirrors context.allow_cross_tenant_access: when true,
// operations without an active tenant context fall back to the raw key
// instead of failing.
func NewTenantCache(cache *Sharded, resolver *isolation.Resolver, allowUnscoped bool) *TenantCache {
	return &TenantCache{
		cache:         cache,
		resolver:      resolver,
		level:         resolver.DefaultLevel(),
		allowUnscoped: allowUnscoped,
	}
}

// AtLevel returns a view of the cache isolated at a specific level.
func (t *TenantCache) AtLevel(level isolation.Level) *TenantCache {
	scoped := *t
	scoped.level = level

	return &scoped
}

// isolate derives the storage key, applying the unscoped fallback when
// configured.
func (t *TenantCache) isolate(ctx context.Context, rawKey string) (string, error) {
	key, err := t.resolver.IsolateKey(ctx, t.level, rawKey)
	if err == nil {
		return key, nil
	}

	if errors.Is(err, tenantctx.ErrContextMissing) {
		metrics.ContextMissingTotal.Inc()
		if t.allowUnscoped {
			return rawKey, nil
		}
	}

	var tooLong *isolation.KeyTooLongError
	if errors.As(err, &tooLong) {
		metrics.KeysTooLongTotal.Inc()
	}

	return "", err
}

// Get returns the cached value for rawKey within the active isolation scope.
func (t *TenantCache) Get(ctx context.Context, rawKey string) ([]byte, bool, error) {
	key, err := t.isolate(ctx, rawKey)
	if err != nil {
		return nil, false, err
	}

	metrics.RecordIsolationOp(t.level.String(), "cache_get")
	value, ok := t.cache.Get(key)

	return value, ok, nil
}

// Set stores value under rawKey within the active isolation scope.
func (t *TenantCache) Set(ctx context.Context, rawKey string, value []byte, ttl time.Duration) error {
	key, err := t.isolate(ctx, rawKey)
	if err != nil {
		return err
	}

	metrics.RecordIsolationOp(t.level.String(), "cache_set")
	t.cache.Set(key, value, ttl)

	return nil
}

// Delete removes rawKey within the active isolation scope.
func (t *TenantCache) Delete(ctx context.Context, rawKey string) error {
	key, err := t.isolate(ctx, rawKey)
	if err != nil {
		return err
	}

	t.cache.Delete(key)

	return nil
}

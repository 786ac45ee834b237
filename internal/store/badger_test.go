package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/isolation"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

func testResolver() *isolation.Resolver {
	return isolation.NewResolver(&config.MultiTenancyConfig{
		Isolation: config.LevelConfig{
			Strategy:        config.StrategyKeyPrefix,
			KeyPrefix:       "tenant:",
			EnableIsolation: true,
		},
		MultiLevel: config.MultiLevelConfig{
			DefaultIsolationLevel: "tenant",
			EnablePermissionCheck: true,
		},
	})
}

func openTestStore(t *testing.T, allowUnscoped bool) *TenantStore {
	t.Helper()

	s, err := OpenInMemory(testResolver(), allowUnscoped)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func tenantCtx(tenantID string) context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.IsolationContext{TenantID: tenantID}, false)
}

func TestTenantStore_PutGetDelete(t *testing.T) {
	s := openTestStore(t, false)
	ctx := tenantCtx("t1")

	require.NoError(t, s.Put(ctx, "config", []byte("v1")))

	value, err := s.Get(ctx, "config")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, s.Delete(ctx, "config"))

	_, err = s.Get(ctx, "config")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTenantStore_TenantsIsolated(t *testing.T) {
	s := openTestStore(t, false)

	require.NoError(t, s.Put(tenantCtx("t1"), "config", []byte("one")))
	require.NoError(t, s.Put(tenantCtx("t2"), "config", []byte("two")))

	value, err := s.Get(tenantCtx("t1"), "config")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	value, err = s.Get(tenantCtx("t2"), "config")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)

	// Deleting under one tenant never touches the other
	require.NoError(t, s.Delete(tenantCtx("t1"), "config"))

	_, err = s.Get(tenantCtx("t1"), "config")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = s.Get(tenantCtx("t2"), "config")
	assert.NoError(t, err)
}

func TestTenantStore_GetMissingKey(t *testing.T) {
	s := openTestStore(t, false)

	_, err := s.Get(tenantCtx("t1"), "never-written")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTenantStore_MissingContext(t *testing.T) {
	s := openTestStore(t, false)

	err := s.Put(context.Background(), "config", []byte("v1"))
	assert.ErrorIs(t, err, tenantctx.ErrContextMissing)

	_, err = s.Get(context.Background(), "config")
	assert.ErrorIs(t, err, tenantctx.ErrContextMissing)
}

func TestTenantStore_UnscopedFallback(t *testing.T) {
	s := openTestStore(t, true)

	// Without a context the raw key is used directly
	require.NoError(t, s.Put(context.Background(), "global", []byte("v1")))

	value, err := s.Get(context.Background(), "global")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	// A scoped read of the same raw key misses
	_, err = s.Get(tenantCtx("t1"), "global")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTenantStore_ListKeys(t *testing.T) {
	s := openTestStore(t, false)

	require.NoError(t, s.Put(tenantCtx("t1"), "user:1", []byte("a")))
	require.NoError(t, s.Put(tenantCtx("t1"), "user:2", []byte("b")))
	require.NoError(t, s.Put(tenantCtx("t1"), "session:9", []byte("c")))
	require.NoError(t, s.Put(tenantCtx("t2"), "user:3", []byte("d")))

	keys, err := s.ListKeys(tenantCtx("t1"), "user:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)

	// An empty prefix lists everything inside the scope, nothing outside it
	keys, err = s.ListKeys(tenantCtx("t1"), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2", "session:9"}, keys)

	keys, err = s.ListKeys(tenantCtx("t2"), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:3"}, keys)
}

func TestTenantStore_Ping(t *testing.T) {
	s := openTestStore(t, false)
	assert.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

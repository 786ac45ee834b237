package isolation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

func singleLevelConfig() *config.MultiTenancyConfig {
	return &config.MultiTenancyConfig{
		Isolation: config.LevelConfig{
			Strategy:        config.StrategyKeyPrefix,
			KeyPrefix:       "tenant:",
			EnableIsolation: true,
		},
		MultiLevel: config.MultiLevelConfig{
			DefaultIsolationLevel: "tenant",
			EnablePermissionCheck: true,
		},
	}
}

func multiLevelConfig() *config.MultiTenancyConfig {
	return &config.MultiTenancyConfig{
		MultiLevel: config.MultiLevelConfig{
			EnableMultiLevelIsolation: true,
			DefaultIsolationLevel:     "user",
			EnablePermissionCheck:     true,
			Levels: map[string]config.LevelConfig{
				"tenant":       {Strategy: config.StrategyKeyPrefix, KeyPrefix: "tenant:", EnableIsolation: true},
				"organization": {Strategy: config.StrategyKeyPrefix, KeyPrefix: "org:", EnableIsolation: true},
				"department":   {Strategy: config.StrategyKeyPrefix, KeyPrefix: "dept:", EnableIsolation: true},
				"user":         {Strategy: config.StrategyKeyPrefix, KeyPrefix: "user:", EnableIsolation: true},
			},
		},
	}
}

func ctxWith(ic tenantctx.IsolationContext) context.Context {
	return tenantctx.WithContext(context.Background(), ic, false)
}

func TestIsolateKey_SingleLevel(t *testing.T) {
	r := NewResolver(singleLevelConfig())
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "t1"})

	key, err := r.IsolateKey(ctx, LevelTenant, "user:42")
	require.NoError(t, err)
	assert.Equal(t, "tenant:t1:user:42", key)
}

func TestIsolateKey_Deterministic(t *testing.T) {
	r := NewResolver(singleLevelConfig())
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "t1"})

	first, err := r.IsolateKey(ctx, LevelTenant, "session:abc")
	require.NoError(t, err)

	for _i := 0; _i < 10; _i++ {
		again, err := r.IsolateKey(ctx, LevelTenant, "session:abc")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIsolateKey_TenantsNeverCollide(t *testing.T) {
	r := NewResolver(singleLevelConfig())

	a, err := r.IsolateKey(ctxWith(tenantctx.IsolationContext{TenantID: "t1"}), LevelTenant, "config")
	require.NoError(t, err)

	b, err := r.IsolateKey(ctxWith(tenantctx.IsolationContext{TenantID: "t2"}), LevelTenant, "config")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestIsolateKey_NoContext(t *testing.T) {
	r := NewResolver(singleLevelConfig())

	_, err := r.IsolateKey(context.Background(), LevelTenant, "k")
	assert.ErrorIs(t, err, tenantctx.ErrContextMissing)

	// A context without a tenant ID counts as missing
	_, err = r.IsolateKey(ctxWith(tenantctx.IsolationContext{UserID: "u1"}), LevelTenant, "k")
	assert.ErrorIs(t, err, tenantctx.ErrContextMissing)
}

func TestIsolateKey_MultiLevelChain(t *testing.T) {
	r := NewResolver(multiLevelConfig())

	full := tenantctx.IsolationContext{
		TenantID:       "t1",
		OrganizationID: "o1",
		DepartmentID:   "d1",
		UserID:         "u1",
	}

	tests := []struct {
		name  string
		ic    tenantctx.IsolationContext
		level Level
		want  string
	}{
		{
			name:  "full chain down to user",
			ic:    full,
			level: LevelUser,
			want:  "tenant:t1:org:o1:dept:d1:user:u1:doc",
		},
		{
			name:  "chain stops at requested level",
			ic:    full,
			level: LevelOrganization,
			want:  "tenant:t1:org:o1:doc",
		},
		{
			name:  "absent identifiers are skipped",
			ic:    tenantctx.IsolationContext{TenantID: "t1", UserID: "u1"},
			level: LevelUser,
			want:  "tenant:t1:user:u1:doc",
		},
		{
			name:  "tenant only",
			ic:    full,
			level: LevelTenant,
			want:  "tenant:t1:doc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := r.IsolateKey(ctxWith(tt.ic), tt.level, "doc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestIsolateKey_DisabledLevelSkipped(t *testing.T) {
	cfg := multiLevelConfig()

	lc := cfg.MultiLevel.Levels["organization"]
	lc.EnableIsolation = false
	cfg.MultiLevel.Levels["organization"] = lc

	r := NewResolver(cfg)

	key, err := r.IsolateKey(ctxWith(tenantctx.IsolationContext{
		TenantID:       "t1",
		OrganizationID: "o1",
		UserID:         "u1",
	}), LevelUser, "doc")
	require.NoError(t, err)
	assert.Equal(t, "tenant:t1:user:u1:doc", key)
}

func TestIsolateKey_MaxKeyLength(t *testing.T) {
	cfg := singleLevelConfig()
	cfg.Isolation.MaxKeyLength = 15

	r := NewResolver(cfg)
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "t1"})

	// "tenant:t1:short" is exactly 15 bytes
	key, err := r.IsolateKey(ctx, LevelTenant, "short")
	require.NoError(t, err)
	assert.Len(t, key, 15)

	_, err = r.IsolateKey(ctx, LevelTenant, "much-longer-key-name")

	var tooLong *KeyTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, LevelTenant, tooLong.Level)
	assert.Equal(t, 15, tooLong.Max)
	assert.Greater(t, tooLong.Length, tooLong.Max)
}

func TestIsolateNamespace(t *testing.T) {
	cfg := multiLevelConfig()

	lc := cfg.MultiLevel.Levels["organization"]
	lc.Strategy = config.StrategyNamespace
	lc.Namespace = "orgs"
	cfg.MultiLevel.Levels["organization"] = lc

	r := NewResolver(cfg)
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "t1", OrganizationID: "o1"})

	ns, err := r.IsolateNamespace(ctx, LevelOrganization)
	require.NoError(t, err)
	assert.Equal(t, "orgs:o1", ns)

	// Without an explicit namespace the level name is the base
	ns, err = r.IsolateNamespace(ctx, LevelTenant)
	require.NoError(t, err)
	assert.Equal(t, "tenant:t1", ns)
}

func TestIsolateNamespace_MissingIdentifier(t *testing.T) {
	r := NewResolver(multiLevelConfig())
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "t1"})

	_, err := r.IsolateNamespace(ctx, LevelUser)
	assert.ErrorIs(t, err, tenantctx.ErrContextMissing)
}

func TestIsolateDatabaseName(t *testing.T) {
	r := NewResolver(multiLevelConfig())
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "Acme-Corp.io"})

	db, err := r.IsolateDatabaseName(ctx, LevelTenant)
	require.NoError(t, err)
	assert.Equal(t, "tenantcore_tenant_acme_corp_io", db)
}

func TestIsolateSchemaName(t *testing.T) {
	r := NewResolver(multiLevelConfig())

	tests := []struct {
		tenant string
		want   string
	}{
		{"t1", "tenant_t1"},
		{"Acme Corp", "tenant_acme_corp"},
		{"42", "tenant_42"},
	}

	for _, tt := range tests {
		schema, err := r.IsolateSchemaName(ctxWith(tenantctx.IsolationContext{TenantID: tt.tenant}), LevelTenant)
		require.NoError(t, err)
		assert.Equal(t, tt.want, schema)
	}
}

func TestIsolate_DisabledLevel(t *testing.T) {
	// Multi-level disabled: deeper levels have no configuration at all
	r := NewResolver(singleLevelConfig())
	ctx := ctxWith(tenantctx.IsolationContext{TenantID: "t1", UserID: "u1"})

	_, err := r.IsolateNamespace(ctx, LevelUser)

	var disabled *LevelDisabledError
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, LevelUser, disabled.Level)
}

func TestDefaultLevel(t *testing.T) {
	assert.Equal(t, LevelUser, NewResolver(multiLevelConfig()).DefaultLevel())
	assert.Equal(t, LevelTenant, NewResolver(singleLevelConfig()).DefaultLevel())

	cfg := singleLevelConfig()
	cfg.MultiLevel.DefaultIsolationLevel = "bogus"
	assert.Equal(t, LevelTenant, NewResolver(cfg).DefaultLevel())
}

func TestParseLevel(t *testing.T) {
	for _, l := range Levels {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParseLevel("cluster")
	assert.Error(t, err)
}

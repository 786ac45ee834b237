package isolation

import (
	"context"
	"strings"

	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// Resolver derives isolated keys, namespaces and database/schema names from
// the validated multi-tenancy configuration and the active isolation context.
// A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	cfg *config.MultiTenancyConfig
}

// NewResolver creates a resolver over a validated configuration. Callers are
// expected to have run config.MustValidate first; the resolver does not
// re-validate.
func NewResolver(cfg *config.MultiTenancyConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// DefaultLevel returns the configured default isolation level, falling back
// to the tenant level when unset or unknown.
func (r *Resolver) DefaultLevel() Level {
	if l, err := ParseLevel(r.cfg.MultiLevel.DefaultIsolationLevel); err == nil {
		return l
	}

	return LevelTenant
}

// Identifier returns the context identifier for the given level.
func Identifier(ic tenantctx.IsolationContext, l Level) string {
	switch l {
	case LevelTenant:
		return ic.TenantID
	case LevelOrganization:
		return ic.OrganizationID
	case LevelDepartment:
		return ic.DepartmentID
	case LevelUser:
		return ic.UserID
	default:
		return ""
	}
}

// IsolateKey derives the isolated storage key for rawKey at the given level.
//
// With multi-level isolation enabled, prefix segments for the enabled levels
// compose in fixed order Tenant → Organization → Department → User down to
// the requested level; levels whose identifier is absent from the context or
// whose isolation is disabled are skipped. With multi-level isolation
// disabled, only the legacy tenant-level block applies.
//
// Returns tenantctx.ErrContextMissing when no tenant context is active and a
// KeyTooLongError when the derived key exceeds the level's max_key_length.
func (r *Resolver) IsolateKey(ctx context.Context, level Level, rawKey string) (string, error) {
	ic, ok := tenantctx.FromContext(ctx)
	if !ok || ic.TenantID == "" {
		return "", tenantctx.ErrContextMissing
	}

	var b strings.Builder

	for _, l := range Levels {
		if l > level {
			break
		}

		lc, configured := levelConfig(r.cfg, l)
		if !configured || !lc.EnableIsolation {
			continue
		}

		id := Identifier(ic, l)
		if id == "" {
			continue
		}

		b.WriteString(keyPrefixFor(lc, l))
		b.WriteString(id)
		b.WriteString(":")
	}

	b.WriteString(rawKey)
	key := b.String()

	if lc, configured := levelConfig(r.cfg, level); configured {
		if lc.MaxKeyLength > 0 && len(key) > lc.MaxKeyLength {
			return "", &KeyTooLongError{Level: level, Length: len(key), Max: lc.MaxKeyLength}
		}
	}

	return key, nil
}

// IsolateNamespace derives the isolated namespace for the given level, for
// consumers that partition by namespace rather than key prefix. The raw key
// is left untouched by this strategy; the namespace alone carries the
// isolation boundary.
func (r *Resolver) IsolateNamespace(ctx context.Context, level Level) (string, error) {
	_, id, lc, err := r.levelState(ctx, level)
	if err != nil {
		return "", err
	}

	base := lc.Namespace
	if base == "" {
		base = level.String()
	}

	return base + ":" + id, nil
}

// IsolateDatabaseName derives the isolated database name for the given
// level: the configured database base (or a per-level default) joined with a
// sanitized identifier.
func (r *Resolver) IsolateDatabaseName(ctx context.Context, level Level) (string, error) {
	_, id, lc, err := r.levelState(ctx, level)
	if err != nil {
		return "", err
	}

	base := lc.Database
	if base == "" {
		base = "tenantcore_" + level.String()
	}

	return base + "_" + sanitizeIdentifier(id), nil
}

// IsolateSchemaName derives an identifier-safe schema name for the given
// level, suitable for direct interpolation into DDL.
func (r *Resolver) IsolateSchemaName(ctx context.Context, level Level) (string, error) {
	_, id, _, err := r.levelState(ctx, level)
	if err != nil {
		return "", err
	}

	return sanitizeIdentifier(level.String() + "_" + id), nil
}

// levelState resolves the shared preconditions of the namespace, database and
// schema strategies: an active tenant context, an identifier at the level,
// and an enabled level configuration.
func (r *Resolver) levelState(ctx context.Context, level Level) (tenantctx.IsolationContext, string, config.LevelConfig, error) {
	ic, ok := tenantctx.FromContext(ctx)
	if !ok || ic.TenantID == "" {
		return tenantctx.IsolationContext{}, "", config.LevelConfig{}, tenantctx.ErrContextMissing
	}

	lc, configured := levelConfig(r.cfg, level)
	if !configured || !lc.EnableIsolation {
		return ic, "", lc, &LevelDisabledError{Level: level}
	}

	id := Identifier(ic, level)
	if id == "" {
		return ic, "", lc, tenantctx.ErrContextMissing
	}

	return ic, id, lc, nil
}

// keyPrefixFor returns the prefix segment for a level. Levels without an
// explicit key_prefix (namespace/database/schema strategies participating in
// a multi-level chain) fall back to the level name so the derived key still
// carries the identifier.
func keyPrefixFor(lc config.LevelConfig, l Level) string {
	if lc.KeyPrefix != "" {
		return lc.KeyPrefix
	}

	return l.String() + ":"
}

// sanitizeIdentifier maps an arbitrary identifier to one safe for database
// object names: lowercase, [a-z0-9_] only, never starting with a digit.
func sanitizeIdentifier(id string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "t_" + s
	}

	return s
}

// Package isolation derives isolated storage keys, namespaces, database and
// schema names per hierarchy level, and validates the tenant hierarchy.
//
// The resolver is a deterministic pure function of (configuration, active
// isolation context, raw key): identical inputs always yield identical
// isolated keys, which cache-hit consistency and idempotent routing depend
// on. The four strategies partition shared infrastructure differently:
//
//   - key-prefix: prepends per-level "prefix + identifier" segments to the key
//   - namespace: routes to a namespace derived from the level identifier
//   - database: routes to a per-identifier database name
//   - schema: routes to a sanitized, identifier-safe schema name
//
// When multi-level isolation is enabled, enabled levels compose in fixed
// order Tenant → Organization → Department → User; levels whose identifier is
// absent from the context or whose isolation is disabled are skipped.
package isolation

import (
	"fmt"

	"github.com/piwi3910/tenantcore/internal/config"
)

// Level identifies one isolation boundary in the tenant hierarchy, totally
// ordered by nesting depth: Tenant < Organization < Department < User.
type Level int

const (
	LevelTenant Level = iota
	LevelOrganization
	LevelDepartment
	LevelUser
)

// Levels lists all levels in nesting order.
var Levels = []Level{LevelTenant, LevelOrganization, LevelDepartment, LevelUser}

// String returns the configuration name of the level.
func (l Level) String() string {
	switch l {
	case LevelTenant:
		return "tenant"
	case LevelOrganization:
		return "organization"
	case LevelDepartment:
		return "department"
	case LevelUser:
		return "user"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a configuration name into a Level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "tenant":
		return LevelTenant, nil
	case "organization":
		return LevelOrganization, nil
	case "department":
		return LevelDepartment, nil
	case "user":
		return LevelUser, nil
	default:
		return 0, fmt.Errorf("isolation: unknown level %q", name)
	}
}

// levelConfig returns the effective LevelConfig for l. With multi-level
// isolation enabled the per-level map applies; otherwise the legacy
// single-level block configures the tenant level and all deeper levels are
// treated as disabled.
func levelConfig(cfg *config.MultiTenancyConfig, l Level) (config.LevelConfig, bool) {
	if cfg.MultiLevel.EnableMultiLevelIsolation {
		lc, ok := cfg.MultiLevel.Levels[l.String()]

		return lc, ok
	}

	if l == LevelTenant {
		return cfg.Isolation, true
	}

	return config.LevelConfig{}, false
}

package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piwi3910/tenantcore/internal/metrics"
)

// Bounds for business-rule validation. Violations outside the structural
// invariants produce warnings, never errors.
const (
	minContextTimeout = 1 * time.Second
	maxContextTimeout = 5 * time.Minute

	minRecommendedFailedAttempts = 3
	maxRecommendedFailedAttempts = 20
	minRecommendedLockout        = time.Minute

	minMaxKeyLength = 10
)

// levelNames are the four hierarchy levels, in nesting order. A multi-level
// configuration must define all of them.
var levelNames = []string{"tenant", "organization", "department", "user"}

// ValidationResult carries the outcome of configuration validation.
// Errors make the configuration unusable; warnings are advisory and are
// logged at startup without blocking it.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// InvalidConfigError is returned by MustValidate when validation fails.
// It carries the full error list so the operator sees every problem at once.
type InvalidConfigError struct {
	Result ValidationResult
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid multi-tenancy configuration: %s",
		strings.Join(e.Result.Errors, "; "))
}

// Validate checks the multi-tenancy configuration. Structural violations of
// the isolation invariants are errors; everything else is a warning.
func Validate(cfg *MultiTenancyConfig) ValidationResult {
	result := ValidationResult{Valid: true}

	validateContext(&cfg.Context, &result)
	validateLevelConfig("isolation", &cfg.Isolation, &result)
	validateMultiLevel(&cfg.MultiLevel, &result)
	validateSecurity(&cfg.Security, &result)

	return result
}

// MustValidate validates the configuration and returns an InvalidConfigError
// when it is unusable. It must be called at process bootstrap: the engine
// fails fast rather than serve traffic under a misconfigured isolation
// policy. Warnings are logged and never block startup.
func MustValidate(cfg *MultiTenancyConfig) error {
	result := Validate(cfg)

	for _, w := range result.Warnings {
		metrics.ConfigWarningsTotal.Inc()
		log.Warn().Str("component", "config").Msg(w)
	}

	if !result.Valid {
		return &InvalidConfigError{Result: result}
	}

	return nil
}

func validateContext(cc *ContextConfig, result *ValidationResult) {
	if cc.ContextTimeout < minContextTimeout || cc.ContextTimeout > maxContextTimeout {
		result.addWarning(
			"context.context_timeout %s is outside the recommended range [%s, %s]",
			cc.ContextTimeout, minContextTimeout, maxContextTimeout,
		)
	}

	switch cc.ContextStorage {
	case ContextStorageMemory, ContextStorageRedis:
	case "":
		result.addWarning("context.context_storage is empty, assuming %q", ContextStorageMemory)
	default:
		result.addWarning("context.context_storage %q is not a known backend", cc.ContextStorage)
	}

	if cc.AllowCrossTenantAccess {
		result.addWarning("context.allow_cross_tenant_access is enabled; operations may run unscoped")
	}

	for name, value := range map[string]string{
		"tenant_header":       cc.TenantHeader,
		"organization_header": cc.OrganizationHeader,
		"department_header":   cc.DepartmentHeader,
		"user_header":         cc.UserHeader,
	} {
		if value == "" {
			result.addWarning("context.%s is empty; header extraction for this level is disabled", name)

			continue
		}
		if strings.ContainsAny(value, " \t:") {
			result.addWarning("context.%s %q is not a valid HTTP header name", name, value)
		}
	}
}

func validateLevelConfig(path string, lc *LevelConfig, result *ValidationResult) {
	switch lc.Strategy {
	case StrategyKeyPrefix:
		if lc.KeyPrefix == "" {
			result.addError("%s: strategy %q requires a non-empty key_prefix", path, StrategyKeyPrefix)
		}
	case StrategyNamespace:
		if lc.Namespace == "" {
			result.addError("%s: strategy %q requires a non-empty namespace", path, StrategyNamespace)
		}
	case StrategyDatabase, StrategySchema:
		// Database and schema strategies fall back to per-level defaults
	case "":
		result.addError("%s: strategy is required", path)
	default:
		result.addError("%s: unknown strategy %q", path, lc.Strategy)
	}

	if lc.MaxKeyLength != 0 && lc.MaxKeyLength < minMaxKeyLength {
		result.addError("%s: max_key_length %d is below the minimum of %d",
			path, lc.MaxKeyLength, minMaxKeyLength)
	}

	if !lc.EnableIsolation {
		// Preserved as a warning: the source system allows a level to opt out
		// of isolation while the rest of validation stays strict.
		result.addWarning("%s: enable_isolation is false; data at this level is not partitioned", path)
	}
}

func validateMultiLevel(ml *MultiLevelConfig, result *ValidationResult) {
	if ml.DefaultIsolationLevel != "" && !isKnownLevel(ml.DefaultIsolationLevel) {
		result.addError("multi_level.default_isolation_level %q is not one of %v",
			ml.DefaultIsolationLevel, levelNames)
	}

	if !ml.EnableMultiLevelIsolation {
		if len(ml.Levels) > 0 {
			result.addWarning("multi_level.levels is configured but multi-level isolation is disabled; the legacy isolation block applies")
		}

		return
	}

	for _, name := range levelNames {
		lc, ok := ml.Levels[name]
		if !ok {
			result.addError("multi_level.levels must contain all four levels; %q is missing", name)

			continue
		}

		validateLevelConfig("multi_level.levels."+name, &lc, result)
	}

	for name := range ml.Levels {
		if !isKnownLevel(name) {
			result.addError("multi_level.levels contains unknown level %q", name)
		}
	}

	if !ml.EnablePermissionCheck {
		result.addWarning("multi_level.enable_permission_check is false; permission validation always passes")
	}
}

func validateSecurity(sc *SecurityConfig, result *ValidationResult) {
	if sc.MaxFailedAttempts <= 0 {
		result.addError("security.max_failed_attempts must be positive, got %d", sc.MaxFailedAttempts)
	} else if sc.MaxFailedAttempts < minRecommendedFailedAttempts ||
		sc.MaxFailedAttempts > maxRecommendedFailedAttempts {
		result.addWarning("security.max_failed_attempts %d is outside the recommended range [%d, %d]",
			sc.MaxFailedAttempts, minRecommendedFailedAttempts, maxRecommendedFailedAttempts)
	}

	if sc.LockoutDuration <= 0 {
		result.addError("security.lockout_duration must be positive, got %s", sc.LockoutDuration)
	} else if sc.LockoutDuration < minRecommendedLockout {
		result.addWarning("security.lockout_duration %s is below the recommended minimum of %s",
			sc.LockoutDuration, minRecommendedLockout)
	}

	if sc.EnableIPWhitelist && len(sc.IPWhitelist) == 0 {
		result.addWarning("security.enable_ip_whitelist is true but ip_whitelist is empty; all source IPs will be rejected")
	}
	if !sc.EnableIPWhitelist && len(sc.IPWhitelist) > 0 {
		result.addWarning("security.ip_whitelist is configured but enable_ip_whitelist is false; the list is ignored")
	}

	for _, entry := range sc.IPWhitelist {
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			result.addError("security.ip_whitelist entry %q is neither an IP nor a CIDR", entry)
		}
	}

	switch sc.AttemptStore {
	case "memory", "redis", "":
	default:
		result.addError("security.attempt_store %q is not a known backend", sc.AttemptStore)
	}
}

func isKnownLevel(name string) bool {
	for _, known := range levelNames {
		if name == known {
			return true
		}
	}

	return false
}

// Package config provides configuration management for tenantcore.
//
// Configuration is loaded from multiple sources with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (TENANTCORE_* prefix)
//  3. Configuration file (config.yaml)
//  4. Default values (lowest priority)
//
// The package uses Viper for configuration binding, supporting:
//   - YAML configuration files
//   - Environment variable overrides
//   - Type-safe configuration structs
//   - Validation with structured errors and warnings
//
// Example usage:
//
//	cfg, err := config.Load("/etc/tenantcore/config.yaml", config.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.MustValidate(&cfg.MultiTenancy); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Isolation strategy names accepted in level configuration.
const (
	StrategyKeyPrefix = "key-prefix"
	StrategyNamespace = "namespace"
	StrategyDatabase  = "database"
	StrategySchema    = "schema"
)

// Context storage backends for the context store.
const (
	ContextStorageMemory = "memory"
	ContextStorageRedis  = "redis"
)

// Config holds all configuration for tenantcore.
type Config struct {
	// Node identification
	NodeID   string `mapstructure:"node_id"`
	NodeName string `mapstructure:"node_name"`

	// Data storage
	DataDir string `mapstructure:"data_dir"`

	// Network ports
	AdminPort int `mapstructure:"admin_port"`

	// MultiTenancy is the isolation engine configuration
	MultiTenancy MultiTenancyConfig `mapstructure:"multi_tenancy"`

	// Redis configuration for the distributed attempt store
	Redis RedisConfig `mapstructure:"redis"`

	// Audit configuration
	Audit AuditConfig `mapstructure:"audit"`

	// Shutdown configuration
	Shutdown ShutdownConfig `mapstructure:"shutdown"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// MultiTenancyConfig describes the isolation policy for all shared
// infrastructure (cache, messaging, persistence).
type MultiTenancyConfig struct {
	// Context configures context propagation behavior
	Context ContextConfig `mapstructure:"context"`

	// Isolation is the legacy single-level (tenant-only) isolation config.
	// Ignored for key derivation when multi-level isolation is enabled.
	Isolation LevelConfig `mapstructure:"isolation"`

	// MultiLevel configures per-level isolation across the full hierarchy
	MultiLevel MultiLevelConfig `mapstructure:"multi_level"`

	// Security configures the authentication-failure lockout policy
	Security SecurityConfig `mapstructure:"security"`
}

// ContextConfig configures the context store.
type ContextConfig struct {
	// EnableAutoInjection generates a request ID for contexts created
	// without one
	EnableAutoInjection bool `mapstructure:"enable_auto_injection"`

	// ContextTimeout is advisory metadata for callers; the engine does not
	// run a timer. Valid range is 1s to 5m.
	ContextTimeout time.Duration `mapstructure:"context_timeout"`

	// ContextStorage selects the context storage backend hint ("memory")
	ContextStorage string `mapstructure:"context_storage"`

	// AllowCrossTenantAccess permits operations to proceed without a tenant
	// context. Strongly discouraged outside of migrations.
	AllowCrossTenantAccess bool `mapstructure:"allow_cross_tenant_access"`

	// TenantHeader is the HTTP header carrying the tenant identifier
	TenantHeader string `mapstructure:"tenant_header"`

	// OrganizationHeader is the HTTP header carrying the organization identifier
	OrganizationHeader string `mapstructure:"organization_header"`

	// DepartmentHeader is the HTTP header carrying the department identifier
	DepartmentHeader string `mapstructure:"department_header"`

	// UserHeader is the HTTP header carrying the user identifier
	UserHeader string `mapstructure:"user_header"`
}

// LevelConfig describes the isolation strategy for a single level.
type LevelConfig struct {
	// Strategy is one of key-prefix, namespace, database, schema
	Strategy string `mapstructure:"strategy"`

	// KeyPrefix is required when Strategy is key-prefix
	KeyPrefix string `mapstructure:"key_prefix"`

	// Namespace is required when Strategy is namespace
	Namespace string `mapstructure:"namespace"`

	// Database is the database name base for the database strategy.
	// When empty, a per-level default is used.
	Database string `mapstructure:"database"`

	// EnableIsolation toggles isolation at this level. Disabling it is a
	// validation warning, never an error.
	EnableIsolation bool `mapstructure:"enable_isolation"`

	// MaxKeyLength caps derived key length; 0 means unlimited. Minimum 10
	// when set.
	MaxKeyLength int `mapstructure:"max_key_length"`
}

// MultiLevelConfig configures isolation across the tenant hierarchy.
type MultiLevelConfig struct {
	// EnableMultiLevelIsolation turns on hierarchical key composition
	EnableMultiLevelIsolation bool `mapstructure:"enable_multi_level_isolation"`

	// DefaultIsolationLevel is the level used when callers do not specify
	// one (tenant, organization, department, user)
	DefaultIsolationLevel string `mapstructure:"default_isolation_level"`

	// EnablePermissionCheck gates ValidatePermission; when false the check
	// always passes
	EnablePermissionCheck bool `mapstructure:"enable_permission_check"`

	// Levels maps level names to their isolation configuration. When
	// multi-level isolation is enabled the map must contain all four levels.
	Levels map[string]LevelConfig `mapstructure:"levels"`
}

// SecurityConfig configures the authentication-failure lockout policy.
type SecurityConfig struct {
	// MaxFailedAttempts is the failure count that triggers a lockout.
	// Recommended range 3-20.
	MaxFailedAttempts int `mapstructure:"max_failed_attempts"`

	// LockoutDuration is how long a principal stays locked. Recommended
	// minimum 1 minute.
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`

	// EnableIPWhitelist turns on source-IP filtering
	EnableIPWhitelist bool `mapstructure:"enable_ip_whitelist"`

	// IPWhitelist is a list of allowed IP addresses or CIDR ranges
	IPWhitelist []string `mapstructure:"ip_whitelist"`

	// AttemptStore selects the attempt store backend: "memory" or "redis"
	AttemptStore string `mapstructure:"attempt_store"`

	// JWTSecret verifies bearer tokens used for context extraction
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RedisConfig holds connection settings for the Redis-backed attempt store.
type RedisConfig struct {
	// Addr is the Redis address (host:port)
	Addr string `mapstructure:"addr"`

	// Password for authenticated deployments
	Password string `mapstructure:"password"`

	// DB is the Redis database number
	DB int `mapstructure:"db"`

	// KeyPrefix namespaces tenantcore keys within a shared Redis
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	// Enabled enables audit logging
	Enabled bool `mapstructure:"enabled"`

	// FilePath is the path to the audit log file
	FilePath string `mapstructure:"file_path"`

	// BufferSize is the async buffer size
	BufferSize int `mapstructure:"buffer_size"`

	// IntegrityEnabled enables the HMAC integrity chain
	IntegrityEnabled bool `mapstructure:"integrity_enabled"`

	// IntegritySecret is the HMAC secret; the chain is skipped when empty
	IntegritySecret string `mapstructure:"integrity_secret"`
}

// ShutdownConfig holds graceful shutdown timeouts.
type ShutdownConfig struct {
	// TotalTimeout caps the entire shutdown sequence
	TotalTimeout time.Duration `mapstructure:"total_timeout"`

	// DrainTimeout is the wait for in-flight requests
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`

	// HTTPTimeout is the wait for HTTP servers
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// Options are command line overrides.
type Options struct {
	DataDir   string
	AdminPort int
	LogLevel  string
}

// Load loads configuration from file and applies command line options.
// Load performs no policy validation; callers must run MustValidate on the
// MultiTenancy section before serving traffic.
func Load(configPath string, opts Options) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("tenantcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tenantcore")
		v.AddConfigPath("$HOME/.tenantcore")

		// Ignore error if config file not found
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("TENANTCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.DataDir != "" {
		v.Set("data_dir", opts.DataDir)
	}
	if opts.AdminPort != 0 {
		v.Set("admin_port", opts.AdminPort)
	}
	if opts.LogLevel != "" {
		v.Set("log_level", opts.LogLevel)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_name", "tenantcore")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("admin_port", 9400)
	v.SetDefault("log_level", "info")

	// Context defaults
	v.SetDefault("multi_tenancy.context.enable_auto_injection", true)
	v.SetDefault("multi_tenancy.context.context_timeout", 30*time.Second)
	v.SetDefault("multi_tenancy.context.context_storage", ContextStorageMemory)
	v.SetDefault("multi_tenancy.context.allow_cross_tenant_access", false)
	v.SetDefault("multi_tenancy.context.tenant_header", "X-Tenant-ID")
	v.SetDefault("multi_tenancy.context.organization_header", "X-Organization-ID")
	v.SetDefault("multi_tenancy.context.department_header", "X-Department-ID")
	v.SetDefault("multi_tenancy.context.user_header", "X-User-ID")

	// Legacy single-level isolation defaults (tenant only)
	v.SetDefault("multi_tenancy.isolation.strategy", StrategyKeyPrefix)
	v.SetDefault("multi_tenancy.isolation.key_prefix", "tenant:")
	v.SetDefault("multi_tenancy.isolation.enable_isolation", true)
	v.SetDefault("multi_tenancy.isolation.max_key_length", 0)

	// Multi-level defaults: disabled, tenant is the default level
	v.SetDefault("multi_tenancy.multi_level.enable_multi_level_isolation", false)
	v.SetDefault("multi_tenancy.multi_level.default_isolation_level", "tenant")
	v.SetDefault("multi_tenancy.multi_level.enable_permission_check", true)

	// Security defaults
	v.SetDefault("multi_tenancy.security.max_failed_attempts", 5)
	v.SetDefault("multi_tenancy.security.lockout_duration", 15*time.Minute)
	v.SetDefault("multi_tenancy.security.enable_ip_whitelist", false)
	v.SetDefault("multi_tenancy.security.attempt_store", "memory")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "tenantcore:")

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.file_path", "./data/audit/audit.log")
	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.integrity_enabled", true)

	// Shutdown defaults
	v.SetDefault("shutdown.total_timeout", 30*time.Second)
	v.SetDefault("shutdown.drain_timeout", 15*time.Second)
	v.SetDefault("shutdown.http_timeout", 10*time.Second)
}

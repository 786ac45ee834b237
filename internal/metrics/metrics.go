// Package metrics provides Prometheus metrics collection for tenantcore.
//
// The package exposes metrics at /metrics (default port 9400) for monitoring:
//
// Isolation Metrics:
//   - tenantcore_isolation_operations_total: Key derivations by level and strategy
//   - tenantcore_context_missing_total: Operations rejected for missing context
//   - tenantcore_hierarchy_violations_total: Contexts rejected by the hierarchy validator
//   - tenantcore_keys_too_long_total: Key derivations rejected by max_key_length
//
// Security Metrics:
//   - tenantcore_auth_failures_total: Recorded authentication failures
//   - tenantcore_lockouts_total: Lockout transitions
//   - tenantcore_ip_rejections_total: Requests rejected by the IP allow-list
//
// Use with Prometheus and Grafana for comprehensive monitoring dashboards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IsolationOpsTotal counts key/namespace/database/schema derivations.
	IsolationOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_isolation_operations_total",
			Help: "Total isolation derivations by level and operation",
		},
		[]string{"level", "operation"},
	)

	// ContextMissingTotal counts isolation-dependent operations invoked
	// without an active context.
	ContextMissingTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_context_missing_total",
			Help: "Operations rejected because no isolation context was active",
		},
	)

	// HierarchyViolationsTotal counts contexts rejected by the hierarchy validator.
	HierarchyViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_hierarchy_violations_total",
			Help: "Contexts rejected for violating the tenant hierarchy invariant",
		},
	)

	// KeysTooLongTotal counts derivations rejected by max_key_length.
	KeysTooLongTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_keys_too_long_total",
			Help: "Key derivations rejected for exceeding max_key_length",
		},
	)

	// AuthFailuresTotal counts recorded authentication failures.
	AuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_auth_failures_total",
			Help: "Total recorded authentication failures",
		},
	)

	// LockoutsTotal counts lockout transitions.
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_lockouts_total",
			Help: "Total principal lockouts",
		},
	)

	// IPRejectionsTotal counts requests rejected by the IP allow-list.
	IPRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_ip_rejections_total",
			Help: "Requests rejected by the IP allow-list",
		},
	)

	// ConfigWarningsTotal counts validation warnings emitted at startup and reload.
	ConfigWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_config_warnings_total",
			Help: "Configuration validation warnings",
		},
	)

	// RequestsTotal counts admin API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordIsolationOp records one successful derivation.
func RecordIsolationOp(level, operation string) {
	IsolationOpsTotal.WithLabelValues(level, operation).Inc()
}

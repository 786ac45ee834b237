// Package health provides health check endpoints for the engine daemon.
//
// The package implements Kubernetes-compatible health checks:
//
//   - /health/live: Liveness probe (is the process running?)
//   - /health/ready: Readiness probe (is the server ready for traffic?)
//
// Each check returns JSON status with component health details:
//
//	{
//	  "status": "healthy",
//	  "checks": {
//	    "attempt_store": "healthy",
//	    "store": "healthy"
//	  }
//	}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the overall health status.
type Status string

const (
	// StatusHealthy indicates all checks passed.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates some checks failed but core functionality works.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates critical failures.
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check result.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthStatus represents the complete health status of the system.
type HealthStatus struct {
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Status    Status           `json:"status"`
}

// Pinger is a component that can verify its own connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs health checks on the system.
type Checker struct {
	cacheExpiry  time.Time
	attemptStore Pinger
	store        Pinger
	cachedStatus *HealthStatus
	cacheTTL     time.Duration
	mu           sync.RWMutex
}

// NewChecker creates a new health checker over the attempt store and the
// tenant key-value store. Either may be nil for partial deployments.
func NewChecker(attemptStore, store Pinger) *Checker {
	return &Checker{
		attemptStore: attemptStore,
		store:        store,
		cacheTTL:     5 * time.Second,
	}
}

// Check performs all health checks and returns the overall status. Results
// are cached briefly so probe storms do not hammer the backends.
func (c *Checker) Check(ctx context.Context) *HealthStatus {
	c.mu.RLock()

	if c.cachedStatus != nil && time.Now().Before(c.cacheExpiry) {
		status := c.cachedStatus
		c.mu.RUnlock()

		return status
	}

	c.mu.RUnlock()

	checks := make(map[string]Check)

	var (
		wg       sync.WaitGroup
		checksMu sync.Mutex
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		check := c.CheckAttemptStore(ctx)

		checksMu.Lock()

		checks["attempt_store"] = check

		checksMu.Unlock()
	}()

	go func() {
		defer wg.Done()

		check := c.CheckStore(ctx)

		checksMu.Lock()

		checks["store"] = check

		checksMu.Unlock()
	}()

	wg.Wait()

	status := c.determineOverallStatus(checks)

	healthStatus := &HealthStatus{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	c.cachedStatus = healthStatus
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()

	return healthStatus
}

// CheckAttemptStore checks the lockout attempt store. A failing attempt
// store degrades the service rather than taking it down: lockout
// enforcement fails open for liveness but the condition is surfaced.
func (c *Checker) CheckAttemptStore(ctx context.Context) Check {
	if c.attemptStore == nil {
		return Check{
			Status:  StatusDegraded,
			Message: "attempt store not configured",
		}
	}

	if err := c.attemptStore.Ping(ctx); err != nil {
		return Check{
			Status:  StatusDegraded,
			Message: "attempt store check failed: " + err.Error(),
		}
	}

	return Check{
		Status:  StatusHealthy,
		Message: "attempt store is operational",
	}
}

// CheckStore checks the tenant key-value store.
func (c *Checker) CheckStore(ctx context.Context) Check {
	if c.store == nil {
		return Check{
			Status:  StatusUnhealthy,
			Message: "store not initialized",
		}
	}

	if err := c.store.Ping(ctx); err != nil {
		return Check{
			Status:  StatusUnhealthy,
			Message: "store check failed: " + err.Error(),
		}
	}

	return Check{
		Status:  StatusHealthy,
		Message: "store is operational",
	}
}

// IsReady checks if the service is ready to accept requests.
func (c *Checker) IsReady(ctx context.Context) bool {
	return c.Check(ctx).Status != StatusUnhealthy
}

// IsLive checks if the service is alive.
func (c *Checker) IsLive(_ context.Context) bool {
	return true
}

// determineOverallStatus determines the overall health status based on individual checks.
func (c *Checker) determineOverallStatus(checks map[string]Check) Status {
	hasUnhealthy := false
	hasDegraded := false

	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}

	if hasDegraded {
		return StatusDegraded
	}

	return StatusHealthy
}

// Handler creates HTTP handlers for health endpoints.
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// HealthHandler handles basic health check requests (for load balancers).
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := h.checker.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": string(status.Status),
	})
}

// LivenessHandler handles Kubernetes liveness probe requests.
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.checker.IsLive(ctx) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ok"}`))
	}
}

// ReadinessHandler handles Kubernetes readiness probe requests.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.checker.IsReady(ctx) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
	}
}

// DetailedHandler handles detailed health check requests.
func (h *Handler) DetailedHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := h.checker.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	switch status.Status {
	case StatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	case StatusDegraded:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(status)
}

// Package shutdown provides graceful shutdown coordination for the engine
// daemon.
//
// The shutdown coordinator manages the orderly shutdown of all server
// components, ensuring data integrity and proper resource cleanup. It
// implements a phased shutdown sequence:
//
//  1. Draining - Wait for in-flight requests to complete
//  2. HTTP Servers - Shutdown HTTP servers concurrently
//  3. Audit - Flush and stop the audit logger
//  4. Storage - Close the attempt store and tenant store
//
// The coordinator tracks shutdown progress with metrics and respects
// configurable timeouts to prevent hanging during shutdown.
package shutdown

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Phase represents a shutdown phase.
type Phase string

// Shutdown phases in order of execution.
const (
	PhaseNone           Phase = "none"
	PhaseDraining       Phase = "draining"
	PhaseHTTPServers    Phase = "http_servers"
	PhaseAudit          Phase = "audit"
	PhaseStorage        Phase = "storage"
	PhaseComplete       Phase = "complete"
	PhaseForcedShutdown Phase = "forced_shutdown"
)

// Config holds shutdown configuration.
type Config struct {
	// TotalTimeout is the maximum time allowed for the entire shutdown sequence.
	// Default: 30 seconds
	TotalTimeout time.Duration

	// DrainTimeout is the time to wait for in-flight requests to complete.
	// Default: 15 seconds
	DrainTimeout time.Duration

	// HTTPTimeout is the time to wait for HTTP servers to shutdown.
	// Default: 10 seconds
	HTTPTimeout time.Duration

	// StorageTimeout is the time to wait for stores to close.
	// Default: 5 seconds
	StorageTimeout time.Duration

	// ForceTimeout is the time after which shutdown is forced.
	// Default: 5 seconds after TotalTimeout
	ForceTimeout time.Duration
}

// DefaultConfig returns the default shutdown configuration.
func DefaultConfig() Config {
	return Config{
		TotalTimeout:   30 * time.Second,
		DrainTimeout:   15 * time.Second,
		HTTPTimeout:    10 * time.Second,
		StorageTimeout: 5 * time.Second,
		ForceTimeout:   5 * time.Second,
	}
}

// ShutdownHook is a function called during shutdown.
type ShutdownHook func(ctx context.Context) error

// Coordinator manages graceful shutdown of all server components.
type Coordinator struct {
	config   Config
	mu       sync.RWMutex
	phase    Phase
	started  time.Time
	errors   []error
	hooks    map[Phase][]ShutdownHook
	doneCh   chan struct{}
	shutdown atomic.Bool
}

// NewCoordinator creates a new shutdown coordinator with the given configuration.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		config: cfg,
		phase:  PhaseNone,
		hooks:  make(map[Phase][]ShutdownHook),
		doneCh: make(chan struct{}),
	}
}

// RegisterHook registers a shutdown hook for a specific phase.
func (c *Coordinator) RegisterHook(phase Phase, hook ShutdownHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[phase] = append(c.hooks[phase], hook)
}

// Phase returns the current shutdown phase.
func (c *Coordinator) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.phase
}

// IsShuttingDown returns true if shutdown has been initiated.
func (c *Coordinator) IsShuttingDown() bool {
	return c.shutdown.Load()
}

// Done returns a channel that is closed when shutdown is complete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.doneCh
}

// Errors returns any errors that occurred during shutdown.
func (c *Coordinator) Errors() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]error{}, c.errors...)
}

// setPhase updates the current phase and logs the transition.
func (c *Coordinator) setPhase(phase Phase) {
	c.mu.Lock()
	oldPhase := c.phase
	c.phase = phase
	c.mu.Unlock()

	elapsed := time.Since(c.started)
	log.Info().
		Str("from_phase", string(oldPhase)).
		Str("to_phase", string(phase)).
		Dur("elapsed", elapsed).
		Msg("Shutdown phase transition")

	SetShutdownPhase(phase)
}

// addError records a shutdown error.
func (c *Coordinator) addError(err error) {
	c.mu.Lock()
	c.errors = append(c.errors, err)
	c.mu.Unlock()

	IncrementShutdownErrors()
}

// runHooks executes all hooks registered for the given phase.
func (c *Coordinator) runHooks(ctx context.Context, phase Phase) {
	c.mu.RLock()
	hooks := c.hooks[phase]
	c.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			log.Error().Err(err).Str("phase", string(phase)).Msg("Shutdown hook failed")
			c.addError(err)
		}
	}
}

// Shutdown initiates graceful shutdown of all components.
func (c *Coordinator) Shutdown(ctx context.Context, components ShutdownComponents) error {
	// Ensure we only shutdown once
	if !c.shutdown.CompareAndSwap(false, true) {
		log.Warn().Msg("Shutdown already in progress")

		return nil
	}

	c.started = time.Now()
	log.Info().Msg("Initiating graceful shutdown")
	SetShutdownStartTime(c.started)

	shutdownCtx, cancel := context.WithTimeout(ctx, c.config.TotalTimeout)
	defer cancel()

	go c.watchForceTimeout(shutdownCtx)

	c.executeShutdownSequence(shutdownCtx, components)

	c.setPhase(PhaseComplete)
	close(c.doneCh)

	duration := time.Since(c.started)
	SetShutdownDuration(duration)

	if len(c.errors) > 0 {
		log.Warn().
			Int("error_count", len(c.errors)).
			Dur("duration", duration).
			Msg("Shutdown completed with errors")
	} else {
		log.Info().
			Dur("duration", duration).
			Msg("Shutdown completed successfully")
	}

	return nil
}

// watchForceTimeout monitors for force timeout and triggers forced shutdown.
func (c *Coordinator) watchForceTimeout(ctx context.Context) {
	forceDeadline := c.config.TotalTimeout + c.config.ForceTimeout
	timer := time.NewTimer(forceDeadline)

	defer timer.Stop()

	select {
	case <-timer.C:
		c.setPhase(PhaseForcedShutdown)
		log.Warn().
			Dur("timeout", forceDeadline).
			Msg("Force timeout reached, forcing shutdown")
	case <-c.doneCh:
		// Shutdown completed normally, goroutine exits cleanly
	case <-ctx.Done():
		// Context cancelled, goroutine exits cleanly
	}
}

// ShutdownComponents holds all components that need to be shutdown.
type ShutdownComponents struct {
	// HTTPServers are HTTP servers to shutdown gracefully
	HTTPServers []HTTPServerShutdown

	// AuditLogger is the audit logger
	AuditLogger StoppableNoError

	// AttemptStore is the lockout attempt store
	AttemptStore io.Closer

	// TenantStore is the tenant key-value store
	TenantStore io.Closer

	// InFlightTracker tracks in-flight requests for draining
	InFlightTracker InFlightTracker
}

// HTTPServerShutdown wraps an HTTP server for shutdown.
type HTTPServerShutdown interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// StoppableNoError represents a component with a Stop method that doesn't return an error.
type StoppableNoError interface {
	Stop()
}

// InFlightTracker tracks in-flight requests.
type InFlightTracker interface {
	// InFlightCount returns the number of in-flight requests
	InFlightCount() int64
	// WaitForDrain waits for all in-flight requests to complete
	WaitForDrain(ctx context.Context) error
}

// executeShutdownSequence runs through all shutdown phases in order.
func (c *Coordinator) executeShutdownSequence(ctx context.Context, components ShutdownComponents) {
	c.executeDrainPhase(ctx, components)
	c.executeHTTPServersPhase(ctx, components)
	c.executeAuditPhase(ctx, components)
	c.executeStoragePhase(ctx, components)
}

func (c *Coordinator) executeDrainPhase(ctx context.Context, components ShutdownComponents) {
	c.setPhase(PhaseDraining)
	c.runHooks(ctx, PhaseDraining)

	if components.InFlightTracker == nil {
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, c.config.DrainTimeout)
	defer cancel()

	inFlight := components.InFlightTracker.InFlightCount()
	SetInFlightRequests(inFlight)

	if inFlight > 0 {
		log.Info().Int64("in_flight_requests", inFlight).Msg("Waiting for in-flight requests to complete")

		if err := components.InFlightTracker.WaitForDrain(drainCtx); err != nil {
			log.Warn().
				Err(err).
				Int64("remaining", components.InFlightTracker.InFlightCount()).
				Msg("Drain timeout, proceeding with shutdown")
			c.addError(err)
		}
	}

	SetInFlightRequests(0)
}

func (c *Coordinator) executeHTTPServersPhase(ctx context.Context, components ShutdownComponents) {
	c.setPhase(PhaseHTTPServers)
	c.runHooks(ctx, PhaseHTTPServers)

	httpCtx, cancel := context.WithTimeout(ctx, c.config.HTTPTimeout)
	defer cancel()

	var wg sync.WaitGroup

	for _, server := range components.HTTPServers {
		wg.Add(1)

		go func(srv HTTPServerShutdown) {
			defer wg.Done()

			if err := srv.Shutdown(httpCtx); err != nil {
				log.Error().Err(err).Str("server", srv.Name()).Msg("Error shutting down HTTP server")
				c.addError(err)
			} else {
				log.Info().Str("server", srv.Name()).Msg("HTTP server shutdown complete")
			}
		}(server)
	}

	wg.Wait()
}

func (c *Coordinator) executeAuditPhase(ctx context.Context, components ShutdownComponents) {
	c.setPhase(PhaseAudit)
	c.runHooks(ctx, PhaseAudit)

	if components.AuditLogger == nil {
		return
	}

	c.stopComponentNoError(ctx, "audit_logger", components.AuditLogger)
	log.Info().Msg("Audit logger stopped")
}

func (c *Coordinator) executeStoragePhase(ctx context.Context, components ShutdownComponents) {
	c.setPhase(PhaseStorage)
	c.runHooks(ctx, PhaseStorage)

	storageCtx, cancel := context.WithTimeout(ctx, c.config.StorageTimeout)
	defer cancel()

	if components.AttemptStore != nil {
		c.closeComponent(storageCtx, "attempt_store", components.AttemptStore)
	}

	if components.TenantStore != nil {
		c.closeComponent(storageCtx, "tenant_store", components.TenantStore)
	}
}

func (c *Coordinator) stopComponentNoError(ctx context.Context, name string, component StoppableNoError) {
	done := make(chan struct{}, 1)

	go func() {
		component.Stop()
		done <- struct{}{}
	}()

	select {
	case <-done:
		log.Debug().Str("component", name).Msg("Component stopped")
	case <-ctx.Done():
		log.Warn().Str("component", name).Msg("Timeout stopping component (no error)")
		c.addError(ctx.Err())
	}
}

func (c *Coordinator) closeComponent(ctx context.Context, name string, component io.Closer) {
	done := make(chan error, 1)

	go func() {
		done <- component.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Str("component", name).Msg("Error closing component")
			c.addError(err)
		} else {
			log.Info().Str("component", name).Msg("Component closed")
		}
	case <-ctx.Done():
		log.Warn().Str("component", name).Msg("Timeout closing component")
		c.addError(ctx.Err())
	}
}

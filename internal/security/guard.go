// Package security enforces the authentication-failure lockout policy.
//
// The Guard wraps an AttemptStore and implements the lockout state machine:
//
//	UNLOCKED --(failures >= max)--> LOCKED --(now >= lockedUntil)--> UNLOCKED
//
// RecordSuccess only transitions UNLOCKED -> UNLOCKED (it resets the failure
// counter); a locked principal stays locked until the lock expires. There is
// no admin-unlock transition.
//
// Per-key updates are linearized by the store: the in-memory default holds a
// mutex around increment/reset, and the Redis store runs Lua scripts so that
// multi-instance deployments get the same atomicity. No ordering is
// guaranteed across different principals.
//
// SecurityState is never read directly by business code; it is mutated and
// interpreted only here.
package security

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/metrics"
)

// AttemptState is the per-principal lockout state. LockedUntil is zero while
// the principal is unlocked.
type AttemptState struct {
	FailedAttempts int       `json:"failedAttempts"`
	LockedUntil    time.Time `json:"lockedUntil,omitempty"`
}

// Locked reports whether the state is locked at the given instant.
func (s AttemptState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// AttemptStore persists per-principal attempt state. Implementations must
// linearize updates per key; the engine ships a mutex-guarded in-memory
// store and a Redis-backed store for multi-instance deployments.
type AttemptStore interface {
	// RecordFailure increments the failure counter for key, locking it for
	// lockout once the counter reaches max. An expired lock is cleared
	// before counting. Recording a failure against a currently locked key
	// is a no-op that returns the locked state.
	RecordFailure(ctx context.Context, key string, now time.Time, max int, lockout time.Duration) (AttemptState, error)

	// RecordSuccess clears the state for key unless it is currently locked,
	// in which case it is a no-op.
	RecordSuccess(ctx context.Context, key string, now time.Time) error

	// State returns the current state for key, clearing it first if the
	// lock has expired.
	State(ctx context.Context, key string, now time.Time) (AttemptState, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// LockedOutError is returned by CheckLock while a principal is locked. It is
// recoverable and maps to an authorization failure at the caller's boundary.
type LockedOutError struct {
	PrincipalKey string
	Until        time.Time
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("security: principal %s is locked out until %s",
		e.PrincipalKey, e.Until.Format(time.RFC3339))
}

// Guard tracks authentication failures and enforces lockout.
type Guard struct {
	store     AttemptStore
	cfg       config.SecurityConfig
	allowNets []*net.IPNet
	clock     func() time.Time
}

// NewGuard creates a guard over the given store. Invalid allow-list entries
// were already rejected by config validation; anything unparsable here is
// skipped with a warning.
func NewGuard(cfg config.SecurityConfig, store AttemptStore) *Guard {
	g := &Guard{
		store: store,
		cfg:   cfg,
		clock: time.Now,
	}

	for _, entry := range cfg.IPWhitelist {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			g.allowNets = append(g.allowNets, ipNet)

			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			log.Warn().Str("entry", entry).Msg("Invalid IP whitelist entry, skipping")

			continue
		}

		if ip.To4() != nil {
			_, ipNet, _ = net.ParseCIDR(entry + "/32")
		} else {
			_, ipNet, _ = net.ParseCIDR(entry + "/128")
		}

		if ipNet != nil {
			g.allowNets = append(g.allowNets, ipNet)
		}
	}

	return g
}

// WithClock overrides the guard's clock for testing.
func (g *Guard) WithClock(clock func() time.Time) *Guard {
	g.clock = clock

	return g
}

// RecordFailure records a failed authentication attempt for principalKey.
// Reaching the configured maximum locks the principal for the configured
// lockout duration.
func (g *Guard) RecordFailure(ctx context.Context, principalKey string) error {
	state, err := g.store.RecordFailure(ctx, principalKey, g.clock(),
		g.cfg.MaxFailedAttempts, g.cfg.LockoutDuration)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", principalKey, err)
	}

	metrics.AuthFailuresTotal.Inc()

	// FailedAttempts == max only on the transition itself; failures against
	// an already-locked principal are no-ops that keep the old count.
	if state.Locked(g.clock()) && state.FailedAttempts == g.cfg.MaxFailedAttempts {
		metrics.LockoutsTotal.Inc()
		log.Warn().
			Str("principal", principalKey).
			Int("failed_attempts", state.FailedAttempts).
			Time("locked_until", state.LockedUntil).
			Msg("Principal locked out after repeated authentication failures")
	}

	return nil
}

// RecordSuccess records a successful authentication attempt, resetting the
// failure counter. It has no effect while the principal is locked: the lock
// must expire first.
func (g *Guard) RecordSuccess(ctx context.Context, principalKey string) error {
	if err := g.store.RecordSuccess(ctx, principalKey, g.clock()); err != nil {
		return fmt.Errorf("record success for %s: %w", principalKey, err)
	}

	return nil
}

// IsLocked reports whether principalKey is currently locked. An expired lock
// is cleared, resetting the failure counter.
func (g *Guard) IsLocked(ctx context.Context, principalKey string) (bool, error) {
	state, err := g.store.State(ctx, principalKey, g.clock())
	if err != nil {
		return false, fmt.Errorf("read lockout state for %s: %w", principalKey, err)
	}

	return state.Locked(g.clock()), nil
}

// CheckLock returns a LockedOutError while principalKey is locked, nil
// otherwise. Callers surface the error as an authorization failure.
func (g *Guard) CheckLock(ctx context.Context, principalKey string) error {
	state, err := g.store.State(ctx, principalKey, g.clock())
	if err != nil {
		return fmt.Errorf("read lockout state for %s: %w", principalKey, err)
	}

	if state.Locked(g.clock()) {
		return &LockedOutError{PrincipalKey: principalKey, Until: state.LockedUntil}
	}

	return nil
}

// State exposes the current attempt state for operational inspection (admin
// API); business code must go through CheckLock instead.
func (g *Guard) State(ctx context.Context, principalKey string) (AttemptState, error) {
	return g.store.State(ctx, principalKey, g.clock())
}

// IsIPAllowed reports whether ip passes the allow-list. It is always true
// when the whitelist is disabled and always false for unparsable input while
// the whitelist is enabled.
func (g *Guard) IsIPAllowed(ip string) bool {
	if !g.cfg.EnableIPWhitelist {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, ipNet := range g.allowNets {
		if ipNet.Contains(parsed) {
			return true
		}
	}

	return false
}

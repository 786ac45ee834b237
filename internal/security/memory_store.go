package security

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process AttemptStore. A single mutex guards
// the map; per-key linearization follows from it. State for a key is created
// on first failure and removed again on reset or lock expiry, so idle
// principals cost nothing.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]AttemptState
}

// NewMemoryStore creates an empty in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]AttemptState)}
}

// RecordFailure implements AttemptStore.
func (s *MemoryStore) RecordFailure(_ context.Context, key string, now time.Time, max int, lockout time.Duration) (AttemptState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.entries[key]

	if !state.LockedUntil.IsZero() {
		if now.Before(state.LockedUntil) {
			return state, nil
		}
		// Lock expired: start a fresh count
		state = AttemptState{}
	}

	state.FailedAttempts++
	if state.FailedAttempts >= max {
		state.LockedUntil = now.Add(lockout)
	}

	s.entries[key] = state

	return state, nil
}

// RecordSuccess implements AttemptStore.
func (s *MemoryStore) RecordSuccess(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entries[key]
	if !ok {
		return nil
	}

	if state.Locked(now) {
		return nil
	}

	delete(s.entries, key)

	return nil
}

// State implements AttemptStore.
func (s *MemoryStore) State(_ context.Context, key string, now time.Time) (AttemptState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entries[key]
	if !ok {
		return AttemptState{}, nil
	}

	if !state.LockedUntil.IsZero() && !now.Before(state.LockedUntil) {
		delete(s.entries, key)

		return AttemptState{}, nil
	}

	return state, nil
}

// Ping implements AttemptStore.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close implements AttemptStore.
func (s *MemoryStore) Close() error {
	return nil
}

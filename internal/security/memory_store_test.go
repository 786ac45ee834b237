package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecordFailure(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	state, err := store.RecordFailure(ctx, "p1", now, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, state.FailedAttempts)
	assert.True(t, state.LockedUntil.IsZero())

	state, err = store.RecordFailure(ctx, "p1", now, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, state.FailedAttempts)

	state, err = store.RecordFailure(ctx, "p1", now, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, state.FailedAttempts)
	assert.Equal(t, now.Add(time.Minute), state.LockedUntil)
}

func TestMemoryStore_FailureWhileLockedIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for _i := 0; _i < 3; _i++ {
		_, err := store.RecordFailure(ctx, "p1", now, 3, time.Minute)
		require.NoError(t, err)
	}

	state, err := store.RecordFailure(ctx, "p1", now.Add(30*time.Second), 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, state.FailedAttempts)
	assert.Equal(t, now.Add(time.Minute), state.LockedUntil)
}

func TestMemoryStore_ExpiredLockStartsFreshCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for _i := 0; _i < 3; _i++ {
		_, err := store.RecordFailure(ctx, "p1", now, 3, time.Minute)
		require.NoError(t, err)
	}

	// A failure after expiry counts from one again
	state, err := store.RecordFailure(ctx, "p1", now.Add(2*time.Minute), 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, state.FailedAttempts)
	assert.True(t, state.LockedUntil.IsZero())
}

func TestMemoryStore_StateClearsExpiredLock(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for _i := 0; _i < 3; _i++ {
		_, err := store.RecordFailure(ctx, "p1", now, 3, time.Minute)
		require.NoError(t, err)
	}

	state, err := store.State(ctx, "p1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, AttemptState{}, state)
}

func TestMemoryStore_RecordSuccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Success with no prior state is fine
	require.NoError(t, store.RecordSuccess(ctx, "p1", now))

	_, err := store.RecordFailure(ctx, "p1", now, 3, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.RecordSuccess(ctx, "p1", now))

	state, err := store.State(ctx, "p1", now)
	require.NoError(t, err)
	assert.Equal(t, AttemptState{}, state)
}

func TestAttemptState_Locked(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, AttemptState{}.Locked(now))
	assert.True(t, AttemptState{LockedUntil: now.Add(time.Second)}.Locked(now))
	assert.False(t, AttemptState{LockedUntil: now}.Locked(now))
	assert.False(t, AttemptState{LockedUntil: now.Add(-time.Second)}.Locked(now))
}

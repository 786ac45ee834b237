package audit

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logEvents(t *testing.T, cfg Config, events ...*Event) []Event {
	t.Helper()

	l, err := NewLogger(cfg)
	require.NoError(t, err)

	l.Start(context.Background())

	for _, e := range events {
		l.Log(e)
	}

	l.Stop()

	f, err := os.Open(cfg.FilePath)
	require.NoError(t, err)
	defer f.Close()

	var records []Event

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	return records
}

func TestLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	records := logEvents(t, Config{FilePath: path},
		&Event{
			EventType: EventLockout,
			TenantID:  "t1",
			Principal: "t1:u1",
			Result:    ResultFailure,
			Message:   "account locked after repeated failures",
		},
		&Event{
			EventType: EventAuthSuccess,
			TenantID:  "t1",
			Principal: "t1:u1",
			Result:    ResultSuccess,
		},
	)

	require.Len(t, records, 2)

	assert.Equal(t, EventLockout, records[0].EventType)
	assert.Equal(t, "t1", records[0].TenantID)
	assert.Equal(t, "t1:u1", records[0].Principal)
	assert.Equal(t, ResultFailure, records[0].Result)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].Timestamp.IsZero())

	assert.Equal(t, EventAuthSuccess, records[1].EventType)

	// No integrity chain without a secret
	assert.Empty(t, records[0].Integrity)
	assert.Empty(t, records[1].Integrity)
}

func TestLogger_IntegrityChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	secret := "test-secret"

	records := logEvents(t, Config{FilePath: path, IntegritySecret: secret},
		&Event{EventType: EventAuthFailure, TenantID: "t1", Principal: "t1:u1", Result: ResultFailure},
		&Event{EventType: EventLockout, TenantID: "t1", Principal: "t1:u1", Result: ResultFailure},
		&Event{EventType: EventIPRejected, TenantID: "t2", SourceIP: "203.0.113.7", Result: ResultFailure},
	)

	require.Len(t, records, 3)

	// Recompute the chain from the persisted records
	prev := ""
	for i, rec := range records {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(rec.ID))
		mac.Write([]byte(rec.EventType))
		mac.Write([]byte(rec.TenantID))
		mac.Write([]byte(rec.Principal))
		mac.Write([]byte(rec.Timestamp.Format(time.RFC3339Nano)))
		mac.Write([]byte(prev))

		want := hex.EncodeToString(mac.Sum(nil))
		assert.Equal(t, want, rec.Integrity, "record %d", i)

		prev = rec.Integrity
	}

	// Each record's HMAC differs because it chains the previous one
	assert.NotEqual(t, records[0].Integrity, records[1].Integrity)
	assert.NotEqual(t, records[1].Integrity, records[2].Integrity)
}

func TestLogger_KeepsCallerIDAndTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	records := logEvents(t, Config{FilePath: path},
		&Event{ID: "fixed-id", Timestamp: ts, EventType: EventConfigValidated, Result: ResultSuccess},
	)

	require.Len(t, records, 1)
	assert.Equal(t, "fixed-id", records[0].ID)
	assert.True(t, ts.Equal(records[0].Timestamp))
}

func TestLogger_AppendsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	_ = logEvents(t, Config{FilePath: path},
		&Event{EventType: EventAuthFailure, Result: ResultFailure},
	)
	records := logEvents(t, Config{FilePath: path},
		&Event{EventType: EventAuthSuccess, Result: ResultSuccess},
	)

	require.Len(t, records, 2)
	assert.Equal(t, EventAuthFailure, records[0].EventType)
	assert.Equal(t, EventAuthSuccess, records[1].EventType)
}

func TestLogger_NoFile(t *testing.T) {
	l, err := NewLogger(Config{})
	require.NoError(t, err)

	l.Start(context.Background())
	l.Log(&Event{EventType: EventContextMissing, Result: ResultFailure})
	l.Stop()
}

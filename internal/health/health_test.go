package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(fakePinger{}, fakePinger{})

	status := c.Check(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["attempt_store"].Status)
	assert.Equal(t, StatusHealthy, status.Checks["store"].Status)
	assert.True(t, c.IsReady(context.Background()))
	assert.True(t, c.IsLive(context.Background()))
}

func TestChecker_AttemptStoreFailureDegrades(t *testing.T) {
	c := NewChecker(fakePinger{err: errors.New("redis down")}, fakePinger{})

	status := c.Check(context.Background())

	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusDegraded, status.Checks["attempt_store"].Status)
	assert.Contains(t, status.Checks["attempt_store"].Message, "redis down")

	// Degraded still serves traffic
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_MissingAttemptStoreDegrades(t *testing.T) {
	c := NewChecker(nil, fakePinger{})

	status := c.Check(context.Background())

	assert.Equal(t, StatusDegraded, status.Status)
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_StoreFailureIsUnhealthy(t *testing.T) {
	c := NewChecker(fakePinger{}, fakePinger{err: errors.New("db closed")})

	status := c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Checks["store"].Status)
	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_CachesResults(t *testing.T) {
	c := NewChecker(fakePinger{}, fakePinger{})

	first := c.Check(context.Background())
	second := c.Check(context.Background())

	assert.Same(t, first, second)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", store: fakePinger{}, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "unhealthy", store: fakePinger{err: errors.New("down")}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewChecker(fakePinger{}, tt.store))

			rec := httptest.NewRecorder()
			h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler(NewChecker(nil, fakePinger{err: errors.New("down")}))

	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	// Liveness only reflects the process, not the backends
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler(NewChecker(fakePinger{}, fakePinger{err: errors.New("down")}))

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDetailedHandler(t *testing.T) {
	h := NewHandler(NewChecker(nil, fakePinger{}))

	rec := httptest.NewRecorder()
	h.DetailedHandler(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Len(t, status.Checks, 2)
}

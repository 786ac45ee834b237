package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlight_CountsDuringRequest(t *testing.T) {
	tracker := NewInFlight()

	var during int64

	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		during = tracker.InFlightCount()
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, int64(0), tracker.InFlightCount())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, int64(1), during)
	assert.Equal(t, int64(0), tracker.InFlightCount())
}

func TestInFlight_WaitForDrain(t *testing.T) {
	tracker := NewInFlight()

	release := make(chan struct{})
	started := make(chan struct{})

	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	go handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	<-started
	require.Equal(t, int64(1), tracker.InFlightCount())

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, tracker.WaitForDrain(ctx))
	assert.Equal(t, int64(0), tracker.InFlightCount())
}

func TestInFlight_WaitForDrainTimeout(t *testing.T) {
	tracker := NewInFlight()

	release := make(chan struct{})
	started := make(chan struct{})

	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	go handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, tracker.WaitForDrain(ctx), context.DeadlineExceeded)

	close(release)
}

package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// InFlight tracks the number of requests currently being served so the
// shutdown coordinator can drain before stopping the HTTP servers.
type InFlight struct {
	count atomic.Int64
}

// NewInFlight creates an in-flight request tracker.
func NewInFlight() *InFlight {
	return &InFlight{}
}

// Middleware wraps a handler so its requests are counted.
func (t *InFlight) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.count.Add(1)
		defer t.count.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// InFlightCount returns the number of requests currently being served.
func (t *InFlight) InFlightCount() int64 {
	return t.count.Load()
}

// WaitForDrain blocks until all in-flight requests finish or ctx expires.
func (t *InFlight) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if t.count.Load() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

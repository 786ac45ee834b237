// Package tenantctx propagates the active isolation context through a call
// chain.
//
// Go has no async-local storage; the idiomatic equivalent is an explicit
// context.Context value keyed by an unexported type. A request enters with
// raw identifiers, the HTTP middleware (or RunWithContext for background
// work) attaches an IsolationContext, and every downstream consumer reads it
// back with the accessors here. Because the value rides on the context, it is
// scoped to exactly one call chain: concurrent requests can never observe
// each other's identifiers, and cancellation releases the context without
// any process-wide cleanup.
//
// Absence of a context is a caller-visible condition, not an error from this
// package: accessors return an explicit "absent" value and HasContext /
// HasTenant let callers decide between failing fast and continuing unscoped.
// Isolation-dependent operations surface ErrContextMissing themselves.
package tenantctx

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrContextMissing indicates an isolation-dependent operation was invoked
// with no active isolation context. Callers decide between failing fast
// (recommended) and an explicit unscoped fallback.
var ErrContextMissing = errors.New("tenantctx: no isolation context active")

// IsolationContext identifies the isolation boundary for one logical
// operation. TenantID is the only mandatory identifier; OrganizationID and
// DepartmentID nest underneath it (see isolation.ValidateHierarchy), and
// UserID is scoped independently at any level.
type IsolationContext struct {
	TenantID       string `json:"tenantId"`
	OrganizationID string `json:"organizationId,omitempty"`
	DepartmentID   string `json:"departmentId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	RequestID      string `json:"requestId"`
}

// contextKey is a custom type for context keys.
type contextKey struct{}

var isolationContextKey contextKey

// WithContext returns a context carrying ic. When autoInject is true and ic
// has no request ID, a new one is generated.
func WithContext(ctx context.Context, ic IsolationContext, autoInject bool) context.Context {
	if autoInject && ic.RequestID == "" {
		ic.RequestID = uuid.New().String()
	}

	return context.WithValue(ctx, isolationContextKey, ic)
}

// RunWithContext executes fn with ic active for its entire call chain,
// including any goroutines fn spawns that inherit the derived context.
func RunWithContext(ctx context.Context, ic IsolationContext, autoInject bool, fn func(ctx context.Context) error) error {
	return fn(WithContext(ctx, ic, autoInject))
}

// FromContext returns the active isolation context and whether one is set.
func FromContext(ctx context.Context) (IsolationContext, bool) {
	ic, ok := ctx.Value(isolationContextKey).(IsolationContext)

	return ic, ok
}

// HasContext reports whether an isolation context is active.
func HasContext(ctx context.Context) bool {
	_, ok := FromContext(ctx)

	return ok
}

// HasTenant reports whether an isolation context with a tenant ID is active.
func HasTenant(ctx context.Context) bool {
	ic, ok := FromContext(ctx)

	return ok && ic.TenantID != ""
}

// TenantID returns the active tenant ID, or ("", false) when absent.
func TenantID(ctx context.Context) (string, bool) {
	ic, ok := FromContext(ctx)
	if !ok || ic.TenantID == "" {
		return "", false
	}

	return ic.TenantID, true
}

// OrganizationID returns the active organization ID, or ("", false) when absent.
func OrganizationID(ctx context.Context) (string, bool) {
	ic, ok := FromContext(ctx)
	if !ok || ic.OrganizationID == "" {
		return "", false
	}

	return ic.OrganizationID, true
}

// DepartmentID returns the active department ID, or ("", false) when absent.
func DepartmentID(ctx context.Context) (string, bool) {
	ic, ok := FromContext(ctx)
	if !ok || ic.DepartmentID == "" {
		return "", false
	}

	return ic.DepartmentID, true
}

// UserID returns the active user ID, or ("", false) when absent.
func UserID(ctx context.Context) (string, bool) {
	ic, ok := FromContext(ctx)
	if !ok || ic.UserID == "" {
		return "", false
	}

	return ic.UserID, true
}

// RequestID returns the active request ID, or ("", false) when absent.
func RequestID(ctx context.Context) (string, bool) {
	ic, ok := FromContext(ctx)
	if !ok || ic.RequestID == "" {
		return "", false
	}

	return ic.RequestID, true
}

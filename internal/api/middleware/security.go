package middleware

import (
	"errors"
	"net/http"

	"github.com/piwi3910/tenantcore/internal/audit"
	"github.com/piwi3910/tenantcore/internal/metrics"
	"github.com/piwi3910/tenantcore/internal/security"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// SecurityEnforcer applies the IP allow-list and the lockout policy to
// incoming requests before they reach handlers.
type SecurityEnforcer struct {
	guard    *security.Guard
	auditLog *audit.Logger
}

// NewSecurityEnforcer creates the enforcement middleware. auditLog may be nil.
func NewSecurityEnforcer(guard *security.Guard, auditLog *audit.Logger) *SecurityEnforcer {
	return &SecurityEnforcer{guard: guard, auditLog: auditLog}
}

// Middleware returns the handler wrapper. It must run after the tenant
// extractor so the principal key can include the tenant scope.
func (s *SecurityEnforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)

		if !s.guard.IsIPAllowed(ip) {
			metrics.IPRejectionsTotal.Inc()
			s.audit(r, audit.EventIPRejected, "source address not in allow list")
			writeError(w, http.StatusForbidden, "forbidden")

			return
		}

		key := principalKey(r)
		if key != "" {
			err := s.guard.CheckLock(r.Context(), key)

			var locked *security.LockedOutError
			if errors.As(err, &locked) {
				s.audit(r, audit.EventLockout, locked.Error())
				writeError(w, http.StatusTooManyRequests, "account temporarily locked")

				return
			}

			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")

				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// principalKey identifies the authenticating principal for lockout
// accounting: the user within its tenant when both are known, otherwise the
// tenant alone. Requests without tenant context are not tracked.
func principalKey(r *http.Request) string {
	ic, ok := tenantctx.FromContext(r.Context())
	if !ok || ic.TenantID == "" {
		return ""
	}

	if ic.UserID == "" {
		return ic.TenantID
	}

	return ic.TenantID + ":" + ic.UserID
}

func (s *SecurityEnforcer) audit(r *http.Request, eventType audit.EventType, message string) {
	if s.auditLog == nil {
		return
	}

	ic, _ := tenantctx.FromContext(r.Context())

	s.auditLog.Log(&audit.Event{
		EventType: eventType,
		TenantID:  ic.TenantID,
		Principal: principalKey(r),
		SourceIP:  remoteIP(r),
		RequestID: GetRequestID(r.Context()),
		Result:    audit.ResultFailure,
		Message:   message,
	})
}

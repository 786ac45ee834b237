package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/piwi3910/tenantcore/internal/audit"
	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/isolation"
	"github.com/piwi3910/tenantcore/internal/metrics"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// TenantExtractor builds the isolation context for each request from
// headers, or from JWT claims when a bearer token is presented and a
// verification secret is configured. Header values win over claims so that
// trusted gateways can override token scope explicitly.
type TenantExtractor struct {
	cfg       config.ContextConfig
	jwtSecret []byte
	auditLog  *audit.Logger
}

// NewTenantExtractor creates the extraction middleware. auditLog may be nil.
func NewTenantExtractor(cfg config.ContextConfig, jwtSecret string, auditLog *audit.Logger) *TenantExtractor {
	e := &TenantExtractor{cfg: cfg, auditLog: auditLog}
	if jwtSecret != "" {
		e.jwtSecret = []byte(jwtSecret)
	}

	return e
}

// tenantClaims are the isolation identifiers carried in a JWT.
type tenantClaims struct {
	TenantID       string `json:"tenant_id"`
	OrganizationID string `json:"organization_id"`
	DepartmentID   string `json:"department_id"`
	UserID         string `json:"user_id"`
	jwt.RegisteredClaims
}

// Middleware returns the handler wrapper.
func (e *TenantExtractor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ic := e.extract(r)

		if ic.TenantID == "" {
			metrics.ContextMissingTotal.Inc()

			if !e.cfg.AllowCrossTenantAccess {
				e.rejectContext(w, r, ic, "missing tenant identifier")

				return
			}

			// No tenant scope on this request; handlers see no context.
			next.ServeHTTP(w, r)

			return
		}

		if err := isolation.ValidateHierarchy(ic); err != nil {
			metrics.HierarchyViolationsTotal.Inc()
			e.rejectHierarchy(w, r, ic, err)

			return
		}

		ctx := tenantctx.WithContext(r.Context(), ic, e.cfg.EnableAutoInjection)

		if e.cfg.ContextTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.cfg.ContextTimeout)

			defer cancel()
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extract assembles the isolation context from the request.
func (e *TenantExtractor) extract(r *http.Request) tenantctx.IsolationContext {
	ic := tenantctx.IsolationContext{
		TenantID:       r.Header.Get(e.cfg.TenantHeader),
		OrganizationID: r.Header.Get(e.cfg.OrganizationHeader),
		DepartmentID:   r.Header.Get(e.cfg.DepartmentHeader),
		UserID:         r.Header.Get(e.cfg.UserHeader),
		RequestID:      GetRequestID(r.Context()),
	}

	if e.jwtSecret == nil {
		return ic
	}

	claims, ok := e.parseBearer(r)
	if !ok {
		return ic
	}

	if ic.TenantID == "" {
		ic.TenantID = claims.TenantID
	}
	if ic.OrganizationID == "" {
		ic.OrganizationID = claims.OrganizationID
	}
	if ic.DepartmentID == "" {
		ic.DepartmentID = claims.DepartmentID
	}
	if ic.UserID == "" {
		ic.UserID = claims.UserID
		if ic.UserID == "" {
			ic.UserID = claims.Subject
		}
	}

	return ic
}

func (e *TenantExtractor) parseBearer(r *http.Request) (*tenantClaims, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found {
		return nil, false
	}

	claims := &tenantClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}

		return e.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Msg("Rejected bearer token")

		return nil, false
	}

	return claims, true
}

func (e *TenantExtractor) rejectContext(w http.ResponseWriter, r *http.Request, ic tenantctx.IsolationContext, reason string) {
	if e.auditLog != nil {
		e.auditLog.Log(&audit.Event{
			EventType: audit.EventContextMissing,
			TenantID:  ic.TenantID,
			SourceIP:  remoteIP(r),
			RequestID: GetRequestID(r.Context()),
			Result:    audit.ResultFailure,
			Message:   reason,
		})
	}

	writeError(w, http.StatusBadRequest, reason)
}

func (e *TenantExtractor) rejectHierarchy(w http.ResponseWriter, r *http.Request, ic tenantctx.IsolationContext, err error) {
	if e.auditLog != nil {
		e.auditLog.Log(&audit.Event{
			EventType: audit.EventHierarchyViolation,
			TenantID:  ic.TenantID,
			SourceIP:  remoteIP(r),
			RequestID: GetRequestID(r.Context()),
			Result:    audit.ResultFailure,
			Message:   err.Error(),
		})
	}

	writeError(w, http.StatusForbidden, err.Error())
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// remoteIP returns the client address without the port.
func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return strings.Trim(addr[:i], "[]")
	}

	return addr
}

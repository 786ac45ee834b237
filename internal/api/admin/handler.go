// Package admin implements the operational HTTP API of the engine daemon.
//
// The API exposes lockout state inspection, configuration validation, key
// derivation debugging, and a tenant-scoped key-value store. All endpoints
// run behind the tenant extraction and security middleware.
package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/piwi3910/tenantcore/internal/cache"
	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/isolation"
	"github.com/piwi3910/tenantcore/internal/security"
	"github.com/piwi3910/tenantcore/internal/store"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// Handler serves the admin API.
type Handler struct {
	guard     *security.Guard
	resolver  *isolation.Resolver
	hierarchy *isolation.HierarchyValidator
	store     *store.TenantStore
	cache     *cache.TenantCache
}

// NewHandler creates the admin API handler.
func NewHandler(
	guard *security.Guard,
	resolver *isolation.Resolver,
	hierarchy *isolation.HierarchyValidator,
	tenantStore *store.TenantStore,
	tenantCache *cache.TenantCache,
) *Handler {
	return &Handler{
		guard:     guard,
		resolver:  resolver,
		hierarchy: hierarchy,
		store:     tenantStore,
		cache:     tenantCache,
	}
}

// RegisterRoutes registers the admin API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/context", h.GetContext)
	r.Get("/isolate", h.Isolate)
	r.Post("/config/validate", h.ValidateConfig)

	r.Post("/auth/hash", h.HashPassword)
	r.Post("/auth/verify", h.VerifyPassword)

	r.Get("/lockouts/{principal}", h.GetLockout)
	r.Post("/lockouts/{principal}/failure", h.RecordFailure)
	r.Post("/lockouts/{principal}/success", h.RecordSuccess)

	r.Route("/store", func(r chi.Router) {
		r.Get("/", h.ListKeys)
		r.Get("/{key}", h.GetValue)
		r.Put("/{key}", h.PutValue)
		r.Delete("/{key}", h.DeleteValue)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// GetContext returns the isolation context of the current request.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	ic, ok := tenantctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no isolation context active")

		return
	}

	writeJSON(w, http.StatusOK, ic)
}

// isolateResponse is the key-derivation debug output.
type isolateResponse struct {
	Level       string `json:"level"`
	RawKey      string `json:"rawKey"`
	IsolatedKey string `json:"isolatedKey"`
	Namespace   string `json:"namespace,omitempty"`
	Database    string `json:"database,omitempty"`
	Schema      string `json:"schema,omitempty"`
}

// Isolate derives and returns the isolated forms of a raw key at a given
// level, for debugging isolation configuration.
func (h *Handler) Isolate(w http.ResponseWriter, r *http.Request) {
	rawKey := r.URL.Query().Get("key")
	if rawKey == "" {
		writeError(w, http.StatusBadRequest, "missing key parameter")

		return
	}

	level := h.resolver.DefaultLevel()

	if name := r.URL.Query().Get("level"); name != "" {
		parsed, err := isolation.ParseLevel(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())

			return
		}

		level = parsed
	}

	if !h.hierarchy.ValidatePermission(r.Context(), level) {
		writeError(w, http.StatusForbidden, "isolation level not permitted for this context")

		return
	}

	key, err := h.resolver.IsolateKey(r.Context(), level, rawKey)
	if err != nil {
		writeIsolationError(w, err)

		return
	}

	resp := isolateResponse{
		Level:       level.String(),
		RawKey:      rawKey,
		IsolatedKey: key,
	}

	// Namespace and database derivations can fail independently when the
	// level has no usable identifier; report only what resolves.
	if ns, err := h.resolver.IsolateNamespace(r.Context(), level); err == nil {
		resp.Namespace = ns
	}
	if db, err := h.resolver.IsolateDatabaseName(r.Context(), level); err == nil {
		resp.Database = db
	}
	if schema, err := h.resolver.IsolateSchemaName(r.Context(), level); err == nil {
		resp.Schema = schema
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeIsolationError(w http.ResponseWriter, err error) {
	if errors.Is(err, tenantctx.ErrContextMissing) {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	var tooLong *isolation.KeyTooLongError
	if errors.As(err, &tooLong) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())

		return
	}

	var disabled *isolation.LevelDisabledError
	if errors.As(err, &disabled) {
		writeError(w, http.StatusConflict, err.Error())

		return
	}

	writeError(w, http.StatusInternalServerError, err.Error())
}

// ValidateConfig validates a multi-tenancy configuration document without
// applying it. The body may be YAML or JSON.
func (h *Handler) ValidateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")

		return
	}

	var cfg config.MultiTenancyConfig
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse configuration: "+err.Error())

		return
	}

	result := config.Validate(&cfg)

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, result)
}

// lockoutResponse is the lockout state of a principal.
type lockoutResponse struct {
	Principal      string     `json:"principal"`
	Locked         bool       `json:"locked"`
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
}

// GetLockout returns the lockout state for a principal.
func (h *Handler) GetLockout(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	state, err := h.guard.State(r.Context(), principal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	locked, err := h.guard.IsLocked(r.Context(), principal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	resp := lockoutResponse{
		Principal:      principal,
		Locked:         locked,
		FailedAttempts: state.FailedAttempts,
	}
	if !state.LockedUntil.IsZero() {
		resp.LockedUntil = &state.LockedUntil
	}

	writeJSON(w, http.StatusOK, resp)
}

// RecordFailure records a failed authentication attempt for a principal.
// External authenticators call this to feed the lockout policy.
func (h *Handler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	if err := h.guard.RecordFailure(r.Context(), principal); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.GetLockout(w, r)
}

// RecordSuccess records a successful authentication attempt for a principal.
func (h *Handler) RecordSuccess(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	if err := h.guard.RecordSuccess(r.Context(), principal); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.GetLockout(w, r)
}

// ListKeys lists raw keys within the caller's isolation scope.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListKeys(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeIsolationError(w, err)

		return
	}

	if keys == nil {
		keys = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// GetValue returns a stored value within the caller's isolation scope. The
// cache is consulted first.
func (h *Handler) GetValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if value, ok, err := h.cache.Get(r.Context(), key); err == nil && ok {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(value)

		return
	}

	value, err := h.store.Get(r.Context(), key)
	if errors.Is(err, store.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, "key not found")

		return
	}
	if err != nil {
		writeIsolationError(w, err)

		return
	}

	_ = h.cache.Set(r.Context(), key, value, 0)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

// PutValue stores a value within the caller's isolation scope.
func (h *Handler) PutValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")

		return
	}

	if err := h.store.Put(r.Context(), key, value); err != nil {
		writeIsolationError(w, err)

		return
	}

	_ = h.cache.Delete(r.Context(), key)

	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

// DeleteValue removes a value within the caller's isolation scope.
func (h *Handler) DeleteValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.store.Delete(r.Context(), key); err != nil {
		writeIsolationError(w, err)

		return
	}

	_ = h.cache.Delete(r.Context(), key)

	w.WriteHeader(http.StatusNoContent)
}

package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/piwi3910/tenantcore/internal/security"
)

// hashRequest asks for a password to be strength-checked and hashed.
type hashRequest struct {
	Password string `json:"password"`
}

// HashPassword validates password strength and returns a bcrypt hash.
// Authentication collaborators use this when provisioning credentials.
func (h *Handler) HashPassword(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := security.ValidatePasswordStrength(req.Password); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())

		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

// verifyRequest asks for a password to be verified against a hash on behalf
// of a principal.
type verifyRequest struct {
	Principal string `json:"principal"`
	Password  string `json:"password"`
	Hash      string `json:"hash"`
}

// VerifyPassword checks a password against its hash and feeds the outcome
// into the lockout policy: a mismatch records a failure, a match records a
// success. Requests for a locked principal are refused without touching the
// hash at all.
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if req.Principal == "" {
		writeError(w, http.StatusBadRequest, "principal is required")

		return
	}

	err := h.guard.CheckLock(r.Context(), req.Principal)

	var locked *security.LockedOutError
	if errors.As(err, &locked) {
		writeError(w, http.StatusTooManyRequests, locked.Error())

		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	if err := security.VerifyPassword(req.Password, req.Hash); err != nil {
		if err := h.guard.RecordFailure(r.Context(), req.Principal); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())

			return
		}

		writeError(w, http.StatusUnauthorized, "password verification failed")

		return
	}

	if err := h.guard.RecordSuccess(r.Context(), req.Principal); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

func extractorConfig() config.ContextConfig {
	return config.ContextConfig{
		TenantHeader:       "X-Tenant-ID",
		OrganizationHeader: "X-Organization-ID",
		DepartmentHeader:   "X-Department-ID",
		UserHeader:         "X-User-ID",
	}
}

// captureContext returns a handler that records the isolation context it saw.
func captureContext(got *tenantctx.IsolationContext, found *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ic, ok := tenantctx.FromContext(r.Context())
		*got = ic
		*found = ok

		w.WriteHeader(http.StatusOK)
	})
}

func TestTenantExtractor_Headers(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "", nil)

	var (
		got   tenantctx.IsolationContext
		found bool
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	req.Header.Set("X-Organization-ID", "o1")
	req.Header.Set("X-Department-ID", "d1")
	req.Header.Set("X-User-ID", "u1")

	rec := httptest.NewRecorder()
	e.Middleware(captureContext(&got, &found)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "o1", got.OrganizationID)
	assert.Equal(t, "d1", got.DepartmentID)
	assert.Equal(t, "u1", got.UserID)
}

func TestTenantExtractor_MissingTenantRejected(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "", nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	e.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a tenant")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "tenant")
}

func TestTenantExtractor_CrossTenantFallthrough(t *testing.T) {
	cfg := extractorConfig()
	cfg.AllowCrossTenantAccess = true

	e := NewTenantExtractor(cfg, "", nil)

	var (
		got   tenantctx.IsolationContext
		found bool
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.Middleware(captureContext(&got, &found)).ServeHTTP(rec, req)

	// The request proceeds, but without any isolation context
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, found)
}

func TestTenantExtractor_HierarchyViolation(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "", nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	req.Header.Set("X-Department-ID", "d1")

	rec := httptest.NewRecorder()
	e.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run on a broken hierarchy")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func signToken(t *testing.T, secret string, claims tenantClaims) string {
	t.Helper()

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	return token
}

func TestTenantExtractor_BearerClaims(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "jwt-secret", nil)

	var (
		got   tenantctx.IsolationContext
		found bool
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "jwt-secret", tenantClaims{
		TenantID: "t1",
		UserID:   "u1",
	}))

	rec := httptest.NewRecorder()
	e.Middleware(captureContext(&got, &found)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "u1", got.UserID)
}

func TestTenantExtractor_HeadersWinOverClaims(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "jwt-secret", nil)

	var (
		got   tenantctx.IsolationContext
		found bool
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "header-tenant")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "jwt-secret", tenantClaims{
		TenantID: "claim-tenant",
	}))

	rec := httptest.NewRecorder()
	e.Middleware(captureContext(&got, &found)).ServeHTTP(rec, req)

	require.True(t, found)
	assert.Equal(t, "header-tenant", got.TenantID)
}

func TestTenantExtractor_SubjectFallback(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "jwt-secret", nil)

	var (
		got   tenantctx.IsolationContext
		found bool
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "jwt-secret", tenantClaims{
		TenantID:         "t1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-user"},
	}))

	rec := httptest.NewRecorder()
	e.Middleware(captureContext(&got, &found)).ServeHTTP(rec, req)

	require.True(t, found)
	assert.Equal(t, "subject-user", got.UserID)
}

func TestTenantExtractor_BadSignatureIgnored(t *testing.T) {
	e := NewTenantExtractor(extractorConfig(), "jwt-secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", tenantClaims{
		TenantID: "t1",
	}))

	rec := httptest.NewRecorder()
	e.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with only a forged token")
	})).ServeHTTP(rec, req)

	// The forged claims contribute nothing, leaving the tenant missing
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoteIP(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"203.0.113.7:4431", "203.0.113.7"},
		{"[2001:db8::1]:4431", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.addr

		assert.Equal(t, tt.want, remoteIP(req))
	}
}

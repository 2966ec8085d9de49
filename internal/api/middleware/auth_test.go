package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutedeck/commutedeck/internal/api/middleware"
	"github.com/commutedeck/commutedeck/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func createTestJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: "test-signing-key-for-middleware"})
}

func authorize(handler http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/invalidate", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth_Rejections(t *testing.T) {
	svc := createTestJWTService()
	viewerToken, _, err := svc.IssueToken("dashboard", "viewer")
	require.NoError(t, err)

	handler := middleware.AdminAuth(svc)(okHandler())

	tests := []struct {
		name      string
		header    string
		status    int
		challenge string
		message   string
	}{
		{"missing header", "", http.StatusUnauthorized, `Bearer realm="commutedeck-admin"`, "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, `Bearer realm="commutedeck-admin", error="invalid_request"`, "invalid authorization header format"},
		{"scheme only", "Bearer", http.StatusUnauthorized, `Bearer realm="commutedeck-admin", error="invalid_request"`, "invalid authorization header format"},
		{"empty token", "Bearer   ", http.StatusUnauthorized, `Bearer realm="commutedeck-admin", error="invalid_request"`, "invalid authorization header format"},
		{"garbage token", "Bearer invalid.jwt.token", http.StatusUnauthorized, `Bearer realm="commutedeck-admin", error="invalid_token"`, "invalid access token"},
		{"viewer role", "Bearer " + viewerToken, http.StatusForbidden, "", "not authorized for admin endpoints"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := authorize(handler, tt.header)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.challenge, rec.Header().Get("WWW-Authenticate"))
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}

func TestAdminAuth_ValidToken(t *testing.T) {
	svc := createTestJWTService()
	token, _, err := svc.IssueToken("ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)

	var claims *auth.Claims
	handler := middleware.AdminAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = middleware.GetClaims(r.Context())
		assert.Equal(t, "ops@example.com", middleware.GetSubject(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	for _, scheme := range []string{"Bearer", "bearer", "BEARER"} {
		t.Run(scheme, func(t *testing.T) {
			rec := authorize(handler, scheme+" "+token)

			assert.Equal(t, http.StatusOK, rec.Code)
			require.NotNil(t, claims)
			assert.Equal(t, auth.RoleAdmin, claims.Role)
		})
	}
}

func TestAdminAuth_DisabledWithoutKey(t *testing.T) {
	handler := middleware.AdminAuth(auth.NewJWTService(auth.JWTConfig{}))(okHandler())

	rec := authorize(handler, "Bearer whatever")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}

func TestGetSubject_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetSubject(req.Context()))
	assert.Nil(t, middleware.GetClaims(req.Context()))
}

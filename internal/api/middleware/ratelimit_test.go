package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutedeck/commutedeck/internal/api/middleware"
	"github.com/commutedeck/commutedeck/internal/auth"
)

// hit sends one request from addr and returns the recorder.
func hit(handler http.Handler, addr, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/train-info", http.NoBody)
	req.RemoteAddr = addr
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BudgetPerAddress(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(3))(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:12345", "").Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:12345", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:12345", "").Code, "other addresses keep their own budget")
}

func TestRateLimit_RetryAfterFollowsWindow(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 90 * time.Second})(okHandler())

	hit(handler, "10.1.0.1:1", "")
	rec := hit(handler, "10.1.0.1:1", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestRateLimitBySubject_FallsBackToIP(t *testing.T) {
	handler := middleware.RateLimitBySubject(middleware.PerMinute(2))(okHandler())

	assert.Equal(t, http.StatusOK, hit(handler, "192.168.7.1:1", "").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "192.168.7.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "192.168.7.1:1", "").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "192.168.7.2:1", "").Code)
}

func TestRateLimitBySubject_KeysOnTokenSubject(t *testing.T) {
	svc := createTestJWTService()
	token, _, err := svc.IssueToken("ops-bot", auth.RoleAdmin)
	require.NoError(t, err)

	handler := middleware.AdminAuth(svc)(middleware.RateLimitBySubject(middleware.PerMinute(1))(okHandler()))

	// Same subject from two addresses shares one budget.
	assert.Equal(t, http.StatusOK, hit(handler, "198.51.100.1:1", token).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "198.51.100.2:1", token).Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	handler := middleware.RequestID(middleware.RateLimitByIP(middleware.PerMinute(1))(okHandler()))

	require.Equal(t, http.StatusOK, hit(handler, "203.0.113.1:12345", "").Code)
	rec := hit(handler, "203.0.113.1:12345", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"success":false`)
	assert.Contains(t, body, "Rate limit exceeded")
	assert.Contains(t, body, "req_")
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, middleware.PerMinute(10), middleware.AdminRateLimit)
	assert.Equal(t, middleware.PerMinute(30), middleware.ExpensiveRateLimit)
	assert.Equal(t, middleware.PerMinute(120), middleware.StandardRateLimit)
	assert.Equal(t, middleware.RateLimitConfig{RequestLimit: 45, WindowLength: time.Minute}, middleware.PerMinute(45))
}

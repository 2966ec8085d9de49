package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/commutedeck/commutedeck/internal/api/models"
)

// RateLimitConfig is a request budget per key and window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// PerMinute returns a config allowing n requests per minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// Budgets for the route groups.
var (
	// AdminRateLimit applies per token subject to admin commands.
	AdminRateLimit = PerMinute(10)

	// ExpensiveRateLimit applies to /v1/nearby, which fans out to every upstream.
	ExpensiveRateLimit = PerMinute(30)

	// StandardRateLimit applies to the single-source data endpoints.
	StandardRateLimit = PerMinute(120)
)

// RateLimitByIP limits requests per client IP. Run chi's RealIP first so
// proxied clients are told apart.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, httprate.KeyByRealIP)
}

// RateLimitBySubject limits requests per authenticated token subject and
// falls back to the client IP for anonymous requests.
func RateLimitBySubject(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, func(r *http.Request) (string, error) {
		if subject := GetSubject(r.Context()); subject != "" {
			return "sub:" + subject, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func limit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			// httprate does not expose the reset time; a full window is the upper bound.
			w.Header().Set("Retry-After", retryAfter)
			models.NewError(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
				Write(w, http.StatusTooManyRequests)
		}),
	)
}

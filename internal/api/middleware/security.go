package middleware

import (
	"net/http"

	"github.com/commutedeck/commutedeck/internal/api/models"
)

// apiSecurityHeaders are set on every response. The API only ever serves
// JSON, so nothing may be framed, sniffed or given browser features.
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":         "no-referrer",
	"Permissions-Policy":      "geolocation=(), camera=(), microphone=()",
}

const hstsHeader = "max-age=31536000; includeSubDomains"

// SecurityConfig controls the Security middleware.
type SecurityConfig struct {
	// RequireTLS rejects requests a proxy forwarded over plain HTTP and
	// enables HSTS. Requests without X-Forwarded-Proto are let through.
	RequireTLS bool
}

// Security sets the API security headers and, when configured, enforces
// HTTPS behind a load balancer.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range apiSecurityHeaders {
				h.Set(name, value)
			}

			if cfg.RequireTLS {
				h.Set("Strict-Transport-Security", hstsHeader)
				if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
					models.NewError(GetRequestID(r.Context()), "This endpoint requires HTTPS").
						Write(w, http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

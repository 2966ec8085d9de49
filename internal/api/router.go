// Package api provides the HTTP API for commutedeck.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api/handler"
	"github.com/commutedeck/commutedeck/internal/api/middleware"
	"github.com/commutedeck/commutedeck/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// CORSAllowedOrigins defaults to every origin.
	CORSAllowedOrigins []string

	// RateLimitPerMinute applies per client IP to the public data endpoints.
	RateLimitPerMinute int

	// RequireTLS rejects plain HTTP behind a proxy and enables HSTS.
	RequireTLS bool

	Ops     handler.OpsConfig
	Transit *handler.TransitHandler
	Nearby  *handler.NearbyHandler
	Admin   *handler.AdminHandler

	// AdminAuth validates admin bearer tokens. Admin routes are not mounted
	// without it.
	AdminAuth middleware.AdminValidator
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "commutedeck-api"
	}
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	standard := middleware.StandardRateLimit
	if cfg.RateLimitPerMinute > 0 {
		standard = middleware.PerMinute(cfg.RateLimitPerMinute)
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.Security(middleware.SecurityConfig{RequireTLS: cfg.RequireTLS}))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	opsHandler := handler.NewOpsHandler(cfg.Ops)

	standardRateLimit := middleware.RateLimitByIP(standard)
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Transit != nil {
			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/nearby-stations", cfg.Transit.NearbyStations)
				r.Get("/station-railways", cfg.Transit.StationRailways)
				r.Get("/train-info", cfg.Transit.TrainInfo)
			})
		}

		if cfg.Nearby != nil {
			r.With(expensiveRateLimit).Get("/nearby", cfg.Nearby.Nearby)
		}

		if cfg.Admin != nil && cfg.AdminAuth != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AdminAuth(cfg.AdminAuth))
				r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit))
				r.Use(middleware.RequireJSON)
				r.Post("/railway-index/rebuild", cfg.Admin.RebuildRailwayIndex)
				r.Post("/cache/invalidate", cfg.Admin.InvalidateCaches)
			})
		}
	})

	return r
}

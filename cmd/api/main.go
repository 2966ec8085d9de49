// Package main provides the entrypoint for the commutedeck API server.
//
// Usage:
//
//	api           serve the HTTP API
//	api token     print a signed admin token
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api"
	"github.com/commutedeck/commutedeck/internal/api/handler"
	"github.com/commutedeck/commutedeck/internal/api/middleware"
	"github.com/commutedeck/commutedeck/internal/auth"
	"github.com/commutedeck/commutedeck/internal/config"
	"github.com/commutedeck/commutedeck/internal/nearby"
	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/station/overpass"
	"github.com/commutedeck/commutedeck/internal/telemetry"
	"github.com/commutedeck/commutedeck/internal/transit"
	"github.com/commutedeck/commutedeck/internal/transit/odpt"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "commutedeck-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg := config.Load()

	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(cfg, os.Args[2:], os.Stdout, os.Stderr))
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting commutedeck API")

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
		SampleRatio:    cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTELEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Upstream clients share one registry so /v1/ops/status can report them.
	registry := resilience.NewRegistry()

	overpassHTTP := resilience.DefaultClientConfig(overpass.ProviderName)
	overpassHTTP.Registry = registry
	// Overpass queries run up to 25 s server-side.
	overpassHTTP.Timeout = 30 * time.Second

	odptHTTP := resilience.DefaultClientConfig(odpt.ProviderName)
	odptHTTP.Registry = registry

	overpassClient := overpass.NewClient(overpass.ClientConfig{
		URL:        cfg.OverpassURL,
		HTTPClient: resilience.NewClient(overpassHTTP),
		Logger:     log,
	})

	if cfg.ODPTConsumerKey == "" {
		log.Warn().Msg("ODPT_CONSUMER_KEY not set - railway and train information requests will be rejected upstream")
	}
	odptClient := odpt.NewClient(odpt.ClientConfig{
		ConsumerKey: cfg.ODPTConsumerKey,
		BaseURL:     cfg.ODPTBaseURL,
		Operators:   cfg.ODPTOperators,
		HTTPClient:  resilience.NewClient(odptHTTP),
		Logger:      log,
	})

	railwayIndex := railway.NewIndex(railway.IndexConfig{
		Source:       odptClient,
		Logger:       log,
		TTL:          cfg.RailwayIndexTTL,
		BuildTimeout: cfg.IndexBuildTimeout,
	})

	stationService := station.NewService(station.ServiceConfig{
		Provider: overpassClient,
		Logger:   log,
		CacheTTL: cfg.StationCacheTTL,
	})

	transitService := transit.NewService(transit.ServiceConfig{
		Provider:        odptClient,
		Catalog:         railwayIndex,
		Logger:          log,
		CacheTTL:        cfg.StatusCacheTTL,
		StaleIfErrorTTL: cfg.StatusStaleTTL,
	})

	aggregator := nearby.NewAggregator(nearby.Config{
		Stations: stationService,
		Railways: railwayIndex,
		Statuses: transitService,
		Logger:   log,
	})
	log.Info().Msg("transit services initialized")

	// Admin endpoints require a signing key; without one they are not mounted.
	var adminAuth middleware.AdminValidator
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWTSigningKey,
		Expiry:     cfg.JWTExpiry,
	})
	if jwtService.Enabled() {
		adminAuth = jwtService
	} else {
		log.Warn().Msg("JWT_SIGNING_KEY not set - admin endpoints disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequireTLS:         cfg.RequireTLS,
		Ops: handler.OpsConfig{
			Version:   Version,
			BuildTime: BuildTime,
			Registry:  registry,
			Index:     railwayIndex,
			Stations:  stationService,
			Statuses:  transitService,
			ReadyChecks: map[string]handler.ReadyCheck{
				"railway-index": func(ctx context.Context) error {
					_, err := railwayIndex.Railways(ctx)
					return err
				},
			},
		},
		Transit: handler.NewTransitHandler(stationService, railwayIndex, transitService, log),
		Nearby:  handler.NewNearbyHandler(aggregator, log),
		Admin: handler.NewAdminHandler(railwayIndex, map[string]handler.CacheInvalidator{
			"stations":   stationService,
			"train-info": transitService,
		}, log),
		AdminAuth: adminAuth,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // index builds on a cold start can take 30 s
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

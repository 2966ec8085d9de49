// Package main provides the entrypoint for the commutedeck worker. It watches
// railway statuses on a ticker, or on Pub/Sub messages when a project is
// configured, and exposes a health endpoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api/middleware"
	"github.com/commutedeck/commutedeck/internal/api/response"
	"github.com/commutedeck/commutedeck/internal/config"
	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/telemetry"
	"github.com/commutedeck/commutedeck/internal/transit"
	"github.com/commutedeck/commutedeck/internal/transit/odpt"
	"github.com/commutedeck/commutedeck/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "commutedeck-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting commutedeck worker")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StatusStoreDriver).Msg("failed to open status store")
	}
	defer closeStore()

	notifier, closeNotifier := buildNotifier(cfg, log)
	defer closeNotifier()

	odptClient := odpt.NewClient(odpt.ClientConfig{
		ConsumerKey: cfg.ODPTConsumerKey,
		BaseURL:     cfg.ODPTBaseURL,
		Operators:   cfg.ODPTOperators,
		HTTPClient:  resilience.NewClient(resilience.DefaultClientConfig(odpt.ProviderName)),
		Logger:      log,
	})

	railwayIndex := railway.NewIndex(railway.IndexConfig{
		Source:       odptClient,
		Logger:       log,
		TTL:          cfg.RailwayIndexTTL,
		BuildTimeout: cfg.IndexBuildTimeout,
	})

	// The watcher wants fresh data on every run, so caching stays short.
	transitService := transit.NewService(transit.ServiceConfig{
		Provider: odptClient,
		Catalog:  railwayIndex,
		Logger:   log,
		CacheTTL: time.Second,
	})

	watchJob := worker.NewWatchJob(worker.WatchJobConfig{
		Config: worker.WatchConfig{
			Railways: cfg.WatchRailways,
			Interval: cfg.WatchInterval,
		},
		Source:   transitService,
		Store:    store,
		Notifier: notifier,
		Logger:   log,
	})
	dispatcher := worker.NewDispatcher(watchJob, railwayIndex, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      healthRouter(watchJob, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.PubSubProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:           cfg.PubSubProjectID,
			SubscriptionName:    cfg.PubSubSubscription,
			Dispatcher:          dispatcher,
			Logger:              log,
			MaxDeliveryAttempts: cfg.MaxDeliveries,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub receive stopped")
				cancel()
			}
		}()
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set - watching on a ticker")
		go watchJob.Loop(ctx)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func healthRouter(job *worker.WatchJob, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, r, map[string]interface{}{
			"status":  "OK",
			"version": Version,
			"watch":   job.MetricsSnapshot(),
		})
	})
	return r
}

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/config"
	"github.com/commutedeck/commutedeck/internal/database"
	"github.com/commutedeck/commutedeck/internal/notify"
	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/statusstore"
)

// openStore returns the status repository selected by STATUS_STORE and a
// function that releases it.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (statusstore.Repository, func(), error) {
	switch cfg.StatusStoreDriver {
	case "postgres":
		pool, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		repo := statusstore.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Msg("status store: postgres")
		return repo, pool.Close, nil

	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo := statusstore.NewSQLiteRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("status store: sqlite")
		return repo, func() { _ = db.Close() }, nil

	case "", "memory":
		log.Info().Msg("status store: memory (state is lost on restart)")
		return statusstore.NewInMemoryRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown status store driver %q", cfg.StatusStoreDriver)
	}
}

// buildNotifier fans changes out to every configured sink. Changes are
// always logged.
func buildNotifier(cfg *config.Config, log zerolog.Logger) (notify.Notifier, func()) {
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	closers := []func(){}

	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscordNotifier(notify.DiscordConfig{
			WebhookURL: cfg.DiscordWebhookURL,
			HTTPClient: resilience.NewClient(resilience.DefaultClientConfig(notify.DiscordProviderName)),
			Logger:     log,
		}))
	}

	if cfg.AMQPURL != "" {
		publisher := notify.NewAMQPPublisher(notify.AMQPConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Logger:   log,
		})
		notifiers = append(notifiers, publisher)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close amqp publisher")
			}
		})
	}

	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	log.Info().Strs("notifiers", names).Msg("change notifiers configured")

	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}
}

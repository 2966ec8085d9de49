package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// DefaultMaxDeliveryAttempts caps redeliveries of a failing job when the
// subscription reports attempts.
const DefaultMaxDeliveryAttempts = 5

// Delivery is one received job message.
type Delivery struct {
	ID          string
	PublishTime time.Time
	Data        []byte

	// Attempt is the delivery attempt, or 0 when the subscription has no
	// dead-letter policy and does not count attempts.
	Attempt int
}

// MessageHandler turns dispatch outcomes into ack decisions.
type MessageHandler struct {
	dispatcher  *Dispatcher
	logger      zerolog.Logger
	maxAttempts int
}

// NewMessageHandler creates a handler. maxAttempts <= 0 uses
// DefaultMaxDeliveryAttempts.
func NewMessageHandler(dispatcher *Dispatcher, logger zerolog.Logger, maxAttempts int) *MessageHandler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxDeliveryAttempts
	}
	return &MessageHandler{dispatcher: dispatcher, logger: logger, maxAttempts: maxAttempts}
}

// Handle runs one delivery and reports whether it should be acked. Success
// and permanent errors ack; other errors nack for redelivery until the
// attempt cap, after which the message is dropped.
func (h *MessageHandler) Handle(ctx context.Context, d Delivery) bool {
	start := time.Now()
	logger := h.logger.With().
		Str("message_id", d.ID).
		Time("publish_time", d.PublishTime).
		Int("attempt", d.Attempt).
		Logger()

	err := h.dispatcher.Dispatch(ctx, d.Data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
		return true
	case IsPermanent(err):
		logger.Warn().Err(err).Msg("dropping message")
		return true
	case d.Attempt >= h.maxAttempts:
		logger.Error().Err(err).Int("max_attempts", h.maxAttempts).Msg("job failed on final attempt, dropping message")
		return true
	default:
		logger.Error().Err(err).Msg("job failed, requesting redelivery")
		return false
	}
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID           string
	SubscriptionName    string
	Dispatcher          *Dispatcher
	Logger              zerolog.Logger
	MaxDeliveryAttempts int
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	handler      *MessageHandler
	logger       zerolog.Logger
}

// NewPubSubHandler connects to Pub/Sub.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	// Runs are serialized by the watch job, so a small window is enough.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.SubscriptionName,
		handler:      NewMessageHandler(cfg.Dispatcher, cfg.Logger, cfg.MaxDeliveryAttempts),
		logger:       cfg.Logger,
	}, nil
}

// Start blocks receiving messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Str("subscription", h.subscription).Msg("receiving job messages")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		d := Delivery{ID: msg.ID, PublishTime: msg.PublishTime, Data: msg.Data}
		if msg.DeliveryAttempt != nil {
			d.Attempt = *msg.DeliveryAttempt
		}
		if h.handler.Handle(ctx, d) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

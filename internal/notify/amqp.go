package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultExchange is the topic exchange status events are published to.
const DefaultExchange = "transit.status"

// RoutingKeyPrefix precedes the status in every routing key, so consumers
// can bind to transit.status.suspend or transit.status.#.
const RoutingKeyPrefix = "transit.status."

const publishTimeout = 30 * time.Second

var errPublisherClosed = errors.New("amqp publisher is closed")

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel and returns the connection that owns it.
type Dialer func(url string) (Channel, io.Closer, error)

// DialAMQP connects to a broker with amqp091.
func DialAMQP(url string) (Channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, conn, nil
}

// AMQPConfig holds configuration for the AMQP publisher.
type AMQPConfig struct {
	URL      string
	Exchange string

	// Dial overrides DialAMQP (tests).
	Dial Dialer

	Logger zerolog.Logger
}

// AMQPPublisher publishes one persistent message per change to a topic
// exchange. The connection is opened lazily and reopened after a failed
// publish.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     Dialer
	logger   zerolog.Logger

	mu     sync.Mutex
	ch     Channel
	conn   io.Closer
	closed bool
}

// NewAMQPPublisher creates a publisher. No connection is made until the
// first Notify.
func NewAMQPPublisher(cfg AMQPConfig) *AMQPPublisher {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	dial := cfg.Dial
	if dial == nil {
		dial = DialAMQP
	}
	return &AMQPPublisher{
		url:      cfg.URL,
		exchange: exchange,
		dial:     dial,
		logger:   cfg.Logger,
	}
}

// Name returns the provider name.
func (p *AMQPPublisher) Name() string {
	return "amqp"
}

// RoutingKey returns the routing key for a change.
func RoutingKey(c Change) string {
	return RoutingKeyPrefix + string(c.Current.Status)
}

// Notify publishes every change. On the first failure the connection is
// dropped and the error returned; the next call reconnects.
func (p *AMQPPublisher) Notify(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errPublisherClosed
	}
	if err := p.connectLocked(); err != nil {
		return err
	}

	for _, c := range changes {
		body, err := json.Marshal(NewEvent(c))
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = p.ch.PublishWithContext(pubCtx,
			p.exchange,    // exchange
			RoutingKey(c), // routing key
			false,         // mandatory
			false,         // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    uuid.NewString(),
				Timestamp:    c.DetectedAt,
				Type:         "railway.status.changed",
				Body:         body,
			},
		)
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("railway_id", c.Current.RailwayID).Msg("amqp publish failed, dropping connection")
			p.resetLocked()
			return fmt.Errorf("publishing %s: %w", c.Current.RailwayID, err)
		}
	}

	p.logger.Debug().Int("changes", len(changes)).Str("exchange", p.exchange).Msg("status events published")
	return nil
}

// Close shuts the channel and connection. Further Notify calls fail.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return p.resetLocked()
}

func (p *AMQPPublisher) connectLocked() error {
	if p.ch != nil {
		return nil
	}

	ch, conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declaring exchange %s: %w", p.exchange, err)
	}

	p.ch, p.conn = ch, conn
	p.logger.Info().Str("exchange", p.exchange).Msg("connected to amqp broker")
	return nil
}

func (p *AMQPPublisher) resetLocked() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}

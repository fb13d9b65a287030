package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

// channel is the subset of *amqp.Channel used by the producer.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connection is the subset of *amqp.Connection used by the producer.
type connection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	Close() error
}

// Producer implements eventbus.Producer for RabbitMQ.
type Producer struct {
	conn   connection
	pubCh  channel
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
}

// Config holds RabbitMQ producer configuration.
type Config struct {
	URL              string
	Exchange         string
	ExchangeType     string
	RoutingKey       string
	OperationTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Exchange == "" {
		c.Exchange = "mutations"
	}
	if c.ExchangeType == "" {
		c.ExchangeType = "topic"
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 30 * time.Second
	}
}

// NewProducer dials RabbitMQ, opens a publish channel and declares the
// durable exchange.
func NewProducer(cfg Config, log logger.Logger) (*Producer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}
	cfg.applyDefaults()
	if log == nil {
		log = logger.NewNopLogger()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create rabbitmq channel: %w", err)
	}

	if err := pubCh.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = pubCh.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := &Producer{conn: conn, pubCh: pubCh, logger: log, config: cfg}
	if err := p.HealthCheck(context.Background()); err != nil {
		_ = p.Close()
		return nil, err
	}
	log.Info("rabbitmq producer initialized", "exchange", cfg.Exchange, "exchange_type", cfg.ExchangeType)
	return p, nil
}

// Publish sends message to the exchange. The topic is used as routing key,
// falling back to the configured one.
func (p *Producer) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("rabbitmq: %w", eventbus.ErrProducerClosed)
	}
	if message == nil {
		return fmt.Errorf("message is required")
	}

	routingKey := topic
	if routingKey == "" {
		routingKey = p.config.RoutingKey
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()

	publishing := amqp.Publishing{
		MessageId:    message.ID,
		ContentType:  message.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         message.Value,
		Timestamp:    message.Timestamp,
		Headers:      toAMQPHeaders(message.Headers),
	}

	if err := p.pubCh.PublishWithContext(ctx, p.config.Exchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish rabbitmq message: %w", err)
	}
	p.logger.Debug("message published", "routing_key", routingKey, "message_id", message.ID)
	return nil
}

// HealthCheck verifies the connection is open and can still create channels.
func (p *Producer) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	conn := p.conn
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("rabbitmq: %w", eventbus.ErrProducerClosed)
	}
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}

	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq health check failed: %w", err)
	}
	_ = ch.Close()
	if err := hcCtx.Err(); err != nil {
		return fmt.Errorf("rabbitmq health check timeout: %w", err)
	}
	return nil
}

// Close closes the publish channel and the connection.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.pubCh != nil {
		if err := p.pubCh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publish channel: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

func toAMQPHeaders(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	t := amqp.Table{}
	for k, v := range headers {
		t[k] = v
	}
	return t
}

package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

// writer is the subset of *kafka.Writer used by the producer.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements eventbus.Producer for Apache Kafka.
type Producer struct {
	writer writer
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
}

// Config holds the configuration for the Kafka producer.
type Config struct {
	// Brokers is the list of Kafka broker addresses (e.g., ["localhost:9092"])
	Brokers []string

	// Topic is used when Publish is called with an empty topic.
	Topic string

	// OperationTimeout bounds each publish.
	OperationTimeout time.Duration

	// MaxAttempts is the number of write attempts made by the kafka writer.
	MaxAttempts int
}

// NewProducer creates a Kafka producer. No connection is opened until the
// first publish.
func NewProducer(cfg Config, log logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.OperationTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	log.Info("kafka producer initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"operation_timeout", cfg.OperationTimeout,
	)

	return newProducer(w, cfg, log), nil
}

func newProducer(w writer, cfg Config, log logger.Logger) *Producer {
	return &Producer{writer: w, logger: log, config: cfg}
}

// Publish writes message to topic. Messages with the same key land on the
// same partition so per-endpoint order is preserved.
func (p *Producer) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("kafka: %w", eventbus.ErrProducerClosed)
	}
	if message == nil {
		return fmt.Errorf("message is required")
	}
	if topic == "" {
		topic = p.config.Topic
	}
	if topic == "" {
		return fmt.Errorf("kafka topic is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(message.Key),
		Value:   message.Value,
		Headers: convertHeaders(message.Headers, message.ContentType),
		Time:    message.Timestamp,
	})
	if err != nil {
		p.logger.Error("failed to publish message",
			"topic", topic,
			"message_id", message.ID,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}

	p.logger.Debug("message published",
		"topic", topic,
		"message_id", message.ID,
		"key", message.Key,
	)
	return nil
}

// HealthCheck dials the first broker and fetches its metadata.
func (p *Producer) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("kafka: %w", eventbus.ErrProducerClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to fetch broker metadata: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	p.logger.Info("kafka producer closed")
	return nil
}

func convertHeaders(headers map[string]string, contentType string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	if contentType != "" {
		out = append(out, kafka.Header{Key: "content-type", Value: []byte(contentType)})
	}
	return out
}

// Package eventbus publishes queued mutations to message brokers.
package eventbus

import (
	"context"
	"errors"
	"time"
)

// ErrProducerClosed is returned by producers after Close.
var ErrProducerClosed = errors.New("producer is closed")

// Producer publishes messages to a broker topic.
type Producer interface {
	// Publish sends a single message to topic. An empty topic selects the
	// producer's configured default destination.
	Publish(ctx context.Context, topic string, message *Message) error

	// HealthCheck verifies connectivity to the broker.
	HealthCheck(ctx context.Context) error

	// Close releases broker connections. It is idempotent.
	Close() error
}

// Message is a broker message built from a queued mutation.
type Message struct {
	// ID is a unique identifier for the message.
	ID string

	// Key is used for partitioning in systems like Kafka.
	Key string

	// Value is the serialized message payload.
	Value []byte

	// Headers contains arbitrary key-value metadata for the message.
	Headers map[string]string

	// ContentType indicates the serialization format, e.g. "application/json".
	ContentType string

	// Timestamp is when the mutation was queued.
	Timestamp time.Time
}

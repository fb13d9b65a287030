// Package broker replays queued mutations by publishing them to a message broker.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/observability/tracing"
)

// Message headers set on every published mutation.
const (
	HeaderType      = "x-mutation-type"
	HeaderEndpoint  = "x-mutation-endpoint"
	HeaderRetries   = "x-mutation-retries"
	HeaderTimestamp = "x-mutation-timestamp"

	contentTypeJSON = "application/json"
)

// Envelope is the message body published for a mutation.
type Envelope struct {
	ID        string               `json:"id"`
	Type      mutation.RequestType `json:"type"`
	Endpoint  string               `json:"endpoint"`
	Data      json.RawMessage      `json:"data,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
	Timestamp int64                `json:"timestamp"`
	Retries   int                  `json:"retries"`
}

// Config configures a Processor.
type Config struct {
	// Topic is the destination. Empty uses the producer's default.
	Topic string
	// System names the broker in spans, e.g. "kafka".
	System string
}

// Processor publishes each mutation as one broker message keyed by endpoint.
type Processor struct {
	producer eventbus.Producer
	topic    string
	system   string
	logger   logger.Logger
}

// New builds a Processor on producer.
func New(producer eventbus.Producer, cfg Config, log logger.Logger) (*Processor, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	system := strings.TrimSpace(cfg.System)
	if system == "" {
		system = "eventbus"
	}
	return &Processor{
		producer: producer,
		topic:    strings.TrimSpace(cfg.Topic),
		system:   system,
		logger:   log.With("component", "broker_processor"),
	}, nil
}

// Process implements queue.Processor.
func (p *Processor) Process(ctx context.Context, req mutation.QueuedRequest) error {
	msg, err := NewMessage(req)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartPublishSpan(ctx, p.system, p.topic)
	defer span.End()

	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("publish mutation %s: %w", req.ID, err)
	}
	tracing.RecordSuccess(span)
	p.logger.WithContext(ctx).Debug("mutation published", "topic", p.topic, "endpoint", req.Endpoint)
	return nil
}

// NewMessage converts a queued request into a broker message.
func NewMessage(req mutation.QueuedRequest) (*eventbus.Message, error) {
	body, err := json.Marshal(Envelope{
		ID:        req.ID,
		Type:      req.Type,
		Endpoint:  req.Endpoint,
		Data:      req.Data,
		Metadata:  req.Metadata,
		Timestamp: req.Timestamp.UnixMilli(),
		Retries:   req.Retries,
	})
	if err != nil {
		return nil, fmt.Errorf("encode mutation %s: %w", req.ID, err)
	}

	return &eventbus.Message{
		ID:    req.ID,
		Key:   req.Endpoint,
		Value: body,
		Headers: map[string]string{
			HeaderType:      string(req.Type),
			HeaderEndpoint:  req.Endpoint,
			HeaderRetries:   strconv.Itoa(req.Retries),
			HeaderTimestamp: req.Timestamp.UTC().Format(time.RFC3339Nano),
		},
		ContentType: contentTypeJSON,
		Timestamp:   req.Timestamp,
	}, nil
}

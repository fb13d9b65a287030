// Package tracing provides OpenTelemetry tracing for queue deliveries, store access and broker publishes.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

const (
	// SpanOperationDeliver is one processor invocation for a queued mutation.
	SpanOperationDeliver SpanOperation = "queue.deliver"
	// SpanOperationDrain is a whole drain pass.
	SpanOperationDrain SpanOperation = "queue.drain"

	// SpanOperationStoreGet reads one persisted collection.
	SpanOperationStoreGet SpanOperation = "store.get"
	// SpanOperationStoreSet writes one persisted collection.
	SpanOperationStoreSet SpanOperation = "store.set"

	// SpanOperationPublish publishes a mutation to a broker.
	SpanOperationPublish SpanOperation = "messaging.publish"
)

// StartDeliverySpan creates a consumer span around a single delivery attempt.
func StartDeliverySpan(ctx context.Context, operation SpanOperation, opts ...DeliverySpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("offlinequeue")

	spanOpts := &deliverySpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("queue.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("QUEUE %s", operation)
	if spanOpts.endpoint != "" {
		spanName = fmt.Sprintf("QUEUE %s %s", operation, spanOpts.endpoint)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DeliverySpanOption configures a delivery span.
type DeliverySpanOption func(*deliverySpanOptions)

type deliverySpanOptions struct {
	endpoint   string
	attributes []attribute.KeyValue
}

// WithEndpoint sets the logical endpoint of the mutation.
func WithEndpoint(endpoint string) DeliverySpanOption {
	return func(opts *deliverySpanOptions) {
		opts.endpoint = endpoint
		opts.attributes = append(opts.attributes, attribute.String("queue.endpoint", endpoint))
	}
}

// WithRequestID sets the queued request id.
func WithRequestID(id string) DeliverySpanOption {
	return func(opts *deliverySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("queue.request_id", id))
	}
}

// WithRequestType sets the mutation kind (CREATE, UPDATE, DELETE).
func WithRequestType(kind string) DeliverySpanOption {
	return func(opts *deliverySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("queue.request_type", kind))
	}
}

// WithAttempt sets the 1-based attempt number.
func WithAttempt(attempt int) DeliverySpanOption {
	return func(opts *deliverySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("queue.attempt", attempt))
	}
}

// WithPending sets the queue length at the start of a drain pass.
func WithPending(pending int) DeliverySpanOption {
	return func(opts *deliverySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("queue.pending", pending))
	}
}

// StartStoreSpan creates a client span for a key-value store call.
func StartStoreSpan(ctx context.Context, operation SpanOperation, opts ...StoreSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("store")

	spanOpts := &storeSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("store.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("STORE %s", operation)
	if spanOpts.key != "" {
		spanName = fmt.Sprintf("STORE %s %s", operation, spanOpts.key)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// StoreSpanOption configures a store span.
type StoreSpanOption func(*storeSpanOptions)

type storeSpanOptions struct {
	key        string
	attributes []attribute.KeyValue
}

// WithStoreKey sets the persisted key.
func WithStoreKey(key string) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.key = key
		opts.attributes = append(opts.attributes, attribute.String("store.key", key))
	}
}

// WithStoreVersion sets the write version of a save.
func WithStoreVersion(version uint64) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int64("store.version", int64(version)))
	}
}

// WithPayloadSize sets the encoded payload size in bytes.
func WithPayloadSize(size int) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("store.payload_size_bytes", size))
	}
}

// StartPublishSpan creates a producer span for a broker publish.
func StartPublishSpan(ctx context.Context, system, destination string) (context.Context, trace.Span) {
	tracer := otel.Tracer("messaging")

	spanName := fmt.Sprintf("MSG %s", SpanOperationPublish)
	if destination != "" {
		spanName = fmt.Sprintf("MSG %s %s", SpanOperationPublish, destination)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(
		attribute.String("messaging.operation", string(SpanOperationPublish)),
		attribute.String("messaging.system", system),
		attribute.String("messaging.destination", destination),
	)
	return ctx, span
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

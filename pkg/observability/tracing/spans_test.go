package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(spanRecorder),
	)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	return spanRecorder
}

func attributeMap(span sdktrace.ReadOnlySpan) map[string]any {
	out := make(map[string]any)
	for _, attr := range span.Attributes() {
		out[string(attr.Key)] = attr.Value.AsInterface()
	}
	return out
}

func TestStartDeliverySpan(t *testing.T) {
	recorder := setupTestTracer(t)

	tests := []struct {
		name          string
		opts          []DeliverySpanOption
		expectedName  string
		expectedAttrs map[string]any
	}{
		{
			name:         "without options",
			expectedName: "QUEUE queue.deliver",
			expectedAttrs: map[string]any{
				"queue.operation": "queue.deliver",
			},
		},
		{
			name: "with all options",
			opts: []DeliverySpanOption{
				WithEndpoint("/transactions"),
				WithRequestID("req-1"),
				WithRequestType("CREATE"),
				WithAttempt(3),
			},
			expectedName: "QUEUE queue.deliver /transactions",
			expectedAttrs: map[string]any{
				"queue.operation":    "queue.deliver",
				"queue.endpoint":     "/transactions",
				"queue.request_id":   "req-1",
				"queue.request_type": "CREATE",
				"queue.attempt":      int64(3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder.Reset()

			_, span := StartDeliverySpan(context.Background(), SpanOperationDeliver, tt.opts...)
			span.End()

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if spans[0].Name() != tt.expectedName {
				t.Errorf("expected span name %q, got %q", tt.expectedName, spans[0].Name())
			}
			if spans[0].SpanKind() != trace.SpanKindConsumer {
				t.Errorf("expected consumer span, got %v", spans[0].SpanKind())
			}
			attrs := attributeMap(spans[0])
			for key, want := range tt.expectedAttrs {
				if got, ok := attrs[key]; !ok || got != want {
					t.Errorf("expected attribute %s=%v, got %v", key, want, got)
				}
			}
		})
	}
}

func TestStartStoreSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartStoreSpan(context.Background(), SpanOperationStoreSet,
		WithStoreKey("offline_queue:queue"),
		WithStoreVersion(7),
		WithPayloadSize(128),
	)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "STORE store.set offline_queue:queue" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	attrs := attributeMap(spans[0])
	if attrs["store.version"] != int64(7) || attrs["store.payload_size_bytes"] != int64(128) {
		t.Errorf("unexpected attributes %v", attrs)
	}
}

func TestStartPublishSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartPublishSpan(context.Background(), "kafka", "mutations")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "MSG messaging.publish mutations" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].SpanKind() != trace.SpanKindProducer {
		t.Errorf("expected producer span, got %v", spans[0].SpanKind())
	}
	if attributeMap(spans[0])["messaging.system"] != "kafka" {
		t.Errorf("expected messaging.system attribute")
	}
}

func TestRecordError(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartDeliverySpan(context.Background(), SpanOperationDeliver)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if spans[0].Status().Description != "boom" {
		t.Errorf("expected description boom, got %q", spans[0].Status().Description)
	}
	if len(spans[0].Events()) != 1 {
		t.Errorf("expected one error event, got %d", len(spans[0].Events()))
	}
}

func TestRecordError_NilIsNoop(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartDeliverySpan(context.Background(), SpanOperationDeliver)
	RecordError(span, nil)
	span.End()

	if code := recorder.Ended()[0].Status().Code; code != codes.Unset {
		t.Errorf("expected unset status, got %v", code)
	}
}

func TestRecordSuccess(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartDeliverySpan(context.Background(), SpanOperationDeliver)
	RecordSuccess(span)
	span.End()

	if code := recorder.Ended()[0].Status().Code; code != codes.Ok {
		t.Errorf("expected ok status, got %v", code)
	}
}

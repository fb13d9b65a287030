package tracing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	provider, err := NewTracerProvider(context.Background(), TracerConfig{ServiceName: "offlinequeue"})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got: %v", err)
	}
	if provider.Enabled() {
		t.Fatal("expected provider to report disabled")
	}

	_, span := provider.Tracer("test").Start(context.Background(), "test-span")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.ForceFlush(ctx); err != nil {
		t.Errorf("expected no error on force flush, got: %v", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("expected no error on shutdown, got: %v", err)
	}
}

func TestTracerConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      TracerConfig
		expectedErr string
	}{
		{
			name:        "missing service name",
			config:      TracerConfig{Enabled: true, Endpoint: "localhost:4317"},
			expectedErr: "service name is required",
		},
		{
			name:        "missing endpoint",
			config:      TracerConfig{Enabled: true, ServiceName: "offlinequeue"},
			expectedErr: "OTLP endpoint is required",
		},
		{
			name:        "negative sample rate",
			config:      TracerConfig{Enabled: true, ServiceName: "offlinequeue", Endpoint: "localhost:4317", SampleRate: -0.1},
			expectedErr: "sample rate must be between 0 and 1",
		},
		{
			name:        "sample rate too high",
			config:      TracerConfig{Enabled: true, ServiceName: "offlinequeue", Endpoint: "localhost:4317", SampleRate: 1.5},
			expectedErr: "sample rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTracerProvider(context.Background(), tt.config)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

func TestTracerConfig_DisabledSkipsValidation(t *testing.T) {
	for _, rate := range []float64{-1, 0, 0.5, 1, 2} {
		t.Run(fmt.Sprintf("rate_%v", rate), func(t *testing.T) {
			if err := (TracerConfig{SampleRate: rate}).Validate(); err != nil {
				t.Errorf("expected disabled config to validate, got %v", err)
			}
		})
	}
}

func TestTracerConfig_Sampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("rate_%v", tt.rate), func(t *testing.T) {
			desc := (TracerConfig{SampleRate: tt.rate}).sampler().Description()
			if !strings.Contains(desc, "ParentBased{root:"+tt.want) {
				t.Fatalf("unexpected sampler %s", desc)
			}
		})
	}
}

package config

import (
	"strings"
	"testing"
	"time"
)

func TestRedacted_MasksURLPasswordsWithoutSecretsFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Type = StoreTypePostgres
	cfg.Store.URL = "postgres://queue:s3cret@db:5432/queue?sslmode=disable"
	cfg.Sweep.LockURL = "redis://:lockpass@cache:6379/0"

	out := cfg.Redacted(nil)
	for _, leaked := range []string{"s3cret", "lockpass"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("redacted output leaks %q:\n%s", leaked, out)
		}
	}
	if !strings.Contains(out, "url: postgres://queue:***@db:5432/queue?sslmode=disable") {
		t.Fatalf("expected masked store url, got:\n%s", out)
	}
	if !strings.Contains(cfg.String(), "s3cret") {
		t.Fatal("String must print the raw configuration")
	}
}

func TestString_RendersProcessorsAsNestedBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processors = []ProcessorConfig{{
		Endpoint: "/todos",
		Kind:     ProcessorKindHTTP,
		Timeout:  5 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxFailures: 3,
		},
	}}

	out := cfg.String()
	for _, want := range []string{
		"processors:\n  - endpoint: /todos\n    kind: http\n",
		"    timeout: 5s\n    circuit_breaker:\n      enabled: true\n      max_failures: 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRedacted_MasksSecretProcessorFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processors = []ProcessorConfig{{Endpoint: "/todos", Kind: ProcessorKindBroker, Topic: "private-topic"}}
	secrets := &Config{Processors: []ProcessorConfig{{Topic: "private-topic"}}}

	out := cfg.Redacted(secrets)
	if strings.Contains(out, "private-topic") || !strings.Contains(out, "topic: ***") {
		t.Fatalf("expected masked topic, got:\n%s", out)
	}
	if !strings.Contains(out, "endpoint: /todos") {
		t.Fatalf("non-secret fields must stay visible:\n%s", out)
	}
}

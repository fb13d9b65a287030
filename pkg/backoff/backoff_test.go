package backoff

import (
	"testing"
	"time"
)

func TestDefaultPolicy_Sequence(t *testing.T) {
	policy := Default()
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for retry, expected := range want {
		if got := policy.Delay(retry); got != expected {
			t.Fatalf("Delay(%d) = %v, want %v", retry, got, expected)
		}
	}
}

func TestPolicy_NegativeRetryCount(t *testing.T) {
	if got := Default().Delay(-3); got != DefaultBase {
		t.Fatalf("expected base delay for negative count, got %v", got)
	}
}

func TestPolicy_ZeroValueUsesDefaults(t *testing.T) {
	var policy Policy
	if got := policy.Delay(1); got != 2*time.Second {
		t.Fatalf("expected 2s from zero-value policy, got %v", got)
	}
}

func TestPolicy_LargeRetryCountDoesNotOverflow(t *testing.T) {
	policy := Policy{Base: time.Millisecond, Ceiling: time.Hour}
	if got := policy.Delay(1 << 20); got != time.Hour {
		t.Fatalf("expected ceiling for huge retry count, got %v", got)
	}
}

func TestPolicy_CeilingBelowBase(t *testing.T) {
	policy := Policy{Base: 5 * time.Second, Ceiling: time.Second}
	if got := policy.Delay(3); got != 5*time.Second {
		t.Fatalf("expected ceiling raised to base, got %v", got)
	}
}

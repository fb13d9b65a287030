package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/offlinequeue/pkg/health"
)

type unhealthyLockProvider struct{ scriptedLockProvider }

func (p *unhealthyLockProvider) HealthCheck(context.Context) error { return errors.New("unreachable") }

func TestNewLockProviderHealthChecker(t *testing.T) {
	checker := NewLockProviderHealthChecker("", newScriptedLockProvider(nil), time.Second)
	if checker.Name() != "scheduler-lock" {
		t.Fatalf("unexpected checker name: %s", checker.Name())
	}
	if result := checker.Check(context.Background()); result.Status != health.StatusHealthy {
		t.Fatalf("expected healthy result, got %s", result.Status)
	}

	down := NewLockProviderHealthChecker("sweep-lock", &unhealthyLockProvider{}, time.Second)
	if result := down.Check(context.Background()); result.Status != health.StatusUnhealthy {
		t.Fatalf("expected unhealthy result, got %s", result.Status)
	}
}

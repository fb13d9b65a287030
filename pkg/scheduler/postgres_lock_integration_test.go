package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/offlinequeue/pkg/testutil"
)

func TestPostgresLockProvider_Integration(t *testing.T) {
	dsn := testutil.StartPostgres(t)
	ctx := context.Background()

	// Given two instances sharing one lock table
	first, err := NewPostgresLockProvider(PostgresLockProviderConfig{URL: dsn}, nil)
	if err != nil {
		t.Fatalf("first provider: %v", err)
	}
	defer first.Close()
	second, err := NewPostgresLockProvider(PostgresLockProviderConfig{URL: dsn}, nil)
	if err != nil {
		t.Fatalf("second provider: %v", err)
	}
	defer second.Close()

	// When both try to take the same slot
	lease, acquired, err := first.Acquire(ctx, "drain-sweep:1000", 200*time.Millisecond)
	if err != nil || !acquired {
		t.Fatalf("first acquire: acquired=%v err=%v", acquired, err)
	}
	if _, acquired, err := second.Acquire(ctx, "drain-sweep:1000", time.Second); err != nil || acquired {
		t.Fatalf("second acquire should lose: acquired=%v err=%v", acquired, err)
	}

	// Then the lease expires and the other instance takes it over
	time.Sleep(300 * time.Millisecond)
	if err := first.Renew(ctx, lease, time.Second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict renewing an expired lease, got %v", err)
	}
	taken, acquired, err := second.Acquire(ctx, "drain-sweep:1000", time.Second)
	if err != nil || !acquired {
		t.Fatalf("takeover: acquired=%v err=%v", acquired, err)
	}
	if err := first.Release(ctx, lease); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for stale token, got %v", err)
	}
	if err := second.Release(ctx, taken); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.HealthCheck(ctx); err != nil {
		t.Fatalf("health check: %v", err)
	}
}

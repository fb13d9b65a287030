// Package scheduler runs periodic tasks, such as drain sweeps, with optional
// leases so that instances sharing a store do not sweep the same slot twice.
package scheduler

import (
	"context"
	"time"
)

// LockLease identifies one held lease.
type LockLease struct {
	Key      string
	Token    string
	ExpireAt time.Time
}

// LockProvider hands out expiring leases keyed by string.
type LockProvider interface {
	// Acquire reports acquired=false with a nil error when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*LockLease, bool, error)
	// Renew fails with ErrConflict once the lease is no longer held.
	Renew(ctx context.Context, lease *LockLease, ttl time.Duration) error
	Release(ctx context.Context, lease *LockLease) error
	HealthCheck(ctx context.Context) error
	Close() error
}

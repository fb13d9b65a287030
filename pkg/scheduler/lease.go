package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// newLease validates an Acquire request and mints the lease a provider will
// try to store.
func newLease(key string, ttl time.Duration) (*LockLease, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, schedulerError(ErrInvalidArgument, "lock key is required")
	}
	if ttl <= 0 {
		return nil, schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}
	return &LockLease{
		Key:      key,
		Token:    uuid.NewString(),
		ExpireAt: time.Now().UTC().Add(ttl),
	}, nil
}

// heldLease validates a lease passed back to Renew or Release.
func heldLease(lease *LockLease) (key, token string, err error) {
	if lease == nil {
		return "", "", schedulerError(ErrInvalidArgument, "lease is required")
	}
	key, token = strings.TrimSpace(lease.Key), strings.TrimSpace(lease.Token)
	if key == "" || token == "" {
		return "", "", schedulerError(ErrInvalidArgument, "lease key and token are required")
	}
	return key, token, nil
}

func lostLease(op string) error {
	return schedulerError(ErrConflict, "lease no longer held, "+op+" rejected")
}

// Package store defines the durable key-value contract the offline queue
// persists through, and selects an implementation from configuration.
package store

import "context"

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// KV is a durable byte store keyed by string.
//
// Get reports found=false with a nil error when the key was never written.
// Set overwrites the previous value atomically from the reader's point of view.
type KV interface {
	Adapter
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

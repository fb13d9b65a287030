// Package processor provides decorators for queue processors and hosts the
// concrete HTTP and broker processors in its subpackages.
package processor

import (
	"context"
	"time"

	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/queue"
	"github.com/nimburion/offlinequeue/pkg/resilience"
)

// WithTimeout bounds every call to p. A non-positive d returns p unchanged.
func WithTimeout(p queue.Processor, d time.Duration) queue.Processor {
	if d <= 0 {
		return p
	}
	return queue.ProcessorFunc(func(ctx context.Context, req mutation.QueuedRequest) error {
		return resilience.WithTimeout(ctx, d, func(ctx context.Context) error {
			return p.Process(ctx, req)
		})
	})
}

// WithCircuitBreaker routes calls to p through cb. While the breaker is open
// calls fail fast with resilience.ErrCircuitBreakerOpen, which the engine
// counts as a failed attempt like any other error.
func WithCircuitBreaker(p queue.Processor, cb *resilience.CircuitBreaker) queue.Processor {
	if cb == nil {
		return p
	}
	return queue.ProcessorFunc(func(ctx context.Context, req mutation.QueuedRequest) error {
		return cb.Execute(func() error {
			return p.Process(ctx, req)
		})
	})
}

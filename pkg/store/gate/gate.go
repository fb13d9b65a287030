// Package gate guards adapter operations: it rejects calls after Close and
// bounds each call with the adapter's operation timeout.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Gate is safe for concurrent use. The zero value is open with no timeout.
type Gate struct {
	name    string
	timeout time.Duration
	closed  atomic.Bool
}

// New returns an open gate. name prefixes the closed error.
func New(name string, timeout time.Duration) *Gate {
	return &Gate{name: name, timeout: timeout}
}

// Enter fails once the gate is shut. Otherwise it derives a context bounded
// by the operation timeout, unless ctx already carries a deadline.
func (g *Gate) Enter(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if g.closed.Load() {
		return nil, nil, fmt.Errorf("%s adapter is closed", g.name)
	}
	ctx, cancel := Bound(ctx, g.timeout)
	return ctx, cancel, nil
}

// Shut closes the gate and reports whether this call did so.
func (g *Gate) Shut() bool {
	return g.closed.CompareAndSwap(false, true)
}

// Bound applies timeout to ctx unless it is zero or ctx has a deadline.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

package health

import (
	"context"
	"time"

	"github.com/nimburion/offlinequeue/pkg/reachability"
)

const defaultCheckTimeout = 5 * time.Second

// Checkable is anything with a HealthCheck, such as a store, lock provider
// or broker producer.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// ProbeFunc reports a status with an optional message and error.
type ProbeFunc func(ctx context.Context) (Status, string, error)

// CustomChecker is a named ProbeFunc that records timing around each probe.
type CustomChecker struct {
	name    string
	probe   ProbeFunc
	timeout time.Duration
}

// NewCustomChecker runs probe without a deadline of its own.
func NewCustomChecker(name string, probe ProbeFunc) *CustomChecker {
	return &CustomChecker{name: name, probe: probe}
}

// NewAdapterChecker is healthy while adapter.HealthCheck succeeds within
// timeout, five seconds when zero, and unhealthy otherwise.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *CustomChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	probe := func(ctx context.Context) (Status, string, error) {
		if err := adapter.HealthCheck(ctx); err != nil {
			return StatusUnhealthy, "", err
		}
		return StatusHealthy, "OK", nil
	}
	return &CustomChecker{name: name, probe: probe, timeout: timeout}
}

// NewConnectivityChecker is degraded, never unhealthy, while the observer
// reports offline: being offline is a normal state for the queue.
func NewConnectivityChecker(name string, observer reachability.Observer) *CustomChecker {
	return NewCustomChecker(name, func(ctx context.Context) (Status, string, error) {
		state, err := observer.Current(ctx)
		switch {
		case err != nil:
			return StatusDegraded, "connectivity unknown", err
		case !state.Online():
			return StatusDegraded, "offline", nil
		}
		return StatusHealthy, "online", nil
	})
}

func (c *CustomChecker) Name() string {
	return c.name
}

func (c *CustomChecker) Check(ctx context.Context) CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	status, msg, err := c.probe(ctx)
	res := CheckResult{
		Name:      c.name,
		Status:    status,
		Message:   msg,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

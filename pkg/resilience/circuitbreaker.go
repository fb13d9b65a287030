// Package resilience guards processor calls with timeouts and circuit breaking.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed allows all requests through
	StateClosed State = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen lets a probe request through
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitBreakerOpen is returned when the circuit breaker is open
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// Option customizes a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithFailureFilter decides which errors count against the breaker.
// Errors for which counts returns false pass through without changing state.
func WithFailureFilter(counts func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if counts != nil {
			cb.counts = counts
		}
	}
}

// WithStateListener is called after every state transition.
func WithStateListener(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// CircuitBreaker stops calling a failing target for a cool-down period.
type CircuitBreaker struct {
	maxFailures int
	timeout     time.Duration
	now         func() time.Time
	counts      func(error) bool
	onChange    func(from, to State)

	mu           sync.Mutex
	state        State
	failures     int
	lastFailTime time.Time
}

// NewCircuitBreaker opens after maxFailures consecutive failures and probes again after timeout.
func NewCircuitBreaker(maxFailures int, timeout time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		counts:      func(error) bool { return true },
		state:       StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}

	err := fn()
	if err != nil && cb.counts(err) {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return true
	}
	if cb.now().Sub(cb.lastFailTime) < cb.timeout {
		cb.mu.Unlock()
		return false
	}
	notify := cb.transitionLocked(StateHalfOpen)
	cb.mu.Unlock()
	notify()
	return true
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	cb.lastFailTime = cb.now()
	cb.failures++
	notify := func() {}
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		notify = cb.transitionLocked(StateOpen)
	}
	cb.mu.Unlock()
	notify()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	cb.failures = 0
	notify := cb.transitionLocked(StateClosed)
	cb.mu.Unlock()
	notify()
}

func (cb *CircuitBreaker) transitionLocked(to State) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	if to == StateOpen || to == StateClosed {
		cb.failures = 0
	}
	if to == StateOpen {
		cb.lastFailTime = cb.now()
	}
	if cb.onChange == nil {
		return func() {}
	}
	listener := cb.onChange
	return func() { listener(from, to) }
}

// State returns the current state. An open breaker whose cool-down has
// elapsed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count while closed.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	notify := cb.transitionLocked(StateClosed)
	cb.mu.Unlock()
	notify()
}

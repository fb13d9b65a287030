package resilience

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout.
var ErrTimeout = errors.New("operation timed out")

// PanicError carries a panic recovered from a guarded function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// WithTimeout runs fn with a deadline of timeout and returns ErrTimeout if it is exceeded.
// A non-positive timeout runs fn without a deadline. A panic inside fn is
// returned as *PanicError.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return Guard(ctx, fn)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Guard(timeoutCtx, fn)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return timeoutCtx.Err()
	}
}

// Guard runs fn and converts a panic into *PanicError.
func Guard(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

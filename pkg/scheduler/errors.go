package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies task and provider configuration failures.
	ErrValidation = errors.New("scheduler validation error")
	// ErrConflict classifies lease conflicts, e.g. renewing a lease another instance took over.
	ErrConflict = errors.New("scheduler conflict")
	// ErrRetryable classifies transient lock backend failures.
	ErrRetryable = errors.New("scheduler retryable error")
	// ErrInvalidArgument classifies malformed keys, leases and ttls.
	ErrInvalidArgument = errors.New("scheduler invalid argument")
)

func schedulerError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

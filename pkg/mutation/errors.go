package mutation

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies malformed caller input.
	ErrValidation = errors.New("mutation validation error")
	// ErrNoProcessor classifies a request whose endpoint has no registered processor.
	ErrNoProcessor = errors.New("no processor registered")
	// ErrNotInitialized classifies operations on an engine that was never initialized.
	ErrNotInitialized = errors.New("queue not initialized")
	// ErrClosed classifies operations on a closed engine.
	ErrClosed = errors.New("queue closed")
)

func mutationError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// NoProcessorError reports a missing processor for endpoint.
func NoProcessorError(endpoint string) error {
	return fmt.Errorf("%w for endpoint %q", ErrNoProcessor, endpoint)
}

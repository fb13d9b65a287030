package queue

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/nimburion/offlinequeue/pkg/mutation"
)

// Processor delivers one queued mutation to its remote target.
// A nil error means the server accepted the mutation.
type Processor interface {
	Process(ctx context.Context, req mutation.QueuedRequest) error
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx context.Context, req mutation.QueuedRequest) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, req mutation.QueuedRequest) error {
	return f(ctx, req)
}

// Registry maps endpoint strings to processors. Later registrations replace earlier ones.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register binds processor to endpoint, replacing any previous binding.
func (r *Registry) Register(endpoint string, processor Processor) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if processor == nil {
		return errors.New("processor is required")
	}

	r.mu.Lock()
	r.processors[endpoint] = processor
	r.mu.Unlock()
	return nil
}

// Unregister removes the binding for endpoint, if any.
func (r *Registry) Unregister(endpoint string) {
	r.mu.Lock()
	delete(r.processors, strings.TrimSpace(endpoint))
	r.mu.Unlock()
}

// Resolve returns the processor bound to endpoint.
func (r *Registry) Resolve(endpoint string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	processor, ok := r.processors[endpoint]
	return processor, ok
}

// Endpoints lists registered endpoints in lexical order.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	endpoints := make([]string, 0, len(r.processors))
	for endpoint := range r.processors {
		endpoints = append(endpoints, endpoint)
	}
	r.mu.RUnlock()

	sort.Strings(endpoints)
	return endpoints
}

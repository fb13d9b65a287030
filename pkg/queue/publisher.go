package queue

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

// Listener receives queue status snapshots.
type Listener func(mutation.QueueStatus)

type listenerEntry struct {
	id     uint64
	fn     Listener
	active bool
}

// Publisher fans status snapshots out to listeners in subscription order.
//
// Deliveries are serialized: one goroutine at a time runs the delivery loop and
// keeps going while changes arrive, so every listener observes statuses in the
// order they were taken. A Notify or Subscribe issued while a delivery is
// running (including one issued by a listener) never blocks on it.
type Publisher struct {
	status func() mutation.QueueStatus
	logger logger.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners []*listenerEntry
	pending   []*listenerEntry
	running   bool
	dirty     bool
}

// NewPublisher creates a publisher that reads snapshots from status.
func NewPublisher(status func() mutation.QueueStatus, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Publisher{status: status, logger: log}
}

// Subscribe registers fn and delivers the current status to it before returning.
// The returned func unsubscribes; calling it more than once is a no-op.
//
// While a delivery is running, including from inside a listener, the initial
// status is delivered on the caller's goroutine and the listener joins the
// next round, which carries a status at least as fresh.
func (p *Publisher) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	entry := &listenerEntry{fn: fn, active: true}

	p.mu.Lock()
	p.nextID++
	entry.id = p.nextID
	if !p.running {
		p.running = true
		p.listeners = append(p.listeners, entry)
		p.pending = append(p.pending, entry)
		p.mu.Unlock()
		p.deliver()
		return func() { p.unsubscribe(entry.id) }
	}
	p.mu.Unlock()

	p.invoke(entry, p.status())

	p.mu.Lock()
	p.listeners = append(p.listeners, entry)
	p.pending = append(p.pending, entry)
	if p.running {
		p.mu.Unlock()
	} else {
		p.running = true
		p.mu.Unlock()
		p.deliver()
	}
	return func() { p.unsubscribe(entry.id) }
}

// Notify publishes a fresh status to every listener.
func (p *Publisher) Notify() {
	p.mu.Lock()
	p.dirty = true
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()
	p.deliver()
}

// Len reports the number of registered listeners.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *Publisher) unsubscribe(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, entry := range p.listeners {
		if entry.id == id {
			entry.active = false
			p.listeners = append(p.listeners[:idx:idx], p.listeners[idx+1:]...)
			return
		}
	}
}

func (p *Publisher) deliver() {
	for {
		p.mu.Lock()
		var targets []*listenerEntry
		switch {
		case p.dirty:
			p.dirty = false
			targets = append(targets, p.listeners...)
			p.pending = nil
		case len(p.pending) > 0:
			targets = p.pending
			p.pending = nil
		default:
			p.running = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		status := p.status()
		for _, entry := range targets {
			if p.isActive(entry) {
				p.invoke(entry, status)
			}
		}
	}
}

func (p *Publisher) isActive(entry *listenerEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return entry.active
}

func (p *Publisher) invoke(entry *listenerEntry, status mutation.QueueStatus) {
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Error("status listener panicked",
				"listener_id", entry.id,
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
		}
	}()
	entry.fn(status)
}

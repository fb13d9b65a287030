package logger

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	defaultAsyncQueueSize = 1024
	defaultAsyncWorkers   = 1
)

// AsyncConfig configures WrapAsync.
type AsyncConfig struct {
	Enabled      bool
	QueueSize    int
	WorkerCount  int
	DropWhenFull bool
}

// pending is one entry waiting for a worker; emit is the bound level method
// of the logger that produced it.
type pending struct {
	emit func(msg string, args ...any)
	msg  string
	args []any
}

// dispatcher is shared by an AsyncLogger and every child derived from it.
type dispatcher struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan pending
	lossy   bool
	dropped atomic.Int64
	workers sync.WaitGroup
}

func (d *dispatcher) work() {
	defer d.workers.Done()
	for p := range d.queue {
		p.emit(p.msg, p.args...)
	}
}

// AsyncLogger hands entries to worker goroutines so that slow sinks do not
// stall a drain pass.
type AsyncLogger struct {
	base Logger
	d    *dispatcher
}

// WrapAsync returns base unchanged unless cfg.Enabled.
func WrapAsync(base Logger, cfg AsyncConfig) Logger {
	if !cfg.Enabled {
		return base
	}
	size, workers := cfg.QueueSize, cfg.WorkerCount
	if size <= 0 {
		size = defaultAsyncQueueSize
	}
	if workers <= 0 {
		workers = defaultAsyncWorkers
	}

	d := &dispatcher{queue: make(chan pending, size), lossy: cfg.DropWhenFull}
	d.workers.Add(workers)
	for range workers {
		go d.work()
	}
	return &AsyncLogger{base: base, d: d}
}

func (l *AsyncLogger) Debug(msg string, args ...any) { l.submit(l.base.Debug, msg, args) }
func (l *AsyncLogger) Info(msg string, args ...any)  { l.submit(l.base.Info, msg, args) }
func (l *AsyncLogger) Warn(msg string, args ...any)  { l.submit(l.base.Warn, msg, args) }
func (l *AsyncLogger) Error(msg string, args ...any) { l.submit(l.base.Error, msg, args) }

func (l *AsyncLogger) With(args ...any) Logger {
	return &AsyncLogger{base: l.base.With(args...), d: l.d}
}

func (l *AsyncLogger) WithContext(ctx context.Context) Logger {
	return &AsyncLogger{base: l.base.WithContext(ctx), d: l.d}
}

// Dropped counts entries discarded while the queue was full.
func (l *AsyncLogger) Dropped() int64 {
	return l.d.dropped.Load()
}

// Close flushes queued entries and stops the workers. Later entries are
// written synchronously.
func (l *AsyncLogger) Close() {
	l.d.mu.Lock()
	if l.d.closed {
		l.d.mu.Unlock()
		return
	}
	l.d.closed = true
	close(l.d.queue)
	l.d.mu.Unlock()
	l.d.workers.Wait()
}

func (l *AsyncLogger) submit(emit func(string, ...any), msg string, args []any) {
	l.d.mu.RLock()
	defer l.d.mu.RUnlock()
	if l.d.closed {
		emit(msg, args...)
		return
	}
	p := pending{emit: emit, msg: msg, args: args}
	if !l.d.lossy {
		l.d.queue <- p
		return
	}
	select {
	case l.d.queue <- p:
	default:
		l.d.dropped.Add(1)
	}
}

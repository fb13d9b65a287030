// Package queue is the offline mutation queue: it accepts mutations while the
// device is offline, persists them, and replays them in FIFO order through
// registered processors once connectivity returns.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/offlinequeue/pkg/backoff"
	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/reachability"
)

// Persistence stores the three queue collections. Loads never fail; saves
// report errors that the engine tolerates.
type Persistence interface {
	LoadQueue(ctx context.Context) []mutation.QueuedRequest
	LoadDeadLetter(ctx context.Context) []mutation.DeadLetterItem
	LoadSyncStatus(ctx context.Context) mutation.SyncStatus
	SaveQueue(ctx context.Context, version uint64, items []mutation.QueuedRequest) error
	SaveDeadLetter(ctx context.Context, version uint64, items []mutation.DeadLetterItem) error
	SaveSyncStatus(ctx context.Context, version uint64, status mutation.SyncStatus) error
}

// cancelGrace bounds how long Close waits for cancelled drains to return.
const cancelGrace = 2 * time.Second

// Options configures an Engine.
type Options struct {
	Persistence Persistence
	Observer    reachability.Observer
	// Registry defaults to an empty registry.
	Registry *Registry
	Backoff  backoff.Policy
	// MaxRetries is the failure count at which a mutation is dead-lettered.
	MaxRetries int
	// AttemptTimeout bounds a single processor call. Zero means unbounded.
	// When it fires the call is abandoned, not stopped: a processor that
	// ignores its context keeps running while the pass moves on, so two
	// deliveries can overlap. Prefer processors with their own timeouts.
	AttemptTimeout time.Duration
	// SkipInitialDrain disables the drain started by Initialize when the
	// restored queue is non-empty and the device is online.
	SkipInitialDrain bool
	Logger           logger.Logger

	// Clock and Sleep are replaceable for tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine owns the pending queue, the dead-letter queue and the sync timestamps.
type Engine struct {
	persistence    Persistence
	observer       reachability.Observer
	registry       *Registry
	publisher      *Publisher
	trigger        *ConnectivityTrigger
	policy         backoff.Policy
	maxRetries     int
	attemptTimeout time.Duration
	initialDrain   bool
	logger         logger.Logger
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error

	initMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	closed      bool
	processing  bool
	queue       []mutation.QueuedRequest
	deadLetter  []mutation.DeadLetterItem
	syncStatus  mutation.SyncStatus
	version     uint64
	lastStamp   time.Time

	background inflight
	bgCtx      context.Context
	bgCancel   context.CancelFunc
}

// NewEngine validates opts and builds an uninitialized engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Persistence == nil {
		return nil, errors.New("persistence is required")
	}
	if opts.Observer == nil {
		return nil, errors.New("connectivity observer is required")
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be positive, got %d", opts.MaxRetries)
	}
	if opts.AttemptTimeout < 0 {
		return nil, fmt.Errorf("attempt timeout must not be negative, got %s", opts.AttemptTimeout)
	}

	e := &Engine{
		persistence:    opts.Persistence,
		observer:       opts.Observer,
		registry:       opts.Registry,
		policy:         opts.Backoff,
		maxRetries:     opts.MaxRetries,
		attemptTimeout: opts.AttemptTimeout,
		initialDrain:   !opts.SkipInitialDrain,
		logger:         opts.Logger,
		now:            opts.Clock,
		sleep:          opts.Sleep,
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.maxRetries == 0 {
		e.maxRetries = mutation.MaxRetries
	}
	if e.logger == nil {
		e.logger = logger.NewNopLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	e.bgCtx, e.bgCancel = context.WithCancel(context.Background())
	e.publisher = NewPublisher(e.Status, e.logger)
	e.trigger = NewConnectivityTrigger(e.observer, e.startDrain, e.logger)
	return e, nil
}

// Registry exposes the processor registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// RegisterProcessor binds processor to endpoint.
func (e *Engine) RegisterProcessor(endpoint string, processor Processor) error {
	return e.registry.Register(endpoint, processor)
}

// UnregisterProcessor removes the processor bound to endpoint.
func (e *Engine) UnregisterProcessor(endpoint string) {
	e.registry.Unregister(endpoint)
}

// Initialize restores persisted state and starts listening for connectivity.
// Calling it again is a no-op. Storage failures are logged and the engine
// starts with whatever could be read.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return mutation.ErrClosed
	}
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	queue := e.persistence.LoadQueue(ctx)
	deadLetter := e.persistence.LoadDeadLetter(ctx)
	syncStatus := e.persistence.LoadSyncStatus(ctx)

	queue, duplicates := withoutDeadLettered(queue, deadLetter)
	for idx := range queue {
		if queue[idx].Retries >= e.maxRetries {
			queue[idx].Retries = e.maxRetries - 1
		}
	}

	e.mu.Lock()
	e.queue = queue
	e.deadLetter = deadLetter
	e.syncStatus = syncStatus
	for _, item := range queue {
		if item.Timestamp.After(e.lastStamp) {
			e.lastStamp = item.Timestamp
		}
	}
	e.initialized = true
	version := e.commitLocked()
	queueSnapshot := copyQueue(e.queue)
	e.mu.Unlock()

	if duplicates > 0 {
		e.logger.Warn("dropped queued mutations already present in dead-letter queue", "count", duplicates)
		_ = e.persistence.SaveQueue(ctx, version, queueSnapshot)
	}

	e.logger.Info("offline queue initialized",
		"pending", len(queue),
		"dead_letter", len(deadLetter),
	)

	e.trigger.Start()
	e.publisher.Notify()

	if e.initialDrain && len(queue) > 0 {
		e.kick()
	}
	return nil
}

// Add validates req, appends it to the queue and persists the queue. When the
// device is online a drain pass is started in the background.
func (e *Engine) Add(ctx context.Context, req mutation.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	if err := e.usableLocked(); err != nil {
		e.mu.Unlock()
		return "", err
	}
	item := mutation.NewQueuedRequest(req, e.nextStampLocked())
	e.queue = append(e.queue, item)
	version := e.commitLocked()
	snapshot := copyQueue(e.queue)
	e.mu.Unlock()

	_ = e.persistence.SaveQueue(ctx, version, snapshot)
	recordEnqueued(item.Endpoint, string(item.Type))
	e.logger.WithContext(logger.ContextWithRequestID(ctx, item.ID)).Debug("mutation queued",
		"endpoint", item.Endpoint,
		"type", string(item.Type),
	)

	e.publisher.Notify()
	e.kick()
	return item.ID, nil
}

// Remove deletes the pending request with id. It reports whether one was found.
func (e *Engine) Remove(ctx context.Context, id string) bool {
	e.mu.Lock()
	if e.usableLocked() != nil {
		e.mu.Unlock()
		return false
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.queue = removeAt(e.queue, idx)
	version := e.commitLocked()
	snapshot := copyQueue(e.queue)
	e.mu.Unlock()

	_ = e.persistence.SaveQueue(ctx, version, snapshot)
	e.publisher.Notify()
	return true
}

// Clear empties the pending queue.
func (e *Engine) Clear(ctx context.Context) {
	e.mu.Lock()
	if e.usableLocked() != nil {
		e.mu.Unlock()
		return
	}
	e.queue = nil
	version := e.commitLocked()
	e.mu.Unlock()

	_ = e.persistence.SaveQueue(ctx, version, nil)
	e.publisher.Notify()
}

// Status returns a snapshot of the queue state.
func (e *Engine) Status() mutation.QueueStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return mutation.QueueStatus{
		Pending:            len(e.queue),
		Processing:         e.processing,
		LastSyncAttempt:    mutation.CopyTime(e.syncStatus.LastSyncAttempt),
		LastSuccessfulSync: mutation.CopyTime(e.syncStatus.LastSuccessfulSync),
		DeadLetterCount:    len(e.deadLetter),
	}
}

// PendingRequests returns copies of the queued requests in FIFO order.
func (e *Engine) PendingRequests() []mutation.QueuedRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]mutation.QueuedRequest, len(e.queue))
	for idx, item := range e.queue {
		out[idx] = item.Clone()
	}
	return out
}

// QueueLength returns the number of pending requests.
func (e *Engine) QueueLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// DeadLetterItems returns copies of the dead-lettered items, oldest first.
func (e *Engine) DeadLetterItems() []mutation.DeadLetterItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]mutation.DeadLetterItem, len(e.deadLetter))
	for idx, item := range e.deadLetter {
		out[idx] = item.Clone()
	}
	return out
}

// RetryDeadLetterItem moves the dead-lettered request with id back to the end
// of the queue with a fresh retry budget. It reports whether one was found.
func (e *Engine) RetryDeadLetterItem(ctx context.Context, id string) bool {
	e.mu.Lock()
	if e.usableLocked() != nil {
		e.mu.Unlock()
		return false
	}
	idx := e.deadLetterIndexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	req := e.deadLetter[idx].Request
	req.Retries = 0
	req.Timestamp = e.nextStampLocked()
	e.deadLetter = removeDeadLetterAt(e.deadLetter, idx)
	e.queue = append(e.queue, req)
	version := e.commitLocked()
	queueSnapshot := copyQueue(e.queue)
	deadLetterSnapshot := copyDeadLetter(e.deadLetter)
	e.mu.Unlock()

	// Queue first: a crash between the writes leaves the item in both
	// collections, which Initialize resolves in favour of the dead-letter copy.
	_ = e.persistence.SaveQueue(ctx, version, queueSnapshot)
	_ = e.persistence.SaveDeadLetter(ctx, version, deadLetterSnapshot)

	e.logger.WithContext(logger.ContextWithRequestID(ctx, id)).Info("dead-lettered mutation requeued",
		"endpoint", req.Endpoint,
	)
	e.publisher.Notify()
	e.kick()
	return true
}

// RemoveDeadLetterItem discards the dead-lettered item with id.
func (e *Engine) RemoveDeadLetterItem(ctx context.Context, id string) bool {
	e.mu.Lock()
	if e.usableLocked() != nil {
		e.mu.Unlock()
		return false
	}
	idx := e.deadLetterIndexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.deadLetter = removeDeadLetterAt(e.deadLetter, idx)
	version := e.commitLocked()
	snapshot := copyDeadLetter(e.deadLetter)
	e.mu.Unlock()

	_ = e.persistence.SaveDeadLetter(ctx, version, snapshot)
	e.publisher.Notify()
	return true
}

// ClearDeadLetterQueue discards every dead-lettered item.
func (e *Engine) ClearDeadLetterQueue(ctx context.Context) {
	e.mu.Lock()
	if e.usableLocked() != nil {
		e.mu.Unlock()
		return
	}
	e.deadLetter = nil
	version := e.commitLocked()
	e.mu.Unlock()

	_ = e.persistence.SaveDeadLetter(ctx, version, nil)
	e.publisher.Notify()
}

// Subscribe registers listener for status changes. The current status is
// delivered before Subscribe returns, even when called from a listener.
func (e *Engine) Subscribe(listener Listener) (unsubscribe func()) {
	return e.publisher.Subscribe(listener)
}

// Wait blocks until every background drain started so far has finished.
func (e *Engine) Wait(ctx context.Context) error {
	return e.background.wait(ctx)
}

// HealthCheck reports whether the engine is accepting mutations.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usableLocked()
}

// Close stops the connectivity trigger and waits for background drains. If
// ctx expires first the drains are cancelled, given up to cancelGrace to
// persist their final state, and ctx's error is returned.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.trigger.Stop()
	err := e.background.wait(ctx)
	e.bgCancel()
	if err != nil {
		graceCtx, cancel := context.WithTimeout(context.Background(), cancelGrace)
		defer cancel()
		if waitErr := e.background.wait(graceCtx); waitErr != nil {
			e.logger.Warn("cancelled drain still running after close", "grace", cancelGrace)
		}
		return fmt.Errorf("waiting for background drain: %w", err)
	}
	e.logger.Info("offline queue closed")
	return nil
}

func (e *Engine) usableLocked() error {
	if e.closed {
		return mutation.ErrClosed
	}
	if !e.initialized {
		return mutation.ErrNotInitialized
	}
	return nil
}

// commitLocked assigns the write version for the state just produced.
func (e *Engine) commitLocked() uint64 {
	e.version++
	setDepth(len(e.queue), len(e.deadLetter))
	return e.version
}

// nextStampLocked returns now, clamped so queue timestamps never decrease.
func (e *Engine) nextStampLocked() time.Time {
	stamp := e.now()
	if stamp.Before(e.lastStamp) {
		stamp = e.lastStamp
	}
	e.lastStamp = stamp
	return stamp
}

func (e *Engine) indexLocked(id string) int {
	for idx, item := range e.queue {
		if item.ID == id {
			return idx
		}
	}
	return -1
}

func (e *Engine) deadLetterIndexLocked(id string) int {
	for idx, item := range e.deadLetter {
		if item.Request.ID == id {
			return idx
		}
	}
	return -1
}

// kick starts a background drain when the device is online.
func (e *Engine) kick() {
	e.spawnDrain(true)
}

// startDrain is the connectivity trigger callback; the observer already reported online.
func (e *Engine) startDrain() {
	e.spawnDrain(false)
}

func (e *Engine) spawnDrain(checkOnline bool) {
	e.mu.Lock()
	if e.usableLocked() != nil {
		e.mu.Unlock()
		return
	}
	e.background.add()
	e.mu.Unlock()

	go func() {
		defer e.background.done()
		if checkOnline && !e.online(e.bgCtx) {
			return
		}
		e.ProcessQueue(e.bgCtx)
	}()
}

func (e *Engine) online(ctx context.Context) bool {
	state, err := e.observer.Current(ctx)
	if err != nil {
		e.logger.Warn("connectivity query failed, assuming offline", "error", err)
		return false
	}
	return state.Online()
}

func withoutDeadLettered(queue []mutation.QueuedRequest, deadLetter []mutation.DeadLetterItem) ([]mutation.QueuedRequest, int) {
	if len(deadLetter) == 0 {
		return queue, 0
	}
	dead := make(map[string]struct{}, len(deadLetter))
	for _, item := range deadLetter {
		dead[item.Request.ID] = struct{}{}
	}
	kept := queue[:0]
	dropped := 0
	for _, item := range queue {
		if _, ok := dead[item.ID]; ok {
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	return kept, dropped
}

// copyQueue returns a new backing array; queued items are never mutated in
// place apart from Retries, which is a value field.
func copyQueue(items []mutation.QueuedRequest) []mutation.QueuedRequest {
	out := make([]mutation.QueuedRequest, len(items))
	copy(out, items)
	return out
}

func copyDeadLetter(items []mutation.DeadLetterItem) []mutation.DeadLetterItem {
	out := make([]mutation.DeadLetterItem, len(items))
	copy(out, items)
	return out
}

func removeAt(items []mutation.QueuedRequest, idx int) []mutation.QueuedRequest {
	return append(items[:idx:idx], items[idx+1:]...)
}

func removeDeadLetterAt(items []mutation.DeadLetterItem, idx int) []mutation.DeadLetterItem {
	return append(items[:idx:idx], items[idx+1:]...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// inflight tracks background goroutines. Unlike sync.WaitGroup it allows
// new work to start while a Wait is in progress.
type inflight struct {
	mu    sync.Mutex
	count int
	idle  chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	if f.count == 0 {
		f.idle = make(chan struct{})
	}
	f.count++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.count--
	if f.count == 0 {
		close(f.idle)
	}
	f.mu.Unlock()
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.count == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

const (
	DefaultRunTimeout = time.Minute
	DefaultLockTTL    = 30 * time.Second
)

// Config bounds each run and sets the lease ttl for tasks without one.
type Config struct {
	RunTimeout     time.Duration
	DefaultLockTTL time.Duration
}

// Runtime fires registered tasks on their slots until stopped. When a
// LockProvider is set, an instance runs a slot only if it wins the slot's
// lease; with none, every slot runs locally.
type Runtime struct {
	lock LockProvider
	log  logger.Logger
	cfg  Config
	now  func() time.Time

	mu    sync.Mutex
	tasks map[string]Task
	stop  context.CancelFunc
	done  chan struct{}
}

func NewRuntime(lock LockProvider, log logger.Logger, cfg Config) *Runtime {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.DefaultLockTTL <= 0 {
		cfg.DefaultLockTTL = DefaultLockTTL
	}
	return &Runtime{lock: lock, log: log, cfg: cfg, now: time.Now, tasks: map[string]Task{}}
}

// Register adds a task. Names must be unique.
func (r *Runtime) Register(task Task) error {
	task, err := task.compile()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tasks[task.Name]; dup {
		return schedulerError(ErrConflict, fmt.Sprintf("task %q is already registered", task.Name))
	}
	r.tasks[task.Name] = task
	return nil
}

// Start launches one loop per task and blocks until ctx is cancelled, then
// waits for running slots to finish.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.stop != nil:
		r.mu.Unlock()
		return schedulerError(ErrConflict, "scheduler already running")
	case len(r.tasks) == 0:
		r.mu.Unlock()
		return schedulerError(ErrValidation, "no scheduler tasks registered")
	}
	loopCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	r.stop, r.done = stop, done

	var g errgroup.Group
	for _, task := range r.tasks {
		g.Go(func() error {
			r.loop(loopCtx, task)
			return nil
		})
	}
	r.mu.Unlock()

	go func() {
		_ = g.Wait()
		close(done)
	}()

	<-loopCtx.Done()
	return r.Stop(context.WithoutCancel(ctx))
}

// Stop cancels the loops and waits, bounded by ctx, for in-flight runs.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}

	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) loop(ctx context.Context, task Task) {
	for {
		slot := task.nextSlot(r.now())
		if !sleepUntil(ctx, slot) {
			return
		}
		if err := r.runSlot(ctx, task, slot); err != nil {
			r.log.Error("scheduled task failed", "task", task.Name, "slot", slot, "error", err)
		}
	}
}

func sleepUntil(ctx context.Context, at time.Time) bool {
	timer := time.NewTimer(time.Until(at))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runSlot runs task for slot if this instance wins the slot's lease.
//
// A successful run keeps its lease until it expires so that late peers skip
// the slot. A failed run releases it, letting a peer retry the slot.
func (r *Runtime) runSlot(ctx context.Context, task Task, slot time.Time) error {
	ttl := cmp.Or(task.LockTTL, r.cfg.DefaultLockTTL)

	lease, won, err := r.claim(ctx, task.lockKey(slot), ttl)
	if err != nil {
		observeSlot(task.Name, outcomeLockError)
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !won {
		observeSlot(task.Name, outcomeSkipped)
		r.log.Debug("slot taken by another instance", "task", task.Name, "slot", slot)
		return nil
	}

	runErr := r.execute(ctx, task, lease, ttl)
	if runErr == nil {
		observeSlot(task.Name, outcomeSuccess)
		return nil
	}
	observeSlot(task.Name, outcomeError)
	if lease != nil {
		if err := r.lock.Release(context.WithoutCancel(ctx), lease); err != nil {
			return errors.Join(runErr, fmt.Errorf("release lock: %w", err))
		}
	}
	return runErr
}

func (r *Runtime) claim(ctx context.Context, key string, ttl time.Duration) (*LockLease, bool, error) {
	if r.lock == nil {
		return nil, true, nil
	}
	return r.lock.Acquire(ctx, key, ttl)
}

func (r *Runtime) execute(ctx context.Context, task Task, lease *LockLease, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()
	if lease != nil {
		defer r.renewWhileRunning(ctx, task.Name, lease, ttl)()
	}
	running := slotsRunning.WithLabelValues(taskLabel(task.Name))
	running.Inc()
	defer running.Dec()
	return task.Run(ctx)
}

// renewWhileRunning renews lease every ttl/2 until the returned func is
// called or the lease is lost.
func (r *Runtime) renewWhileRunning(ctx context.Context, task string, lease *LockLease, ttl time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		tick := time.NewTicker(ttl / 2)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
			err := r.lock.Renew(ctx, lease, ttl)
			observeRenewal(task, err)
			switch {
			case errors.Is(err, ErrConflict):
				r.log.Warn("lease lost while running", "task", task, "key", lease.Key)
				return
			case err != nil:
				r.log.Warn("lease renewal failed", "task", task, "error", err)
			}
		}
	}()
	return func() {
		cancel()
		<-exited
	}
}

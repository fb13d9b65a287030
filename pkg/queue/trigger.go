package queue

import (
	"sync"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/reachability"
)

// ConnectivityTrigger starts a drain whenever the observer reports the device online.
type ConnectivityTrigger struct {
	observer reachability.Observer
	drain    func()
	logger   logger.Logger

	mu          sync.Mutex
	unsubscribe func()
}

// NewConnectivityTrigger wires observer transitions to drain.
func NewConnectivityTrigger(observer reachability.Observer, drain func(), log logger.Logger) *ConnectivityTrigger {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ConnectivityTrigger{observer: observer, drain: drain, logger: log}
}

// Start subscribes to connectivity changes. It is idempotent.
func (t *ConnectivityTrigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsubscribe != nil || t.observer == nil {
		return
	}
	t.unsubscribe = t.observer.Subscribe(t.onChange)
}

// Stop removes the subscription. It is idempotent.
func (t *ConnectivityTrigger) Stop() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Active reports whether the trigger is subscribed.
func (t *ConnectivityTrigger) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubscribe != nil
}

func (t *ConnectivityTrigger) onChange(state reachability.State) {
	if !state.Online() {
		t.logger.Debug("connectivity lost",
			"connected", state.Connected,
			"internet_reachable", state.InternetReachable,
		)
		return
	}
	t.logger.Info("connectivity restored, draining queue")
	t.drain()
}

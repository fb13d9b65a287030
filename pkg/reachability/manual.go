package reachability

import (
	"context"
	"sync"
)

// Manual is an Observer whose state is set by the host application, for
// example from a platform connectivity callback or from tests.
type Manual struct {
	mu    sync.Mutex
	state State
	err   error
	subs  subscribers
}

// NewManual returns an observer starting at initial.
func NewManual(initial State) *Manual {
	return &Manual{state: initial}
}

// Current returns the last state set, or the injected query error.
func (m *Manual) Current(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return State{}, m.err
	}
	return m.state, nil
}

// Set updates the state and notifies subscribers synchronously when it changed.
func (m *Manual) Set(state State) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()

	if changed {
		m.subs.notify(state)
	}
}

// SetOnline is shorthand for Set with both flags equal to online.
func (m *Manual) SetOnline(online bool) {
	m.Set(State{Connected: online, InternetReachable: online})
}

// SetQueryError makes Current fail with err until cleared with nil.
func (m *Manual) SetQueryError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Subscribe registers fn for future changes.
func (m *Manual) Subscribe(fn func(State)) func() {
	return m.subs.add(fn)
}

// Subscribers returns the number of registered listeners.
func (m *Manual) Subscribers() int {
	return m.subs.len()
}

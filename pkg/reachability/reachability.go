// Package reachability reports whether the device has a usable network path.
package reachability

import (
	"context"
	"sync"
)

// State is a point-in-time connectivity reading.
type State struct {
	Connected         bool `json:"connected"`
	InternetReachable bool `json:"internetReachable"`
}

// Online reports whether a delivery attempt makes sense.
func (s State) Online() bool {
	return s.Connected && s.InternetReachable
}

// Observer exposes current connectivity and change notifications.
type Observer interface {
	// Current returns the connectivity right now.
	Current(ctx context.Context) (State, error)
	// Subscribe registers fn for state changes and returns its unsubscribe func.
	Subscribe(fn func(State)) (unsubscribe func())
}

type subscriber struct {
	id uint64
	fn func(State)
}

// subscribers is an ordered listener list shared by the observers.
type subscribers struct {
	mu     sync.Mutex
	nextID uint64
	list   []subscriber
}

func (s *subscribers) add(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.list = append(s.list, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for idx, sub := range s.list {
				if sub.id == id {
					s.list = append(s.list[:idx:idx], s.list[idx+1:]...)
					return
				}
			}
		})
	}
}

func (s *subscribers) notify(state State) {
	s.mu.Lock()
	snapshot := make([]subscriber, len(s.list))
	copy(snapshot, s.list)
	s.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn(state)
	}
}

func (s *subscribers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

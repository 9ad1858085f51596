// Package store provides the shared cross-component store: a small
// publish/subscribe key-value container. Components exchange data through it
// explicitly; per-instance reactive state never crosses instances any other
// way.
package store

import "sync"

// Subscriber receives the full state map after every change.
type Subscriber func(state map[string]interface{})

// Store is a shared key-value container with change subscriptions.
type Store struct {
	mu          sync.RWMutex
	initial     map[string]interface{}
	values      map[string]interface{}
	subscribers []Subscriber
}

// CreateStore creates a store seeded with initial values. The initial map is
// copied; Reset restores it.
func CreateStore(initial map[string]interface{}) *Store {
	s := &Store{
		initial: make(map[string]interface{}, len(initial)),
		values:  make(map[string]interface{}, len(initial)),
	}
	for k, v := range initial {
		s.initial[k] = v
		s.values[k] = v
	}
	return s
}

// GetState returns a shallow copy of the current state.
func (s *Store) GetState() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// SetState merges partial into the state and notifies every subscriber once.
func (s *Store) SetState(partial map[string]interface{}) {
	s.mu.Lock()
	for k, v := range partial {
		s.values[k] = v
	}
	snapshot := s.copyLocked()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub(snapshot)
		}
	}
}

// Subscribe registers a change listener and returns an unsubscribe function.
func (s *Store) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	idx := len(s.subscribers) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subscribers) {
			s.subscribers[idx] = nil
		}
	}
}

// Reset restores the initial state and notifies subscribers.
func (s *Store) Reset() {
	s.mu.Lock()
	s.values = make(map[string]interface{}, len(s.initial))
	for k, v := range s.initial {
		s.values[k] = v
	}
	snapshot := s.copyLocked()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub(snapshot)
		}
	}
}

func (s *Store) copyLocked() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

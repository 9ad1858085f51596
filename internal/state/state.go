// Package state implements the per-instance reactive state store.
//
// The store is an explicit observable map: writes go through Set or SetState,
// equal-value writes are suppressed, and every committed write synchronously
// notifies the render cycle. During instance initialization notification is
// suspended so that attribute seeding, two-way defaults, and script execution
// coalesce into a single first paint.
package state

import (
	"reflect"
	"strings"
	"sync"
)

// Store holds one component instance's reactive state.
type Store struct {
	mu           sync.RWMutex
	values       map[string]interface{}
	notify       func()
	initializing bool
}

// NewStore creates an empty store. notify is invoked synchronously after
// every committed write outside the initialization phase; it may be nil.
func NewStore(notify func()) *Store {
	return &Store{
		values: make(map[string]interface{}),
		notify: notify,
	}
}

// SetNotify replaces the change callback. Used when the render engine is
// constructed after the store.
func (s *Store) SetNotify(notify func()) {
	s.mu.Lock()
	s.notify = notify
	s.mu.Unlock()
}

// BeginInit suspends change notification until EndInit. Writes during the
// initialization phase commit silently.
func (s *Store) BeginInit() {
	s.mu.Lock()
	s.initializing = true
	s.mu.Unlock()
}

// EndInit resumes change notification. The caller performs the first paint
// explicitly afterwards.
func (s *Store) EndInit() {
	s.mu.Lock()
	s.initializing = false
	s.mu.Unlock()
}

// Get returns the value at a dot-separated path and whether it exists.
func (s *Store) Get(path string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.values, path)
}

// Has reports whether the path holds a value.
func (s *Store) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Keys returns the top-level state keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of the top-level state map.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	return snap
}

// Set writes value at a dot-separated path. A write whose new value equals
// the old value commits nothing and triggers no render. Intermediate maps
// along a nested path are created as needed.
func (s *Store) Set(path string, value interface{}) {
	s.mu.Lock()
	changed := s.setLocked(path, value)
	fire := changed && !s.initializing && s.notify != nil
	notify := s.notify
	s.mu.Unlock()

	if fire {
		notify()
	}
}

// SetState merges a shallow map of key/value pairs in one pass and triggers
// at most one render, regardless of how many keys changed.
func (s *Store) SetState(partial map[string]interface{}) {
	if len(partial) == 0 {
		return
	}
	s.mu.Lock()
	changed := false
	for k, v := range partial {
		if s.setLocked(k, v) {
			changed = true
		}
	}
	fire := changed && !s.initializing && s.notify != nil
	notify := s.notify
	s.mu.Unlock()

	if fire {
		notify()
	}
}

// setLocked commits a single write and reports whether the value changed.
func (s *Store) setLocked(path string, value interface{}) bool {
	parts := strings.Split(path, ".")
	container := s.values
	for _, part := range parts[:len(parts)-1] {
		next, ok := container[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			container[part] = next
		}
		container = next
	}
	leaf := parts[len(parts)-1]
	old, existed := container[leaf]
	if existed && valuesEqual(old, value) {
		return false
	}
	container[leaf] = value
	return true
}

func lookup(values map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = values
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// valuesEqual reports value equality for render suppression. Reference
// equality short-circuits for pointers; everything else falls back to deep
// comparison. Comparison itself must never panic, so uncomparable values
// are guarded by DeepEqual.
func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.Ptr && rb.Kind() == reflect.Ptr {
		if ra.Pointer() == rb.Pointer() {
			return true
		}
	}
	if ra.Kind() == reflect.Func || rb.Kind() == reflect.Func {
		return ra.Kind() == rb.Kind() && ra.Pointer() == rb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

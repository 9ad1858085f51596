// Package runtime composes the segmenter, binding scanner, script rewriter,
// reactive state store, and render engine into registered components and
// live component instances.
package runtime

import "sync"

// EventHandler receives the detail payload of an emitted event.
type EventHandler func(detail interface{})

// Bus is the scoped emit/listen channel shared by all instances of one
// registry. Dispatch is synchronous and runs to completion before the
// emitter continues.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*busEntry
}

type busEntry struct {
	fn      EventHandler
	removed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]*busEntry)}
}

// Subscribe registers a handler for an event name and returns an
// unsubscribe function.
func (b *Bus) Subscribe(event string, fn EventHandler) func() {
	entry := &busEntry{fn: fn}
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], entry)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		entry.removed = true
		// Compact so churned subscribers do not accumulate. The removed
		// flag stays set for snapshots taken by an in-flight Publish.
		live := b.handlers[event][:0]
		for _, e := range b.handlers[event] {
			if !e.removed {
				live = append(live, e)
			}
		}
		if len(live) == 0 {
			delete(b.handlers, event)
		} else {
			b.handlers[event] = live
		}
		b.mu.Unlock()
	}
}

// Publish invokes every live handler registered for the event name with the
// given detail.
func (b *Bus) Publish(event string, detail interface{}) {
	b.mu.RLock()
	entries := make([]*busEntry, len(b.handlers[event]))
	copy(entries, b.handlers[event])
	b.mu.RUnlock()

	for _, entry := range entries {
		b.mu.RLock()
		removed := entry.removed
		b.mu.RUnlock()
		if !removed {
			entry.fn(detail)
		}
	}
}

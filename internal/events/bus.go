// Package events provides the named-event fanout the merge engine uses to
// notify collaborators (response cache invalidation, webhook delivery)
// without knowing their key layout or transport.
package events

import (
	"sync"
	"time"
)

// Event names published by the merge engine.
const (
	MergeCompleted   = "merge_completed"
	ConflictResolved = "conflict_resolved"
)

// Event is one named engine event.
type Event struct {
	Name       string    `json:"event"`
	MergeID    string    `json:"merge_id,omitempty"`
	ConflictID int64     `json:"conflict_id,omitempty"`
	BranchIDs  []int64   `json:"branch_ids,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Subscriber receives published events. Handlers must not block; slow work
// belongs on the subscriber's own goroutine.
type Subscriber func(Event)

// Bus fans events out to subscribers. A Bus is created at service start
// and shared by reference; the zero value is not usable.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Subscriber)}
}

// Subscribe registers fn for the named event. An empty name subscribes to
// every event.
func (b *Bus) Subscribe(name string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], fn)
}

// Publish delivers the event to all matching subscribers synchronously,
// in registration order.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Subscriber, 0, len(b.subs[ev.Name])+len(b.subs[""]))
	handlers = append(handlers, b.subs[ev.Name]...)
	handlers = append(handlers, b.subs[""]...)
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

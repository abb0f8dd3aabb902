package realtime

import (
	"sync"

	"github.com/rillstream/rill-go/pkg/wire"
)

// Lifecycle event names emitted to the listener registry.
const (
	// EventSubscribed fires when a peer subscribes to a room.
	EventSubscribed = "subscribed"
	// EventUnsubscribed fires when a peer unsubscribes from a room.
	EventUnsubscribed = "unsubscribed"
)

// ListenerFunc receives lifecycle events from any room sharing the
// registry. subscriptionID identifies the logical subscription the
// event belongs to; result is the count-augmented notification content.
type ListenerFunc func(subscriptionID string, result *wire.NotificationResult)

type listenerEntry struct {
	id uint64
	fn ListenerFunc
}

// Registry holds ordered listener lists keyed by event name. It is
// shared across rooms: every room emits lifecycle events to it
// regardless of the room's own gating flags.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	entries map[string][]listenerEntry
}

// NewRegistry creates an empty listener registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string][]listenerEntry),
	}
}

// On appends a listener to the event's list and returns its id for
// later removal. A nil listener is ignored and returns 0.
func (r *Registry) On(event string, fn ListenerFunc) uint64 {
	if fn == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries[event] = append(r.entries[event], listenerEntry{id: r.nextID, fn: fn})
	return r.nextID
}

// Off removes the listener with the given id from the event's list.
// Unknown ids are ignored.
func (r *Registry) Off(event string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[event]
	for i, entry := range list {
		if entry.id == id {
			r.entries[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Len returns the number of listeners registered for the event.
func (r *Registry) Len(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[event])
}

// Emit invokes every listener registered for the event, in registration
// order. Listeners run on the caller's goroutine.
func (r *Registry) Emit(event, subscriptionID string, result *wire.NotificationResult) {
	r.mu.RLock()
	list := make([]ListenerFunc, 0, len(r.entries[event]))
	for _, entry := range r.entries[event] {
		list = append(list, entry.fn)
	}
	r.mu.RUnlock()

	for _, fn := range list {
		fn(subscriptionID, result)
	}
}

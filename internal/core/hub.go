package core

import (
	"sync"

	"go.uber.org/atomic"
)

type watchKey struct {
	kind Kind
	room string
}

// Hub fans room change notifications out to watchers. It implements
// ChangeNotifier so strategies can report both local mutations and events
// received from other replicas.
type Hub struct {
	mu       sync.RWMutex
	watchers map[watchKey]map[*Watcher]struct{}
	dropped  *atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		watchers: make(map[watchKey]map[*Watcher]struct{}),
		dropped:  atomic.NewInt64(0),
	}
}

// Watch subscribes w to changes of a room. Returns true if newly added.
func (h *Hub) Watch(w *Watcher, kind Kind, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := watchKey{kind: kind, room: roomID}
	set, ok := h.watchers[key]
	if !ok {
		set = make(map[*Watcher]struct{})
		h.watchers[key] = set
	}
	if _, exists := set[w]; exists {
		return false
	}
	set[w] = struct{}{}
	return true
}

// Unwatch removes w from a room. Returns true if removed.
func (h *Hub) Unwatch(w *Watcher, kind Kind, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := watchKey{kind: kind, room: roomID}
	set, ok := h.watchers[key]
	if !ok {
		return false
	}
	if _, exists := set[w]; !exists {
		return false
	}
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, key)
	}
	return true
}

// UnwatchAll removes w from every room.
func (h *Hub) UnwatchAll(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, set := range h.watchers {
		delete(set, w)
		if len(set) == 0 {
			delete(h.watchers, key)
		}
	}
}

// RoomChanged notifies every watcher of the room. It never blocks.
func (h *Hub) RoomChanged(kind Kind, roomID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	change := RoomChange{Kind: kind, RoomID: roomID}
	for w := range h.watchers[watchKey{kind: kind, room: roomID}] {
		select {
		case w.Events <- change:
		default:
			// Drop if slow consumer.
			h.dropped.Inc()
		}
	}
}

// Watching returns the number of watchers of a room.
func (h *Hub) Watching(kind Kind, roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[watchKey{kind: kind, room: roomID}])
}

// Dropped returns how many notifications were discarded for slow watchers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

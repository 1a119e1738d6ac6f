package localcache

import (
	"sync"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// Rooms is the replica-local room map.
//
// Locking: mu guards membership of the map; each entry has its own mutex that
// serializes mutation and snapshot replacement of that room. Entries are never
// removed, so an entry pointer stays valid after mu is released.
type Rooms struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	room *core.Room
}

// NewRooms creates an empty map.
func NewRooms() *Rooms {
	return &Rooms{entries: make(map[string]*entry)}
}

func (r *Rooms) lookup(roomID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[roomID]
	return e, ok
}

// entryFor returns the entry for roomID, creating an empty one if needed.
// A new entry has a nil room until the caller fills it while holding e.mu.
func (r *Rooms) entryFor(roomID string) *entry {
	if e, ok := r.lookup(roomID); ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[roomID]; ok {
		return e
	}
	e := &entry{}
	r.entries[roomID] = e
	return e
}

// Insert adds an empty room according to policy.
func (r *Rooms) Insert(roomID string, policy core.CreatePolicy) error {
	e := r.entryFor(roomID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.room == nil || policy == core.CreateOverwrite {
		e.room = core.NewRoom(roomID)
		return nil
	}
	if policy == core.CreateReject {
		return core.ErrRoomExists
	}
	return nil
}

// Mutate runs fn on the room while holding its lock. It returns
// core.ErrRoomNotFound without creating anything when the room is absent.
func (r *Rooms) Mutate(roomID string, fn func(room *core.Room) error) error {
	e, ok := r.lookup(roomID)
	if !ok {
		return core.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return core.ErrRoomNotFound
	}
	return fn(e.room)
}

// Replace stores a copy of room unconditionally, adding it if absent.
func (r *Rooms) Replace(room *core.Room) {
	e := r.entryFor(room.ID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.room = room.Clone()
}

// Get returns a copy of the room.
func (r *Rooms) Get(roomID string) (*core.Room, bool) {
	e, ok := r.lookup(roomID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return nil, false
	}
	return e.room.Clone(), true
}

// Len returns the number of known rooms.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		e.mu.Lock()
		if e.room != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

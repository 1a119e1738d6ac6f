package core

// RoomChange tells a watcher that a room changed and should be re-read.
type RoomChange struct {
	Kind   Kind
	RoomID string
}

// Watcher is a connected client interested in room changes.
type Watcher struct {
	ID     string
	Events chan RoomChange
}

// NewWatcher constructs a watcher with a buffered event channel.
func NewWatcher(id string) *Watcher {
	return &Watcher{
		ID:     id,
		Events: make(chan RoomChange, 16),
	}
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubDeliversToWatchersOfRoom(t *testing.T) {
	hub := NewHub()
	a := NewWatcher("a")
	b := NewWatcher("b")

	assert.True(t, hub.Watch(a, KindRecord, "room-1"))
	assert.False(t, hub.Watch(a, KindRecord, "room-1"))
	hub.Watch(b, KindLocalCache, "room-1")

	hub.RoomChanged(KindRecord, "room-1")

	assert.Equal(t, RoomChange{Kind: KindRecord, RoomID: "room-1"}, <-a.Events)
	assert.Empty(t, b.Events, "other strategy must not be notified")
}

func TestHubUnwatch(t *testing.T) {
	hub := NewHub()
	w := NewWatcher("w")
	hub.Watch(w, KindRecord, "room-1")
	hub.Watch(w, KindRecord, "room-2")

	assert.True(t, hub.Unwatch(w, KindRecord, "room-1"))
	assert.False(t, hub.Unwatch(w, KindRecord, "room-1"))
	assert.Equal(t, 0, hub.Watching(KindRecord, "room-1"))

	hub.UnwatchAll(w)
	assert.Equal(t, 0, hub.Watching(KindRecord, "room-2"))

	hub.RoomChanged(KindRecord, "room-2")
	assert.Empty(t, w.Events)
}

func TestHubDropsForSlowWatcher(t *testing.T) {
	hub := NewHub()
	w := NewWatcher("slow")
	hub.Watch(w, KindSharedCache, "room-2")

	for i := 0; i < cap(w.Events)+5; i++ {
		hub.RoomChanged(KindSharedCache, "room-2")
	}

	assert.Len(t, w.Events, cap(w.Events))
	assert.Equal(t, int64(5), hub.Dropped())
}

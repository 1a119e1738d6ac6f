package localcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/vovakirdan/roomsync-server/internal/bus/membus"
	"github.com/vovakirdan/roomsync-server/internal/core"
)

// spyBus counts publishes and can be switched to fail them.
type spyBus struct {
	*membus.Bus
	fail      *atomic.Bool
	published *atomic.Int64
}

func newSpyBus() *spyBus {
	return &spyBus{Bus: membus.New(), fail: atomic.NewBool(false), published: atomic.NewInt64(0)}
}

func (b *spyBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.fail.Load() {
		return errors.New("bus down")
	}
	b.published.Inc()
	return b.Bus.Publish(ctx, topic, payload)
}

type replica struct {
	strategy *Strategy
	rooms    *Rooms
	hub      *core.Hub
}

func newReplica(t *testing.T, bus core.Bus, origin string) replica {
	t.Helper()
	logger := zerolog.Nop()
	rooms := NewRooms()
	hub := core.NewHub()
	s := New(rooms, core.NewEventChannel(bus, core.KindLocalCache.Topic(""), origin, &logger), "",
		core.WithNotifier(hub), core.WithLogger(&logger))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return replica{strategy: s, rooms: rooms, hub: hub}
}

func TestPayloadReplacesRemoteRoom(t *testing.T) {
	bus := newSpyBus()
	defer bus.Close()
	ctx := context.Background()
	a := newReplica(t, bus, "replica-a")
	b := newReplica(t, bus, "replica-b")

	stale := core.NewRoom("room-3")
	stale.Select("zed", "Two")
	b.rooms.Replace(stale)

	watcher := core.NewWatcher("w")
	b.hub.Watch(watcher, core.KindLocalCache, "room-3")

	require.NoError(t, a.strategy.CreateRoom(ctx, "room-3"))
	res, err := a.strategy.SelectValue(ctx, "room-3", "carol", "Queen")
	require.NoError(t, err)
	assert.Equal(t, core.MutationResult{Published: true}, res)

	select {
	case <-watcher.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("payload not applied on other replica")
	}

	room, err := b.strategy.GetRoom(ctx, "room-3")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"carol": "Queen"}, room.Selections)
	assert.Equal(t, int64(1), b.strategy.Applied())
	assert.Zero(t, a.strategy.Applied())
}

func TestCreateStaysLocal(t *testing.T) {
	bus := newSpyBus()
	defer bus.Close()
	ctx := context.Background()
	a := newReplica(t, bus, "replica-a")
	b := newReplica(t, bus, "replica-b")

	require.NoError(t, a.strategy.CreateRoom(ctx, "room-3"))
	assert.Zero(t, bus.published.Load())

	_, err := b.strategy.GetRoom(ctx, "room-3")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestUnknownRoomIsNotSynthesized(t *testing.T) {
	bus := newSpyBus()
	defer bus.Close()
	a := newReplica(t, bus, "replica-a")

	_, err := a.strategy.SelectValue(context.Background(), "ghost", "carol", "Queen")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
	assert.Zero(t, a.rooms.Len())
	assert.Zero(t, bus.published.Load())
}

func TestPublishFailureIsDegraded(t *testing.T) {
	bus := newSpyBus()
	defer bus.Close()
	ctx := context.Background()
	a := newReplica(t, bus, "replica-a")
	require.NoError(t, a.strategy.CreateRoom(ctx, "room-3"))

	bus.fail.Store(true)
	res, err := a.strategy.SelectValue(ctx, "room-3", "carol", "Queen")
	require.NoError(t, err)
	assert.Equal(t, core.MutationResult{Degraded: true}, res)
	assert.Equal(t, int64(1), a.strategy.Degraded())

	room, err := a.strategy.GetRoom(ctx, "room-3")
	require.NoError(t, err)
	assert.Equal(t, "Queen", room.Selections["carol"])
}

func TestCreatePolicies(t *testing.T) {
	rooms := NewRooms()
	require.NoError(t, rooms.Insert("room-3", core.CreateReject))
	require.NoError(t, rooms.Mutate("room-3", func(r *core.Room) error {
		r.Select("carol", "Queen")
		return nil
	}))

	assert.ErrorIs(t, rooms.Insert("room-3", core.CreateReject), core.ErrRoomExists)
	assert.NoError(t, rooms.Insert("room-3", core.CreateIgnore))
	room, _ := rooms.Get("room-3")
	assert.Equal(t, "Queen", room.Selections["carol"])

	require.NoError(t, rooms.Insert("room-3", core.CreateOverwrite))
	room, _ = rooms.Get("room-3")
	assert.True(t, room.Empty())
}

func TestReselectOverwrites(t *testing.T) {
	bus := newSpyBus()
	defer bus.Close()
	ctx := context.Background()
	a := newReplica(t, bus, "replica-a")
	require.NoError(t, a.strategy.CreateRoom(ctx, "room-3"))

	_, err := a.strategy.SelectValue(ctx, "room-3", "carol", "Queen")
	require.NoError(t, err)
	_, err = a.strategy.SelectValue(ctx, "room-3", "carol", "King")
	require.NoError(t, err)

	room, err := a.strategy.GetRoom(ctx, "room-3")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"carol": "King"}, room.Selections)
}

func TestCrossingMutationsOnSharedBusComplete(t *testing.T) {
	bus := newSpyBus()
	defer bus.Close()
	ctx := context.Background()
	a := newReplica(t, bus, "replica-a")
	b := newReplica(t, bus, "replica-b")
	require.NoError(t, a.strategy.CreateRoom(ctx, "room-3"))
	require.NoError(t, b.strategy.CreateRoom(ctx, "room-3"))

	const rounds = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i, r := range []replica{a, b} {
			wg.Add(1)
			go func(i int, r replica) {
				defer wg.Done()
				for n := 0; n < rounds; n++ {
					_, err := r.strategy.SelectValue(ctx, "room-3", fmt.Sprintf("user-%d", i), strconv.Itoa(n))
					assert.NoError(t, err)
				}
			}(i, r)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("mutations on two replicas sharing a bus did not finish")
	}
	assert.Equal(t, int64(2*rounds), bus.published.Load())
}

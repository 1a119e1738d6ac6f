package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomsync-server/internal/config"
	"github.com/vovakirdan/roomsync-server/internal/core"
)

func testConfig(t *testing.T, redisURL, dbPath, replicaID string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.ReplicaID = replicaID
	cfg.ConnectRetries = 1
	cfg.ConnectBackoff = 10 * time.Millisecond
	cfg.Bus.RedisURL = redisURL
	cfg.Cache.RedisURL = redisURL
	cfg.Store.SQLitePath = dbPath
	require.NoError(t, cfg.Validate())
	return &cfg
}

// startReplica builds an app and subscribes its strategies without serving HTTP.
func startReplica(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	logger := zerolog.Nop()
	a, err := New(context.Background(), cfg, &logger)
	require.NoError(t, err)
	require.NoError(t, a.Service().Start(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestReplicasConvergeOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()
	dbPath := filepath.Join(t.TempDir(), "rooms.db")

	a := startReplica(t, testConfig(t, url, dbPath, "replica-a"))
	b := startReplica(t, testConfig(t, url, dbPath, "replica-b"))
	svcA, svcB := a.Service(), b.Service()
	ctx := context.Background()

	t.Run("rdbms", func(t *testing.T) {
		require.NoError(t, svcA.CreateRoom(ctx, core.KindRecord, "room-1"))
		res, err := svcA.SelectValue(ctx, core.KindRecord, "room-1", "alice", "Ace")
		require.NoError(t, err)
		assert.True(t, res.Published)

		room, err := svcB.GetRoom(ctx, core.KindRecord, "room-1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"alice": "Ace"}, room.Selections)
	})

	t.Run("global", func(t *testing.T) {
		require.NoError(t, svcA.CreateRoom(ctx, core.KindSharedCache, "room-2"))
		_, err := svcA.SelectValue(ctx, core.KindSharedCache, "room-2", "bob", "King")
		require.NoError(t, err)

		room, err := svcB.GetRoom(ctx, core.KindSharedCache, "room-2")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"bob": "King"}, room.Selections)
	})

	t.Run("local", func(t *testing.T) {
		require.NoError(t, svcA.CreateRoom(ctx, core.KindLocalCache, "room-3"))
		require.NoError(t, svcB.CreateRoom(ctx, core.KindLocalCache, "room-3"))

		res, err := svcA.SelectValue(ctx, core.KindLocalCache, "room-3", "carol", "Queen")
		require.NoError(t, err)
		assert.True(t, res.Published)

		require.Eventually(t, func() bool {
			room, err := svcB.GetRoom(ctx, core.KindLocalCache, "room-3")
			return err == nil && room.Selections["carol"] == "Queen"
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("strategy names follow drivers", func(t *testing.T) {
		st, err := svcA.Strategy(core.KindRecord)
		require.NoError(t, err)
		assert.Equal(t, "RDBMS + Redis Pub/Sub", st.Name())

		st, err = svcA.Strategy(core.KindSharedCache)
		require.NoError(t, err)
		assert.Equal(t, "Global Cache (Redis) + Redis Pub/Sub", st.Name())

		st, err = svcA.Strategy(core.KindLocalCache)
		require.NoError(t, err)
		assert.Equal(t, "Local Cache + Redis Pub/Sub (Payload)", st.Name())
	})

	t.Run("remote change reaches watchers", func(t *testing.T) {
		w := core.NewWatcher("w1")
		b.Hub().Watch(w, core.KindRecord, "room-1")

		_, err := svcA.SelectValue(ctx, core.KindRecord, "room-1", "dave", "Two")
		require.NoError(t, err)

		select {
		case change := <-w.Events:
			assert.Equal(t, core.RoomChange{Kind: core.KindRecord, RoomID: "room-1"}, change)
		case <-time.After(2 * time.Second):
			t.Fatal("no room change delivered")
		}
	})
}

func TestNewFailsWithoutBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()
	cfg := testConfig(t, url, filepath.Join(t.TempDir(), "rooms.db"), "replica-a")
	mr.Close()

	logger := zerolog.Nop()
	_, err := New(context.Background(), cfg, &logger)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.ReplicaID = "solo"
	cfg.Bus.Driver = BusMemory
	cfg.Store.Driver = "badger"
	cfg.Strategies = []string{"rdbms", "local"}

	logger := zerolog.Nop()
	a, err := New(context.Background(), &cfg, &logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	cfg := config.Default()
	cfg.Strategies = []string{"rdbms", "mongo"}
	logger := zerolog.Nop()

	_, err := New(context.Background(), &cfg, &logger)
	assert.ErrorIs(t, err, core.ErrUnknownStrategy)
}

package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

func runServer(t *testing.T) string {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoSigs: true})
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func dial(t *testing.T, url string) *nats.Conn {
	t.Helper()
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestPublishReachesOtherConnection(t *testing.T) {
	url := runServer(t)
	pub := New(dial(t, url), nil)
	sub := New(dial(t, url), nil)
	defer sub.Close()
	ctx := context.Background()

	got := make(chan string, 4)
	_, err := sub.Subscribe(ctx, "local-cache-events", func(_ context.Context, payload []byte) {
		got <- string(payload)
	})
	require.NoError(t, err)

	for _, msg := range []string{"one", "two"} {
		require.NoError(t, pub.Publish(ctx, "local-cache-events", []byte(msg)))
	}
	for _, want := range []string{"one", "two"} {
		select {
		case msg := <-got:
			assert.Equal(t, want, msg)
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestBusCloseUnsubscribes(t *testing.T) {
	url := runServer(t)
	conn := dial(t, url)
	b := New(conn, nil)
	ctx := context.Background()

	got := make(chan string, 1)
	_, err := b.Subscribe(ctx, "t", func(_ context.Context, payload []byte) {
		got <- string(payload)
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, conn.Flush())

	require.NoError(t, b.Publish(ctx, "t", []byte("late")))
	require.NoError(t, conn.Flush())
	assert.Empty(t, got)
	assert.Equal(t, 0, conn.NumSubscriptions())
}

func TestPingAndClosedConnection(t *testing.T) {
	url := runServer(t)
	conn := dial(t, url)
	b := New(conn, nil)
	ctx := context.Background()

	require.NoError(t, b.Ping(ctx))

	conn.Close()
	assert.ErrorIs(t, b.Ping(ctx), core.ErrBusUnavailable)
	assert.ErrorIs(t, b.Publish(ctx, "t", []byte("x")), core.ErrBusUnavailable)
	_, err := b.Subscribe(ctx, "t", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, core.ErrBusUnavailable)
}

package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomsync-server/internal/bus/membus"
	"github.com/vovakirdan/roomsync-server/internal/config"
	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/store/sqlite"
	"github.com/vovakirdan/roomsync-server/internal/strategy/localcache"
	"github.com/vovakirdan/roomsync-server/internal/strategy/record"
)

// startTestServer runs the rdbms and local strategies over an in-memory bus
// and SQLite store behind a test HTTP server.
func startTestServer(t *testing.T, rateLimit int) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	ctx := context.Background()

	bus := membus.New()
	t.Cleanup(func() { _ = bus.Close() })

	st, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := core.NewHub()
	opts := []core.Option{core.WithNotifier(hub), core.WithLogger(&logger)}

	rec := record.New(st, core.NewEventChannel(bus, core.KindRecord.Topic(""), "replica-a", &logger), "", opts...)
	loc := localcache.New(nil, core.NewEventChannel(bus, core.KindLocalCache.Topic(""), "replica-a", &logger), "", opts...)

	svc := core.NewRoomService(&logger, rec, loc)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { _ = svc.Close() })

	server := NewServer(svc, hub, &config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		WSRateLimit:       rateLimit,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

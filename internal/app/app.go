package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomsync-server/internal/config"
	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/strategy/localcache"
	"github.com/vovakirdan/roomsync-server/internal/strategy/record"
	"github.com/vovakirdan/roomsync-server/internal/strategy/sharedcache"
	transporthttp "github.com/vovakirdan/roomsync-server/internal/transport/http"
)

// App wires together backends, strategies and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	svc             *core.RoomService
	hub             *core.Hub
	closers         []closer
	log             *zerolog.Logger
}

// New connects every configured backend and builds the enabled strategies.
// Anything opened before a failure is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	policy, err := core.ParseCreatePolicy(cfg.CreatePolicy)
	if err != nil {
		return nil, err
	}
	kinds, err := parseKinds(cfg.Strategies)
	if err != nil {
		return nil, err
	}

	b := newBackends(cfg, logger)
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             core.NewHub(),
		log:             logger,
	}

	strategies, err := a.buildStrategies(ctx, b, kinds, policy)
	a.closers = b.closers
	if err != nil {
		_ = a.cleanup()
		return nil, err
	}

	a.svc = core.NewRoomService(logger, strategies...)
	a.server = transporthttp.NewServer(a.svc, a.hub, cfg, logger)

	logger.Info().
		Str("replica_id", cfg.ReplicaID).
		Str("bus", cfg.Bus.Driver).
		Str("create_policy", cfg.CreatePolicy).
		Strs("strategies", cfg.Strategies).
		Msg("application initialized")

	return a, nil
}

func parseKinds(names []string) ([]core.Kind, error) {
	kinds := make([]core.Kind, 0, len(names))
	for _, name := range lo.Uniq(names) {
		kind, err := core.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func (a *App) buildStrategies(ctx context.Context, b *backends, kinds []core.Kind, policy core.CreatePolicy) ([]core.Strategy, error) {
	bus, busLabel, err := b.bus(ctx)
	if err != nil {
		return nil, err
	}

	opts := []core.Option{
		core.WithCreatePolicy(policy),
		core.WithNotifier(a.hub),
		core.WithLogger(a.log),
	}
	channel := func(kind core.Kind) *core.EventChannel {
		return core.NewEventChannel(bus, kind.Topic(b.cfg.Bus.TopicPrefix), b.cfg.ReplicaID, a.log)
	}

	strategies := make([]core.Strategy, 0, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case core.KindRecord:
			st, label, err := b.durableStore(ctx)
			if err != nil {
				return nil, fmt.Errorf("rdbms strategy: %w", err)
			}
			strategies = append(strategies, record.New(st, channel(kind), label+" + "+busLabel, opts...))
		case core.KindSharedCache:
			cache, label, err := b.sharedCache(ctx)
			if err != nil {
				return nil, fmt.Errorf("global strategy: %w", err)
			}
			strategies = append(strategies, sharedcache.New(cache, channel(kind), label+" + "+busLabel, opts...))
		case core.KindLocalCache:
			label := "Local Cache + " + busLabel + " (Payload)"
			strategies = append(strategies, localcache.New(localcache.NewRooms(), channel(kind), label, opts...))
		}
	}
	return strategies, nil
}

// Service exposes the room service, mainly for embedding and tests.
func (a *App) Service() *core.RoomService { return a.svc }

// Hub exposes the change notification hub.
func (a *App) Hub() *core.Hub { return a.hub }

// Run subscribes the strategies, starts the HTTP server and blocks until
// context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.svc.Start(ctx); err != nil {
		_ = a.cleanup()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	return multierr.Append(err, a.cleanup())
}

// Close releases everything without serving. It is safe after Run returned.
func (a *App) Close() error {
	return a.cleanup()
}

// cleanup drops subscriptions, then closes backends in reverse opening order.
func (a *App) cleanup() error {
	var err error
	if a.svc != nil {
		err = multierr.Append(err, a.svc.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if closeErr := c.fn(); closeErr != nil {
			a.log.Warn().Err(closeErr).Str("resource", c.name).Msg("failed to close")
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, closeErr))
		} else {
			a.log.Debug().Str("resource", c.name).Msg("closed")
		}
	}
	a.closers = nil
	return err
}

package app

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/bus/membus"
	"github.com/vovakirdan/roomsync-server/internal/bus/natsbus"
	"github.com/vovakirdan/roomsync-server/internal/bus/redisbus"
	"github.com/vovakirdan/roomsync-server/internal/cache/natskv"
	"github.com/vovakirdan/roomsync-server/internal/cache/rediscache"
	"github.com/vovakirdan/roomsync-server/internal/config"
	"github.com/vovakirdan/roomsync-server/internal/connect"
	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/store"
	"github.com/vovakirdan/roomsync-server/internal/store/badgerstore"
	"github.com/vovakirdan/roomsync-server/internal/store/postgres"
	"github.com/vovakirdan/roomsync-server/internal/store/sqlite"
)

// Bus drivers.
const (
	BusRedis  = "redis"
	BusNATS   = "nats"
	BusMemory = "memory"
)

// Shared cache drivers.
const (
	CacheRedis = "redis"
	CacheNATS  = "nats"
)

type closer struct {
	name string
	fn   func() error
}

// backends opens network clients once per URL and records everything that
// must be closed, in opening order.
type backends struct {
	cfg     *config.Config
	retry   connect.Retry
	log     *zerolog.Logger
	redis   map[string]*redis.Client
	nats    map[string]*nats.Conn
	closers []closer
}

func newBackends(cfg *config.Config, logger *zerolog.Logger) *backends {
	return &backends{
		cfg:   cfg,
		retry: connect.Retry{Attempts: cfg.ConnectRetries, Backoff: cfg.ConnectBackoff},
		log:   logger,
		redis: make(map[string]*redis.Client),
		nats:  make(map[string]*nats.Conn),
	}
}

func (b *backends) onClose(name string, fn func() error) {
	b.closers = append(b.closers, closer{name: name, fn: fn})
}

func (b *backends) redisClient(ctx context.Context, url string) (*redis.Client, error) {
	if client, ok := b.redis[url]; ok {
		return client, nil
	}
	client, err := connect.Redis(ctx, url, b.retry)
	if err != nil {
		return nil, err
	}
	b.redis[url] = client
	b.onClose("redis client", client.Close)
	b.log.Info().Str("addr", client.Options().Addr).Msg("redis connected")
	return client, nil
}

func (b *backends) natsConn(ctx context.Context, url string) (*nats.Conn, error) {
	if conn, ok := b.nats[url]; ok {
		return conn, nil
	}
	conn, err := connect.NATS(ctx, url, "roomsync-"+b.cfg.ReplicaID, b.retry)
	if err != nil {
		return nil, err
	}
	b.nats[url] = conn
	b.onClose("nats connection", func() error {
		conn.Close()
		return nil
	})
	b.log.Info().Str("url", conn.ConnectedUrlRedacted()).Msg("nats connected")
	return conn, nil
}

// bus opens the configured broadcast bus and returns it with its label.
func (b *backends) bus(ctx context.Context) (core.Bus, string, error) {
	var (
		bus   core.Bus
		label string
	)
	switch b.cfg.Bus.Driver {
	case BusRedis:
		client, err := b.redisClient(ctx, b.cfg.Bus.RedisURL)
		if err != nil {
			return nil, "", fmt.Errorf("bus: %w", err)
		}
		bus, label = redisbus.New(client, b.log), "Redis Pub/Sub"
	case BusNATS:
		conn, err := b.natsConn(ctx, b.cfg.Bus.NATSURL)
		if err != nil {
			return nil, "", fmt.Errorf("bus: %w", err)
		}
		bus, label = natsbus.New(conn, b.log), "NATS"
	case BusMemory:
		bus, label = membus.New(), "In-Process Bus"
	default:
		return nil, "", fmt.Errorf("unknown bus driver %q", b.cfg.Bus.Driver)
	}
	b.onClose("bus", bus.Close)
	return bus, label, nil
}

// durableStore opens the configured store for the rdbms strategy.
func (b *backends) durableStore(ctx context.Context) (core.DurableStore, string, error) {
	var (
		st    core.DurableStore
		label string
	)
	switch b.cfg.Store.Driver {
	case store.DriverSQLite:
		s, err := sqlite.New(ctx, b.cfg.Store.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		st, label = s, "RDBMS"
	case store.DriverPostgres:
		err := b.retry.Run(ctx, func(ctx context.Context) error {
			s, err := postgres.New(ctx, b.cfg.Store.PostgresDSN)
			if err != nil {
				return err
			}
			st = s
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		label = "RDBMS"
	case store.DriverBadger:
		s, err := badgerstore.New(b.cfg.Store.BadgerPath)
		if err != nil {
			return nil, "", err
		}
		st, label = s, "Badger"
	default:
		return nil, "", fmt.Errorf("unknown store driver %q", b.cfg.Store.Driver)
	}
	b.onClose("store", st.Close)
	return st, label, nil
}

// sharedCache opens the configured cache for the global strategy.
func (b *backends) sharedCache(ctx context.Context) (core.SharedCache, string, error) {
	var (
		cache core.SharedCache
		label string
	)
	switch b.cfg.Cache.Driver {
	case CacheRedis:
		client, err := b.redisClient(ctx, b.cfg.Cache.RedisURL)
		if err != nil {
			return nil, "", fmt.Errorf("cache: %w", err)
		}
		cache, label = rediscache.New(client, b.cfg.Cache.KeyPrefix), "Global Cache (Redis)"
	case CacheNATS:
		conn, err := b.natsConn(ctx, b.cfg.Cache.NATSURL)
		if err != nil {
			return nil, "", fmt.Errorf("cache: %w", err)
		}
		c, err := natskv.New(conn, b.cfg.Cache.NATSBucket)
		if err != nil {
			return nil, "", fmt.Errorf("cache: %w", err)
		}
		cache, label = c, "Global Cache (NATS KV)"
	default:
		return nil, "", fmt.Errorf("unknown cache driver %q", b.cfg.Cache.Driver)
	}
	b.onClose("cache", cache.Close)
	return cache, label, nil
}

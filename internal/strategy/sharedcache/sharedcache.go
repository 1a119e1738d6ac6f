// Package sharedcache implements the shared-cache strategy: rooms live in a
// key-value store visible to all replicas and mutations broadcast an advisory
// invalidation.
//
// SelectValue is an unlocked read-modify-write. Two replicas mutating the same
// room concurrently can lose one of the updates; the last overwrite wins.
package sharedcache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// Strategy is the shared-cache implementation of core.Strategy.
type Strategy struct {
	cache   core.SharedCache
	channel *core.EventChannel
	opts    core.StrategyOptions
	log     *zerolog.Logger
	label   string

	mu  sync.Mutex
	sub core.Subscription
}

var _ core.Strategy = (*Strategy)(nil)

// New creates the strategy. An empty label falls back to the default one.
func New(cache core.SharedCache, channel *core.EventChannel, label string, opts ...core.Option) *Strategy {
	o := core.ApplyOptions(opts...)
	if label == "" {
		label = "Global Cache (Redis) + Redis Pub/Sub"
	}
	logger := o.Logger.With().Str("strategy", string(core.KindSharedCache)).Logger()
	return &Strategy{
		cache:   cache,
		channel: channel,
		opts:    o,
		log:     &logger,
		label:   label,
	}
}

func (s *Strategy) Kind() core.Kind { return core.KindSharedCache }

func (s *Strategy) Name() string { return s.label }

// CreateRoom writes an empty room under its key according to the create policy.
func (s *Strategy) CreateRoom(ctx context.Context, roomID string) error {
	if err := core.ValidateRoomID(roomID); err != nil {
		return err
	}
	s.log.Debug().Str("room_id", roomID).Msg("create room")

	room := core.NewRoom(roomID)
	if s.opts.Policy == core.CreateOverwrite {
		return s.cache.Store(ctx, room)
	}
	stored, err := s.cache.StoreIfAbsent(ctx, room)
	if err != nil {
		return err
	}
	if !stored && s.opts.Policy == core.CreateReject {
		return core.ErrRoomExists
	}
	return nil
}

// SelectValue reads the room, applies the selection in process, overwrites the
// stored value and then publishes Invalidate.
func (s *Strategy) SelectValue(ctx context.Context, roomID, participantID, value string) (core.MutationResult, error) {
	if err := core.ValidateSelection(roomID, participantID); err != nil {
		return core.MutationResult{}, err
	}
	s.log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Msg("select value")

	room, err := s.cache.Load(ctx, roomID)
	if err != nil {
		return core.MutationResult{}, err
	}
	room.Select(participantID, value)
	if err := s.cache.Store(ctx, room); err != nil {
		return core.MutationResult{}, err
	}

	s.opts.Notifier.RoomChanged(core.KindSharedCache, roomID)

	if err := s.channel.Publish(ctx, core.NewInvalidateEvent(s.channel.Origin(), roomID)); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("invalidation not published; replicas still converge on read")
		return core.MutationResult{}, nil
	}
	return core.MutationResult{Published: true}, nil
}

// GetRoom always reads the shared store.
func (s *Strategy) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	if err := core.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	return s.cache.Load(ctx, roomID)
}

// Start subscribes to invalidations from other replicas.
func (s *Strategy) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil
	}
	sub, err := s.channel.Listen(ctx, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Strategy) handle(_ context.Context, ev core.SyncEvent) {
	if ev.Kind != core.EventInvalidate {
		s.log.Warn().Str("type", string(ev.Kind)).Str("room_id", ev.RoomID).Msg("unexpected event type")
		return
	}
	s.log.Debug().Str("room_id", ev.RoomID).Str("origin", ev.Origin).Msg("received invalidation; clients should re-read from the cache")
	s.opts.Notifier.RoomChanged(core.KindSharedCache, ev.RoomID)
}

func (s *Strategy) Ping(ctx context.Context) error {
	if err := s.cache.Ping(ctx); err != nil {
		return err
	}
	return s.channel.Ping(ctx)
}

// Close drops the subscription.
func (s *Strategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Close()
	s.sub = nil
	return err
}

// Package record implements the system-of-record strategy: rooms live in a
// transactional durable store, every read goes to the store, and mutations
// broadcast an advisory invalidation after commit.
package record

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// Strategy is the system-of-record implementation of core.Strategy.
type Strategy struct {
	store   core.DurableStore
	channel *core.EventChannel
	opts    core.StrategyOptions
	log     *zerolog.Logger
	label   string

	mu  sync.Mutex
	sub core.Subscription
}

var _ core.Strategy = (*Strategy)(nil)

// New creates the strategy. label is reported by Name; an empty label
// falls back to the default one.
func New(store core.DurableStore, channel *core.EventChannel, label string, opts ...core.Option) *Strategy {
	o := core.ApplyOptions(opts...)
	if label == "" {
		label = "RDBMS + Redis Pub/Sub"
	}
	logger := o.Logger.With().Str("strategy", string(core.KindRecord)).Logger()
	return &Strategy{
		store:   store,
		channel: channel,
		opts:    o,
		log:     &logger,
		label:   label,
	}
}

func (s *Strategy) Kind() core.Kind { return core.KindRecord }

func (s *Strategy) Name() string { return s.label }

// CreateRoom inserts an empty room record according to the create policy.
func (s *Strategy) CreateRoom(ctx context.Context, roomID string) error {
	if err := core.ValidateRoomID(roomID); err != nil {
		return err
	}
	s.log.Debug().Str("room_id", roomID).Msg("create room")
	return s.store.InsertRoom(ctx, core.NewRoom(roomID), s.opts.Policy)
}

// SelectValue performs the read-modify-write in one durable transaction and
// publishes Invalidate once it has committed. A failed publish does not undo
// the write.
func (s *Strategy) SelectValue(ctx context.Context, roomID, participantID, value string) (core.MutationResult, error) {
	if err := core.ValidateSelection(roomID, participantID); err != nil {
		return core.MutationResult{}, err
	}
	s.log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Msg("select value")

	err := s.store.WithTx(ctx, func(tx core.RoomTx) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		room.Select(participantID, value)
		return tx.PutRoom(ctx, room)
	})
	if err != nil {
		return core.MutationResult{}, err
	}

	s.opts.Notifier.RoomChanged(core.KindRecord, roomID)

	if err := s.channel.Publish(ctx, core.NewInvalidateEvent(s.channel.Origin(), roomID)); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("invalidation not published; replicas still converge on read")
		return core.MutationResult{}, nil
	}
	return core.MutationResult{Published: true}, nil
}

// GetRoom always reads the durable store.
func (s *Strategy) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	if err := core.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	return s.store.GetRoom(ctx, roomID)
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
	s.log.Debug().Str("room_id", ev.RoomID).Str("origin", ev.Origin).Msg("received invalidation; clients should re-read from the store")
	s.opts.Notifier.RoomChanged(core.KindRecord, ev.RoomID)
}

func (s *Strategy) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
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

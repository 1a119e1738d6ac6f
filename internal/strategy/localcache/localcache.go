// Package localcache implements the local-cache strategy: every replica keeps
// rooms in memory and a mutation broadcasts the full room snapshot, which other
// replicas install unconditionally.
//
// There is no version check on received snapshots. Two replicas mutating the
// same room at nearly the same time can overwrite each other's change when
// their payloads cross on the bus.
package localcache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// Strategy is the local-cache implementation of core.Strategy.
type Strategy struct {
	rooms   *Rooms
	channel *core.EventChannel
	opts    core.StrategyOptions
	log     *zerolog.Logger
	label   string

	applied  *atomic.Int64
	degraded *atomic.Int64

	mu  sync.Mutex
	sub core.Subscription
}

var _ core.Strategy = (*Strategy)(nil)

// New creates the strategy over rooms, which the caller owns. A nil rooms
// gets a fresh map. An empty label falls back to the default one.
func New(rooms *Rooms, channel *core.EventChannel, label string, opts ...core.Option) *Strategy {
	o := core.ApplyOptions(opts...)
	if rooms == nil {
		rooms = NewRooms()
	}
	if label == "" {
		label = "Local Cache + Redis Pub/Sub (Payload)"
	}
	logger := o.Logger.With().Str("strategy", string(core.KindLocalCache)).Logger()
	return &Strategy{
		rooms:    rooms,
		channel:  channel,
		opts:     o,
		log:      &logger,
		label:    label,
		applied:  atomic.NewInt64(0),
		degraded: atomic.NewInt64(0),
	}
}

func (s *Strategy) Kind() core.Kind { return core.KindLocalCache }

func (s *Strategy) Name() string { return s.label }

// CreateRoom inserts a room into this replica's map only.
func (s *Strategy) CreateRoom(_ context.Context, roomID string) error {
	if err := core.ValidateRoomID(roomID); err != nil {
		return err
	}
	s.log.Debug().Str("room_id", roomID).Msg("create room")
	return s.rooms.Insert(roomID, s.opts.Policy)
}

// SelectValue applies the selection locally and publishes the full snapshot.
// An unknown room fails with core.ErrRoomNotFound. A failed publish keeps the
// local write and returns a degraded result, since the bus is the only way
// other replicas learn about it.
func (s *Strategy) SelectValue(ctx context.Context, roomID, participantID, value string) (core.MutationResult, error) {
	if err := core.ValidateSelection(roomID, participantID); err != nil {
		return core.MutationResult{}, err
	}
	s.log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Msg("select value")

	var result core.MutationResult
	err := s.rooms.Mutate(roomID, func(room *core.Room) error {
		room.Select(participantID, value)
		// Publishing under the room lock keeps this replica's snapshots in mutation order.
		if err := s.channel.Publish(ctx, core.NewPayloadEvent(s.channel.Origin(), room)); err != nil {
			s.degraded.Inc()
			s.log.Warn().Err(err).Str("room_id", roomID).Msg("payload not published; other replicas will not see this change")
			result.Degraded = true
			return nil
		}
		result.Published = true
		return nil
	})
	if err != nil {
		return core.MutationResult{}, err
	}

	s.opts.Notifier.RoomChanged(core.KindLocalCache, roomID)
	return result, nil
}

// GetRoom returns this replica's copy of the room.
func (s *Strategy) GetRoom(_ context.Context, roomID string) (*core.Room, error) {
	if err := core.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room, nil
}

// Start subscribes to snapshots from other replicas.
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
	if ev.Kind != core.EventPayload {
		s.log.Warn().Str("type", string(ev.Kind)).Str("room_id", ev.RoomID).Msg("unexpected event type")
		return
	}
	s.log.Debug().Str("room_id", ev.RoomID).Str("origin", ev.Origin).Msg("received payload; replacing local room")
	s.rooms.Replace(ev.Payload)
	s.applied.Inc()
	s.opts.Notifier.RoomChanged(core.KindLocalCache, ev.RoomID)
}

// Applied returns how many snapshots from other replicas were installed.
func (s *Strategy) Applied() int64 { return s.applied.Load() }

// Degraded returns how many local mutations failed to publish.
func (s *Strategy) Degraded() int64 { return s.degraded.Load() }

func (s *Strategy) Ping(ctx context.Context) error {
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

package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// RoomService dispatches room operations to the selected strategy. It holds
// no room state itself.
type RoomService struct {
	strategies map[Kind]Strategy
	log        *zerolog.Logger
}

// NewRoomService registers strategies by kind. A later strategy with the same
// kind replaces an earlier one.
func NewRoomService(logger *zerolog.Logger, strategies ...Strategy) *RoomService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	m := make(map[Kind]Strategy, len(strategies))
	for _, st := range strategies {
		m[st.Kind()] = st
	}
	return &RoomService{strategies: m, log: logger}
}

// Kinds returns the enabled strategy kinds in stable order.
func (s *RoomService) Kinds() []Kind {
	return lo.Filter(Kinds(), func(k Kind, _ int) bool {
		_, ok := s.strategies[k]
		return ok
	})
}

// Strategy returns the strategy registered for kind.
func (s *RoomService) Strategy(kind Kind) (Strategy, error) {
	st, ok := s.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", ErrUnknownStrategy, kind)
	}
	return st, nil
}

// CreateRoom creates roomID using the kind strategy.
func (s *RoomService) CreateRoom(ctx context.Context, kind Kind, roomID string) error {
	st, err := s.Strategy(kind)
	if err != nil {
		return err
	}
	return st.CreateRoom(ctx, roomID)
}

// SelectValue applies a participant selection using the kind strategy.
func (s *RoomService) SelectValue(ctx context.Context, kind Kind, roomID, participantID, value string) (MutationResult, error) {
	st, err := s.Strategy(kind)
	if err != nil {
		return MutationResult{}, err
	}
	return st.SelectValue(ctx, roomID, participantID, value)
}

// GetRoom reads roomID using the kind strategy.
func (s *RoomService) GetRoom(ctx context.Context, kind Kind, roomID string) (*Room, error) {
	st, err := s.Strategy(kind)
	if err != nil {
		return nil, err
	}
	return st.GetRoom(ctx, roomID)
}

// Start subscribes every strategy. If one fails the already started ones are closed.
func (s *RoomService) Start(ctx context.Context) error {
	started := make([]Strategy, 0, len(s.strategies))
	for _, kind := range s.Kinds() {
		st := s.strategies[kind]
		if err := st.Start(ctx); err != nil {
			for _, prev := range started {
				_ = prev.Close()
			}
			return fmt.Errorf("start %s strategy: %w", kind, err)
		}
		s.log.Info().Str("strategy", string(kind)).Str("name", st.Name()).Msg("strategy started")
		started = append(started, st)
	}
	return nil
}

// Ping checks the backends of every strategy.
func (s *RoomService) Ping(ctx context.Context) error {
	var err error
	for _, kind := range s.Kinds() {
		if pingErr := s.strategies[kind].Ping(ctx); pingErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", kind, pingErr))
		}
	}
	return err
}

// Close drops every strategy subscription.
func (s *RoomService) Close() error {
	var err error
	for _, kind := range s.Kinds() {
		err = multierr.Append(err, s.strategies[kind].Close())
	}
	return err
}

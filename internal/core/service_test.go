package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	kind     Kind
	startErr error
	pingErr  error
	started  bool
	closed   bool
	rooms    map[string]*Room
}

func newFakeStrategy(kind Kind) *fakeStrategy {
	return &fakeStrategy{kind: kind, rooms: make(map[string]*Room)}
}

func (f *fakeStrategy) Kind() Kind { return f.kind }
func (f *fakeStrategy) Name() string { return "fake " + string(f.kind) }

func (f *fakeStrategy) CreateRoom(_ context.Context, roomID string) error {
	if _, ok := f.rooms[roomID]; ok {
		return ErrRoomExists
	}
	f.rooms[roomID] = NewRoom(roomID)
	return nil
}

func (f *fakeStrategy) SelectValue(_ context.Context, roomID, participantID, value string) (MutationResult, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return MutationResult{}, ErrRoomNotFound
	}
	room.Select(participantID, value)
	return MutationResult{Published: true}, nil
}

func (f *fakeStrategy) GetRoom(_ context.Context, roomID string) (*Room, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (f *fakeStrategy) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeStrategy) Ping(context.Context) error { return f.pingErr }

func (f *fakeStrategy) Close() error {
	f.closed = true
	return nil
}

func TestRoomServiceDispatchesByKind(t *testing.T) {
	rec := newFakeStrategy(KindRecord)
	loc := newFakeStrategy(KindLocalCache)
	svc := NewRoomService(nil, loc, rec)
	ctx := context.Background()

	assert.Equal(t, []Kind{KindRecord, KindLocalCache}, svc.Kinds())

	require.NoError(t, svc.CreateRoom(ctx, KindRecord, "room-1"))
	res, err := svc.SelectValue(ctx, KindRecord, "room-1", "alice", "Ace")
	require.NoError(t, err)
	assert.True(t, res.Published)

	room, err := svc.GetRoom(ctx, KindRecord, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "Ace", room.Selections["alice"])

	_, err = svc.GetRoom(ctx, KindLocalCache, "room-1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = svc.GetRoom(ctx, KindSharedCache, "room-1")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRoomServiceStartRollsBack(t *testing.T) {
	rec := newFakeStrategy(KindRecord)
	shared := newFakeStrategy(KindSharedCache)
	shared.startErr = errors.New("no bus")
	svc := NewRoomService(nil, rec, shared)

	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.True(t, rec.started)
	assert.True(t, rec.closed)
}

func TestRoomServicePingAggregates(t *testing.T) {
	rec := newFakeStrategy(KindRecord)
	rec.pingErr = ErrStoreUnavailable
	loc := newFakeStrategy(KindLocalCache)
	loc.pingErr = ErrBusUnavailable
	svc := NewRoomService(nil, rec, loc)

	err := svc.Ping(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, ErrBusUnavailable)

	require.NoError(t, svc.Close())
	assert.True(t, rec.closed)
	assert.True(t, loc.closed)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, ErrCodeRoomNotFound, CodeOf(ErrRoomNotFound))
	assert.Equal(t, ErrCodeStoreUnavailable, CodeOf(errors.Join(errors.New("x"), ErrStoreUnavailable)))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))

	ce := ToCoreError(ErrRoomExists)
	assert.Equal(t, ErrCodeRoomExists, ce.Code)
	assert.Equal(t, "room already exists", ce.Message)
}

func TestParseHelpers(t *testing.T) {
	kind, err := ParseKind(" Global ")
	require.NoError(t, err)
	assert.Equal(t, KindSharedCache, kind)
	assert.Equal(t, "staging-local-cache-events", KindLocalCache.Topic("staging-"))

	policy, err := ParseCreatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, CreateReject, policy)
	_, err = ParseCreatePolicy("merge")
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.ErrorIs(t, ValidateSelection("room-1", ""), ErrBadRequest)
}

package badgerstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

func TestInsertRoomPolicies(t *testing.T) {
	req := require.New(t)
	s, err := New(t.TempDir())
	req.NoError(err)
	defer s.Close()
	ctx := context.Background()

	req.NoError(s.InsertRoom(ctx, core.NewRoom("room-1"), core.CreateReject))
	req.NoError(s.WithTx(ctx, func(tx core.RoomTx) error {
		room, err := tx.GetRoom(ctx, "room-1")
		if err != nil {
			return err
		}
		room.Select("alice", "Ace")
		return tx.PutRoom(ctx, room)
	}))

	req.ErrorIs(s.InsertRoom(ctx, core.NewRoom("room-1"), core.CreateReject), core.ErrRoomExists)
	req.NoError(s.InsertRoom(ctx, core.NewRoom("room-1"), core.CreateIgnore))
	room, err := s.GetRoom(ctx, "room-1")
	req.NoError(err)
	req.Equal(map[string]string{"alice": "Ace"}, room.Selections)

	req.NoError(s.InsertRoom(ctx, core.NewRoom("room-1"), core.CreateOverwrite))
	room, err = s.GetRoom(ctx, "room-1")
	req.NoError(err)
	req.Empty(room.Selections)
}

func TestUnknownRoom(t *testing.T) {
	req := require.New(t)
	s, err := New("")
	req.NoError(err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.GetRoom(ctx, "missing")
	req.ErrorIs(err, core.ErrRoomNotFound)

	err = s.WithTx(ctx, func(tx core.RoomTx) error {
		return tx.PutRoom(ctx, core.NewRoom("missing"))
	})
	req.ErrorIs(err, core.ErrRoomNotFound)
}

func TestConflictingWritersKeepEverySelection(t *testing.T) {
	req := require.New(t)
	s, err := New("")
	req.NoError(err)
	defer s.Close()
	ctx := context.Background()
	req.NoError(s.InsertRoom(ctx, core.NewRoom("room-1"), core.CreateReject))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.WithTx(ctx, func(tx core.RoomTx) error {
				room, err := tx.GetRoom(ctx, "room-1")
				if err != nil {
					return err
				}
				room.Select(fmt.Sprintf("user-%d", i), "Queen")
				return tx.PutRoom(ctx, room)
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	room, err := s.GetRoom(ctx, "room-1")
	req.NoError(err)
	req.Len(room.Selections, writers)
}

func TestPingAfterClose(t *testing.T) {
	req := require.New(t)
	s, err := New("")
	req.NoError(err)
	req.NoError(s.Ping(context.Background()))
	req.NoError(s.Close())
	req.ErrorIs(s.Ping(context.Background()), core.ErrStoreUnavailable)
}

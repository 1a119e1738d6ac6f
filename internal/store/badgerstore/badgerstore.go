// Package badgerstore implements core.DurableStore on an embedded Badger
// key-value database. Rooms are stored as JSON under "room:<id>".
package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

const (
	keyPrefix = "room:"

	// conflictRetries bounds how often a transaction is replayed after
	// losing an optimistic conflict.
	conflictRetries = 16
)

// Store implements core.DurableStore for Badger.
type Store struct {
	db *badger.DB
}

var _ core.DurableStore = (*Store)(nil)

// New opens the database in dir. An empty dir keeps everything in memory.
func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", core.ErrStoreUnavailable)
	}
	return nil
}

// GetRoom reads a room in a read-only transaction.
func (s *Store) GetRoom(_ context.Context, roomID string) (*core.Room, error) {
	var room *core.Room
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// InsertRoom creates room according to policy.
func (s *Store) InsertRoom(ctx context.Context, room *core.Room, policy core.CreatePolicy) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if policy != core.CreateOverwrite {
			_, err := txn.Get(key(room.ID))
			switch {
			case err == nil && policy == core.CreateIgnore:
				return nil
			case err == nil:
				return core.ErrRoomExists
			case !errors.Is(err, badger.ErrKeyNotFound):
				return unavailable("get", err)
			}
		}
		return putRoom(txn, room)
	})
}

// WithTx runs fn in a read-write transaction. Badger transactions are
// optimistic, so fn may run more than once when writers collide.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.RoomTx) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return unavailable("update", ctxErr)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return unavailable("update", err)
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) GetRoom(_ context.Context, roomID string) (*core.Room, error) {
	return getRoom(t.txn, roomID)
}

func (t *badgerTx) PutRoom(_ context.Context, room *core.Room) error {
	if _, err := t.txn.Get(key(room.ID)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrRoomNotFound
		}
		return unavailable("get", err)
	}
	return putRoom(t.txn, room)
}

func getRoom(txn *badger.Txn, roomID string) (*core.Room, error) {
	item, err := txn.Get(key(roomID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}

	var room *core.Room
	err = item.Value(func(val []byte) error {
		room, err = core.DecodeRoom(val)
		return err
	})
	if err != nil {
		return nil, unavailable("decode", err)
	}
	return room, nil
}

func putRoom(txn *badger.Txn, room *core.Room) error {
	data, err := core.EncodeRoom(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	if err := txn.Set(key(room.ID), data); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func key(roomID string) []byte {
	return []byte(keyPrefix + roomID)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: badger %s: %w", core.ErrStoreUnavailable, op, err)
}

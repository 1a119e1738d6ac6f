// Package postgres implements core.DurableStore on PostgreSQL. Unlike the
// SQLite store it can be shared by replicas on different hosts.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/store"
)

// Store implements core.DurableStore for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.DurableStore = (*Store)(nil)

// New connects to dsn and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = store.MigratePostgres(ctx, db)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that a connection can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// GetRoom reads a room outside any transaction.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	return getRoom(ctx, s.pool, roomID, false)
}

// InsertRoom creates room according to policy.
func (s *Store) InsertRoom(ctx context.Context, room *core.Room, policy core.CreatePolicy) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if policy == core.CreateOverwrite {
			_, err := tx.Exec(ctx, `
				INSERT INTO rooms (id) VALUES ($1)
				ON CONFLICT (id) DO UPDATE SET updated_at = now()`, room.ID)
			if err != nil {
				return unavailable("upsert room", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM room_selections WHERE room_id = $1`, room.ID); err != nil {
				return unavailable("reset room", err)
			}
			return putSelections(ctx, tx, room)
		}

		tag, err := tx.Exec(ctx, `INSERT INTO rooms (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, room.ID)
		if err != nil {
			return unavailable("insert room", err)
		}
		if tag.RowsAffected() == 0 {
			if policy == core.CreateIgnore {
				return nil
			}
			return core.ErrRoomExists
		}
		return putSelections(ctx, tx, room)
	})
}

// WithTx runs fn in one transaction. Rooms read through the transaction are
// locked until it ends.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.RoomTx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	return getRoom(ctx, t.tx, roomID, true)
}

func (t *pgTx) PutRoom(ctx context.Context, room *core.Room) error {
	tag, err := t.tx.Exec(ctx, `UPDATE rooms SET updated_at = now() WHERE id = $1`, room.ID)
	if err != nil {
		return unavailable("update room", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRoomNotFound
	}
	return putSelections(ctx, t.tx, room)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRoom(ctx context.Context, q querier, roomID string, lock bool) (*core.Room, error) {
	query := `SELECT id FROM rooms WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var id string
	err := q.QueryRow(ctx, query, roomID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, unavailable("get room", err)
	}

	rows, err := q.Query(ctx, `SELECT participant_id, value FROM room_selections WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, unavailable("get selections", err)
	}
	defer rows.Close()

	room := core.NewRoom(id)
	for rows.Next() {
		var participantID, value string
		if err := rows.Scan(&participantID, &value); err != nil {
			return nil, unavailable("scan selection", err)
		}
		room.Select(participantID, value)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("get selections", err)
	}
	return room, nil
}

func putSelections(ctx context.Context, q querier, room *core.Room) error {
	for participantID, value := range room.Selections {
		_, err := q.Exec(ctx, `
			INSERT INTO room_selections (room_id, participant_id, value) VALUES ($1, $2, $3)
			ON CONFLICT (room_id, participant_id) DO UPDATE SET value = excluded.value`,
			room.ID, participantID, value)
		if err != nil {
			return unavailable("put selection", err)
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: postgres %s (sqlstate %s): %w", core.ErrStoreUnavailable, op, pgErr.Code, err)
	}
	return fmt.Errorf("%w: postgres %s: %w", core.ErrStoreUnavailable, op, err)
}

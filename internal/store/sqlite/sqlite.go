// Package sqlite implements core.DurableStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/store"
)

// SQLiteStore implements core.DurableStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.DurableStore = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
// ":memory:" gives a private in-memory database.
func New(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := store.MigrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// GetRoom reads a room outside any transaction.
func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	return getRoom(ctx, s.db, roomID)
}

// InsertRoom creates room according to policy. Overwrite replaces an
// existing room's selections with room's.
func (s *SQLiteStore) InsertRoom(ctx context.Context, room *core.Room, policy core.CreatePolicy) error {
	return s.withTx(ctx, func(q *sql.Tx) error {
		if policy == core.CreateOverwrite {
			_, err := q.ExecContext(ctx, `
				INSERT INTO rooms (id) VALUES (?)
				ON CONFLICT(id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`, room.ID)
			if err != nil {
				return unavailable("upsert room", err)
			}
			if _, err := q.ExecContext(ctx, `DELETE FROM room_selections WHERE room_id = ?`, room.ID); err != nil {
				return unavailable("reset room", err)
			}
			return putSelections(ctx, q, room)
		}

		res, err := q.ExecContext(ctx, `INSERT INTO rooms (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, room.ID)
		if err != nil {
			return unavailable("insert room", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("insert room", err)
		}
		if n == 0 {
			if policy == core.CreateIgnore {
				return nil
			}
			return core.ErrRoomExists
		}
		return putSelections(ctx, q, room)
	})
}

// WithTx runs fn in a single transaction and commits if fn returns nil.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx core.RoomTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqliteTx{tx: tx})
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	return getRoom(ctx, t.tx, roomID)
}

func (t *sqliteTx) PutRoom(ctx context.Context, room *core.Room) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, room.ID)
	if err != nil {
		return unavailable("update room", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrRoomNotFound
	}
	return putSelections(ctx, t.tx, room)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoom(ctx context.Context, q querier, roomID string) (*core.Room, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = ?`, roomID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, unavailable("get room", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT participant_id, value FROM room_selections WHERE room_id = ?`, roomID)
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
		_, err := q.ExecContext(ctx, `
			INSERT INTO room_selections (room_id, participant_id, value) VALUES (?, ?, ?)
			ON CONFLICT(room_id, participant_id) DO UPDATE SET value = excluded.value`,
			room.ID, participantID, value)
		if err != nil {
			return unavailable("put selection", err)
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %w", core.ErrStoreUnavailable, op, err)
}

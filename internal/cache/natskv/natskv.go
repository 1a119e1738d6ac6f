// Package natskv implements core.SharedCache on a NATS JetStream key-value bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

const (
	// DefaultBucket is the bucket used when none is configured.
	DefaultBucket = "rooms"
	keyPrefix     = "room."
)

// Cache stores each room as JSON under "room.<id>" in a KV bucket.
type Cache struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

var _ core.SharedCache = (*Cache)(nil)

// New binds to bucket, creating it if another replica has not already.
func New(conn *nats.Conn, bucket string) (*Cache, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("natskv: jetstream: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
		if err != nil {
			// Another replica may have created it concurrently.
			if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
				kv, err = js.KeyValue(bucket)
			}
			if err != nil {
				return nil, fmt.Errorf("natskv: create bucket: %w", err)
			}
		}
	}
	return &Cache{conn: conn, kv: kv}, nil
}

func key(roomID string) string {
	return keyPrefix + roomID
}

func wrap(op, roomID string, err error) error {
	if errors.Is(err, nats.ErrInvalidKey) {
		return fmt.Errorf("%w: room id %q is not a valid key", core.ErrBadRequest, roomID)
	}
	return fmt.Errorf("%w: nats kv %s %s: %w", core.ErrStoreUnavailable, op, roomID, err)
}

// Load returns the stored room or core.ErrRoomNotFound.
func (c *Cache) Load(_ context.Context, roomID string) (*core.Room, error) {
	entry, err := c.kv.Get(key(roomID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, core.ErrRoomNotFound
		}
		return nil, wrap("get", roomID, err)
	}
	room, err := core.DecodeRoom(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return room, nil
}

// Store overwrites the room value.
func (c *Cache) Store(_ context.Context, room *core.Room) error {
	data, err := core.EncodeRoom(room)
	if err != nil {
		return err
	}
	if _, err := c.kv.Put(key(room.ID), data); err != nil {
		return wrap("put", room.ID, err)
	}
	return nil
}

// StoreIfAbsent writes the room with Create, which fails if the key exists.
func (c *Cache) StoreIfAbsent(_ context.Context, room *core.Room) (bool, error) {
	data, err := core.EncodeRoom(room)
	if err != nil {
		return false, err
	}
	if _, err := c.kv.Create(key(room.ID), data); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return false, nil
		}
		return false, wrap("create", room.ID, err)
	}
	return true, nil
}

// Ping checks the connection and the bucket.
func (c *Cache) Ping(_ context.Context) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("%w: nats not connected", core.ErrStoreUnavailable)
	}
	if _, err := c.kv.Status(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (c *Cache) Close() error { return nil }

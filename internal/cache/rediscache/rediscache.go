// Package rediscache implements core.SharedCache on plain Redis string keys.
package rediscache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/roomsync-server/internal/core"
)

// DefaultKeyPrefix namespaces room keys.
const DefaultKeyPrefix = "gameroom:"

// Cache stores each room as JSON under prefix+roomID. The client is owned by
// the caller.
type Cache struct {
	client *redis.Client
	prefix string
}

var _ core.SharedCache = (*Cache)(nil)

// New wraps client. An empty prefix means DefaultKeyPrefix.
func New(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(roomID string) string {
	return c.prefix + roomID
}

// Load returns the stored room or core.ErrRoomNotFound.
func (c *Cache) Load(ctx context.Context, roomID string) (*core.Room, error) {
	data, err := c.client.Get(ctx, c.key(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: redis get %s: %w", core.ErrStoreUnavailable, roomID, err)
	}
	room, err := core.DecodeRoom(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return room, nil
}

// Store overwrites the room value.
func (c *Cache) Store(ctx context.Context, room *core.Room) error {
	data, err := core.EncodeRoom(room)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(room.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %w", core.ErrStoreUnavailable, room.ID, err)
	}
	return nil
}

// StoreIfAbsent writes the room with SETNX.
func (c *Cache) StoreIfAbsent(ctx context.Context, room *core.Room) (bool, error) {
	data, err := core.EncodeRoom(room)
	if err != nil {
		return false, err
	}
	ok, err := c.client.SetNX(ctx, c.key(room.ID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis setnx %s: %w", core.ErrStoreUnavailable, room.ID, err)
	}
	return ok, nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (c *Cache) Close() error { return nil }

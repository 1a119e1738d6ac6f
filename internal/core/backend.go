package core

import "context"

// Handler receives raw messages for a subscribed topic. A bus invokes the
// handler of one subscription from a single goroutine.
type Handler func(ctx context.Context, payload []byte)

// Subscription is a live topic subscription.
type Subscription interface {
	Close() error
}

// Bus is the broadcast channel shared by all replicas. Delivery is
// at-least-once to live subscribers, possibly duplicated and unordered
// across publishers.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// RoomTx is the view of the durable store inside one transaction.
type RoomTx interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	PutRoom(ctx context.Context, room *Room) error
}

// DurableStore is the transactional source of truth used by the record strategy.
// GetRoom returns ErrRoomNotFound for unknown rooms; other failures wrap
// ErrStoreUnavailable.
type DurableStore interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	InsertRoom(ctx context.Context, room *Room, policy CreatePolicy) error
	WithTx(ctx context.Context, fn func(tx RoomTx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// SharedCache is a key-value store visible to every replica. It offers no
// multi-step atomicity beyond single-key writes.
type SharedCache interface {
	Load(ctx context.Context, roomID string) (*Room, error)
	Store(ctx context.Context, room *Room) error
	// StoreIfAbsent writes room only if its key is unset and reports whether it did.
	StoreIfAbsent(ctx context.Context, room *Room) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// ChangeNotifier is told whenever a strategy learns that a room changed.
type ChangeNotifier interface {
	RoomChanged(kind Kind, roomID string)
}

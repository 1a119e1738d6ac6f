package core

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies one of the synchronization strategies.
type Kind string

const (
	// KindRecord keeps rooms in a durable store and broadcasts invalidations.
	KindRecord Kind = "rdbms"
	// KindSharedCache keeps rooms in a shared key-value store and broadcasts invalidations.
	KindSharedCache Kind = "global"
	// KindLocalCache keeps rooms in replica memory and broadcasts full snapshots.
	KindLocalCache Kind = "local"
)

// Kinds lists every strategy kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRecord, KindSharedCache, KindLocalCache}
}

// ParseKind resolves a case-insensitive strategy name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindRecord:
		return KindRecord, nil
	case KindSharedCache:
		return KindSharedCache, nil
	case KindLocalCache:
		return KindLocalCache, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Topic returns the bus topic owned by the strategy.
func (k Kind) Topic(prefix string) string {
	var name string
	switch k {
	case KindRecord:
		name = "rdbms-events"
	case KindSharedCache:
		name = "global-cache-events"
	case KindLocalCache:
		name = "local-cache-events"
	default:
		name = string(k) + "-events"
	}
	return prefix + name
}

// CreatePolicy decides what happens when a room is created twice.
type CreatePolicy string

const (
	// CreateReject fails the second create with ErrRoomExists.
	CreateReject CreatePolicy = "reject"
	// CreateIgnore makes the second create a no-op.
	CreateIgnore CreatePolicy = "ignore"
	// CreateOverwrite replaces the existing room with an empty one.
	CreateOverwrite CreatePolicy = "overwrite"
)

// ParseCreatePolicy resolves a policy name. Empty means CreateReject.
func ParseCreatePolicy(s string) (CreatePolicy, error) {
	switch p := CreatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CreateReject, nil
	case CreateReject, CreateIgnore, CreateOverwrite:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown create policy %q", ErrBadRequest, s)
	}
}

// MutationResult reports how far a successful mutation propagated.
// Degraded is only set by strategies whose sole propagation channel is the bus.
type MutationResult struct {
	Published bool
	Degraded  bool
}

// Strategy is the contract shared by all synchronization strategies.
type Strategy interface {
	Kind() Kind
	// Name is a human-readable label for diagnostics.
	Name() string

	CreateRoom(ctx context.Context, roomID string) error
	SelectValue(ctx context.Context, roomID, participantID, value string) (MutationResult, error)
	GetRoom(ctx context.Context, roomID string) (*Room, error)

	// Start subscribes the strategy to its topic.
	Start(ctx context.Context) error
	// Ping checks the backends the strategy depends on.
	Ping(ctx context.Context) error
	// Close drops the subscription. Backends are owned by the caller.
	Close() error
}

// ValidateRoomID rejects empty room identifiers.
func ValidateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("%w: room id is required", ErrBadRequest)
	}
	return nil
}

// ValidateSelection rejects selections without a room or participant.
func ValidateSelection(roomID, participantID string) error {
	if err := ValidateRoomID(roomID); err != nil {
		return err
	}
	if strings.TrimSpace(participantID) == "" {
		return fmt.Errorf("%w: participant id is required", ErrBadRequest)
	}
	return nil
}

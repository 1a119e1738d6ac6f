package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventKind discriminates synchronization events on the wire.
type EventKind string

const (
	// EventInvalidate tells replicas to reload the room from the source of truth.
	EventInvalidate EventKind = "INVALIDATE"
	// EventPayload carries the entire post-mutation room snapshot.
	EventPayload EventKind = "PAYLOAD"
)

// SyncEvent is published after a mutation and consumed by the other replicas.
// Origin names the publishing replica. Events are never persisted.
type SyncEvent struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"type"`
	RoomID  string    `json:"roomId"`
	Payload *Room     `json:"payload,omitempty"`
	Origin  string    `json:"origin,omitempty"`
}

// NewInvalidateEvent builds an Invalidate{roomID} event.
func NewInvalidateEvent(origin, roomID string) SyncEvent {
	return SyncEvent{
		ID:     uuid.NewString(),
		Kind:   EventInvalidate,
		RoomID: roomID,
		Origin: origin,
	}
}

// NewPayloadEvent builds a Payload{room.ID, room} event from a copy of room.
func NewPayloadEvent(origin string, room *Room) SyncEvent {
	return SyncEvent{
		ID:      uuid.NewString(),
		Kind:    EventPayload,
		RoomID:  room.ID,
		Payload: room.Clone(),
		Origin:  origin,
	}
}

// Encode serializes the event for the bus.
func (e SyncEvent) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Validate checks the variant invariants.
func (e SyncEvent) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: event without room id", ErrBadRequest)
	}
	switch e.Kind {
	case EventInvalidate:
		if e.Payload != nil {
			return fmt.Errorf("%w: invalidate event must not carry a payload", ErrBadRequest)
		}
	case EventPayload:
		if e.Payload == nil {
			return fmt.Errorf("%w: payload event without room", ErrBadRequest)
		}
		if e.Payload.ID != e.RoomID {
			return fmt.Errorf("%w: payload room %q does not match event room %q", ErrBadRequest, e.Payload.ID, e.RoomID)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrBadRequest, e.Kind)
	}
	return nil
}

// DecodeEvent parses and validates an event received from the bus.
func DecodeEvent(data []byte) (SyncEvent, error) {
	var ev SyncEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return SyncEvent{}, fmt.Errorf("%w: decode event: %w", ErrBadRequest, err)
	}
	if err := ev.Validate(); err != nil {
		return SyncEvent{}, err
	}
	if ev.Payload != nil && ev.Payload.Selections == nil {
		ev.Payload.Selections = make(map[string]string)
	}
	return ev, nil
}

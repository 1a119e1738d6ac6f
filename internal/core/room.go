package core

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Room is the unit of shared state: participant selections keyed by participant ID.
// Selections only grow or overwrite existing keys.
type Room struct {
	ID         string            `json:"roomId"`
	Selections map[string]string `json:"selections"`
}

// NewRoom constructs a room with no selections.
func NewRoom(id string) *Room {
	return &Room{
		ID:         id,
		Selections: make(map[string]string),
	}
}

// Select records value for participant, overwriting any previous selection.
func (r *Room) Select(participant, value string) {
	if r.Selections == nil {
		r.Selections = make(map[string]string)
	}
	r.Selections[participant] = value
}

// Selection returns the value chosen by participant.
func (r *Room) Selection(participant string) (string, bool) {
	v, ok := r.Selections[participant]
	return v, ok
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := &Room{ID: r.ID, Selections: maps.Clone(r.Selections)}
	if out.Selections == nil {
		out.Selections = make(map[string]string)
	}
	return out
}

// Empty returns true if nobody has selected anything yet.
func (r *Room) Empty() bool {
	return len(r.Selections) == 0
}

// EncodeRoom serializes a room for key-value backends.
func EncodeRoom(r *Room) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRoom parses a room written by EncodeRoom.
func DecodeRoom(data []byte) (*Room, error) {
	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if r.Selections == nil {
		r.Selections = make(map[string]string)
	}
	return &r, nil
}

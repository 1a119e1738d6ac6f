// Package proto defines the JSON messages exchanged with WebSocket and REST clients.
package proto

// Inbound is a command sent by a WebSocket client.
type Inbound struct {
	Command   string `json:"command"`
	Strategy  string `json:"strategy"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId,omitempty"`
	CardValue string `json:"cardValue,omitempty"`
}

const (
	CommandCreateRoom = "CREATE_ROOM"
	CommandSelectCard = "SELECT_CARD"
	CommandGetRoom    = "GET_ROOM"
	CommandWatch      = "WATCH"
	CommandUnwatch    = "UNWATCH"

	StatusCreated   = "CREATED"
	StatusSelected  = "SELECTED"
	StatusDegraded  = "DEGRADED"
	StatusWatching  = "WATCHING"
	StatusUnwatched = "UNWATCHED"

	EventRoomChanged = "ROOM_CHANGED"
)

// Reply acknowledges a command that does not return a room.
// Published is set for selections and tells whether peers were notified.
type Reply struct {
	Status    string `json:"status"`
	RoomID    string `json:"roomId"`
	Published *bool  `json:"published,omitempty"`
}

// Room is the client view of a room.
type Room struct {
	RoomID     string            `json:"roomId"`
	Selections map[string]string `json:"selections"`
}

// Event is pushed to clients watching a room.
type Event struct {
	Event    string `json:"event"`
	Strategy string `json:"strategy"`
	RoomID   string `json:"roomId"`
}

// ErrorReply wraps an error for the client.
type ErrorReply struct {
	Error *Error `json:"error"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// StrategyInfo describes an enabled strategy.
type StrategyInfo struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

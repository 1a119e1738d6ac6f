package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCreateRoom creates a room.
	CommandCreateRoom CommandKind = iota
	// CommandSelectValue records a participant's selection.
	CommandSelectValue
	// CommandGetRoom reads a room.
	CommandGetRoom
	// CommandWatch subscribes the client to room changes.
	CommandWatch
	// CommandUnwatch cancels a watch.
	CommandUnwatch
)

// Command represents an action requested by a client against one strategy.
type Command struct {
	Kind          CommandKind
	Strategy      Kind
	RoomID        string
	ParticipantID string
	Value         string
}

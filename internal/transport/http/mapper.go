package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	var kind core.CommandKind
	switch inbound.Command {
	case proto.CommandCreateRoom:
		kind = core.CommandCreateRoom
	case proto.CommandSelectCard:
		kind = core.CommandSelectValue
	case proto.CommandGetRoom:
		kind = core.CommandGetRoom
	case proto.CommandWatch:
		kind = core.CommandWatch
	case proto.CommandUnwatch:
		kind = core.CommandUnwatch
	default:
		return nil, &proto.Error{Code: core.ErrCodeUnknownCommand, Msg: "unknown command " + inbound.Command}
	}

	strategy, err := core.ParseKind(inbound.Strategy)
	if err != nil {
		return nil, errorFrom(err)
	}
	if inbound.RoomID == "" {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}
	}
	if kind == core.CommandSelectValue && inbound.UserID == "" {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "userId is required"}
	}

	return &core.Command{
		Kind:          kind,
		Strategy:      strategy,
		RoomID:        inbound.RoomID,
		ParticipantID: inbound.UserID,
		Value:         inbound.CardValue,
	}, nil
}

func outboundFromChange(change core.RoomChange) proto.Event {
	return proto.Event{
		Event:    proto.EventRoomChanged,
		Strategy: string(change.Kind),
		RoomID:   change.RoomID,
	}
}

func roomView(room *core.Room) proto.Room {
	selections := room.Selections
	if selections == nil {
		selections = map[string]string{}
	}
	return proto.Room{RoomID: room.ID, Selections: selections}
}

func selectReply(roomID string, res core.MutationResult) proto.Reply {
	status := proto.StatusSelected
	if res.Degraded {
		status = proto.StatusDegraded
	}
	published := res.Published
	return proto.Reply{Status: status, RoomID: roomID, Published: &published}
}

func errorFrom(err error) *proto.Error {
	ce := core.ToCoreError(err)
	return &proto.Error{Code: ce.Code, Msg: ce.Message}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrRoomNotFound), errors.Is(err, core.ErrUnknownStrategy):
		return stdhttp.StatusNotFound
	case errors.Is(err, core.ErrRoomExists):
		return stdhttp.StatusConflict
	case errors.Is(err, core.ErrBadRequest):
		return stdhttp.StatusBadRequest
	case errors.Is(err, core.ErrStoreUnavailable), errors.Is(err, core.ErrBusUnavailable):
		return stdhttp.StatusServiceUnavailable
	default:
		return stdhttp.StatusInternalServerError
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/proto"
	"github.com/vovakirdan/roomsync-server/internal/utils"
)

// WSHandler upgrades HTTP connections, executes room commands and pushes
// change notifications for watched rooms.
type WSHandler struct {
	svc       *core.RoomService
	hub       *core.Hub
	rateLimit int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. rateLimit is the number of
// commands per minute a connection may send; zero means unlimited.
func NewWSHandler(svc *core.RoomService, hub *core.Hub, rateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{svc: svc, hub: hub, rateLimit: rateLimit, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	watcher := core.NewWatcher(utils.NewID())
	defer h.hub.UnwatchAll(watcher)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.rateLimit, time.Minute)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, watcher, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, watcher)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", watcher.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, watcher *core.Watcher, limiter *rateLimiter) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var reply any
		var inbound proto.Inbound
		switch {
		case !limiter.allow():
			reply = proto.ErrorReply{Error: &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many commands"}}
		case json.Unmarshal(data, &inbound) != nil:
			reply = proto.ErrorReply{Error: &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed command"}}
		default:
			cmd, protoErr := inboundToCommand(inbound)
			if protoErr != nil {
				reply = proto.ErrorReply{Error: protoErr}
			} else {
				reply = h.execute(ctx, watcher, cmd)
			}
		}

		if err := wsjson.Write(ctx, conn, reply); err != nil {
			h.log.Error().Err(err).Str("client_id", watcher.ID).Msg("write ws reply")
			return err
		}
	}
}

func (h *WSHandler) execute(ctx context.Context, watcher *core.Watcher, cmd *core.Command) any {
	log := h.log.With().
		Str("client_id", watcher.ID).
		Str("strategy", string(cmd.Strategy)).
		Str("room_id", cmd.RoomID).
		Logger()

	switch cmd.Kind {
	case core.CommandCreateRoom:
		if err := h.svc.CreateRoom(ctx, cmd.Strategy, cmd.RoomID); err != nil {
			log.Debug().Err(err).Msg("create room failed")
			return proto.ErrorReply{Error: errorFrom(err)}
		}
		return proto.Reply{Status: proto.StatusCreated, RoomID: cmd.RoomID}

	case core.CommandSelectValue:
		res, err := h.svc.SelectValue(ctx, cmd.Strategy, cmd.RoomID, cmd.ParticipantID, cmd.Value)
		if err != nil {
			log.Debug().Err(err).Msg("select value failed")
			return proto.ErrorReply{Error: errorFrom(err)}
		}
		return selectReply(cmd.RoomID, res)

	case core.CommandGetRoom:
		room, err := h.svc.GetRoom(ctx, cmd.Strategy, cmd.RoomID)
		if err != nil {
			log.Debug().Err(err).Msg("get room failed")
			return proto.ErrorReply{Error: errorFrom(err)}
		}
		return roomView(room)

	case core.CommandWatch:
		if _, err := h.svc.Strategy(cmd.Strategy); err != nil {
			return proto.ErrorReply{Error: errorFrom(err)}
		}
		h.hub.Watch(watcher, cmd.Strategy, cmd.RoomID)
		return proto.Reply{Status: proto.StatusWatching, RoomID: cmd.RoomID}

	case core.CommandUnwatch:
		h.hub.Unwatch(watcher, cmd.Strategy, cmd.RoomID)
		return proto.Reply{Status: proto.StatusUnwatched, RoomID: cmd.RoomID}

	default:
		return proto.ErrorReply{Error: &proto.Error{Code: core.ErrCodeUnknownCommand, Msg: "unknown command"}}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, watcher *core.Watcher) error {
	for {
		select {
		case change := <-watcher.Events:
			if err := wsjson.Write(ctx, conn, outboundFromChange(change)); err != nil {
				h.log.Error().Err(err).Str("client_id", watcher.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

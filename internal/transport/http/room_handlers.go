package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/proto"
)

const healthTimeout = 2 * time.Second

// RoomHandlers provides the REST room API.
type RoomHandlers struct {
	svc *core.RoomService
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(svc *core.RoomService, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		svc: svc,
		log: logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// SelectValueRequest represents the select value request body.
type SelectValueRequest struct {
	Value string `json:"value"`
}

// CreateRoom handles room creation.
// POST /api/:strategy/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	kind, ok := h.strategyParam(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, proto.ErrorReply{Error: &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid request body"}})
		return
	}

	if err := h.svc.CreateRoom(c.Request.Context(), kind, req.RoomID); err != nil {
		h.fail(c, err, "failed to create room")
		return
	}

	c.JSON(http.StatusCreated, proto.Reply{Status: proto.StatusCreated, RoomID: req.RoomID})
}

// SelectValue records a participant's selection.
// PUT /api/:strategy/rooms/:roomId/selections/:userId
func (h *RoomHandlers) SelectValue(c *gin.Context) {
	kind, ok := h.strategyParam(c)
	if !ok {
		return
	}

	var req SelectValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid select request")
		c.JSON(http.StatusBadRequest, proto.ErrorReply{Error: &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid request body"}})
		return
	}

	roomID := c.Param("roomId")
	res, err := h.svc.SelectValue(c.Request.Context(), kind, roomID, c.Param("userId"), req.Value)
	if err != nil {
		h.fail(c, err, "failed to select value")
		return
	}

	c.JSON(http.StatusOK, selectReply(roomID, res))
}

// GetRoom returns the current room state as seen by the strategy.
// GET /api/:strategy/rooms/:roomId
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	kind, ok := h.strategyParam(c)
	if !ok {
		return
	}

	room, err := h.svc.GetRoom(c.Request.Context(), kind, c.Param("roomId"))
	if err != nil {
		h.fail(c, err, "failed to get room")
		return
	}

	c.JSON(http.StatusOK, roomView(room))
}

// ListStrategies lists the enabled strategies.
// GET /api/strategies
func (h *RoomHandlers) ListStrategies(c *gin.Context) {
	infos := lo.FilterMap(h.svc.Kinds(), func(kind core.Kind, _ int) (proto.StrategyInfo, bool) {
		st, err := h.svc.Strategy(kind)
		if err != nil {
			return proto.StrategyInfo{}, false
		}
		return proto.StrategyInfo{Kind: string(kind), Name: st.Name()}, true
	})
	c.JSON(http.StatusOK, infos)
}

// Health pings every backend.
// GET /health
func (h *RoomHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RoomHandlers) strategyParam(c *gin.Context) (core.Kind, bool) {
	kind, err := core.ParseKind(c.Param("strategy"))
	if err != nil {
		c.JSON(http.StatusNotFound, proto.ErrorReply{Error: errorFrom(err)})
		return "", false
	}
	return kind, true
}

func (h *RoomHandlers) fail(c *gin.Context, err error, msg string) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	} else {
		h.log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	}
	c.JSON(status, proto.ErrorReply{Error: errorFrom(err)})
}

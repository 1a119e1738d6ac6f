package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync-server/internal/config"
	"github.com/vovakirdan/roomsync-server/internal/core"
)

// NewServer builds the HTTP server: REST room API, WebSocket endpoint and health check.
func NewServer(svc *core.RoomService, hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	rooms := NewRoomHandlers(svc, logger)

	router.GET("/health", rooms.Health)
	ws := gin.WrapH(NewWSHandler(svc, hub, cfg.WSRateLimit, logger))
	router.GET("/ws", ws)
	router.GET("/ws/games", ws)

	api := router.Group("/api")
	{
		api.GET("/strategies", rooms.ListStrategies)
		api.POST("/:strategy/rooms", rooms.CreateRoom)
		api.GET("/:strategy/rooms/:roomId", rooms.GetRoom)
		api.PUT("/:strategy/rooms/:roomId/selections/:userId", rooms.SelectValue)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

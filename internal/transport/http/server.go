package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/config"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/service/directory"
)

// NewServer builds the HTTP server: health, token issue, room listing and
// the WebSocket bridge to the line protocol.
func NewServer(hub *core.Hub, authService *auth.Service, dir *directory.Service, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(dir, logger)

	api := router.Group("/api")
	api.POST("/token", apiHandlers.Token)
	api.GET("/rooms", AuthMiddleware(authService, logger), roomHandlers.ListRooms)

	// /ws stays off the gin router: gin's writer refuses the hijack after the 101 status.
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg.MaxLineBytes, logger))
	mux.Handle("/", router)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/service/directory"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	directory *directory.Service
	log       *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(dir *directory.Service, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		directory: dir,
		log:       logger,
	}
}

// ListRooms lists the rooms the caller may join, with unread counts.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		h.log.Error().Msg("user not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	available, err := h.directory.ListAvailableRooms(c.Request.Context(), user)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Int64("user_id", user.ID).Int("room_count", len(available)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, roomsResponse(available))
}

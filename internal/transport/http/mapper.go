package http

import (
	"time"

	"github.com/vovakirdan/linechat-server/internal/service/directory"
)

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Visibility   string `json:"visibility"`
	Participants int    `json:"participants"`
	Unread       int    `json:"unread"`
	CreatedAt    string `json:"created_at"`
}

func roomsResponse(available []directory.AvailableRoom) []RoomResponse {
	response := make([]RoomResponse, 0, len(available))
	for _, a := range available {
		response = append(response, RoomResponse{
			ID:           a.Room.ID,
			Name:         a.Room.Name,
			Visibility:   a.Room.Visibility(),
			Participants: len(a.Room.ParticipantIDs),
			Unread:       a.Unread,
			CreatedAt:    a.Room.CreatedAt.Format(time.RFC3339),
		})
	}
	return response
}

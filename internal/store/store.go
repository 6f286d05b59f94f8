package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint (nickname, room name, dual pair) is violated.
	ErrConflict = errors.New("conflict")
)

// GeneralRoom is the always-present public room every user belongs to.
const GeneralRoom = "general"

// User represents a registered user.
type User struct {
	ID           int64
	Nickname     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room represents a chat room with its participant set.
type Room struct {
	ID             int64
	Name           string
	IsPublic       bool
	IsDual         bool
	ParticipantIDs []int64
	CreatedAt      time.Time
}

// HasParticipant reports whether userID is in the room's participant set.
func (r *Room) HasParticipant(userID int64) bool {
	return slices.Contains(r.ParticipantIDs, userID)
}

// Visibility returns the label used when listing the room.
func (r *Room) Visibility() string {
	switch {
	case r.IsDual:
		return "dual"
	case r.IsPublic:
		return "public"
	default:
		return "private"
	}
}

// Message represents a persisted chat message.
// Receivers only ever grows.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Body      string
	Receivers []int64
	CreatedAt time.Time
}

// ReceivedBy reports whether userID has been delivered the message.
func (m *Message) ReceivedBy(userID int64) bool {
	return slices.Contains(m.Receivers, userID)
}

// DualKey returns the canonical key of the unordered user pair {a, b}.
func DualKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dual:%d:%d", a, b)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrConflict if the nickname is taken.
	CreateUser(ctx context.Context, nickname, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByNickname retrieves a user by nickname.
	GetUserByNickname(ctx context.Context, nickname string) (*User, error)

	// ExistsByNickname reports whether a user with the nickname exists.
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)

	// ListUsers returns every registered user ordered by ID.
	ListUsers(ctx context.Context) ([]*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a multi-participant room. Returns ErrConflict if the name is taken.
	CreateRoom(ctx context.Context, name string, isPublic bool, participantIDs []int64) (*Room, error)

	// FindOrCreateDualRoom returns the dual room of the unordered pair {a, b},
	// creating it under name if absent. At most one dual room exists per pair.
	FindOrCreateDualRoom(ctx context.Context, name string, a, b int64) (room *Room, created bool, err error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// GetRoomByName retrieves a room by name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// FindDualRoom retrieves the dual room of the unordered pair {a, b}.
	FindDualRoom(ctx context.Context, a, b int64) (*Room, error)

	// ListPublicRooms lists rooms that are public and not dual.
	ListPublicRooms(ctx context.Context) ([]*Room, error)

	// ListRoomsForUser lists rooms whose participant set includes userID.
	ListRoomsForUser(ctx context.Context, userID int64) ([]*Room, error)

	// AddParticipant adds userID to the room's participant set. No-op if present.
	AddParticipant(ctx context.Context, roomID, userID int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage appends a message to the room log with the initial receiver set.
	CreateMessage(ctx context.Context, roomID, userID int64, body string, receivers []int64) (*Message, error)

	// ListMessages returns the room's full message log in send order.
	ListMessages(ctx context.Context, roomID int64) ([]*Message, error)

	// AddReceiver adds userID to the message's receiver set. No-op if present.
	AddReceiver(ctx context.Context, messageID, userID int64) error

	// CountUnread counts messages in the room whose receiver set excludes userID.
	CountUnread(ctx context.Context, roomID, userID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

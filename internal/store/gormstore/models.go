package gormstore

import (
	"time"

	"github.com/vovakirdan/linechat-server/internal/store"
)

type userRecord struct {
	ID           int64  `gorm:"primaryKey"`
	Nickname     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func (u *userRecord) toUser() *store.User {
	return &store.User{
		ID:           u.ID,
		Nickname:     u.Nickname,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

type roomRecord struct {
	ID        int64   `gorm:"primaryKey"`
	Name      string  `gorm:"uniqueIndex;not null"`
	IsPublic  bool    `gorm:"not null;default:false"`
	IsDual    bool    `gorm:"not null;default:false"`
	DualKey   *string `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

func (roomRecord) TableName() string { return "rooms" }

type participantRecord struct {
	ID        int64 `gorm:"primaryKey"`
	RoomID    int64 `gorm:"not null;uniqueIndex:idx_room_participant"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_room_participant;index"`
	CreatedAt time.Time
}

func (participantRecord) TableName() string { return "room_participants" }

type messageRecord struct {
	ID        int64  `gorm:"primaryKey"`
	RoomID    int64  `gorm:"not null;index"`
	UserID    int64  `gorm:"not null"`
	Body      string `gorm:"not null"`
	CreatedAt time.Time
}

func (messageRecord) TableName() string { return "messages" }

type receiverRecord struct {
	ID        int64 `gorm:"primaryKey"`
	MessageID int64 `gorm:"not null;uniqueIndex:idx_message_receiver"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_message_receiver"`
}

func (receiverRecord) TableName() string { return "message_receivers" }

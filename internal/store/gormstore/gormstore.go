// Package gormstore implements store.Store on top of gorm so the server can
// run against PostgreSQL.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vovakirdan/linechat-server/internal/store"
)

// GormStore implements store.Store with gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL using dsn and migrates the schema.
func OpenPostgres(dsn string) (*GormStore, error) {
	return New(postgres.Open(dsn))
}

// New opens a store over any gorm dialector and migrates the schema.
func New(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&userRecord{},
		&roomRecord{},
		&participantRecord{},
		&messageRecord{},
		&receiverRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &GormStore{db: db}, nil
}

// DB exposes the underlying gorm handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", store.ErrNotFound, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", store.ErrConflict, err.Error())
	default:
		return err
	}
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *GormStore) CreateUser(ctx context.Context, nickname, passwordHash string) (*store.User, error) {
	rec := userRecord{Nickname: nickname, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("insert user: %w", translate(err))
	}
	return rec.toUser(), nil
}

// GetUserByID retrieves a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, fmt.Errorf("query user: %w", translate(err))
	}
	return rec.toUser(), nil
}

// GetUserByNickname retrieves a user by nickname.
func (s *GormStore) GetUserByNickname(ctx context.Context, nickname string) (*store.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).Where("nickname = ?", nickname).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("query user: %w", translate(err))
	}
	return rec.toUser(), nil
}

// ExistsByNickname reports whether a user with the nickname exists.
func (s *GormStore) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&userRecord{}).Where("nickname = ?", nickname).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// ListUsers returns every registered user ordered by ID.
func (s *GormStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	var recs []userRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	users := make([]*store.User, 0, len(recs))
	for i := range recs {
		users = append(users, recs[i].toUser())
	}
	return users, nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a multi-participant room.
func (s *GormStore) CreateRoom(ctx context.Context, name string, isPublic bool, participantIDs []int64) (*store.Room, error) {
	rec := roomRecord{Name: name, IsPublic: isPublic}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert room: %w", translate(err))
		}
		for _, userID := range participantIDs {
			if err := addParticipant(tx, rec.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRoomByID(ctx, rec.ID)
}

// FindOrCreateDualRoom returns the dual room of {a, b}, creating it if absent.
func (s *GormStore) FindOrCreateDualRoom(ctx context.Context, name string, a, b int64) (*store.Room, bool, error) {
	key := store.DualKey(a, b)
	rec := roomRecord{Name: name, IsDual: true, DualKey: &key}

	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dual_key"}},
			DoNothing: true,
		}).Create(&rec)
		if result.Error != nil {
			return fmt.Errorf("insert dual room: %w", translate(result.Error))
		}
		created = result.RowsAffected == 1
		if !created {
			return nil
		}
		for _, userID := range []int64{a, b} {
			if err := addParticipant(tx, rec.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	room, err := s.FindDualRoom(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

// GetRoomByID retrieves a room by ID.
func (s *GormStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	return s.getRoom(ctx, "id = ?", id)
}

// GetRoomByName retrieves a room by name.
func (s *GormStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	return s.getRoom(ctx, "name = ?", name)
}

// FindDualRoom retrieves the dual room of the unordered pair {a, b}.
func (s *GormStore) FindDualRoom(ctx context.Context, a, b int64) (*store.Room, error) {
	return s.getRoom(ctx, "dual_key = ?", store.DualKey(a, b))
}

// ListPublicRooms lists rooms that are public and not dual.
func (s *GormStore) ListPublicRooms(ctx context.Context) ([]*store.Room, error) {
	var recs []roomRecord
	err := s.db.WithContext(ctx).
		Where("is_public = ? AND is_dual = ?", true, false).
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query public rooms: %w", err)
	}
	return s.withParticipants(ctx, recs)
}

// ListRoomsForUser lists rooms whose participant set includes userID.
func (s *GormStore) ListRoomsForUser(ctx context.Context, userID int64) ([]*store.Room, error) {
	var recs []roomRecord
	err := s.db.WithContext(ctx).
		Joins("JOIN room_participants ON room_participants.room_id = rooms.id").
		Where("room_participants.user_id = ?", userID).
		Order("rooms.id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query user rooms: %w", err)
	}
	return s.withParticipants(ctx, recs)
}

// AddParticipant adds a user to a room's participant set.
func (s *GormStore) AddParticipant(ctx context.Context, roomID, userID int64) error {
	return addParticipant(s.db.WithContext(ctx), roomID, userID)
}

func addParticipant(db *gorm.DB, roomID, userID int64) error {
	rec := participantRecord{RoomID: roomID, UserID: userID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *GormStore) getRoom(ctx context.Context, cond string, arg any) (*store.Room, error) {
	var rec roomRecord
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("query room: %w", translate(err))
	}
	rooms, err := s.withParticipants(ctx, []roomRecord{rec})
	if err != nil {
		return nil, err
	}
	return rooms[0], nil
}

func (s *GormStore) withParticipants(ctx context.Context, recs []roomRecord) ([]*store.Room, error) {
	rooms := make([]*store.Room, 0, len(recs))
	if len(recs) == 0 {
		return rooms, nil
	}

	ids := make([]int64, 0, len(recs))
	byID := make(map[int64]*store.Room, len(recs))
	for _, rec := range recs {
		room := &store.Room{
			ID:        rec.ID,
			Name:      rec.Name,
			IsPublic:  rec.IsPublic,
			IsDual:    rec.IsDual,
			CreatedAt: rec.CreatedAt,
		}
		rooms = append(rooms, room)
		byID[rec.ID] = room
		ids = append(ids, rec.ID)
	}

	var parts []participantRecord
	if err := s.db.WithContext(ctx).Where("room_id IN ?", ids).Order("id").Find(&parts).Error; err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	for _, p := range parts {
		if room, ok := byID[p.RoomID]; ok {
			room.ParticipantIDs = append(room.ParticipantIDs, p.UserID)
		}
	}
	return rooms, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message together with its initial receiver set.
func (s *GormStore) CreateMessage(ctx context.Context, roomID, userID int64, body string, receivers []int64) (*store.Message, error) {
	rec := messageRecord{RoomID: roomID, UserID: userID, Body: body}
	msg := &store.Message{RoomID: roomID, UserID: userID, Body: body}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		for _, receiverID := range receivers {
			if err := addReceiver(tx, rec.ID, receiverID); err != nil {
				return err
			}
			if !msg.ReceivedBy(receiverID) {
				msg.Receivers = append(msg.Receivers, receiverID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg.ID = rec.ID
	msg.CreatedAt = rec.CreatedAt
	return msg, nil
}

// ListMessages returns the room's message log in send order with receiver sets.
func (s *GormStore) ListMessages(ctx context.Context, roomID int64) ([]*store.Message, error) {
	var recs []messageRecord
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(recs))
	if len(recs) == 0 {
		return messages, nil
	}

	ids := make([]int64, 0, len(recs))
	byID := make(map[int64]*store.Message, len(recs))
	for _, rec := range recs {
		msg := &store.Message{
			ID:        rec.ID,
			RoomID:    rec.RoomID,
			UserID:    rec.UserID,
			Body:      rec.Body,
			CreatedAt: rec.CreatedAt,
		}
		messages = append(messages, msg)
		byID[rec.ID] = msg
		ids = append(ids, rec.ID)
	}

	var receivers []receiverRecord
	if err := s.db.WithContext(ctx).Where("message_id IN ?", ids).Order("id").Find(&receivers).Error; err != nil {
		return nil, fmt.Errorf("query receivers: %w", err)
	}
	for _, r := range receivers {
		if msg, ok := byID[r.MessageID]; ok {
			msg.Receivers = append(msg.Receivers, r.UserID)
		}
	}
	return messages, nil
}

// AddReceiver marks a message as delivered to a user.
func (s *GormStore) AddReceiver(ctx context.Context, messageID, userID int64) error {
	return addReceiver(s.db.WithContext(ctx), messageID, userID)
}

func addReceiver(db *gorm.DB, messageID, userID int64) error {
	rec := receiverRecord{MessageID: messageID, UserID: userID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert receiver: %w", err)
	}
	return nil
}

// CountUnread counts messages in a room not yet delivered to a user.
func (s *GormStore) CountUnread(ctx context.Context, roomID, userID int64) (int, error) {
	db := s.db.WithContext(ctx)
	delivered := db.Model(&receiverRecord{}).
		Select("1").
		Where("message_receivers.message_id = messages.id AND message_receivers.user_id = ?", userID)

	var count int64
	err := db.Model(&messageRecord{}).
		Where("messages.room_id = ?", roomID).
		Where("NOT EXISTS (?)", delivered).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(count), nil
}

var _ store.Store = (*GormStore)(nil)

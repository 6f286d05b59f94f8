package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/linechat-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store, applies the schema and runs a setup function.
// Useful for tests to seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// translate maps driver errors onto store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %s", store.ErrConflict, sqliteErr.Error())
	}
	return err
}

// ==== UserStore implementation ====

const userColumns = `id, nickname, password_hash, created_at`

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, nickname, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (nickname, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, nickname, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", translate(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByNickname retrieves a user by nickname.
func (s *SQLiteStore) GetUserByNickname(ctx context.Context, nickname string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE nickname = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, nickname))
}

// ExistsByNickname reports whether a user with the nickname exists.
func (s *SQLiteStore) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE nickname = ?)`, nickname).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query user exists: %w", err)
	}
	return exists, nil
}

// ListUsers returns every registered user ordered by ID.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Nickname, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(&user.ID, &user.Nickname, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== RoomStore implementation ====

const roomColumns = `r.id, r.name, r.is_public, r.is_dual, r.created_at`

// CreateRoom creates a multi-participant room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, isPublic bool, participantIDs []int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `INSERT INTO rooms (name, is_public, is_dual) VALUES (?, ?, 0)`, name, isPublic)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", translate(err))
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range participantIDs {
		if err := addParticipant(ctx, tx, roomID, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// FindOrCreateDualRoom returns the dual room of {a, b}, creating it if absent.
// The dual_key unique constraint makes concurrent callers converge on one room.
func (s *SQLiteStore) FindOrCreateDualRoom(ctx context.Context, name string, a, b int64) (*store.Room, bool, error) {
	directKey := store.DualKey(a, b)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO rooms (name, is_public, is_dual, dual_key)
		VALUES (?, 0, 1, ?)
		ON CONFLICT (dual_key) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, name, directKey)
	if err != nil {
		return nil, false, fmt.Errorf("insert dual room: %w", translate(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	created := affected == 1
	if created {
		roomID, err := result.LastInsertId()
		if err != nil {
			return nil, false, fmt.Errorf("get last insert id: %w", err)
		}
		for _, userID := range []int64{a, b} {
			if err := addParticipant(ctx, tx, roomID, userID); err != nil {
				return nil, false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	room, err := s.FindDualRoom(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.id = ?`
	return s.getRoom(ctx, query, id)
}

// GetRoomByName retrieves a room by name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.name = ?`
	return s.getRoom(ctx, query, name)
}

// FindDualRoom retrieves the dual room of the unordered pair {a, b}.
func (s *SQLiteStore) FindDualRoom(ctx context.Context, a, b int64) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.dual_key = ?`
	return s.getRoom(ctx, query, store.DualKey(a, b))
}

// ListPublicRooms lists rooms that are public and not dual.
func (s *SQLiteStore) ListPublicRooms(ctx context.Context) ([]*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.is_public = 1 AND r.is_dual = 0 ORDER BY r.id`
	return s.listRooms(ctx, query)
}

// ListRoomsForUser lists rooms whose participant set includes userID.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID int64) ([]*store.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms r
		JOIN room_participants rp ON rp.room_id = r.id
		WHERE rp.user_id = ?
		ORDER BY r.id
	`
	return s.listRooms(ctx, query, userID)
}

// AddParticipant adds a user to a room's participant set.
func (s *SQLiteStore) AddParticipant(ctx context.Context, roomID, userID int64) error {
	return addParticipant(ctx, s.db, roomID, userID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func addParticipant(ctx context.Context, db execer, roomID, userID int64) error {
	query := `INSERT OR IGNORE INTO room_participants (room_id, user_id) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getRoom(ctx context.Context, query string, arg any) (*store.Room, error) {
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&room.ID, &room.Name, &room.IsPublic, &room.IsDual, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if room.ParticipantIDs, err = s.participants(ctx, room.ID); err != nil {
		return nil, err
	}
	return &room, nil
}

// listRooms drains the room rows before loading participants: with a single
// pooled connection a nested query would block on the open result set.
func (s *SQLiteStore) listRooms(ctx context.Context, query string, args ...any) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}

	var rooms []*store.Room
	for rows.Next() {
		var room store.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.IsPublic, &room.IsDual, &room.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, &room)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, room := range rooms {
		if room.ParticipantIDs, err = s.participants(ctx, room.ID); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

func (s *SQLiteStore) participants(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM room_participants WHERE room_id = ? ORDER BY rowid`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage persists a message together with its initial receiver set.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID, userID int64, body string, receivers []int64) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	createdAt := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO messages (room_id, user_id, body, created_at) VALUES (?, ?, ?, ?)`,
		roomID, userID, body, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	msg := &store.Message{
		ID:        id,
		RoomID:    roomID,
		UserID:    userID,
		Body:      body,
		CreatedAt: createdAt,
	}
	for _, receiverID := range receivers {
		if err := addReceiver(ctx, tx, id, receiverID); err != nil {
			return nil, err
		}
		if !msg.ReceivedBy(receiverID) {
			msg.Receivers = append(msg.Receivers, receiverID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return msg, nil
}

// ListMessages returns the room's message log in send order with receiver sets.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, body, created_at FROM messages WHERE room_id = ? ORDER BY id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var messages []*store.Message
	byID := make(map[int64]*store.Message)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Body, &msg.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(messages) == 0 {
		return messages, nil
	}

	receiverRows, err := s.db.QueryContext(ctx, `
		SELECT mr.message_id, mr.user_id
		FROM message_receivers mr
		JOIN messages m ON m.id = mr.message_id
		WHERE m.room_id = ?
		ORDER BY mr.rowid
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query receivers: %w", err)
	}
	defer receiverRows.Close()

	for receiverRows.Next() {
		var messageID, userID int64
		if err := receiverRows.Scan(&messageID, &userID); err != nil {
			return nil, fmt.Errorf("scan receiver: %w", err)
		}
		if msg, ok := byID[messageID]; ok {
			msg.Receivers = append(msg.Receivers, userID)
		}
	}

	return messages, receiverRows.Err()
}

// AddReceiver marks a message as delivered to a user.
func (s *SQLiteStore) AddReceiver(ctx context.Context, messageID, userID int64) error {
	return addReceiver(ctx, s.db, messageID, userID)
}

func addReceiver(ctx context.Context, db execer, messageID, userID int64) error {
	query := `INSERT OR IGNORE INTO message_receivers (message_id, user_id) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("insert receiver: %w", err)
	}
	return nil
}

// CountUnread counts messages in a room not yet delivered to a user.
func (s *SQLiteStore) CountUnread(ctx context.Context, roomID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.room_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_receivers mr
			WHERE mr.message_id = m.id AND mr.user_id = ?
		  )
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

var _ store.Store = (*SQLiteStore)(nil)

package core

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/proto"
	"github.com/vovakirdan/linechat-server/internal/store"
)

// Engine persists chat messages, fans them out to present sessions and
// replays unread backlog on join.
type Engine struct {
	store    store.Store
	registry *Registry
	log      *zerolog.Logger
}

// NewEngine creates a delivery engine.
func NewEngine(st store.Store, registry *Registry, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// Send stores body as a message in the session's current room and delivers
// it live to the other present sessions. The receivers recorded and the
// sessions written to come from the same presence snapshot.
func (e *Engine) Send(ctx context.Context, s *Session, body string) (*store.Message, error) {
	user := s.User()
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	roomName := s.CurrentRoom()
	if roomName == "" {
		return nil, ErrNoCurrentRoom
	}
	room, ok := s.availableRoom(roomName)
	if !ok {
		return nil, ErrRoomNotAvailable
	}

	present := e.registry.Snapshot(roomName)
	receivers := onlineReceivers(present, user.ID)

	msg, err := store.RetryValue(ctx, func(ctx context.Context) (*store.Message, error) {
		return e.store.CreateMessage(ctx, room.ID, user.ID, body, receivers)
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	line := proto.ChatLine(user.Nickname, body)
	for _, other := range present {
		if other == s {
			continue
		}
		if !other.Send(line) {
			e.log.Warn().
				Str("session_id", other.ID).
				Str("room", roomName).
				Msg("outbox full, dropped chat line")
		}
	}

	e.log.Debug().
		Int64("message_id", msg.ID).
		Str("room", roomName).
		Str("nickname", user.Nickname).
		Int("receivers", len(receivers)).
		Msg("message sent")
	return msg, nil
}

// onlineReceivers returns the distinct users behind the present sessions,
// always including the sender.
func onlineReceivers(present []*Session, senderID int64) []int64 {
	receivers := []int64{senderID}
	for _, s := range present {
		u := s.User()
		if u == nil || slices.Contains(receivers, u.ID) {
			continue
		}
		receivers = append(receivers, u.ID)
	}
	return receivers
}

// JoinBacklog writes every message of room the session's user has not yet
// received, in log order, and marks each as received. If marking fails part
// way, the lines already marked are still written before the error is returned.
func (e *Engine) JoinBacklog(ctx context.Context, s *Session, room *store.Room) (int, error) {
	user := s.User()
	if user == nil {
		return 0, ErrNotAuthenticated
	}

	messages, err := store.RetryValue(ctx, func(ctx context.Context) ([]*store.Message, error) {
		return e.store.ListMessages(ctx, room.ID)
	})
	if err != nil {
		return 0, fmt.Errorf("load room log: %w", err)
	}

	nicknames := map[int64]string{user.ID: user.Nickname}
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			s.Send(strings.Join(lines, "\n"))
		}
	}

	for _, msg := range messages {
		if msg.ReceivedBy(user.ID) {
			continue
		}

		sender, ok := nicknames[msg.UserID]
		if !ok {
			u, err := store.RetryValue(ctx, func(ctx context.Context) (*store.User, error) {
				return e.store.GetUserByID(ctx, msg.UserID)
			})
			if err != nil {
				flush()
				return len(lines), fmt.Errorf("load sender %d: %w", msg.UserID, err)
			}
			sender = u.Nickname
			nicknames[msg.UserID] = sender
		}

		err := store.Retry(ctx, func(ctx context.Context) error {
			return e.store.AddReceiver(ctx, msg.ID, user.ID)
		})
		if err != nil {
			flush()
			return len(lines), fmt.Errorf("mark message %d received: %w", msg.ID, err)
		}
		lines = append(lines, proto.ChatLine(sender, msg.Body))
	}

	flush()
	if len(lines) > 0 {
		e.log.Debug().
			Str("room", room.Name).
			Str("nickname", user.Nickname).
			Int("messages", len(lines)).
			Msg("backlog delivered")
	}
	return len(lines), nil
}

// UnreadCount is the number of messages in room that user has not received.
func (e *Engine) UnreadCount(ctx context.Context, room *store.Room, user *store.User) (int, error) {
	return store.RetryValue(ctx, func(ctx context.Context) (int, error) {
		return e.store.CountUnread(ctx, room.ID, user.ID)
	})
}

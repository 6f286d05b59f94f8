package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/proto"
	"github.com/vovakirdan/linechat-server/internal/service/directory"
	"github.com/vovakirdan/linechat-server/internal/store"
)

// Options tune per-session behavior.
type Options struct {
	OutboxSize     int
	LinesPerMinute int
	WelcomeBanner  string
}

// Hub owns the live sessions and routes parsed lines to their handlers.
type Hub struct {
	auth      *auth.Service
	directory *directory.Service
	store     store.Store
	registry  *Registry
	engine    *Engine
	log       *zerolog.Logger
	opts      Options

	guests atomic.Int64

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates a hub around the given services.
func NewHub(authService *auth.Service, dir *directory.Service, st store.Store, logger *zerolog.Logger, opts Options) *Hub {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 64
	}
	if opts.WelcomeBanner == "" {
		opts.WelcomeBanner = proto.LineWelcome
	}
	registry := NewRegistry()
	return &Hub{
		auth:      authService,
		directory: dir,
		store:     st,
		registry:  registry,
		engine:    NewEngine(st, registry, logger),
		log:       logger,
		opts:      opts,
		sessions:  make(map[string]*Session),
	}
}

// Registry exposes the presence registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect creates a guest session for a new connection and greets it.
func (h *Hub) Connect(remoteAddr string) *Session {
	guest := fmt.Sprintf("Guest%d", h.guests.Add(1))
	s := newSession(uuid.NewString(), guest, remoteAddr, h.opts.OutboxSize, h.opts.LinesPerMinute)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	s.Send(h.opts.WelcomeBanner)
	h.log.Info().
		Str("session_id", s.ID).
		Str("nickname", guest).
		Str("remote_addr", remoteAddr).
		Msg("session connected")
	return s
}

// Disconnect removes s from presence and closes it. No further lines are written.
func (h *Hub) Disconnect(s *Session) {
	room := h.registry.Leave(s)

	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	s.Close()
	h.log.Info().
		Str("session_id", s.ID).
		Str("nickname", s.Nickname()).
		Str("room", room).
		Msg("session disconnected")
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every live session so transports drop their connections.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// HandleLine parses one inbound line and runs the matching handler.
// Failures are answered on s only.
func (h *Hub) HandleLine(ctx context.Context, s *Session, line string) {
	if !s.allow() {
		h.reply(s, coreError(ErrCodeRateLimited, proto.LineRateLimited))
		return
	}

	cmd, err := proto.Parse(line)
	if err != nil {
		var malformed *proto.MalformedError
		if !errors.As(err, &malformed) {
			h.reply(s, err)
			return
		}
		if requiresLogin(malformed.Kind) && s.User() == nil {
			h.reply(s, ErrNotAuthenticated)
			return
		}
		h.reply(s, coreError(ErrCodeMalformedCommand, proto.Malformed(malformed.Usage)))
		return
	}

	switch cmd.Kind {
	case proto.CommandLogin:
		err = h.handleLogin(ctx, s, cmd.Nickname, cmd.Password)
	case proto.CommandJoin:
		err = h.handleJoin(ctx, s, cmd.Room)
	case proto.CommandList:
		err = h.handleList(ctx, s)
	case proto.CommandCreateRoom:
		err = h.handleCreateRoom(ctx, s, cmd.Room, cmd.Public, cmd.Members)
	case proto.CommandHelp:
		s.Send(proto.Help())
	case proto.CommandChat:
		if cmd.Text == "" {
			return
		}
		err = h.handleChat(ctx, s, cmd.Text)
	}
	h.reply(s, err)
}

// requiresLogin reports whether kind is gated on an authenticated session.
func requiresLogin(kind proto.CommandKind) bool {
	switch kind {
	case proto.CommandLogin, proto.CommandHelp:
		return false
	default:
		return true
	}
}

// reply turns a handler error into the line the session sees.
func (h *Hub) reply(s *Session, err error) {
	if err == nil {
		return
	}

	var ce *CoreError
	switch {
	case errors.As(err, &ce):
	case errors.Is(err, ErrAlreadyAuthenticated):
		ce = coreError(ErrCodeAlreadyAuthenticated, proto.LineAlreadyAuthenticated)
	case errors.Is(err, ErrNotAuthenticated):
		ce = coreError(ErrCodeNotAuthenticated, proto.LineNotAuthenticated)
	case errors.Is(err, ErrRoomNotAvailable):
		ce = coreError(ErrCodeRoomNotAvailable, proto.LineRoomNotAvailable)
	case errors.Is(err, ErrNoCurrentRoom):
		ce = coreError(ErrCodeNoCurrentRoom, proto.LineNoCurrentRoom)
	default:
		h.log.Error().
			Err(err).
			Str("session_id", s.ID).
			Str("nickname", s.Nickname()).
			Msg("command failed")
		ce = coreError(ErrCodeInternal, proto.LineInternal)
	}
	s.Send(ce.Message)
}

func (h *Hub) handleLogin(ctx context.Context, s *Session, nickname, password string) error {
	if s.State() == StateAuthenticated {
		return ErrAlreadyAuthenticated
	}

	user, err := h.auth.Lookup(ctx, nickname)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		user, err = h.auth.Register(ctx, nickname, password)
		if err != nil {
			return loginError(nickname, err)
		}
		if _, err := h.directory.ProvisionRegistered(ctx, user); err != nil {
			return err
		}
		h.log.Info().Str("session_id", s.ID).Str("nickname", nickname).Msg("user registered")
	case err != nil:
		return err
	default:
		user, err = h.auth.Authenticate(ctx, nickname, password)
		if err != nil {
			return loginError(nickname, err)
		}
		if _, err := h.directory.ProvisionAuthenticated(ctx, user); err != nil {
			return err
		}
	}

	return h.bind(ctx, s, user)
}

func loginError(nickname string, err error) error {
	switch {
	case errors.Is(err, auth.ErrNicknameTaken):
		return coreError(ErrCodeNicknameTaken, proto.NicknameTaken(nickname))
	case errors.Is(err, auth.ErrWrongPassword), errors.Is(err, auth.ErrUserNotFound):
		return coreError(ErrCodeWrongPassword, proto.LineWrongPassword)
	case errors.Is(err, auth.ErrInvalidNickname):
		return coreError(ErrCodeInvalidArgument, proto.InvalidNickname(nickname))
	case errors.Is(err, auth.ErrInvalidPassword):
		return coreError(ErrCodeMalformedCommand, proto.Malformed(proto.UsageLogin))
	default:
		return err
	}
}

// LoginWithUser authenticates s as an already verified user, as done for
// token-authenticated WebSocket connections.
func (h *Hub) LoginWithUser(ctx context.Context, s *Session, user *store.User) error {
	if s.State() == StateAuthenticated {
		return ErrAlreadyAuthenticated
	}
	if _, err := h.directory.ProvisionAuthenticated(ctx, user); err != nil {
		return err
	}
	return h.bind(ctx, s, user)
}

// bind loads the available rooms, attaches user to s and greets it with the listing.
func (h *Hub) bind(ctx context.Context, s *Session, user *store.User) error {
	available, err := h.directory.ListAvailableRooms(ctx, user)
	if err != nil {
		return err
	}
	if !s.bind(user, roomsOf(available)) {
		return ErrAlreadyAuthenticated
	}

	s.Send(proto.LoggedIn(user.Nickname))
	s.Send(proto.Rooms(listings(available)))
	h.log.Info().
		Str("session_id", s.ID).
		Str("nickname", user.Nickname).
		Int("rooms", len(available)).
		Msg("session authenticated")
	return nil
}

func (h *Hub) handleJoin(ctx context.Context, s *Session, roomName string) error {
	user := s.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	cached, ok := s.availableRoom(roomName)
	if !ok {
		return ErrRoomNotAvailable
	}

	room, err := store.RetryValue(ctx, func(ctx context.Context) (*store.Room, error) {
		return h.store.GetRoomByID(ctx, cached.ID)
	})
	if err != nil {
		return fmt.Errorf("reload room %s: %w", roomName, err)
	}
	if !room.HasParticipant(user.ID) {
		if !room.IsPublic {
			return ErrRoomNotAvailable
		}
		err := store.Retry(ctx, func(ctx context.Context) error {
			return h.store.AddParticipant(ctx, room.ID, user.ID)
		})
		if err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		room.ParticipantIDs = append(room.ParticipantIDs, user.ID)
	}
	s.cacheRoom(room)

	prev, _ := h.registry.Join(s, room.Name)
	s.Send(proto.Joined(room.Name))
	h.log.Info().
		Str("session_id", s.ID).
		Str("nickname", user.Nickname).
		Str("room", room.Name).
		Str("previous_room", prev).
		Msg("joined room")

	// Presence has already moved; a backlog failure leaves the session in
	// room with the unshown messages still unread.
	if _, err := h.engine.JoinBacklog(ctx, s, room); err != nil {
		return fmt.Errorf("backlog for %s: %w", room.Name, err)
	}
	return nil
}

func (h *Hub) handleList(ctx context.Context, s *Session) error {
	user := s.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	available, err := h.directory.ListAvailableRooms(ctx, user)
	if err != nil {
		return err
	}
	s.setAvailable(roomsOf(available))
	s.Send(proto.Rooms(listings(available)))
	return nil
}

func (h *Hub) handleCreateRoom(ctx context.Context, s *Session, name string, public bool, members []string) error {
	user := s.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	room, err := h.directory.CreateRoom(ctx, user, name, public, members)
	switch {
	case errors.Is(err, directory.ErrRoomExists):
		return coreError(ErrCodeRoomExists, proto.RoomExists(name))
	case errors.Is(err, directory.ErrInvalidRoomName):
		return coreError(ErrCodeInvalidArgument, proto.InvalidRoomName(name))
	case err != nil:
		return err
	}
	s.cacheRoom(room)
	s.Send(proto.RoomCreated(room.Name))
	return nil
}

func (h *Hub) handleChat(ctx context.Context, s *Session, text string) error {
	if s.User() == nil {
		return ErrNotAuthenticated
	}
	_, err := h.engine.Send(ctx, s, text)
	return err
}

func roomsOf(available []directory.AvailableRoom) []*store.Room {
	rooms := make([]*store.Room, 0, len(available))
	for _, a := range available {
		rooms = append(rooms, a.Room)
	}
	return rooms
}

func listings(available []directory.AvailableRoom) []proto.RoomListing {
	out := make([]proto.RoomListing, 0, len(available))
	for _, a := range available {
		out = append(out, proto.RoomListing{
			Name:       a.Room.Name,
			Visibility: a.Room.Visibility(),
			Unread:     a.Unread,
		})
	}
	return out
}

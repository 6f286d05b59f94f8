package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/store"
)

// Common errors for room directory operations.
var (
	ErrRoomExists      = errors.New("room already exists")
	ErrInvalidRoomName = errors.New("invalid room name")
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{1,64}$`)

// ValidRoomName reports whether name can be used for a user-created room.
func ValidRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// DualRoomName names the dual room of two users, earlier registration first.
func DualRoomName(a, b *store.User) string {
	if a.ID > b.ID {
		a, b = b, a
	}
	return a.Nickname + "-" + b.Nickname
}

// AvailableRoom is a room a user may join, annotated with its unread count.
type AvailableRoom struct {
	Room   *store.Room
	Unread int
}

// Service is the persistence-backed room directory.
// It owns the process-wide list of public rooms.
type Service struct {
	store store.Store
	log   *zerolog.Logger

	mu     sync.RWMutex
	public []*store.Room
}

// New creates a room directory.
func New(st store.Store, logger *zerolog.Logger) *Service {
	return &Service{
		store: st,
		log:   logger,
	}
}

// Bootstrap ensures the general room exists and loads the public-room list.
func (s *Service) Bootstrap(ctx context.Context) error {
	if _, err := s.ensureGeneral(ctx); err != nil {
		return err
	}

	rooms, err := store.RetryValue(ctx, func(ctx context.Context) ([]*store.Room, error) {
		return s.store.ListPublicRooms(ctx)
	})
	if err != nil {
		return fmt.Errorf("load public rooms: %w", err)
	}

	s.mu.Lock()
	s.public = rooms
	s.mu.Unlock()

	s.log.Info().Int("public_rooms", len(rooms)).Msg("room directory loaded")
	return nil
}

func (s *Service) ensureGeneral(ctx context.Context) (*store.Room, error) {
	room, err := s.store.GetRoomByName(ctx, store.GeneralRoom)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get general room: %w", err)
	}

	room, err = s.store.CreateRoom(ctx, store.GeneralRoom, true, nil)
	if errors.Is(err, store.ErrConflict) {
		return s.store.GetRoomByName(ctx, store.GeneralRoom)
	}
	if err != nil {
		return nil, fmt.Errorf("create general room: %w", err)
	}

	s.log.Info().Msg("general room created")
	return room, nil
}

// PublicRooms returns a snapshot of the process-wide public-room list.
func (s *Service) PublicRooms() []*store.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.public)
}

func (s *Service) addPublic(room *store.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.public {
		if r.ID == room.ID {
			return
		}
	}
	s.public = append(s.public, room)
}

// ProvisionRegistered sets up a freshly registered user: membership of general
// and one dual room with every pre-existing user. It returns the dual rooms
// created plus all public rooms.
func (s *Service) ProvisionRegistered(ctx context.Context, user *store.User) ([]*store.Room, error) {
	general, err := store.RetryValue(ctx, s.ensureGeneral)
	if err != nil {
		return nil, err
	}
	err = store.Retry(ctx, func(ctx context.Context) error {
		return s.store.AddParticipant(ctx, general.ID, user.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("join general: %w", err)
	}

	duals, err := s.connectDualRooms(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.withPublic(duals), nil
}

// ProvisionAuthenticated finds or creates the dual room between user and every
// other user. It returns those dual rooms plus all public rooms.
func (s *Service) ProvisionAuthenticated(ctx context.Context, user *store.User) ([]*store.Room, error) {
	duals, err := s.connectDualRooms(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.withPublic(duals), nil
}

func (s *Service) connectDualRooms(ctx context.Context, user *store.User) ([]*store.Room, error) {
	users, err := store.RetryValue(ctx, func(ctx context.Context) ([]*store.User, error) {
		return s.store.ListUsers(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	rooms := make([]*store.Room, 0, len(users))
	for _, other := range users {
		if other.ID == user.ID {
			continue
		}
		name := DualRoomName(user, other)
		var created bool
		room, err := store.RetryValue(ctx, func(ctx context.Context) (*store.Room, error) {
			r, c, err := s.store.FindOrCreateDualRoom(ctx, name, user.ID, other.ID)
			created = c
			return r, err
		})
		if err != nil {
			return nil, fmt.Errorf("dual room %s: %w", name, err)
		}
		if created {
			s.log.Debug().Str("room", room.Name).Msg("dual room created")
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Service) withPublic(rooms []*store.Room) []*store.Room {
	for _, pub := range s.PublicRooms() {
		if !containsRoom(rooms, pub.ID) {
			rooms = append(rooms, pub)
		}
	}
	return rooms
}

// ListAvailableRooms returns the rooms user participates in, followed by the
// public rooms they are not yet part of, each with its unread count.
func (s *Service) ListAvailableRooms(ctx context.Context, user *store.User) ([]AvailableRoom, error) {
	rooms, err := store.RetryValue(ctx, func(ctx context.Context) ([]*store.Room, error) {
		return s.store.ListRoomsForUser(ctx, user.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("list user rooms: %w", err)
	}
	rooms = s.withPublic(rooms)

	available := make([]AvailableRoom, 0, len(rooms))
	for _, room := range rooms {
		unread, err := store.RetryValue(ctx, func(ctx context.Context) (int, error) {
			return s.store.CountUnread(ctx, room.ID, user.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("count unread in %s: %w", room.Name, err)
		}
		available = append(available, AvailableRoom{Room: room, Unread: unread})
	}
	return available, nil
}

// CreateRoom creates a multi-participant room owned by creator. Unknown member
// nicknames are skipped. Public rooms are added to the process-wide list.
func (s *Service) CreateRoom(ctx context.Context, creator *store.User, name string, isPublic bool, members []string) (*store.Room, error) {
	if !ValidRoomName(name) {
		return nil, ErrInvalidRoomName
	}

	participants := []int64{creator.ID}
	for _, nickname := range members {
		member, err := store.RetryValue(ctx, func(ctx context.Context) (*store.User, error) {
			return s.store.GetUserByNickname(ctx, nickname)
		})
		if errors.Is(err, store.ErrNotFound) {
			s.log.Debug().Str("nickname", nickname).Str("room", name).Msg("skipping unknown member")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve member %s: %w", nickname, err)
		}
		if !slices.Contains(participants, member.ID) {
			participants = append(participants, member.ID)
		}
	}

	room, err := store.RetryValue(ctx, func(ctx context.Context) (*store.Room, error) {
		return s.store.CreateRoom(ctx, name, isPublic, participants)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrRoomExists
		}
		return nil, fmt.Errorf("create room: %w", err)
	}

	if isPublic {
		s.addPublic(room)
	}

	s.log.Info().
		Str("room", room.Name).
		Int64("room_id", room.ID).
		Str("creator", creator.Nickname).
		Bool("public", isPublic).
		Int("participants", len(room.ParticipantIDs)).
		Msg("room created")
	return room, nil
}

func containsRoom(rooms []*store.Room, id int64) bool {
	return slices.ContainsFunc(rooms, func(r *store.Room) bool { return r.ID == id })
}

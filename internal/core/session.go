package core

import (
	"sync"
	"sync/atomic"

	"github.com/vovakirdan/linechat-server/internal/store"
)

// State is the authentication state of a session.
type State int

const (
	// StateGuest is the initial state of every connection.
	StateGuest State = iota
	// StateAuthenticated is reached through a successful login and kept until disconnect.
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "guest"
}

// Session is the per-connection state: bound user, current room and
// the cache of rooms the user may join.
type Session struct {
	ID         string
	RemoteAddr string

	guestName string
	user      atomic.Pointer[store.User]

	out       chan string
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rateLimiter

	// mu guards currentRoom and available. The registry takes mu before any
	// room lock, so code holding a room lock must not call back into the session.
	mu          sync.Mutex
	currentRoom string
	available   map[string]*store.Room
}

func newSession(id, guestName, remoteAddr string, outboxSize, linesPerMinute int) *Session {
	if outboxSize <= 0 {
		outboxSize = 1
	}
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		guestName:  guestName,
		out:        make(chan string, outboxSize),
		done:       make(chan struct{}),
		limiter:    newRateLimiter(linesPerMinute),
		available:  make(map[string]*store.Room),
	}
}

// Send queues a line for the connection. It never blocks: when the outbox
// is full or the session is closed the line is dropped and false is returned.
func (s *Session) Send(line string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

// Outbox yields queued lines for the transport writer.
func (s *Session) Outbox() <-chan string {
	return s.out
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session closed. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// User returns the bound user, or nil for a guest.
func (s *Session) User() *store.User {
	return s.user.Load()
}

// State reports whether the session is a guest or authenticated.
func (s *Session) State() State {
	if s.user.Load() != nil {
		return StateAuthenticated
	}
	return StateGuest
}

// Nickname is the bound user's nickname, or the guest name before login.
func (s *Session) Nickname() string {
	if u := s.user.Load(); u != nil {
		return u.Nickname
	}
	return s.guestName
}

// CurrentRoom returns the name of the room the session is present in, or "".
func (s *Session) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRoom
}

// bind moves the session from guest to authenticated. It fails if a user is already bound.
func (s *Session) bind(user *store.User, rooms []*store.Room) bool {
	if !s.user.CompareAndSwap(nil, user) {
		return false
	}
	s.setAvailable(rooms)
	return true
}

func (s *Session) setAvailable(rooms []*store.Room) {
	available := make(map[string]*store.Room, len(rooms))
	for _, r := range rooms {
		available[r.Name] = r
	}
	s.mu.Lock()
	s.available = available
	s.mu.Unlock()
}

func (s *Session) cacheRoom(room *store.Room) {
	s.mu.Lock()
	s.available[room.Name] = room
	s.mu.Unlock()
}

func (s *Session) availableRoom(name string) (*store.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.available[name]
	return room, ok
}

func (s *Session) allow() bool {
	return s.limiter.allow()
}

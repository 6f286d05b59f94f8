package core

import (
	"sync"

	"github.com/vovakirdan/linechat-server/internal/proto"
)

// presence groups the sessions currently joined to one room.
type presence struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func (p *presence) broadcast(exclude *Session, line string) {
	for s := range p.sessions {
		if s != exclude {
			s.Send(line)
		}
	}
}

// Registry maps room names to the sessions present in them.
// It lives for the whole process and is never persisted.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*presence
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*presence)}
}

func (r *Registry) room(name string) *presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rooms[name]
	if !ok {
		p = &presence{sessions: make(map[*Session]struct{})}
		r.rooms[name] = p
	}
	return p
}

// Join moves s into roomName. Occupants of the previous room get a left
// notice and occupants of the new room a joined notice. The presence lists
// and s.currentRoom change inside one critical section. It returns the
// previous room name and false if s was already in roomName.
func (r *Registry) Join(s *Session, roomName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentRoom
	if prev == roomName {
		return prev, false
	}

	next := r.room(roomName)
	if prev == "" {
		next.mu.Lock()
		defer next.mu.Unlock()
	} else {
		old := r.room(prev)
		// Room locks are always taken in name order.
		first, second := old, next
		if roomName < prev {
			first, second = next, old
		}
		first.mu.Lock()
		defer first.mu.Unlock()
		second.mu.Lock()
		defer second.mu.Unlock()

		delete(old.sessions, s)
		old.broadcast(s, proto.LeftChannel(s.Nickname()))
	}

	next.sessions[s] = struct{}{}
	next.broadcast(s, proto.JoinedChannel(s.Nickname()))
	s.currentRoom = roomName
	return prev, true
}

// Leave removes s from the room it occupies, notifying the remaining
// occupants. It returns the room left, or "" if s was in none.
func (r *Registry) Leave(s *Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentRoom
	if prev == "" {
		return ""
	}

	p := r.room(prev)
	p.mu.Lock()
	delete(p.sessions, s)
	p.broadcast(s, proto.LeftChannel(s.Nickname()))
	p.mu.Unlock()

	s.currentRoom = ""
	return prev
}

// Broadcast writes line to every session present in roomName except exclude.
// An empty room is a no-op.
func (r *Registry) Broadcast(roomName string, exclude *Session, line string) {
	p := r.room(roomName)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcast(exclude, line)
}

// Snapshot returns the sessions present in roomName at this instant.
func (r *Registry) Snapshot(roomName string) []*Session {
	p := r.room(roomName)
	p.mu.Lock()
	defer p.mu.Unlock()
	sessions := make([]*Session, 0, len(p.sessions))
	for s := range p.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/vovakirdan/linechat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, nickname string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), nickname, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", nickname, err)
	}
	return u
}

func TestCreateUserRejectsDuplicateNickname(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	if alice.ID == 0 || alice.Nickname != "alice" {
		t.Fatalf("unexpected user: %+v", alice)
	}

	if _, err := s.CreateUser(ctx, "alice", "other"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	exists, err := s.ExistsByNickname(ctx, "alice")
	if err != nil || !exists {
		t.Fatalf("expected alice to exist, got %v, %v", exists, err)
	}

	if _, err := s.GetUserByNickname(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentRegistrationHasSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, "racer", "hash")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 win and %d conflicts, got %d and %d", attempts-1, wins, conflicts)
	}
}

func TestFindOrCreateDualRoomIsIdempotentAcrossOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	room, created, err := s.FindOrCreateDualRoom(ctx, "a-b", a.ID, b.ID)
	if err != nil || !created {
		t.Fatalf("expected room creation, got created=%v err=%v", created, err)
	}
	if !room.IsDual || room.IsPublic || len(room.ParticipantIDs) != 2 {
		t.Fatalf("unexpected dual room: %+v", room)
	}

	again, created, err := s.FindOrCreateDualRoom(ctx, "b-a", b.ID, a.ID)
	if err != nil || created {
		t.Fatalf("expected existing room, got created=%v err=%v", created, err)
	}
	if again.ID != room.ID || again.Name != "a-b" {
		t.Fatalf("expected same room, got %+v", again)
	}
}

func TestConcurrentDualRoomCreationYieldsOneRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	var wg sync.WaitGroup
	ids := make(chan int64, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			room, _, err := s.FindOrCreateDualRoom(ctx, "a-b", x, y)
			if err != nil {
				t.Errorf("find or create: %v", err)
				return
			}
			ids <- room.ID
		}()
	}
	wg.Wait()
	close(ids)

	first := int64(0)
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Fatalf("expected a single dual room, got %d and %d", first, id)
		}
	}

	rooms, err := s.ListRoomsForUser(ctx, a.ID)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room for a, got %d", len(rooms))
	}
}

func TestRoomListingFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	carol := mustUser(t, s, "carol")
	dave := mustUser(t, s, "dave")

	if _, err := s.CreateRoom(ctx, "team", true, []int64{carol.ID}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	if _, err := s.CreateRoom(ctx, "secret", false, []int64{carol.ID, dave.ID}); err != nil {
		t.Fatalf("create secret: %v", err)
	}
	if _, _, err := s.FindOrCreateDualRoom(ctx, "carol-dave", carol.ID, dave.ID); err != nil {
		t.Fatalf("create dual: %v", err)
	}
	if _, err := s.CreateRoom(ctx, "team", false, nil); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate room name, got %v", err)
	}

	public, err := s.ListPublicRooms(ctx)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(public) != 1 || public[0].Name != "team" {
		t.Fatalf("unexpected public rooms: %+v", public)
	}

	daveRooms, err := s.ListRoomsForUser(ctx, dave.ID)
	if err != nil {
		t.Fatalf("list dave rooms: %v", err)
	}
	names := make([]string, 0, len(daveRooms))
	for _, r := range daveRooms {
		names = append(names, r.Name)
	}
	if fmt.Sprint(names) != "[secret carol-dave]" {
		t.Fatalf("unexpected rooms for dave: %v", names)
	}

	team, err := s.GetRoomByName(ctx, "team")
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if err := s.AddParticipant(ctx, team.ID, dave.ID); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := s.AddParticipant(ctx, team.ID, dave.ID); err != nil {
		t.Fatalf("add participant twice: %v", err)
	}
	team, err = s.GetRoomByID(ctx, team.ID)
	if err != nil {
		t.Fatalf("reload team: %v", err)
	}
	if len(team.ParticipantIDs) != 2 || !team.HasParticipant(dave.ID) {
		t.Fatalf("unexpected participants: %v", team.ParticipantIDs)
	}
}

func TestReceiversGrowAndDriveUnreadCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	room, err := s.CreateRoom(ctx, "general", true, []int64{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	first, err := s.CreateMessage(ctx, room.ID, alice.ID, "hi", []int64{alice.ID})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if _, err := s.CreateMessage(ctx, room.ID, alice.ID, "anyone?", []int64{alice.ID, alice.ID}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	unread, err := s.CountUnread(ctx, room.ID, bob.ID)
	if err != nil || unread != 2 {
		t.Fatalf("expected 2 unread for bob, got %d (%v)", unread, err)
	}
	unread, err = s.CountUnread(ctx, room.ID, alice.ID)
	if err != nil || unread != 0 {
		t.Fatalf("expected 0 unread for alice, got %d (%v)", unread, err)
	}

	if err := s.AddReceiver(ctx, first.ID, bob.ID); err != nil {
		t.Fatalf("add receiver: %v", err)
	}
	if err := s.AddReceiver(ctx, first.ID, bob.ID); err != nil {
		t.Fatalf("add receiver twice: %v", err)
	}

	messages, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 || messages[0].Body != "hi" || messages[1].Body != "anyone?" {
		t.Fatalf("unexpected log: %+v", messages)
	}
	if fmt.Sprint(messages[0].Receivers) != fmt.Sprint([]int64{alice.ID, bob.ID}) {
		t.Fatalf("unexpected receivers for first message: %v", messages[0].Receivers)
	}
	if len(messages[1].Receivers) != 1 {
		t.Fatalf("expected deduplicated receivers, got %v", messages[1].Receivers)
	}

	unread, err = s.CountUnread(ctx, room.ID, bob.ID)
	if err != nil || unread != 1 {
		t.Fatalf("expected 1 unread for bob, got %d (%v)", unread, err)
	}
}

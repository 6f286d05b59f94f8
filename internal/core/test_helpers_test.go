package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/proto"
	"github.com/vovakirdan/linechat-server/internal/service/directory"
	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/sqlite"
)

func newTestHub(t *testing.T, opts Options) (*Hub, *sqlite.SQLiteStore) {
	t.Helper()
	st := newTestStore(t)
	return newTestHubWithStore(t, st, opts), st
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestHubWithStore(t *testing.T, st store.Store, opts Options) *Hub {
	t.Helper()

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "linechat",
		Audience: "linechat-clients",
		TTL:      time.Hour,
	})
	dir := directory.New(st, &logger)
	if err := dir.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap directory: %v", err)
	}
	return NewHub(authService, dir, st, &logger, opts)
}

// flakyReceiverStore fails AddReceiver while failReceivers is set.
type flakyReceiverStore struct {
	*sqlite.SQLiteStore
	failReceivers atomic.Bool
}

func (f *flakyReceiverStore) AddReceiver(ctx context.Context, messageID, userID int64) error {
	if f.failReceivers.Load() {
		return errors.New("disk unavailable")
	}
	return f.SQLiteStore.AddReceiver(ctx, messageID, userID)
}

// connect opens a session and consumes the welcome banner.
func connect(t *testing.T, h *Hub) *Session {
	t.Helper()
	s := h.Connect("127.0.0.1:0")
	mustLine(t, s, proto.LineWelcome)
	return s
}

// login logs s in and consumes the greeting and the room listing.
func login(t *testing.T, h *Hub, s *Session, nickname, password string) {
	t.Helper()
	h.HandleLine(context.Background(), s, "/login "+nickname+" "+password)
	mustLine(t, s, proto.LoggedIn(nickname))
	mustContain(t, s, proto.LineAvailableRooms)
}

func mustLine(t *testing.T, s *Session, want string) {
	t.Helper()
	got := nextLine(t, s)
	if got != want {
		t.Fatalf("expected line %q, got %q", want, got)
	}
}

func mustContain(t *testing.T, s *Session, substr string) string {
	t.Helper()
	got := nextLine(t, s)
	if !strings.Contains(got, substr) {
		t.Fatalf("expected line containing %q, got %q", substr, got)
	}
	return got
}

func nextLine(t *testing.T, s *Session) string {
	t.Helper()
	select {
	case line := <-s.Outbox():
		return line
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a line for %s, got none", s.Nickname())
		return ""
	}
}

// drain returns every line currently queued for s.
func drain(s *Session) []string {
	var lines []string
	for {
		select {
		case line := <-s.Outbox():
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

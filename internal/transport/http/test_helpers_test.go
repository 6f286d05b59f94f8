package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/config"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/service/directory"
	"github.com/vovakirdan/linechat-server/internal/store/sqlite"
)

type testServer struct {
	*httptest.Server
	hub         *core.Hub
	authService *auth.Service
	store       *sqlite.SQLiteStore
}

// startTestServer runs the full router against an in-memory store.
func startTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.HTTPAddr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	dir := directory.New(st, &logger)
	if err := dir.Bootstrap(context.Background()); err != nil {
		t.Fatalf("failed to bootstrap directory: %v", err)
	}
	hub := core.NewHub(authService, dir, st, &logger, core.Options{})

	server := NewServer(hub, authService, dir, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, hub: hub, authService: authService, store: st}
}

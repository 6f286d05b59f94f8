package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/linechat-server/internal/proto"
)

func dialWS(t *testing.T, ctx context.Context, ts *testServer, query string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws" + query
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readLine(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	return string(data)
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) {
	t.Helper()
	for range 20 {
		if readLine(t, ctx, conn) == want {
			return
		}
	}
	t.Fatalf("line %q never arrived", want)
}

func writeLine(t *testing.T, ctx context.Context, conn *websocket.Conn, line string) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(line)))
}

func TestWebSocketLineProtocol(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialWS(t, ctx, ts, "")
	assert.Equal(t, proto.LineWelcome, readLine(t, ctx, alice))

	writeLine(t, ctx, alice, "/list")
	assert.Equal(t, proto.LineNotAuthenticated, readLine(t, ctx, alice))

	writeLine(t, ctx, alice, "/login alice secret")
	assert.Equal(t, proto.LoggedIn("alice"), readLine(t, ctx, alice))
	assert.Equal(t, proto.LineAvailableRooms, readLine(t, ctx, alice))
	assert.Equal(t, "  general [public] (0 unread)", readLine(t, ctx, alice))

	writeLine(t, ctx, alice, "/join general")
	assert.Equal(t, proto.Joined("general"), readLine(t, ctx, alice))

	bob := dialWS(t, ctx, ts, "")
	readUntil(t, ctx, bob, proto.LineWelcome)
	writeLine(t, ctx, bob, "/login bob secret")
	writeLine(t, ctx, bob, "/join general")
	readUntil(t, ctx, bob, proto.Joined("general"))
	assert.Equal(t, proto.JoinedChannel("bob"), readLine(t, ctx, alice))

	writeLine(t, ctx, bob, "hi alice")
	assert.Equal(t, proto.ChatLine("bob", "hi alice"), readLine(t, ctx, alice))
}

func TestWebSocketTokenPreAuthenticates(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := ts.authService.Register(ctx, "carol", "secret")
	require.NoError(t, err)
	token, err := ts.authService.IssueToken(user)
	require.NoError(t, err)

	conn := dialWS(t, ctx, ts, "?token="+token)
	assert.Equal(t, proto.LineWelcome, readLine(t, ctx, conn))
	assert.Equal(t, proto.LoggedIn("carol"), readLine(t, ctx, conn))

	writeLine(t, ctx, conn, "/login carol secret")
	readUntil(t, ctx, conn, proto.LineAlreadyAuthenticated)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	ts := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=garbage"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

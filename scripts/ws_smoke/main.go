package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/linechat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run logs two users in over the WebSocket bridge, has the second one talk
// in room and waits until the first one receives the line.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	listener := flag.String("listener", "smoke_a", "nickname of the receiving user")
	speaker := flag.String("speaker", "smoke_b", "nickname of the sending user")
	password := flag.String("password", "smoke-pass", "password for both users")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := connect(ctx, *addr, *listener, *password, *room)
	if err != nil {
		return fmt.Errorf("%s: %w", *listener, err)
	}
	defer a.Close(websocket.StatusNormalClosure, "bye")

	b, err := connect(ctx, *addr, *speaker, *password, *room)
	if err != nil {
		return fmt.Errorf("%s: %w", *speaker, err)
	}
	defer b.Close(websocket.StatusNormalClosure, "bye")

	if err := b.Write(ctx, websocket.MessageText, []byte(*text)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	want := proto.ChatLine(*speaker, *text)
	if err := waitFor(ctx, a, want); err != nil {
		return err
	}
	fmt.Printf("ok: %s received %q\n", *listener, want)
	return nil
}

func connect(ctx context.Context, addr, nickname, password, room string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	for _, line := range []string{"/login " + nickname + " " + password, "/join " + room} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
			conn.Close(websocket.StatusInternalError, "send failed")
			return nil, fmt.Errorf("send %q: %w", line, err)
		}
	}
	if err := waitFor(ctx, conn, proto.Joined(room)); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, err
	}
	return conn, nil
}

func waitFor(ctx context.Context, conn *websocket.Conn, want string) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		line := string(data)
		fmt.Printf("< %s\n", line)
		if line == want {
			return nil
		}
	}
}

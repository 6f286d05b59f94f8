package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/proto"
	"github.com/vovakirdan/linechat-server/internal/store"
)

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
// Every text frame carries one protocol line in each direction.
type WSHandler struct {
	hub          *core.Hub
	authService  *auth.Service
	maxLineBytes int
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, maxLineBytes int, logger *zerolog.Logger) stdhttp.Handler {
	if maxLineBytes <= 0 {
		maxLineBytes = 4096
	}
	return &WSHandler{
		hub:          hub,
		authService:  authService,
		maxLineBytes: maxLineBytes,
		log:          logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	user, err := h.tokenUser(r)
	if err != nil {
		status, msg := tokenErrorStatus(err)
		h.log.Debug().Err(err).Msg("ws token rejected")
		stdhttp.Error(w, msg, status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(int64(h.maxLineBytes))

	session := h.hub.Connect(r.RemoteAddr)
	defer h.hub.Disconnect(session)

	if user != nil {
		if err := h.hub.LoginWithUser(ctx, session, user); err != nil {
			h.log.Error().Err(err).Str("session_id", session.ID).Msg("ws token login failed")
			session.Send(proto.LineInternal)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// tokenUser resolves the optional ?token= or bearer token. No token means a guest connection.
func (h *WSHandler) tokenUser(r *stdhttp.Request) (*store.User, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token == "" {
		return nil, nil
	}
	return h.authService.UserFromToken(r.Context(), token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			h.log.Debug().Str("session_id", session.ID).Msg("ignoring binary frame")
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			h.hub.HandleLine(ctx, session, strings.TrimRight(line, "\r"))
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case out := <-session.Outbox():
			for _, line := range strings.Split(out, "\n") {
				if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
					h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws line")
					return err
				}
			}
		case <-session.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/linechat-server/internal/core"
)

const writeTimeout = 10 * time.Second

// Server accepts raw TCP connections and speaks the line protocol on them.
type Server struct {
	addr         string
	hub          *core.Hub
	log          *zerolog.Logger
	maxLineBytes int

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a TCP line server. Lines longer than maxLineBytes end the connection.
func NewServer(addr string, hub *core.Hub, maxLineBytes int, logger *zerolog.Logger) *Server {
	if maxLineBytes <= 0 {
		maxLineBytes = 4096
	}
	return &Server{
		addr:         addr,
		hub:          hub,
		log:          logger,
		maxLineBytes: maxLineBytes,
	}
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes the listener
// and every open connection and waits for their handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp server listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			g.Go(func() error {
				s.handleConn(gctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.log.Info().Msg("tcp server stopped")
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	session := s.hub.Connect(remote)
	defer s.hub.Disconnect(session)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- s.writeLoop(ctx, conn, session)
	}()

	err := <-errCh
	cancel() // stop the writer
	_ = conn.Close()
	<-errCh

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		if errors.Is(err, bufio.ErrTooLong) {
			s.log.Warn().Str("session_id", session.ID).Str("remote_addr", remote).Msg("line too long, closing connection")
		} else {
			s.log.Debug().Err(err).Str("session_id", session.ID).Str("remote_addr", remote).Msg("tcp connection closed with error")
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn, session *core.Session) error {
	scanner := bufio.NewScanner(conn)
	// Scanner allows tokens up to the larger of max and the initial capacity.
	scanner.Buffer(make([]byte, 0, min(1024, s.maxLineBytes)), s.maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		s.hub.HandleLine(ctx, session, line)
	}
	return scanner.Err()
}

func (s *Server) writeLoop(ctx context.Context, conn net.Conn, session *core.Session) error {
	for {
		select {
		case line := <-session.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return err
			}
		case <-session.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Package server is the room authority: it owns every room through a
// per-room actor and exposes rooms over REST and WebSocket.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API and WebSocket endpoint for a RoomManager.
type Server struct {
	addr     string
	manager  *RoomManager
	clock    quartz.Clock
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	router   *gin.Engine

	mu          sync.RWMutex
	connections map[*Connection]struct{}
}

// NewServer creates a server for manager listening on addr.
func NewServer(addr string, manager *RoomManager, clock quartz.Clock, logger zerolog.Logger) *Server {
	s := &Server{
		addr:    addr,
		manager: manager,
		clock:   clock,
		logger:  logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]struct{}),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down HTTP, open connections
// and room actors.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Server listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		s.closeConnections()
		if merr := s.manager.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	})
	return g.Wait()
}

// ConnectionCount returns the number of open WebSocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// handleWebSocket handles WebSocket upgrade requests. The participant query
// parameter carries the caller's identity; one is issued when missing.
func (s *Server) handleWebSocket(c *gin.Context) {
	pid := c.Query("participant")
	if pid == "" {
		pid = uuid.NewString()
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, http.Header{ParticipantHeader: []string{pid}})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	conn := NewConnection(ws, pid, s.manager, s.clock, s.logger)
	s.mu.Lock()
	s.connections[conn] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info().Str("participant", pid).Int("total", total).Msg("Client connected")

	conn.Start()

	go func() {
		<-conn.Done()
		s.mu.Lock()
		delete(s.connections, conn)
		total := len(s.connections)
		s.mu.Unlock()
		s.logger.Info().Str("participant", pid).Int("total", total).Msg("Client disconnected")
	}()
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/protocol"
	"github.com/rs/zerolog"
)

// ParticipantHeader carries the caller's opaque identity on REST requests.
const ParticipantHeader = "X-Participant-ID"

var errMissingCardIndex = errors.New("cardIndex is required")

type createRoomRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
}

type joinRoomRequest struct {
	Name string `json:"name"`
}

type passRequest struct {
	CardIndex *int `json:"cardIndex"`
}

type maxPlayersRequest struct {
	MaxPlayers int `json:"maxPlayers"`
}

type roomResponse struct {
	Room          game.Room `json:"room"`
	ParticipantID string    `json:"participantId,omitempty"`
}

type errorResponse struct {
	Error protocol.Error `json:"error"`
}

// routes builds the gin engine for the REST API, the WebSocket endpoint and
// the health check.
func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api/rooms")
	api.POST("", s.handleCreateRoom)
	api.GET("/:code", s.handleGetRoom)
	api.GET("/:code/resume", s.handleResume)
	api.POST("/:code/join", s.handleJoin)
	api.POST("/:code/start", s.roomAction(s.manager.Start))
	api.POST("/:code/pass", s.handlePass)
	api.POST("/:code/ready", s.roomAction(s.manager.MarkReady))
	api.POST("/:code/rematch", s.roomAction(s.manager.Rematch))
	api.POST("/:code/reset", s.roomAction(s.manager.ResetToLobby))
	api.POST("/:code/leave", s.handleLeave)
	api.PUT("/:code/max-players", s.handleMaxPlayers)

	return r
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// participant returns the caller's id. When assign is set and the caller has
// none, a fresh anonymous id is issued and echoed in the response header.
func participant(c *gin.Context, assign bool) string {
	id := c.GetHeader(ParticipantHeader)
	if id == "" && assign {
		id = uuid.NewString()
	}
	if id != "" {
		c.Header(ParticipantHeader, id)
	}
	return id
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	pid := participant(c, true)
	room, err := s.manager.Create(c.Request.Context(), pid, req.Name, req.MaxPlayers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, roomResponse{Room: room, ParticipantID: pid})
}

func (s *Server) handleGetRoom(c *gin.Context) {
	room, err := s.manager.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room})
}

func (s *Server) handleResume(c *gin.Context) {
	pid := participant(c, false)
	room, err := s.manager.Resume(c.Request.Context(), c.Param("code"), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room, ParticipantID: pid})
}

func (s *Server) handleJoin(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	pid := participant(c, true)
	room, err := s.manager.Join(c.Request.Context(), c.Param("code"), pid, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room, ParticipantID: pid})
}

func (s *Server) handlePass(c *gin.Context) {
	var req passRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	if req.CardIndex == nil {
		writeError(c, badRequest(errMissingCardIndex))
		return
	}
	pid := participant(c, false)
	room, err := s.manager.Pass(c.Request.Context(), c.Param("code"), pid, *req.CardIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room, ParticipantID: pid})
}

func (s *Server) handleMaxPlayers(c *gin.Context) {
	var req maxPlayersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	pid := participant(c, false)
	room, err := s.manager.SetMaxPlayers(c.Request.Context(), c.Param("code"), pid, req.MaxPlayers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room, ParticipantID: pid})
}

func (s *Server) handleLeave(c *gin.Context) {
	pid := participant(c, false)
	room, closed, err := s.manager.Leave(c.Request.Context(), c.Param("code"), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	if closed {
		c.JSON(http.StatusOK, gin.H{"closed": true, "code": room.ID})
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room, ParticipantID: pid})
}

// roomAction adapts a body-less manager operation to a handler.
func (s *Server) roomAction(op func(ctx context.Context, code, participantID string) (game.Room, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid := participant(c, false)
		room, err := op(c.Request.Context(), c.Param("code"), pid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, roomResponse{Room: room, ParticipantID: pid})
	}
}

// StatusFor maps a wire error code to its HTTP status.
func StatusFor(code protocol.ErrorCode) int {
	switch code {
	case protocol.CodeValidation, protocol.CodeBadRequest:
		return http.StatusBadRequest
	case protocol.CodeRoomNotFound:
		return http.StatusNotFound
	case protocol.CodeRoomFull, protocol.CodeAlreadyStarted, protocol.CodeWrongPhase, protocol.CodeNotReady, protocol.CodeNotInRoom:
		return http.StatusConflict
	case protocol.CodeNotAuthorized:
		return http.StatusForbidden
	case protocol.CodeInvalidMove:
		return http.StatusUnprocessableEntity
	case protocol.CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	e := protocol.NewError(err)
	c.AbortWithStatusJSON(StatusFor(e.Code), errorResponse{Error: e})
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
}

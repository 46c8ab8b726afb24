package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/protocol"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Reasons sent with room_closed.
const (
	ReasonRoomClosed = "room closed"
	ReasonRemoved    = "you are no longer in this room"
	ReasonLeft       = "you left the room"
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection is one participant's WebSocket. After create, join or resume it
// streams snapshots of that room until the room closes or the participant
// leaves it.
type Connection struct {
	conn          *websocket.Conn
	send          chan []byte
	participantID string
	manager       *RoomManager
	clock         quartz.Clock
	logger        zerolog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once

	mu          sync.Mutex
	roomCode    string
	lastVersion int64
	stopWatch   context.CancelFunc
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, participantID string, manager *RoomManager, clock quartz.Clock, logger zerolog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:          conn,
		send:          make(chan []byte, 64),
		participantID: participantID,
		manager:       manager,
		clock:         clock,
		logger:        logger.With().Str("component", "conn").Str("participant", participantID).Logger(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection. The participant keeps their seat.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.unwatch()
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// RoomCode returns the room this connection follows, if any.
func (c *Connection) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

func (c *Connection) sendMessage(msgType protocol.MessageType, requestID string, payload any) error {
	data, err := protocol.Marshal(msgType, requestID, payload, c.clock.Now())
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn().Msg("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) sendError(requestID string, err error) {
	e := protocol.NewError(err)
	if e.Code == protocol.CodeInternal {
		c.logger.Error().Err(err).Msg("Request failed")
	}
	_ = c.sendMessage(protocol.TypeError, requestID, e)
}

// sendSnapshot forwards room unless a newer version was already sent.
func (c *Connection) sendSnapshot(requestID string, room game.Room) {
	c.mu.Lock()
	if requestID == "" && room.Version <= c.lastVersion {
		c.mu.Unlock()
		return
	}
	if room.Version > c.lastVersion {
		c.lastVersion = room.Version
	}
	c.mu.Unlock()

	_ = c.sendMessage(protocol.TypeRoomSnapshot, requestID, protocol.RoomSnapshot{Room: room, You: c.participantID})
}

func (c *Connection) sendClosed(code, reason string) {
	_ = c.sendMessage(protocol.TypeRoomClosed, "", protocol.RoomClosed{Code: code, Reason: reason})
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket error")
			}
			return
		}

		env, err := protocol.Unmarshal(data)
		if err != nil {
			c.sendError("", err)
			continue
		}
		c.handleMessage(env)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(env protocol.Envelope) {
	c.logger.Debug().Str("type", string(env.Type)).Msg("Received message")
	ctx := c.ctx

	var (
		room game.Room
		err  error
	)

	switch env.Type {
	case protocol.TypeCreateRoom:
		var msg protocol.CreateRoom
		if err = env.Decode(&msg); err == nil {
			room, err = c.manager.Create(ctx, c.participantID, msg.Name, msg.MaxPlayers)
		}
		if err == nil {
			err = c.watch(room.ID)
		}

	case protocol.TypeJoinRoom:
		var msg protocol.JoinRoom
		if err = env.Decode(&msg); err == nil {
			room, err = c.manager.Join(ctx, msg.Code, c.participantID, msg.Name)
		}
		if err == nil {
			err = c.watch(room.ID)
		}

	case protocol.TypeResume:
		var msg protocol.Resume
		if err = env.Decode(&msg); err == nil {
			room, err = c.manager.Resume(ctx, msg.Code, c.participantID)
		}
		if err == nil {
			err = c.watch(room.ID)
		}

	case protocol.TypeStartGame:
		room, err = c.inRoom(ctx, c.manager.Start)

	case protocol.TypePassCard:
		var msg protocol.PassCard
		if err = env.Decode(&msg); err == nil {
			room, err = c.inRoom(ctx, func(ctx context.Context, code, pid string) (game.Room, error) {
				return c.manager.Pass(ctx, code, pid, msg.CardIndex)
			})
		}

	case protocol.TypeMarkReady:
		room, err = c.inRoom(ctx, c.manager.MarkReady)

	case protocol.TypeRematch:
		room, err = c.inRoom(ctx, c.manager.Rematch)

	case protocol.TypeResetLobby:
		room, err = c.inRoom(ctx, c.manager.ResetToLobby)

	case protocol.TypeSetMaxPlayers:
		var msg protocol.SetMaxPlayers
		if err = env.Decode(&msg); err == nil {
			room, err = c.inRoom(ctx, func(ctx context.Context, code, pid string) (game.Room, error) {
				return c.manager.SetMaxPlayers(ctx, code, pid, msg.MaxPlayers)
			})
		}

	case protocol.TypeLeaveRoom:
		c.handleLeave(ctx, env.RequestID)
		return

	default:
		c.sendError(env.RequestID, badRequest(errors.New("unknown message type "+string(env.Type))))
		return
	}

	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.sendSnapshot(env.RequestID, room)
}

func (c *Connection) inRoom(ctx context.Context, op func(ctx context.Context, code, participantID string) (game.Room, error)) (game.Room, error) {
	code := c.RoomCode()
	if code == "" {
		return game.Room{}, game.ErrNotInRoom
	}
	return op(ctx, code, c.participantID)
}

func (c *Connection) handleLeave(ctx context.Context, requestID string) {
	code := c.RoomCode()
	if code == "" {
		c.sendError(requestID, game.ErrNotInRoom)
		return
	}
	// Stop following before leaving so our own departure is not reported
	// back as a removal or a closed room.
	c.unwatchRoom(code)
	if _, _, err := c.manager.Leave(ctx, code, c.participantID); err != nil {
		c.sendError(requestID, err)
		if werr := c.watch(code); werr != nil {
			c.logger.Debug().Err(werr).Str("room", code).Msg("Not watching room after failed leave")
		}
		return
	}
	_ = c.sendMessage(protocol.TypeRoomClosed, requestID, protocol.RoomClosed{Code: code, Reason: ReasonLeft})
}

// watch follows code, replacing any previous subscription.
func (c *Connection) watch(code string) error {
	ctx, cancel := context.WithCancel(c.ctx)
	snapshots, err := c.manager.Subscribe(ctx, code)
	if err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.roomCode = code
	c.lastVersion = 0
	c.stopWatch = cancel
	c.mu.Unlock()

	go c.forward(ctx, code, snapshots)
	return nil
}

func (c *Connection) unwatch() {
	c.unwatchRoom("")
}

// unwatchRoom stops following code, or whatever room is followed when code
// is empty. It reports whether a watch was stopped.
func (c *Connection) unwatchRoom(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if code != "" && code != c.roomCode {
		return false
	}
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.roomCode = ""
	return true
}

func (c *Connection) forward(ctx context.Context, code string, snapshots <-chan game.Room) {
	for room := range snapshots {
		if !room.HasPlayer(c.participantID) {
			if ctx.Err() == nil && c.unwatchRoom(code) {
				c.sendClosed(code, ReasonRemoved)
			}
			return
		}
		c.sendSnapshot("", room)
	}

	// channel closed: deleted room, or we stopped watching
	if ctx.Err() == nil && c.unwatchRoom(code) {
		c.sendClosed(code, ReasonRoomClosed)
	}
}

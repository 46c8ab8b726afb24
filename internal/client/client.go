// Package client is the terminal client for a fruitpass server.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/protocol"
)

// ParticipantHeader carries the participant id on the upgrade response.
const ParticipantHeader = "X-Participant-ID"

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents a WebSocket client for a fruitpass server
type Client struct {
	serverURL     string
	participantID string
	conn          *websocket.Conn
	send          chan []byte
	receive       chan protocol.Envelope
	logger        *log.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
	connected     bool
	room          *game.Room
	closeOnce     sync.Once
	requests      atomic.Uint64

	// Event handlers
	eventHandlers map[protocol.MessageType][]EventHandler
}

// EventHandler is a function that handles incoming events
type EventHandler func(protocol.Envelope)

// NewClient creates a new WebSocket client. An empty participantID lets the
// server assign one on connect.
func NewClient(serverURL, participantID string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL:     serverURL,
		participantID: participantID,
		send:          make(chan []byte, 64),
		receive:       make(chan protocol.Envelope, 64),
		logger:        logger.WithPrefix("client"),
		ctx:           ctx,
		cancel:        cancel,
		eventHandlers: make(map[protocol.MessageType][]EventHandler),
	}
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	if c.participantID != "" {
		q := u.Query()
		q.Set("participant", c.participantID)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	if id := resp.Header.Get(ParticipantHeader); id != "" {
		c.participantID = id
	}
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server", "participant", c.ParticipantID())
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close()
			c.connected = false
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the client has been disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ParticipantID returns the identity the server knows this client by.
func (c *Client) ParticipantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

// Room returns the latest snapshot, if any.
func (c *Client) Room() (game.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return game.Room{}, false
	}
	return c.room.Clone(), true
}

// SendMessage queues a message and returns the request id it was sent with.
func (c *Client) SendMessage(msgType protocol.MessageType, payload any) (string, error) {
	requestID := strconv.FormatUint(c.requests.Add(1), 10)
	data, err := protocol.Marshal(msgType, requestID, payload, time.Now())
	if err != nil {
		return "", err
	}

	select {
	case c.send <- data:
		return requestID, nil
	case <-c.ctx.Done():
		return "", c.ctx.Err()
	default:
		return "", fmt.Errorf("send buffer full")
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		_ = c.Disconnect()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		env, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Warn("Dropping malformed message", "error", err)
			continue
		}
		c.logger.Debug("Received message", "type", env.Type)

		select {
		case c.receive <- env:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				_ = c.Disconnect()
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

// eventProcessor dispatches incoming messages in arrival order
func (c *Client) eventProcessor() {
	for {
		select {
		case env := <-c.receive:
			c.handleMessage(env)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRoomSnapshot:
		var snap protocol.RoomSnapshot
		if err := env.Decode(&snap); err != nil {
			c.logger.Error("Failed to parse snapshot", "error", err)
			return
		}
		if !c.adopt(snap.Room) {
			c.logger.Debug("Ignoring stale snapshot", "room", snap.Room.ID, "version", snap.Room.Version)
			return
		}
	case protocol.TypeRoomClosed:
		c.mu.Lock()
		c.room = nil
		c.mu.Unlock()
	}

	c.mu.RLock()
	handlers := c.eventHandlers[env.Type]
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handler for message type", "type", env.Type)
	}
	for _, handler := range handlers {
		handler(env)
	}
}

// adopt stores room unless it is older than the snapshot already held.
func (c *Client) adopt(room game.Room) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != nil && c.room.ID == room.ID && room.Version < c.room.Version {
		return false
	}
	c.room = &room
	return true
}

// AddEventHandler adds an event handler for a specific message type
func (c *Client) AddEventHandler(messageType protocol.MessageType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], handler)
}

// CreateRoom opens a lobby hosted by this client
func (c *Client) CreateRoom(name string, maxPlayers int) (string, error) {
	return c.SendMessage(protocol.TypeCreateRoom, protocol.CreateRoom{Name: name, MaxPlayers: maxPlayers})
}

// JoinRoom takes a seat in the lobby with the given code
func (c *Client) JoinRoom(code, name string) (string, error) {
	return c.SendMessage(protocol.TypeJoinRoom, protocol.JoinRoom{Code: code, Name: name})
}

// Resume re-attaches to a room this participant already sits in
func (c *Client) Resume(code string) (string, error) {
	return c.SendMessage(protocol.TypeResume, protocol.Resume{Code: code})
}

func (c *Client) StartGame() (string, error) {
	return c.SendMessage(protocol.TypeStartGame, nil)
}

// PassCard gives away the card at index (0-based)
func (c *Client) PassCard(index int) (string, error) {
	return c.SendMessage(protocol.TypePassCard, protocol.PassCard{CardIndex: index})
}

func (c *Client) MarkReady() (string, error) {
	return c.SendMessage(protocol.TypeMarkReady, nil)
}

func (c *Client) Rematch() (string, error) {
	return c.SendMessage(protocol.TypeRematch, nil)
}

func (c *Client) ResetToLobby() (string, error) {
	return c.SendMessage(protocol.TypeResetLobby, nil)
}

func (c *Client) SetMaxPlayers(n int) (string, error) {
	return c.SendMessage(protocol.TypeSetMaxPlayers, protocol.SetMaxPlayers{MaxPlayers: n})
}

func (c *Client) LeaveRoom() (string, error) {
	return c.SendMessage(protocol.TypeLeaveRoom, nil)
}

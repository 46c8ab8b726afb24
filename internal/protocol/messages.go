// Package protocol defines the JSON messages exchanged over the WebSocket.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/lox/fruitpass/internal/game"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Client -> Server
	TypeCreateRoom    MessageType = "create_room"
	TypeJoinRoom      MessageType = "join_room"
	TypeResume        MessageType = "resume"
	TypeStartGame     MessageType = "start_game"
	TypePassCard      MessageType = "pass_card"
	TypeMarkReady     MessageType = "mark_ready"
	TypeRematch       MessageType = "rematch"
	TypeResetLobby    MessageType = "reset_lobby"
	TypeLeaveRoom     MessageType = "leave_room"
	TypeSetMaxPlayers MessageType = "set_max_players"

	// Server -> Client
	TypeRoomSnapshot MessageType = "room_snapshot"
	TypeRoomClosed   MessageType = "room_closed"
	TypeError        MessageType = "error"
)

// Envelope wraps every message on the wire. RequestID is echoed back on the
// reply to a client message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client -> Server Messages

// CreateRoom opens a new lobby with the sender as host.
type CreateRoom struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

// JoinRoom takes a seat in an existing lobby.
type JoinRoom struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Resume re-attaches to a room the sender already sits in.
type Resume struct {
	Code string `json:"code"`
}

// PassCard gives away the card at CardIndex.
type PassCard struct {
	CardIndex int `json:"cardIndex"`
}

// SetMaxPlayers changes the table size in the lobby.
type SetMaxPlayers struct {
	MaxPlayers int `json:"maxPlayers"`
}

// Server -> Client Messages

// RoomSnapshot carries the full room after every commit. You is the
// receiving participant's id.
type RoomSnapshot struct {
	Room game.Room `json:"room"`
	You  string    `json:"you"`
}

// RoomClosed is sent when the room is deleted or the receiver was removed.
type RoomClosed struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Error reports a rejected request.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

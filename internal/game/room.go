package game

import (
	"slices"
	"time"

	"github.com/lox/fruitpass/internal/deck"
)

// Status is the phase of a room.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Seat limits for a room.
const (
	MinPlayers        = 4
	MaxPlayers        = deck.MaxKinds
	DefaultMaxPlayers = MinPlayers
)

// Controller identifies who chooses a seat's moves: a Human participant or a
// Bot running a named strategy.
type Controller interface {
	isController()
}

// Human is a seat driven by a connected participant.
type Human struct {
	ParticipantID string
}

// Bot is a seat driven by the room authority.
type Bot struct {
	Strategy string
}

func (Human) isController() {}
func (Bot) isController()   {}

// Player is a seat in the room.
type Player struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Hand     []deck.Card `json:"hand"`
	IsBot    bool        `json:"isBot"`
	Strategy string      `json:"strategy,omitempty"`
}

// Controller returns the capability driving this seat.
func (p Player) Controller() Controller {
	if p.IsBot {
		return Bot{Strategy: p.Strategy}
	}
	return Human{ParticipantID: p.ID}
}

// ControlledByBot reports whether the room authority plays this seat.
func (p Player) ControlledByBot() bool {
	_, ok := p.Controller().(Bot)
	return ok
}

// LogKind classifies a log entry for presentation.
type LogKind string

const (
	LogInfo   LogKind = "info"
	LogAction LogKind = "action"
	LogWin    LogKind = "win"
)

// MaxLogEntries bounds Room.Logs; older entries are dropped first.
const MaxLogEntries = 10

// LogEntry is a line in the room's narration.
type LogEntry struct {
	ID      string    `json:"id"`
	Kind    LogKind   `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Room is the shared record for one game instance, keyed by its join code.
type Room struct {
	ID           string     `json:"id"`
	HostID       string     `json:"hostId"`
	Status       Status     `json:"status"`
	Players      []Player   `json:"players"`
	MaxPlayers   int        `json:"maxPlayers"`
	TurnIndex    int        `json:"turnIndex"`
	WinnerID     string     `json:"winnerId,omitempty"`
	Logs         []LogEntry `json:"logs"`
	ReadyPlayers []string   `json:"readyPlayers"`
	Version      int64      `json:"version"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the room.
func (r Room) Clone() Room {
	out := r
	if r.Players != nil {
		out.Players = make([]Player, len(r.Players))
		for i, p := range r.Players {
			p.Hand = deck.Clone(p.Hand)
			out.Players[i] = p
		}
	}
	out.Logs = slices.Clone(r.Logs)
	out.ReadyPlayers = slices.Clone(r.ReadyPlayers)
	return out
}

// PlayerIndex returns the seat index of id, or -1.
func (r Room) PlayerIndex(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// HasPlayer reports whether id holds a seat.
func (r Room) HasPlayer(id string) bool {
	return r.PlayerIndex(id) >= 0
}

// IsHost reports whether id is the room's host.
func (r Room) IsHost(id string) bool {
	return id != "" && id == r.HostID
}

// CurrentPlayer returns the player whose turn it is. ok is false outside of
// play or when the turn index is out of range.
func (r Room) CurrentPlayer() (Player, bool) {
	if r.Status != StatusPlaying || r.TurnIndex < 0 || r.TurnIndex >= len(r.Players) {
		return Player{}, false
	}
	return r.Players[r.TurnIndex], true
}

// Winner returns the winning player once the room is finished with a winner.
func (r Room) Winner() (Player, bool) {
	if r.WinnerID == "" {
		return Player{}, false
	}
	if i := r.PlayerIndex(r.WinnerID); i >= 0 {
		return r.Players[i], true
	}
	return Player{}, false
}

// HumanCount counts non-bot seats, host included.
func (r Room) HumanCount() int {
	n := 0
	for _, p := range r.Players {
		if !p.ControlledByBot() {
			n++
		}
	}
	return n
}

// BotCount counts bot seats.
func (r Room) BotCount() int {
	return len(r.Players) - r.HumanCount()
}

// TotalCards counts every card held by every player.
func (r Room) TotalCards() int {
	n := 0
	for _, p := range r.Players {
		n += len(p.Hand)
	}
	return n
}

// IsReady reports whether id has acknowledged the finished game.
func (r Room) IsReady(id string) bool {
	return slices.Contains(r.ReadyPlayers, id)
}

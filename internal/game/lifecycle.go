package game

import (
	"fmt"
	rand "math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/lox/fruitpass/internal/bot"
	"github.com/lox/fruitpass/internal/deck"
)

// NewRoom creates a lobby with the host as its only player.
func NewRoom(code, hostID, name string, now time.Time) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, fmt.Errorf("name is required: %w", ErrValidation)
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(hostID) == "" {
		return Room{}, fmt.Errorf("room code and participant id are required: %w", ErrValidation)
	}
	if bot.IsBotID(hostID) {
		return Room{}, fmt.Errorf("participant id %q is reserved for bots: %w", hostID, ErrValidation)
	}

	return Room{
		ID:           code,
		HostID:       hostID,
		Status:       StatusLobby,
		Players:      []Player{{ID: hostID, Name: name, Hand: []deck.Card{}}},
		MaxPlayers:   DefaultMaxPlayers,
		Logs:         []LogEntry{},
		ReadyPlayers: []string{},
		UpdatedAt:    now,
	}, nil
}

// Join seats participantID in the lobby. Joining a room one already sits in
// changes nothing.
func Join(room Room, participantID, name string) (Room, error) {
	name = strings.TrimSpace(name)
	if strings.TrimSpace(participantID) == "" {
		return room, fmt.Errorf("participant id is required: %w", ErrValidation)
	}
	if bot.IsBotID(participantID) {
		return room, fmt.Errorf("participant id %q is reserved for bots: %w", participantID, ErrValidation)
	}
	if room.HasPlayer(participantID) {
		return room, nil
	}
	if name == "" {
		return room, fmt.Errorf("name is required: %w", ErrValidation)
	}
	if room.Status != StatusLobby {
		return room, ErrGameAlreadyStarted
	}
	if len(room.Players) >= room.MaxPlayers {
		return room, ErrRoomFull
	}

	next := room.Clone()
	next.Players = append(next.Players, Player{ID: participantID, Name: name, Hand: []deck.Card{}})
	return next, nil
}

// SetMaxPlayers changes the table size while in the lobby.
func SetMaxPlayers(room Room, actorID string, n int) (Room, error) {
	if err := RequireHost(room, actorID); err != nil {
		return room, err
	}
	if room.Status != StatusLobby {
		return room, fmt.Errorf("table size: %w", ErrWrongPhase)
	}
	if n < MinPlayers || n > MaxPlayers {
		return room, fmt.Errorf("table size must be between %d and %d: %w", MinPlayers, MaxPlayers, ErrValidation)
	}
	if n < len(room.Players) {
		return room, fmt.Errorf("%d players already seated: %w", len(room.Players), ErrValidation)
	}

	next := room.Clone()
	next.MaxPlayers = n
	return next, nil
}

// Start fills empty seats with bots and deals the first game.
func Start(room Room, actorID string, rng *rand.Rand, now time.Time) (Room, error) {
	if err := RequireHost(room, actorID); err != nil {
		return room, err
	}
	if room.Status != StatusLobby {
		return room, ErrGameAlreadyStarted
	}
	return deal(room, rng, now)
}

// Rematch redeals a finished game once the ready-gate allows it.
func Rematch(room Room, actorID string, rng *rand.Rand, now time.Time) (Room, error) {
	if err := RequireHost(room, actorID); err != nil {
		return room, err
	}
	if room.Status != StatusFinished {
		return room, fmt.Errorf("rematch: %w", ErrWrongPhase)
	}
	if !CanProceed(room) {
		return room, ErrNotReady
	}
	return deal(room, rng, now)
}

// deal seats bots up to MaxPlayers, builds a deck for the final player count
// and hands out five cards each.
func deal(room Room, rng *rand.Rand, now time.Time) (Room, error) {
	next := room.Clone()

	bots := next.BotCount()
	for len(next.Players) < next.MaxPlayers {
		bots++
		next.Players = append(next.Players, Player{
			ID:       bot.NewID(),
			Name:     bot.DisplayName(bots),
			IsBot:    true,
			Strategy: bot.DefaultStrategy,
		})
	}

	cards, err := deck.Build(len(next.Players), rng)
	if err != nil {
		return room, fmt.Errorf("build deck: %w", err)
	}
	hands, err := deck.Deal(cards, len(next.Players))
	if err != nil {
		return room, fmt.Errorf("deal: %w", err)
	}
	for i := range next.Players {
		next.Players[i].Hand = hands[i]
	}

	next.Status = StatusPlaying
	next.TurnIndex = 0
	next.WinnerID = ""
	next.ReadyPlayers = []string{}
	next.Logs = nil
	next.appendLog(LogInfo, fmt.Sprintf("Game opened with %d players", len(next.Players)), now)
	return next, nil
}

// MarkReady records that a guest wants to continue after a finished game.
// The host and bots have nothing to acknowledge.
func MarkReady(room Room, participantID string) (Room, error) {
	idx := room.PlayerIndex(participantID)
	if idx < 0 {
		return room, ErrNotInRoom
	}
	if room.Status != StatusFinished {
		return room, fmt.Errorf("ready: %w", ErrWrongPhase)
	}
	if room.IsHost(participantID) || room.Players[idx].ControlledByBot() || room.IsReady(participantID) {
		return room, nil
	}

	next := room.Clone()
	next.ReadyPlayers = append(next.ReadyPlayers, participantID)
	return next, nil
}

// GuestCount is the number of human players other than the host.
func GuestCount(room Room) int {
	return room.HumanCount() - 1
}

// CanProceed reports whether the host may rematch or return to the lobby.
func CanProceed(room Room) bool {
	guests := GuestCount(room)
	if guests <= 0 {
		return true
	}
	return len(room.ReadyPlayers) >= guests
}

// ResetToLobby clears the finished game and drops every bot seat.
func ResetToLobby(room Room, actorID string) (Room, error) {
	if err := RequireHost(room, actorID); err != nil {
		return room, err
	}
	if room.Status != StatusFinished {
		return room, fmt.Errorf("return to lobby: %w", ErrWrongPhase)
	}
	if !CanProceed(room) {
		return room, ErrNotReady
	}

	next := room.Clone()
	next.Players = slices.DeleteFunc(next.Players, Player.ControlledByBot)
	for i := range next.Players {
		next.Players[i].Hand = []deck.Card{}
	}
	next.Status = StatusLobby
	next.TurnIndex = 0
	next.WinnerID = ""
	next.Logs = []LogEntry{}
	next.ReadyPlayers = []string{}
	return next, nil
}

// LeaveOutcome describes what a departure did to the room.
type LeaveOutcome int

const (
	// LeftLobby: a guest left the lobby.
	LeftLobby LeaveOutcome = iota
	// LeftFinished: a guest left after the game had ended.
	LeftFinished
	// Abandoned: a guest left mid-game and the game was declared over.
	Abandoned
	// RoomClosed: the host left; the room must be deleted.
	RoomClosed
)

func (o LeaveOutcome) String() string {
	switch o {
	case LeftLobby:
		return "left_lobby"
	case LeftFinished:
		return "left_finished"
	case Abandoned:
		return "abandoned"
	case RoomClosed:
		return "room_closed"
	default:
		return "unknown"
	}
}

// Leave removes participantID from the room. When the host leaves the room is
// returned unchanged with RoomClosed and the caller deletes the record.
func Leave(room Room, participantID string, now time.Time) (Room, LeaveOutcome, error) {
	idx := room.PlayerIndex(participantID)
	if room.IsHost(participantID) {
		return room, RoomClosed, nil
	}
	if idx < 0 {
		return room, 0, ErrNotInRoom
	}

	next := room.Clone()
	leaver := next.Players[idx]
	next.Players = slices.Delete(next.Players, idx, idx+1)
	next.ReadyPlayers = slices.DeleteFunc(next.ReadyPlayers, func(id string) bool { return id == participantID })

	switch room.Status {
	case StatusLobby:
		return next, LeftLobby, nil
	case StatusPlaying:
		next.Status = StatusFinished
		next.WinnerID = ""
		if next.TurnIndex >= len(next.Players) {
			next.TurnIndex = 0
		}
		next.appendLog(LogWin, fmt.Sprintf("%s left the game. Game over.", leaver.Name), now)
		return next, Abandoned, nil
	default:
		return next, LeftFinished, nil
	}
}

// RequireHost rejects lifecycle actions from anyone but the host.
func RequireHost(room Room, actorID string) error {
	if !room.IsHost(actorID) {
		return fmt.Errorf("only the host can do that: %w", ErrNotAuthorized)
	}
	return nil
}

// RequireTurn rejects a pass from anyone but the human whose turn it is.
func RequireTurn(room Room, actorID string) error {
	cur, ok := room.CurrentPlayer()
	if !ok {
		return fmt.Errorf("pass: %w", ErrWrongPhase)
	}
	switch c := cur.Controller().(type) {
	case Bot:
		return fmt.Errorf("it is %s's turn (%s bot): %w", cur.Name, c.Strategy, ErrNotAuthorized)
	case Human:
		if c.ParticipantID != actorID {
			return fmt.Errorf("it is %s's turn: %w", cur.Name, ErrNotAuthorized)
		}
	}
	return nil
}

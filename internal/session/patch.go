package session

import (
	"slices"
	"time"

	"github.com/lox/fruitpass/internal/game"
)

// Patch is a merge-style partial update. Nil fields are left untouched.
type Patch struct {
	HostID       *string          `json:"hostId,omitempty"`
	Status       *game.Status     `json:"status,omitempty"`
	Players      *[]game.Player   `json:"players,omitempty"`
	MaxPlayers   *int             `json:"maxPlayers,omitempty"`
	TurnIndex    *int             `json:"turnIndex,omitempty"`
	WinnerID     *string          `json:"winnerId,omitempty"`
	Logs         *[]game.LogEntry `json:"logs,omitempty"`
	ReadyPlayers *[]string        `json:"readyPlayers,omitempty"`
	Version      *int64           `json:"version,omitempty"`
	UpdatedAt    *time.Time       `json:"updatedAt,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// Diff returns the patch that turns before into after.
func Diff(before, after game.Room) Patch {
	var p Patch
	if before.HostID != after.HostID {
		p.HostID = ptr(after.HostID)
	}
	if before.Status != after.Status {
		p.Status = ptr(after.Status)
	}
	if !playersEqual(before.Players, after.Players) {
		p.Players = ptr(after.Clone().Players)
	}
	if before.MaxPlayers != after.MaxPlayers {
		p.MaxPlayers = ptr(after.MaxPlayers)
	}
	if before.TurnIndex != after.TurnIndex {
		p.TurnIndex = ptr(after.TurnIndex)
	}
	if before.WinnerID != after.WinnerID {
		p.WinnerID = ptr(after.WinnerID)
	}
	if !slices.EqualFunc(before.Logs, after.Logs, logEqual) {
		p.Logs = ptr(slices.Clone(after.Logs))
	}
	if !slices.Equal(before.ReadyPlayers, after.ReadyPlayers) {
		p.ReadyPlayers = ptr(slices.Clone(after.ReadyPlayers))
	}
	if before.Version != after.Version {
		p.Version = ptr(after.Version)
	}
	if !before.UpdatedAt.Equal(after.UpdatedAt) {
		p.UpdatedAt = ptr(after.UpdatedAt)
	}
	return p
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply returns a copy of room with the patch merged in.
func (p Patch) Apply(room game.Room) game.Room {
	next := room.Clone()
	if p.HostID != nil {
		next.HostID = *p.HostID
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Players != nil {
		next.Players = game.Room{Players: *p.Players}.Clone().Players
	}
	if p.MaxPlayers != nil {
		next.MaxPlayers = *p.MaxPlayers
	}
	if p.TurnIndex != nil {
		next.TurnIndex = *p.TurnIndex
	}
	if p.WinnerID != nil {
		next.WinnerID = *p.WinnerID
	}
	if p.Logs != nil {
		next.Logs = slices.Clone(*p.Logs)
	}
	if p.ReadyPlayers != nil {
		next.ReadyPlayers = slices.Clone(*p.ReadyPlayers)
	}
	if p.Version != nil {
		next.Version = *p.Version
	}
	if p.UpdatedAt != nil {
		next.UpdatedAt = *p.UpdatedAt
	}
	return next
}

func playersEqual(a, b []game.Player) bool {
	return slices.EqualFunc(a, b, func(x, y game.Player) bool {
		return x.ID == y.ID &&
			x.Name == y.Name &&
			x.IsBot == y.IsBot &&
			x.Strategy == y.Strategy &&
			slices.Equal(x.Hand, y.Hand)
	})
}

func logEqual(a, b game.LogEntry) bool {
	return a.ID == b.ID && a.Kind == b.Kind && a.Message == b.Message && a.At.Equal(b.At)
}

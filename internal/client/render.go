package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/lox/fruitpass/internal/deck"
	"github.com/lox/fruitpass/internal/game"
)

// RenderRoom writes a plain-text view of room as seen by participant you.
func RenderRoom(w io.Writer, room game.Room, you string) {
	fmt.Fprintf(w, "Room %s [%s] %d/%d players\n", room.ID, room.Status, len(room.Players), room.MaxPlayers)

	current, hasTurn := room.CurrentPlayer()
	for _, p := range room.Players {
		marker := "  "
		if room.Status == game.StatusPlaying && hasTurn && current.ID == p.ID {
			marker = "> "
		}

		var tags []string
		if p.ID == room.HostID {
			tags = append(tags, "host")
		}
		if p.ControlledByBot() {
			tags = append(tags, "bot")
		}
		if p.ID == you {
			tags = append(tags, "you")
		}
		if room.Status == game.StatusFinished && room.IsReady(p.ID) {
			tags = append(tags, "ready")
		}
		if p.ID == room.WinnerID {
			tags = append(tags, "winner")
		}

		line := marker + p.Name
		if len(tags) > 0 {
			line += " (" + strings.Join(tags, ", ") + ")"
		}
		if room.Status != game.StatusLobby {
			line += fmt.Sprintf(" %d cards", len(p.Hand))
		}
		fmt.Fprintln(w, line)
	}

	if idx := room.PlayerIndex(you); idx >= 0 && len(room.Players[idx].Hand) > 0 {
		fmt.Fprintf(w, "Your hand: %s\n", FormatHand(room.Players[idx].Hand))
	}

	switch room.Status {
	case game.StatusLobby:
		if room.IsHost(you) {
			fmt.Fprintf(w, "Share code %s, then type start.\n", room.ID)
		} else {
			fmt.Fprintln(w, "Waiting for the host to start.")
		}
	case game.StatusFinished:
		if winner, ok := room.Winner(); ok {
			fmt.Fprintf(w, "%s won this round.\n", winner.Name)
		}
	}
}

// FormatHand numbers cards from 1 the way pass expects them.
func FormatHand(hand []deck.Card) string {
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = fmt.Sprintf("%d:%s", i+1, c.Type)
	}
	return strings.Join(parts, " ")
}

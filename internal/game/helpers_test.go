package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/lox/fruitpass/internal/deck"
	"github.com/lox/fruitpass/internal/randutil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// cards builds a hand from kinds with readable ids.
func cards(kinds ...deck.Kind) []deck.Card {
	out := make([]deck.Card, len(kinds))
	for i, k := range kinds {
		out[i] = deck.Card{Type: k, ID: fmt.Sprintf("%s-%d", k, i)}
	}
	return out
}

// lobby creates a room hosted by "host" with the given guests seated.
func lobby(t *testing.T, guests ...string) Room {
	t.Helper()
	room, err := NewRoom("ABC123", "host", "Hana", testNow)
	require.NoError(t, err)
	for _, g := range guests {
		room, err = Join(room, g, "Guest "+g)
		require.NoError(t, err)
	}
	return room
}

// started creates and starts a room with a fixed seed.
func started(t *testing.T, guests ...string) Room {
	t.Helper()
	room, err := Start(lobby(t, guests...), "host", randutil.New(1), testNow)
	require.NoError(t, err)
	return room
}

// playing builds a playing room with hand-picked hands, one per kinds list.
func playing(hands ...[]deck.Card) Room {
	room := Room{
		ID:         "ABC123",
		HostID:     "p0",
		Status:     StatusPlaying,
		MaxPlayers: len(hands),
	}
	for i, h := range hands {
		room.Players = append(room.Players, Player{
			ID:   fmt.Sprintf("p%d", i),
			Name: fmt.Sprintf("P%d", i),
			Hand: h,
		})
	}
	return room
}

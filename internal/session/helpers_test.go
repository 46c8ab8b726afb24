package session

import (
	"io"
	"testing"
	"time"

	"github.com/lox/fruitpass/internal/game"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

var testNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func testRoom(t *testing.T, id string) game.Room {
	t.Helper()
	room, err := game.NewRoom(id, "host", "Hana", testNow)
	require.NoError(t, err)
	return room
}

// recv waits for the next snapshot or fails the test.
func recv(t *testing.T, ch <-chan game.Room) game.Room {
	t.Helper()
	select {
	case room, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return room
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return game.Room{}
	}
}

// requireClosed waits for ch to be closed, draining any pending snapshot.
func requireClosed(t *testing.T, ch <-chan game.Room) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}

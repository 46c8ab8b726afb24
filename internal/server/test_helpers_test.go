package server

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/lox/fruitpass/internal/deck"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testBotDelay = time.Second

// testLogger creates a logger that discards output for tests
func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

// flakyStore fails updates on demand.
type flakyStore struct {
	session.Store
	failUpdates atomic.Bool
}

func (s *flakyStore) Update(ctx context.Context, id string, base int64, patch session.Patch) (game.Room, error) {
	if s.failUpdates.Load() {
		return game.Room{}, fmt.Errorf("update: %w: connection refused", session.ErrTransport)
	}
	return s.Store.Update(ctx, id, base, patch)
}

func newTestManager(t *testing.T) (*RoomManager, *quartz.Mock, *flakyStore) {
	t.Helper()
	clock := quartz.NewMock(t)
	store := &flakyStore{Store: session.NewMemoryStore()}
	m := NewRoomManager(store, clock, testLogger(), Config{BotDelay: testBotDelay, Seed: 42})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
		_ = store.Close()
	})
	return m, clock, store
}

// newManagerOn starts a manager on a store shared with other managers, the
// way several server processes share one Redis.
func newManagerOn(t *testing.T, store session.Store, config Config) (*RoomManager, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	if config.BotDelay == 0 {
		config.BotDelay = testBotDelay
	}
	m := NewRoomManager(store, clock, testLogger(), config)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, clock
}

func hand(kinds ...deck.Kind) []deck.Card {
	out := make([]deck.Card, len(kinds))
	for i, k := range kinds {
		out[i] = deck.Card{Type: k, ID: fmt.Sprintf("%s-%d", k, i)}
	}
	return out
}

// seatedRoom builds a playing room whose hands cannot produce a winner within
// one lap of passes. bots marks which seats are bot-controlled.
func seatedRoom(code string, turn int, bots ...bool) game.Room {
	const (
		G = deck.Grape
		A = deck.Apple
		O = deck.Orange
		B = deck.Banana
	)
	hands := [][]deck.Card{
		hand(G, A, O, B, G),
		hand(A, O, B, G, A),
		hand(O, B, G, A, O),
		hand(B, G, A, O, B),
	}

	room := game.Room{
		ID:           code,
		HostID:       "host",
		Status:       game.StatusPlaying,
		MaxPlayers:   4,
		TurnIndex:    turn,
		Logs:         []game.LogEntry{},
		ReadyPlayers: []string{},
		Version:      5,
	}
	for i, h := range hands {
		p := game.Player{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("P%d", i), Hand: h}
		if i == 0 {
			p.ID = "host"
		}
		if i < len(bots) && bots[i] {
			p.IsBot = true
			p.Strategy = "consolidate"
		}
		room.Players = append(room.Players, p)
	}
	return room
}

func mustGet(t *testing.T, m *RoomManager, code string) game.Room {
	t.Helper()
	room, err := m.Get(context.Background(), code)
	require.NoError(t, err)
	return room
}

func advance(t *testing.T, clock *quartz.Mock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(d).MustWait(ctx)
}

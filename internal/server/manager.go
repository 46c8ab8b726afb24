package server

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/joincode"
	"github.com/lox/fruitpass/internal/randutil"
	"github.com/lox/fruitpass/internal/session"
	"github.com/rs/zerolog"
)

// DefaultBotDelay is the pause before a bot seat passes.
const DefaultBotDelay = 1500 * time.Millisecond

// DefaultIdleTimeout is how long an untouched room keeps its actor.
const DefaultIdleTimeout = 30 * time.Minute

const codeAttempts = 16

// Config tunes a RoomManager.
type Config struct {
	BotDelay          time.Duration
	DefaultMaxPlayers int
	Seed              int64

	// IdleTimeout stops the actor of a room nobody has touched for this
	// long. Zero keeps actors until their room is deleted.
	IdleTimeout time.Duration
	// ExpireIdleRooms also deletes the room when its actor goes idle, for
	// stores that do not expire documents themselves.
	ExpireIdleRooms bool
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BotDelay:          DefaultBotDelay,
		DefaultMaxPlayers: game.DefaultMaxPlayers,
		IdleTimeout:       DefaultIdleTimeout,
	}
}

// RoomManager is the authority for every room served by this process. Each
// room is owned by one actor goroutine; the manager routes calls to it.
type RoomManager struct {
	logger zerolog.Logger
	store  session.Store
	clock  quartz.Clock
	codes  *joincode.Generator
	rng    *randutil.Locked
	config Config

	mu     sync.RWMutex
	actors map[string]*roomActor
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoomManager creates a manager committing to store and timing bots with
// clock.
func NewRoomManager(store session.Store, clock quartz.Clock, logger zerolog.Logger, config Config) *RoomManager {
	if config.BotDelay < 0 {
		config.BotDelay = 0
	}
	if config.IdleTimeout < 0 {
		config.IdleTimeout = 0
	}
	if config.DefaultMaxPlayers == 0 {
		config.DefaultMaxPlayers = game.DefaultMaxPlayers
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &RoomManager{
		logger: logger.With().Str("component", "room_manager").Logger(),
		store:  store,
		clock:  clock,
		codes:  joincode.NewGenerator(nil),
		rng:    randutil.NewLocked(config.Seed),
		config: config,
		actors: make(map[string]*roomActor),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetCodeSource replaces the join-code randomness, for deterministic tests.
func (m *RoomManager) SetCodeSource(src joincode.RandSource) {
	m.codes = joincode.NewGenerator(src)
}

// Create opens a lobby hosted by participantID. maxPlayers of 0 uses the
// configured default.
func (m *RoomManager) Create(ctx context.Context, participantID, name string, maxPlayers int) (game.Room, error) {
	if maxPlayers == 0 {
		maxPlayers = m.config.DefaultMaxPlayers
	}
	now := m.clock.Now()

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := m.codes.GenerateUnique(codeAttempts, m.hasActor)
		if err != nil {
			return game.Room{}, err
		}

		room, err := game.NewRoom(code, participantID, name, now)
		if err != nil {
			return game.Room{}, err
		}
		if maxPlayers != room.MaxPlayers {
			if room, err = game.SetMaxPlayers(room, participantID, maxPlayers); err != nil {
				return game.Room{}, err
			}
		}
		room.Version = 1

		err = m.store.Create(ctx, room)
		if errors.Is(err, session.ErrRoomExists) {
			m.logger.Debug().Str("room", code).Msg("Join code taken in store, retrying")
			continue
		}
		if err != nil {
			return game.Room{}, err
		}

		m.spawn(room)
		m.logger.Info().
			Str("room", code).
			Str("host", participantID).
			Int("max_players", room.MaxPlayers).
			Msg("Room created")
		return room, nil
	}
	return game.Room{}, joincode.ErrExhausted
}

// Get returns the current room.
func (m *RoomManager) Get(ctx context.Context, code string) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, _ time.Time) (game.Room, bool, error) {
		return room, false, nil
	})
}

// Resume returns the room if participantID still holds a seat in it.
func (m *RoomManager) Resume(ctx context.Context, code, participantID string) (game.Room, error) {
	room, err := m.Get(ctx, code)
	if err != nil {
		return room, err
	}
	if !room.HasPlayer(participantID) {
		return game.Room{}, game.ErrNotInRoom
	}
	return room, nil
}

func (m *RoomManager) Join(ctx context.Context, code, participantID, name string) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, _ time.Time) (game.Room, bool, error) {
		next, err := game.Join(room, participantID, name)
		return next, false, err
	})
}

func (m *RoomManager) SetMaxPlayers(ctx context.Context, code, participantID string, n int) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, _ time.Time) (game.Room, bool, error) {
		next, err := game.SetMaxPlayers(room, participantID, n)
		return next, false, err
	})
}

func (m *RoomManager) Start(ctx context.Context, code, participantID string) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, now time.Time) (game.Room, bool, error) {
		next, err := m.withRNG(func(r *rand.Rand) (game.Room, error) {
			return game.Start(room, participantID, r, now)
		})
		return next, false, err
	})
}

func (m *RoomManager) Pass(ctx context.Context, code, participantID string, cardIndex int) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, now time.Time) (game.Room, bool, error) {
		next, err := game.Pass(room, participantID, cardIndex, now)
		return next, false, err
	})
}

func (m *RoomManager) MarkReady(ctx context.Context, code, participantID string) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, _ time.Time) (game.Room, bool, error) {
		next, err := game.MarkReady(room, participantID)
		return next, false, err
	})
}

func (m *RoomManager) Rematch(ctx context.Context, code, participantID string) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, now time.Time) (game.Room, bool, error) {
		next, err := m.withRNG(func(r *rand.Rand) (game.Room, error) {
			return game.Rematch(room, participantID, r, now)
		})
		return next, false, err
	})
}

func (m *RoomManager) ResetToLobby(ctx context.Context, code, participantID string) (game.Room, error) {
	return m.do(ctx, code, func(room game.Room, _ time.Time) (game.Room, bool, error) {
		next, err := game.ResetToLobby(room, participantID)
		return next, false, err
	})
}

// Leave removes participantID. closed reports that the host left and the
// room was deleted.
func (m *RoomManager) Leave(ctx context.Context, code, participantID string) (room game.Room, closed bool, err error) {
	room, err = m.do(ctx, code, func(room game.Room, now time.Time) (game.Room, bool, error) {
		next, outcome, err := game.Leave(room, participantID, now)
		if err != nil {
			return room, false, err
		}
		m.logger.Info().
			Str("room", room.ID).
			Str("participant", participantID).
			Stringer("outcome", outcome).
			Msg("Participant left")
		return next, outcome == game.RoomClosed, nil
	})
	if errors.Is(err, errRoomClosed) {
		return room, true, nil
	}
	return room, false, err
}

// Subscribe streams snapshots of the room from the session store.
func (m *RoomManager) Subscribe(ctx context.Context, code string) (<-chan game.Room, error) {
	return m.store.Subscribe(ctx, code)
}

// RoomCount returns the number of rooms with a live actor.
func (m *RoomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.actors)
}

// Shutdown stops every actor and waits for them to exit.
func (m *RoomManager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Msg("All room actors stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for room actors: %w", ctx.Err())
	}
}

func (m *RoomManager) do(ctx context.Context, code string, fn mutation) (game.Room, error) {
	code = joincode.Normalize(code)
	if strings.TrimSpace(code) == "" {
		return game.Room{}, fmt.Errorf("room code is required: %w", game.ErrValidation)
	}
	if err := joincode.Validate(code); err != nil {
		return game.Room{}, fmt.Errorf("%w: %v", game.ErrRoomNotFound, err)
	}

	// An actor stopping for idleness between lookup and submit leaves the
	// room in the store, so look it up again.
	for attempt := 0; attempt < 2; attempt++ {
		a, err := m.actorFor(ctx, code)
		if err != nil {
			return game.Room{}, err
		}
		room, err := a.submit(ctx, fn)
		if !errors.Is(err, errActorStopped) {
			return room, err
		}
		if m.ctx.Err() != nil {
			break
		}
	}
	return game.Room{}, game.ErrRoomNotFound
}

func (m *RoomManager) withRNG(fn func(*rand.Rand) (game.Room, error)) (game.Room, error) {
	var (
		room game.Room
		err  error
	)
	m.rng.With(func(r *rand.Rand) {
		room, err = fn(r)
	})
	return room, err
}

func (m *RoomManager) hasActor(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.actors[code]
	return ok
}

// actorFor returns the live actor for code, loading the room from the store
// when this process has not served it yet.
func (m *RoomManager) actorFor(ctx context.Context, code string) (*roomActor, error) {
	m.mu.RLock()
	a, ok := m.actors[code]
	m.mu.RUnlock()
	if ok {
		return a, nil
	}

	room, err := m.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.spawn(room), nil
}

func (m *RoomManager) spawn(room game.Room) *roomActor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[room.ID]; ok {
		return a
	}

	a := newRoomActor(m, room)
	m.actors[room.ID] = a
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		a.run()
	}()
	return a
}

func (m *RoomManager) remove(a *roomActor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.actors[a.id] == a {
		delete(m.actors, a.id)
	}
}

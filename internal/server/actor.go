package server

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/fruitpass/internal/bot"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/session"
	"github.com/rs/zerolog"
)

const (
	botCommitTimeout = 5 * time.Second

	// maxCommitAttempts bounds how often a command is re-run against a
	// reloaded room after another process committed first.
	maxCommitAttempts = 8
)

var (
	// errRoomClosed is returned to the caller whose command deleted the room.
	errRoomClosed = errors.New("room closed")

	// errActorStopped means the actor exited before taking the command. The
	// room may still exist in the store.
	errActorStopped = errors.New("room actor stopped")
)

// mutation computes the next room from the current one. closeRoom asks the
// actor to delete the room instead of committing next.
type mutation func(room game.Room, now time.Time) (next game.Room, closeRoom bool, err error)

type command struct {
	ctx   context.Context
	fn    mutation
	reply chan commandResult
}

type commandResult struct {
	room game.Room
	err  error
}

// roomActor owns one room. Every mutation, human or bot, runs on its
// goroutine, so the room value is never shared.
type roomActor struct {
	id       string
	manager  *RoomManager
	logger   zerolog.Logger
	room     game.Room
	cmds     chan command
	botTurns chan int64
	timer    *quartz.Timer
	closed   bool

	idle       chan struct{}
	idleTimer  *quartz.Timer
	lastActive time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func newRoomActor(m *RoomManager, room game.Room) *roomActor {
	ctx, cancel := context.WithCancel(m.ctx)
	return &roomActor{
		id:       room.ID,
		manager:  m,
		logger:   m.logger.With().Str("component", "room").Str("room", room.ID).Logger(),
		room:     room,
		cmds:     make(chan command),
		botTurns: make(chan int64, 1),
		idle:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (a *roomActor) run() {
	defer a.cancel()
	defer a.stopTimer()
	defer a.stopIdleTimer()

	updates := a.follow()
	a.touch()
	a.armBotTimer()
	a.armIdleTimer(a.manager.config.IdleTimeout)
	for !a.closed {
		// Due bot turns go ahead of queued commands.
		select {
		case v := <-a.botTurns:
			a.playBot(v)
			continue
		default:
		}

		select {
		case <-a.ctx.Done():
			return
		case v := <-a.botTurns:
			a.playBot(v)
		case room, ok := <-updates:
			if !ok {
				updates = nil
				a.feedEnded()
				continue
			}
			a.adopt(room)
		case <-a.idle:
			a.checkIdle()
		case cmd := <-a.cmds:
			cmd.reply <- a.handle(cmd.ctx, cmd.fn)
		}
	}
}

// follow subscribes to the stored room so commits made by other processes
// reach this actor. A nil channel means the actor only catches up on
// conflicts.
func (a *roomActor) follow() <-chan game.Room {
	updates, err := a.manager.store.Subscribe(a.ctx, a.id)
	if errors.Is(err, game.ErrRoomNotFound) {
		a.close()
		return nil
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("Cannot follow room updates")
		return nil
	}
	return updates
}

// adopt takes a newer snapshot committed elsewhere.
func (a *roomActor) adopt(room game.Room) {
	if room.Version <= a.room.Version {
		return
	}
	a.logger.Debug().
		Int64("from", a.room.Version).
		Int64("to", room.Version).
		Msg("Adopted remote commit")
	a.room = room
	a.touch()
	a.armBotTimer()
}

func (a *roomActor) feedEnded() {
	if a.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, botCommitTimeout)
	defer cancel()
	if err := a.reload(ctx); err != nil {
		if !errors.Is(err, game.ErrRoomNotFound) {
			a.logger.Warn().Err(err).Msg("Room feed ended")
		}
		return
	}
	a.logger.Warn().Msg("Room feed ended; remote commits are picked up on conflict")
}

// reload replaces the local room with the stored one.
func (a *roomActor) reload(ctx context.Context) error {
	room, err := a.manager.store.Get(ctx, a.id)
	if errors.Is(err, game.ErrRoomNotFound) {
		a.logger.Info().Msg("Room no longer in store")
		a.close()
		return err
	}
	if err != nil {
		return err
	}
	a.room = room
	a.armBotTimer()
	return nil
}

// submit hands fn to the actor and waits for the result.
func (a *roomActor) submit(ctx context.Context, fn mutation) (game.Room, error) {
	cmd := command{ctx: ctx, fn: fn, reply: make(chan commandResult, 1)}
	select {
	case a.cmds <- cmd:
	case <-a.ctx.Done():
		return game.Room{}, errActorStopped
	case <-ctx.Done():
		return game.Room{}, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.room, res.err
	case <-ctx.Done():
		return game.Room{}, ctx.Err()
	}
}

// handle runs fn against the current room and commits the result. When
// another process committed first, the room is reloaded and fn runs again.
func (a *roomActor) handle(ctx context.Context, fn mutation) commandResult {
	a.touch()
	for attempt := 1; ; attempt++ {
		now := a.manager.clock.Now()
		next, closeRoom, err := fn(a.room.Clone(), now)
		if err != nil {
			return commandResult{room: a.room.Clone(), err: err}
		}

		if closeRoom {
			if err := a.manager.store.Delete(ctx, a.id); err != nil && !errors.Is(err, game.ErrRoomNotFound) {
				a.logger.Warn().Err(err).Msg("Failed to delete room")
				return commandResult{room: a.room.Clone(), err: err}
			}
			a.close()
			a.logger.Info().Msg("Room closed by host")
			return commandResult{room: a.room.Clone(), err: errRoomClosed}
		}

		res := a.commit(ctx, next, now)
		if !errors.Is(res.err, session.ErrConflict) || attempt == maxCommitAttempts {
			return res
		}
		if err := a.reload(ctx); err != nil {
			return commandResult{room: a.room.Clone(), err: err}
		}
	}
}

// commit writes next to the store and adopts it. Nothing changes locally when
// the write fails.
func (a *roomActor) commit(ctx context.Context, next game.Room, now time.Time) commandResult {
	if session.Diff(a.room, next).Empty() {
		return commandResult{room: a.room.Clone()}
	}

	next.Version = a.room.Version + 1
	next.UpdatedAt = now

	committed, err := a.manager.store.Update(ctx, a.id, a.room.Version, session.Diff(a.room, next))
	if errors.Is(err, game.ErrRoomNotFound) {
		a.logger.Warn().Msg("Room vanished from store")
		a.close()
		return commandResult{room: a.room.Clone(), err: err}
	}
	if errors.Is(err, session.ErrConflict) {
		a.logger.Debug().Err(err).Msg("Commit raced another writer")
		return commandResult{room: a.room.Clone(), err: err}
	}
	if err != nil {
		a.logger.Warn().Err(err).Int64("version", next.Version).Msg("Commit failed")
		return commandResult{room: a.room.Clone(), err: err}
	}

	a.room = committed
	a.logger.Debug().
		Int64("version", committed.Version).
		Str("status", string(committed.Status)).
		Int("turn", committed.TurnIndex).
		Msg("Room committed")
	a.armBotTimer()
	return commandResult{room: committed.Clone()}
}

// armBotTimer schedules the current bot seat's pass. Any earlier timer is
// cancelled; the new one is tagged with the version it was armed for.
func (a *roomActor) armBotTimer() {
	a.stopTimer()

	cur, ok := a.room.CurrentPlayer()
	if !ok || !cur.ControlledByBot() {
		return
	}

	version := a.room.Version
	a.timer = a.manager.clock.AfterFunc(a.manager.config.BotDelay, func() {
		select {
		case a.botTurns <- version:
		case <-a.ctx.Done():
		}
	}, "bot", a.id)
}

// close stops the actor after the current command and unregisters it so new
// calls see the room as gone.
func (a *roomActor) close() {
	a.closed = true
	a.stopTimer()
	a.stopIdleTimer()
	a.manager.remove(a)
}

func (a *roomActor) touch() {
	a.lastActive = a.manager.clock.Now()
}

// armIdleTimer schedules an idle check after d. A zero IdleTimeout disables
// reaping.
func (a *roomActor) armIdleTimer(d time.Duration) {
	if a.manager.config.IdleTimeout <= 0 {
		return
	}
	a.stopIdleTimer()
	a.idleTimer = a.manager.clock.AfterFunc(d, func() {
		select {
		case a.idle <- struct{}{}:
		default:
		}
	}, "idle", a.id)
}

func (a *roomActor) stopIdleTimer() {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
		a.idleTimer = nil
	}
}

// checkIdle stops the actor once nothing has touched the room for
// IdleTimeout. With ExpireIdleRooms the room is deleted as well, which ends
// every subscription.
func (a *roomActor) checkIdle() {
	timeout := a.manager.config.IdleTimeout
	if remaining := timeout - a.manager.clock.Since(a.lastActive); remaining > 0 {
		a.armIdleTimer(remaining)
		return
	}

	if a.manager.config.ExpireIdleRooms {
		ctx, cancel := context.WithTimeout(a.ctx, botCommitTimeout)
		defer cancel()
		if err := a.manager.store.Delete(ctx, a.id); err != nil && !errors.Is(err, game.ErrRoomNotFound) {
			a.logger.Warn().Err(err).Msg("Failed to expire idle room")
			a.armIdleTimer(timeout)
			return
		}
		a.logger.Info().Dur("idle", timeout).Msg("Expired idle room")
	} else {
		a.logger.Debug().Dur("idle", timeout).Msg("Stopping idle room actor")
	}
	a.close()
}

func (a *roomActor) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *roomActor) playBot(version int64) {
	if version != a.room.Version {
		a.logger.Debug().Int64("timer_version", version).Int64("version", a.room.Version).Msg("Ignoring stale bot timer")
		return
	}
	cur, ok := a.room.CurrentPlayer()
	if !ok {
		return
	}
	ctrl, ok := cur.Controller().(game.Bot)
	if !ok {
		return
	}
	a.touch()

	strategy := bot.Lookup(ctrl.Strategy, a.manager.rng.Int64())
	idx := strategy.ChooseDiscard(cur.Hand)

	now := a.manager.clock.Now()
	next, err := game.ApplyPass(a.room, idx, now)
	if err != nil {
		a.logger.Error().Err(err).Str("bot", cur.ID).Int("card", idx).Msg("Bot chose an invalid move")
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, botCommitTimeout)
	defer cancel()
	res := a.commit(ctx, next, now)
	switch {
	case res.err == nil:
		a.logger.Debug().Str("bot", cur.Name).Str("strategy", strategy.Name()).Int("card", idx).Msg("Bot passed")
	case errors.Is(res.err, session.ErrConflict):
		// the reloaded room decides whether a bot still holds the turn
		if err := a.reload(ctx); err != nil && !a.closed {
			a.armBotTimer()
		}
	case !a.closed:
		// retry after another delay
		a.armBotTimer()
	}
}

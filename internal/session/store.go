// Package session is the shared document store rooms are committed to and
// observed through.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lox/fruitpass/internal/game"
)

var (
	// ErrTransport wraps every network or backend failure. The caller sees no
	// state change and may retry.
	ErrTransport = errors.New("sync transport error")

	// ErrRoomExists is returned by Create when the id is already taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrConflict is returned by Update when the stored version is no longer
	// the one the patch was computed against.
	ErrConflict = errors.New("room version conflict")

	errStoreClosed = errors.New("store closed")
)

// Store is a keyed document store holding one record per room.
type Store interface {
	Create(ctx context.Context, room game.Room) error
	// Get returns game.ErrRoomNotFound for unknown ids.
	Get(ctx context.Context, id string) (game.Room, error)
	// Update merges patch into the stored record and returns the result. The
	// write only happens while the stored version still equals base.
	Update(ctx context.Context, id string, base int64, patch Patch) (game.Room, error)
	Delete(ctx context.Context, id string) error
	// Subscribe streams full snapshots, starting with the current one. The
	// channel is closed when the room is deleted or ctx is done.
	Subscribe(ctx context.Context, id string) (<-chan game.Room, error)
	Close() error
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

func conflictError(id string, base, stored int64) error {
	return fmt.Errorf("room %s at version %d, expected %d: %w", id, stored, base, ErrConflict)
}

// event is the message published to remote subscribers. A nil Room with
// Deleted set is a tombstone.
type event struct {
	Room    *game.Room `json:"room,omitempty"`
	Deleted bool       `json:"deleted,omitempty"`
}

// feed is a subscriber channel that only ever holds the latest snapshot.
type feed struct {
	mu     sync.Mutex
	ch     chan game.Room
	closed bool
}

func newFeed() *feed {
	return &feed{ch: make(chan game.Room, 1)}
}

func (f *feed) push(room game.Room) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- room
	return true
}

// pushIfNewer queues room unless a snapshot at least as new is already
// waiting.
func (f *feed) pushIfNewer(room game.Room) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case pending := <-f.ch:
		if pending.Version >= room.Version {
			f.ch <- pending
			return false
		}
	default:
	}
	f.ch <- room
	return true
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

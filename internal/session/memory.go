package session

import (
	"context"
	"sync"

	"github.com/lox/fruitpass/internal/game"
)

// MemoryStore keeps rooms in process. It is the default backend and the one
// used by tests.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]game.Room
	feeds  map[string]map[*feed]struct{}
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]game.Room),
		feeds: make(map[string]map[*feed]struct{}),
	}
}

func (s *MemoryStore) Create(_ context.Context, room game.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transportError("create", errStoreClosed)
	}
	if _, ok := s.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (game.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return game.Room{}, game.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, base int64, patch Patch) (game.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return game.Room{}, transportError("update", errStoreClosed)
	}
	room, ok := s.rooms[id]
	if !ok {
		return game.Room{}, game.ErrRoomNotFound
	}
	if room.Version != base {
		return game.Room{}, conflictError(id, base, room.Version)
	}
	next := patch.Apply(room)
	s.rooms[id] = next
	for f := range s.feeds[id] {
		f.push(next.Clone())
	}
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return game.ErrRoomNotFound
	}
	delete(s.rooms, id)
	for f := range s.feeds[id] {
		f.close()
	}
	delete(s.feeds, id)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan game.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, game.ErrRoomNotFound
	}

	f := newFeed()
	f.push(room.Clone())
	if s.feeds[id] == nil {
		s.feeds[id] = make(map[*feed]struct{})
	}
	s.feeds[id][f] = struct{}{}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.feeds[id], f)
		s.mu.Unlock()
		f.close()
	}()
	return f.ch, nil
}

// Close ends every subscription. Reads keep working; writes fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, feeds := range s.feeds {
		for f := range feeds {
			f.close()
		}
		delete(s.feeds, id)
	}
	return nil
}

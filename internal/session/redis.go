package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/fruitpass/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultRoomTTL expires abandoned room documents. Every write renews it.
	DefaultRoomTTL = 6 * time.Hour

	keyPrefix        = "fruitpass:room:"
	maxUpdateRetries = 8
)

// RoomKey is the Redis key holding a room document.
func RoomKey(id string) string {
	return keyPrefix + id
}

// EventsChannel is the Redis pub/sub channel a room's commits are published on.
func EventsChannel(id string) string {
	return RoomKey(id) + ":events"
}

// RedisStore keeps each room as a JSON document with a TTL and publishes every
// commit so other processes can follow along.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, transportError("redis ping", err)
	}
	return NewRedisStoreFromClient(client, opts.TTL, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. A zero ttl uses
// DefaultRoomTTL.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis_store").Logger(),
	}
}

func (s *RedisStore) Create(ctx context.Context, room game.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := s.client.SetNX(ctx, RoomKey(room.ID), data, s.ttl).Result()
	if err != nil {
		return transportError("create", err)
	}
	if !ok {
		return ErrRoomExists
	}
	s.publish(ctx, room.ID, event{Room: &room})
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (game.Room, error) {
	data, err := s.client.Get(ctx, RoomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.Room{}, game.ErrRoomNotFound
	}
	if err != nil {
		return game.Room{}, transportError("get", err)
	}
	return decodeRoom(data)
}

// Update applies patch inside a WATCH/MULTI transaction. A write racing ours
// on the key is retried; a stored version other than base is a conflict.
func (s *RedisStore) Update(ctx context.Context, id string, base int64, patch Patch) (game.Room, error) {
	key := RoomKey(id)
	var next game.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return game.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		room, err := decodeRoom(data)
		if err != nil {
			return err
		}
		if room.Version != base {
			return conflictError(id, base, room.Version)
		}

		next = patch.Apply(room)
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal room: %w", err)
		}
		evt, err := json.Marshal(event{Room: &next})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			pipe.Publish(ctx, EventsChannel(id), evt)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug().Str("room", id).Int("attempt", i+1).Msg("Optimistic update conflict, retrying")
			continue
		case errors.Is(err, game.ErrRoomNotFound), errors.Is(err, ErrConflict):
			return game.Room{}, err
		default:
			return game.Room{}, transportError("update", err)
		}
	}
	return game.Room{}, transportError("update", fmt.Errorf("gave up after %d conflicting writes", maxUpdateRetries))
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, RoomKey(id)).Result()
	if err != nil {
		return transportError("delete", err)
	}
	if n == 0 {
		return game.ErrRoomNotFound
	}
	s.publish(ctx, id, event{Deleted: true})
	return nil
}

// Subscribe listens on the room's events channel. The current document is
// delivered first.
func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan game.Room, error) {
	pubsub := s.client.Subscribe(ctx, EventsChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, transportError("subscribe", err)
	}

	room, err := s.Get(ctx, id)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	f := newFeed()
	f.push(room)

	go func() {
		defer f.close()
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					s.logger.Warn().Err(err).Str("room", id).Msg("Dropping malformed room event")
					continue
				}
				if evt.Deleted || evt.Room == nil {
					return
				}
				f.push(*evt.Room)
			}
		}
	}()

	return f.ch, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) publish(ctx context.Context, id string, evt event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error().Err(err).Str("room", id).Msg("Failed to encode room event")
		return
	}
	if err := s.client.Publish(ctx, EventsChannel(id), data).Err(); err != nil {
		s.logger.Warn().Err(err).Str("room", id).Msg("Failed to publish room event")
	}
}

func decodeRoom(data []byte) (game.Room, error) {
	var room game.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return game.Room{}, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}

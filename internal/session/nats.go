package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lox/fruitpass/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const subjectPrefix = "fruitpass.room."

// Subject is the NATS subject a room's snapshots are published on.
func Subject(id string) string {
	return subjectPrefix + id
}

// DialNATS connects with reconnect handling that logs through logger.
func DialNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	logger = logger.With().Str("component", "nats").Logger()
	opts := []nats.Option{
		nats.Name("fruitpass"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, transportError("nats connect", err)
	}
	return conn, nil
}

// NATSStore decorates a Store so committed snapshots fan out over NATS to
// every process serving the room. Reads and writes go to the inner store.
type NATSStore struct {
	inner  Store
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewNATSStore takes ownership of conn; Close closes it.
func NewNATSStore(inner Store, conn *nats.Conn, logger zerolog.Logger) *NATSStore {
	return &NATSStore{
		inner:  inner,
		conn:   conn,
		logger: logger.With().Str("component", "nats_store").Logger(),
	}
}

func (s *NATSStore) Create(ctx context.Context, room game.Room) error {
	if err := s.inner.Create(ctx, room); err != nil {
		return err
	}
	s.publish(room.ID, event{Room: &room})
	return nil
}

func (s *NATSStore) Get(ctx context.Context, id string) (game.Room, error) {
	return s.inner.Get(ctx, id)
}

func (s *NATSStore) Update(ctx context.Context, id string, base int64, patch Patch) (game.Room, error) {
	room, err := s.inner.Update(ctx, id, base, patch)
	if err != nil {
		return room, err
	}
	s.publish(id, event{Room: &room})
	return room, nil
}

func (s *NATSStore) Delete(ctx context.Context, id string) error {
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(id, event{Deleted: true})
	return nil
}

// Subscribe delivers the current document and then every snapshot published
// on the room's subject. The subscription is registered before the document
// is read so nothing published in between is missed.
func (s *NATSStore) Subscribe(ctx context.Context, id string) (<-chan game.Room, error) {
	f := newFeed()
	sub, err := s.conn.Subscribe(Subject(id), func(msg *nats.Msg) {
		var evt event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			s.logger.Warn().Err(err).Str("room", id).Msg("Dropping malformed room event")
			return
		}
		if evt.Deleted || evt.Room == nil {
			f.close()
			return
		}
		f.push(*evt.Room)
	})
	if err != nil {
		return nil, transportError("nats subscribe", err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, transportError("nats flush", err)
	}

	room, err := s.inner.Get(ctx, id)
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	f.pushIfNewer(room)

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && s.conn.IsConnected() {
			s.logger.Debug().Err(err).Str("room", id).Msg("Unsubscribe failed")
		}
		f.close()
	}()

	return f.ch, nil
}

func (s *NATSStore) Close() error {
	s.conn.Close()
	return s.inner.Close()
}

func (s *NATSStore) publish(id string, evt event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error().Err(err).Str("room", id).Msg("Failed to encode room event")
		return
	}
	if err := s.conn.Publish(Subject(id), data); err != nil {
		s.logger.Warn().Err(err).Str("room", id).Msg("Failed to publish room event")
	}
}

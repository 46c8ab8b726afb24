package server

import (
	"context"
	"fmt"

	"github.com/lox/fruitpass/internal/session"
	"github.com/rs/zerolog"
)

// OpenStore builds the session store described by the config, wrapping it
// with NATS fan-out when a nats block is present.
func OpenStore(ctx context.Context, cfg *ServerConfig, logger zerolog.Logger) (session.Store, error) {
	var store session.Store
	switch cfg.Store.Backend {
	case BackendMemory:
		store = session.NewMemoryStore()
	case BackendRedis:
		rs, err := session.NewRedisStore(ctx, session.RedisOptions{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			TTL:      cfg.RoomTTL(),
		}, logger)
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.NATS != nil {
		conn, err := session.DialNATS(cfg.NATS.URL, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store = session.NewNATSStore(store, conn, logger)
	}

	logger.Info().
		Str("backend", cfg.Store.Backend).
		Bool("nats", cfg.NATS != nil).
		Msg("Session store ready")
	return store, nil
}

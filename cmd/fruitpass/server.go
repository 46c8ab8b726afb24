package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/fruitpass/cmd/fruitpass/shared"
	"github.com/lox/fruitpass/internal/randutil"
	"github.com/lox/fruitpass/internal/server"
)

// ServerCmd runs the room authority
type ServerCmd struct {
	Config     string `kong:"short='c',default='fruitpass.hcl',help='Path to HCL configuration file'"`
	Addr       string `kong:"help='Server address (overrides config)'"`
	Debug      bool   `kong:"help='Enable debug logging'"`
	LogJSON    bool   `kong:"name='log-json',help='Emit structured JSON logs'"`
	BotDelayMs *int   `kong:"help='Delay before a bot passes, in milliseconds (overrides config)'"`
	Store      string `kong:"help='Session store backend: memory or redis (overrides config)'"`
	RedisAddr  string `kong:"help='Redis address (overrides config)'"`
	NATSURL    string `kong:"name='nats-url',help='NATS URL for snapshot fan-out (overrides config)'"`
	Seed       *int64 `kong:"help='Deterministic RNG seed for deals (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := shared.ParseLevel(cfg.Server.LogLevel, c.Debug)
	if err != nil {
		return err
	}
	logger := shared.SetupLogger(level, c.LogJSON)

	seed := randutil.Seed(cfg.Server.Seed)
	if cfg.Server.Seed != nil {
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
	} else {
		logger.Info().Int64("seed", seed).Msg("Using random seed")
	}

	ctx := shared.SetupSignalHandler(logger)

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := server.OpenStore(openCtx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close session store")
		}
	}()

	clock := quartz.NewReal()
	manager := server.NewRoomManager(store, clock, logger, cfg.ManagerConfig(seed))
	s := server.NewServer(cfg.Server.Address, manager, clock, logger)

	logger.Info().
		Str("address", cfg.Server.Address).
		Str("store", cfg.Store.Backend).
		Dur("bot_delay", cfg.BotDelay()).
		Int("default_max_players", cfg.Server.DefaultMaxPlayers).
		Msg("Starting fruitpass server")

	return s.Run(ctx)
}

// apply layers command-line overrides onto the file config.
func (c *ServerCmd) apply(cfg *server.ServerConfig) {
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.BotDelayMs != nil {
		cfg.Server.BotDelayMS = *c.BotDelayMs
	}
	if c.Seed != nil {
		cfg.Server.Seed = c.Seed
	}
	if c.Store != "" {
		cfg.Store.Backend = c.Store
	}
	if c.RedisAddr != "" {
		cfg.Store.RedisAddr = c.RedisAddr
	}
	if cfg.Store.Backend == server.BackendRedis && cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if c.NATSURL != "" {
		cfg.NATS = &server.NATSSettings{URL: c.NATSURL}
	}
}

package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/fruitpass/internal/game"
	"github.com/rs/zerolog"
)

// Store backends accepted in the store block.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server *ServerSettings `hcl:"server,block"`
	Store  *StoreSettings  `hcl:"store,block"`
	NATS   *NATSSettings   `hcl:"nats,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address           string `hcl:"address,optional"`
	LogLevel          string `hcl:"log_level,optional"`
	BotDelayMS        int    `hcl:"bot_delay_ms,optional"`
	DefaultMaxPlayers int    `hcl:"default_max_players,optional"`
	IdleMinutes       int    `hcl:"idle_minutes,optional"`
	Seed              *int64 `hcl:"seed,optional"`
}

// StoreSettings selects where room documents live
type StoreSettings struct {
	Backend        string `hcl:"backend,optional"`
	RedisAddr      string `hcl:"redis_addr,optional"`
	RedisPassword  string `hcl:"redis_password,optional"`
	RedisDB        int    `hcl:"redis_db,optional"`
	RoomTTLMinutes int    `hcl:"room_ttl_minutes,optional"`
}

// NATSSettings enables cross-process snapshot fan-out
type NATSSettings struct {
	URL string `hcl:"url"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadServerConfig loads server configuration from an HCL file. A missing file
// yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.BotDelayMS == 0 {
		c.Server.BotDelayMS = int(DefaultBotDelay / time.Millisecond)
	}
	if c.Server.DefaultMaxPlayers == 0 {
		c.Server.DefaultMaxPlayers = game.DefaultMaxPlayers
	}
	if c.Server.IdleMinutes == 0 {
		c.Server.IdleMinutes = int(DefaultIdleTimeout / time.Minute)
	}

	if c.Store == nil {
		c.Store = &StoreSettings{}
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.Backend == BackendRedis && c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.RoomTTLMinutes == 0 {
		c.Store.RoomTTLMinutes = 360
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.BotDelayMS < 0 {
		return fmt.Errorf("bot_delay_ms must not be negative: %d", c.Server.BotDelayMS)
	}
	if n := c.Server.DefaultMaxPlayers; n < game.MinPlayers || n > game.MaxPlayers {
		return fmt.Errorf("default_max_players must be between %d and %d, got %d", game.MinPlayers, game.MaxPlayers, n)
	}
	if c.Server.IdleMinutes < 0 {
		return fmt.Errorf("idle_minutes must not be negative: %d", c.Server.IdleMinutes)
	}
	if _, err := zerolog.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.Server.LogLevel, err)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisDB < 0 {
			return fmt.Errorf("redis_db must not be negative: %d", c.Store.RedisDB)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.RoomTTLMinutes < 0 {
		return fmt.Errorf("room_ttl_minutes must not be negative: %d", c.Store.RoomTTLMinutes)
	}

	if c.NATS != nil && c.NATS.URL == "" {
		return fmt.Errorf("nats block requires a url")
	}
	return nil
}

// BotDelay is how long a bot seat waits before passing.
func (c *ServerConfig) BotDelay() time.Duration {
	return time.Duration(c.Server.BotDelayMS) * time.Millisecond
}

// RoomTTL is how long an untouched room document survives in Redis.
func (c *ServerConfig) RoomTTL() time.Duration {
	return time.Duration(c.Store.RoomTTLMinutes) * time.Minute
}

// ManagerConfig builds the room manager settings. Memory rooms have no store
// expiry, so their actors delete them once idle for the room TTL.
func (c *ServerConfig) ManagerConfig(seed int64) Config {
	cfg := Config{
		BotDelay:          c.BotDelay(),
		DefaultMaxPlayers: c.Server.DefaultMaxPlayers,
		Seed:              seed,
		IdleTimeout:       time.Duration(c.Server.IdleMinutes) * time.Minute,
	}
	if c.Store.Backend == BackendMemory {
		cfg.IdleTimeout = c.RoomTTL()
		cfg.ExpireIdleRooms = true
	}
	return cfg
}

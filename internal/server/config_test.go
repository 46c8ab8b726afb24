package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, DefaultBotDelay, cfg.BotDelay())
	assert.Equal(t, 4, cfg.Server.DefaultMaxPlayers)
	assert.Nil(t, cfg.Server.Seed)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Nil(t, cfg.NATS)
}

func TestLoadServerConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fruitpass.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
server {
  address             = "0.0.0.0:9000"
  log_level           = "debug"
  bot_delay_ms        = 250
  default_max_players = 6
  seed                = 1234
}

store {
  backend          = "redis"
  redis_db         = 2
  room_ttl_minutes = 30
}

nats {
  url = "nats://127.0.0.1:4222"
}
`), 0o600))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.BotDelay())
	assert.Equal(t, 6, cfg.Server.DefaultMaxPlayers)
	require.NotNil(t, cfg.Server.Seed)
	assert.Equal(t, int64(1234), *cfg.Server.Seed)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, 30*time.Minute, cfg.RoomTTL())
	require.NotNil(t, cfg.NATS)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
}

func TestLoadServerConfigRejectsBadHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`server {`), 0o600))
	_, err := LoadServerConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`unknown_block {}`), 0o600))
	_, err = LoadServerConfig(path)
	assert.Error(t, err)
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"negative bot delay", func(c *ServerConfig) { c.Server.BotDelayMS = -1 }},
		{"too few players", func(c *ServerConfig) { c.Server.DefaultMaxPlayers = 3 }},
		{"too many players", func(c *ServerConfig) { c.Server.DefaultMaxPlayers = 7 }},
		{"bad log level", func(c *ServerConfig) { c.Server.LogLevel = "loud" }},
		{"negative idle minutes", func(c *ServerConfig) { c.Server.IdleMinutes = -5 }},
		{"unknown backend", func(c *ServerConfig) { c.Store.Backend = "etcd" }},
		{"empty nats url", func(c *ServerConfig) { c.NATS = &NATSSettings{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestServerConfigManagerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	mc := cfg.ManagerConfig(99)
	assert.Equal(t, int64(99), mc.Seed)
	assert.Equal(t, DefaultBotDelay, mc.BotDelay)
	assert.Equal(t, cfg.RoomTTL(), mc.IdleTimeout, "memory rooms expire after the room TTL")
	assert.True(t, mc.ExpireIdleRooms)

	cfg.Store.Backend = BackendRedis
	cfg.Server.IdleMinutes = 10
	mc = cfg.ManagerConfig(99)
	assert.Equal(t, 10*time.Minute, mc.IdleTimeout)
	assert.False(t, mc.ExpireIdleRooms, "redis expires documents itself")
}

package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/fruitpass/internal/game"
)

// ClientConfig represents the complete client configuration
type ClientConfig struct {
	Server ServerConnection `hcl:"server,block"`
	Player PlayerSettings   `hcl:"player,block"`
	UI     UISettings       `hcl:"ui,block"`
}

// ServerConnection contains server connection settings
type ServerConnection struct {
	URL            string `hcl:"url"`
	ConnectTimeout int    `hcl:"connect_timeout,optional"`
}

// PlayerSettings contains player-specific settings
type PlayerSettings struct {
	Name       string `hcl:"name"`
	MaxPlayers int    `hcl:"max_players,optional"`
	ResumeFile string `hcl:"resume_file,optional"`
}

// UISettings contains user interface settings
type UISettings struct {
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server: ServerConnection{
			URL:            "http://localhost:8080",
			ConnectTimeout: 10,
		},
		UI: UISettings{
			LogLevel: "warn",
			LogFile:  "fruitpass-client.log",
		},
	}
}

// LoadClientConfig loads client configuration from HCL file
func LoadClientConfig(filename string) (*ClientConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultClientConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ClientConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultClientConfig()
	if config.Server.URL == "" {
		config.Server.URL = defaults.Server.URL
	}
	if config.Server.ConnectTimeout == 0 {
		config.Server.ConnectTimeout = defaults.Server.ConnectTimeout
	}
	if config.UI.LogLevel == "" {
		config.UI.LogLevel = defaults.UI.LogLevel
	}
	if config.UI.LogFile == "" {
		config.UI.LogFile = defaults.UI.LogFile
	}

	return &config, nil
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.Player.Name == "" {
		return fmt.Errorf("player name is required")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if n := c.Player.MaxPlayers; n != 0 && (n < game.MinPlayers || n > game.MaxPlayers) {
		return fmt.Errorf("max players must be between %d and %d, got %d", game.MinPlayers, game.MaxPlayers, n)
	}
	if _, err := log.ParseLevel(c.UI.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.UI.LogLevel)
	}
	return nil
}

// ResumePath returns where the resume cache lives, defaulting to the user's
// config directory.
func (c *ClientConfig) ResumePath() (string, error) {
	if c.Player.ResumeFile != "" {
		return c.Player.ResumeFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "fruitpass", "resume.json"), nil
}

// Level returns the configured log level, falling back to warn.
func (c *ClientConfig) Level() log.Level {
	level, err := log.ParseLevel(c.UI.LogLevel)
	if err != nil {
		return log.WarnLevel
	}
	return level
}

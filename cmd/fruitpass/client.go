package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/fruitpass/internal/client"
)

// ClientCmd connects to a server and plays from the terminal
type ClientCmd struct {
	Config     string `kong:"short='c',default='fruitpass-client.hcl',help='Path to HCL configuration file'"`
	Server     string `kong:"short='s',help='Server URL to connect to (overrides config)'"`
	Name       string `kong:"short='n',help='Display name (overrides config, defaults to $USER)'"`
	MaxPlayers int    `kong:"help='Table size for rooms you create (overrides config)'"`
	LogLevel   string `kong:"help='Log level (overrides config)'"`
	LogFile    string `kong:"help='Log file path (overrides config)'"`
	Fresh      bool   `kong:"help='Ignore the remembered room and identity'"`
}

func (c *ClientCmd) Run() error {
	cfg, err := client.LoadClientConfig(c.Config)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// stdout is the game view, so logs go to a file.
	logFile, err := os.OpenFile(cfg.UI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	logger := log.NewWithOptions(logFile, log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
	})

	resumePath, err := cfg.ResumePath()
	if err != nil {
		return err
	}
	cache := client.NewResumeCache(resumePath)

	var participantID string
	if !c.Fresh {
		entry, err := cache.Load()
		if err != nil {
			logger.Warn("Ignoring unreadable resume cache", "path", resumePath, "error", err)
		}
		participantID = entry.ParticipantID
	}

	wsClient := client.NewClient(cfg.Server.URL, participantID, logger)
	connectCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ConnectTimeout)*time.Second)
	err = wsClient.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer wsClient.Disconnect()

	logger.Info("Starting fruitpass client",
		"server", cfg.Server.URL,
		"player", cfg.Player.Name,
		"participant", wsClient.ParticipantID())

	sess := client.NewSession(wsClient, cache, cfg.Player.Name, cfg.Player.MaxPlayers, os.Stdout, logger)
	if err := sess.ResumeFromCache(); err != nil {
		return err
	}
	return sess.Run(context.Background(), os.Stdin)
}

func (c *ClientCmd) apply(cfg *client.ClientConfig) {
	if c.Server != "" {
		cfg.Server.URL = strings.TrimSpace(c.Server)
	}
	if c.Name != "" {
		cfg.Player.Name = strings.TrimSpace(c.Name)
	}
	if cfg.Player.Name == "" {
		cfg.Player.Name = os.Getenv("USER")
	}
	if cfg.Player.Name == "" {
		cfg.Player.Name = "Player"
	}
	if c.MaxPlayers != 0 {
		cfg.Player.MaxPlayers = c.MaxPlayers
	}
	if c.LogLevel != "" {
		cfg.UI.LogLevel = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.UI.LogFile = c.LogFile
	}
}

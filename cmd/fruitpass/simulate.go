package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lox/fruitpass/cmd/fruitpass/shared"
	"github.com/lox/fruitpass/internal/randutil"
	"github.com/lox/fruitpass/internal/simulator"
	"github.com/rs/zerolog"
)

// SimulateCmd plays bot-only games headlessly
type SimulateCmd struct {
	Games      int      `kong:"default='1000',help='Number of games to play'"`
	Players    int      `kong:"default='4',help='Seats per game (4-6)'"`
	Seed       *int64   `kong:"help='Deterministic RNG seed (optional)'"`
	Parallel   int      `kong:"default='4',help='Games played concurrently'"`
	Strategies []string `kong:"sep=',',help='Bot strategy per seat, cycled (consolidate, random)'"`
	MaxPasses  int      `kong:"default='2000',help='Abandon a game after this many passes'"`
	Debug      bool     `kong:"help='Enable debug logging'"`
	LogJSON    bool     `kong:"name='log-json',help='Emit structured JSON logs'"`
}

func (c *SimulateCmd) Run() error {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	}
	logger := shared.SetupLogger(level, c.LogJSON)
	ctx := shared.SetupSignalHandler(logger)

	seed := randutil.Seed(c.Seed)
	sim, err := simulator.New(simulator.Config{
		Games:      c.Games,
		Players:    c.Players,
		Seed:       seed,
		Parallel:   c.Parallel,
		Strategies: trimAll(c.Strategies),
		MaxPasses:  c.MaxPasses,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int("games", c.Games).
		Int("players", c.Players).
		Int64("seed", seed).
		Int("parallel", c.Parallel).
		Str("strategies", sim.StrategyLabel()).
		Msg("Starting simulation")

	start := time.Now()
	stats, err := sim.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	simulator.PrintSummary(os.Stdout, stats, sim.StrategyLabel())
	fmt.Printf("\nSeed: %d  Elapsed: %s\n", seed, time.Since(start).Round(time.Millisecond))
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

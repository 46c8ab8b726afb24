// Package simulator plays bot-only games headlessly to measure how long games
// run and whether any seat has an edge.
package simulator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lox/fruitpass/internal/bot"
	"github.com/lox/fruitpass/internal/deck"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/randutil"
	"github.com/lox/fruitpass/internal/statistics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPasses stops games that fail to produce a winner.
const DefaultMaxPasses = 2000

const simHost = "sim-seat-0"

// Config holds configuration for running simulations
type Config struct {
	Games    int
	Players  int
	Seed     int64
	Parallel int
	// Strategies assigns a bot strategy per seat, cycling when shorter than
	// Players. Empty means the default strategy everywhere.
	Strategies []string
	MaxPasses  int
	Logger     zerolog.Logger
}

// Simulator runs bot-only fruitpass games
type Simulator struct {
	config Config
	epoch  time.Time
}

// New creates a new simulator with the given configuration
func New(config Config) (*Simulator, error) {
	if config.Games <= 0 {
		return nil, fmt.Errorf("games must be positive, got %d", config.Games)
	}
	if config.Players == 0 {
		config.Players = game.DefaultMaxPlayers
	}
	if config.Players < game.MinPlayers || config.Players > game.MaxPlayers {
		return nil, fmt.Errorf("players must be between %d and %d, got %d", game.MinPlayers, game.MaxPlayers, config.Players)
	}
	if config.Parallel <= 0 {
		config.Parallel = 1
	}
	if config.MaxPasses <= 0 {
		config.MaxPasses = DefaultMaxPasses
	}
	for _, name := range config.Strategies {
		if _, err := bot.New(name, 0); err != nil {
			return nil, err
		}
	}
	config.Logger = config.Logger.With().Str("component", "simulator").Logger()

	return &Simulator{config: config, epoch: time.Unix(0, 0).UTC()}, nil
}

// Run plays every game and returns the aggregate statistics. Results do not
// depend on Parallel.
func (s *Simulator) Run(ctx context.Context) (*statistics.Statistics, error) {
	results := make([]statistics.GameResult, s.config.Games)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallel)
	for i := 0; i < s.config.Games; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := s.PlayGame(randutil.Derive(s.config.Seed, i))
			if err != nil {
				return fmt.Errorf("game %d: %w", i+1, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &statistics.Statistics{}
	for _, r := range results {
		stats.Add(r)
	}
	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}
	return stats, nil
}

// PlayGame plays one game from seed until someone collects five of a kind or
// the pass cap is hit.
func (s *Simulator) PlayGame(seed int64) (statistics.GameResult, error) {
	rng := randutil.New(seed)
	result := statistics.GameResult{Seed: seed, Players: s.config.Players, WinnerSeat: -1}

	room, err := game.NewRoom(fmt.Sprintf("SIM%d", seed), simHost, "Seat 0", s.epoch)
	if err != nil {
		return result, err
	}
	if room, err = game.SetMaxPlayers(room, simHost, s.config.Players); err != nil {
		return result, err
	}
	if room, err = game.Start(room, simHost, rng, s.epoch); err != nil {
		return result, err
	}

	seats := make([]bot.Strategy, len(room.Players))
	for i := range seats {
		seats[i] = bot.Lookup(s.strategyFor(i), randutil.Derive(seed, i))
	}

	for room.Status == game.StatusPlaying {
		if result.Passes >= s.config.MaxPasses {
			result.Capped = true
			s.config.Logger.Debug().Int64("seed", seed).Int("passes", result.Passes).Msg("Game hit pass cap")
			return result, nil
		}

		seat := room.TurnIndex
		choice := seats[seat].ChooseDiscard(room.Players[seat].Hand)
		if room, err = game.ApplyPass(room, choice, s.epoch); err != nil {
			return result, fmt.Errorf("seat %d pass %d: %w", seat, result.Passes+1, err)
		}
		result.Passes++
	}

	winner := room.PlayerIndex(room.WinnerID)
	if winner < 0 {
		return result, fmt.Errorf("game finished without a winner")
	}
	kind, ok := deck.FiveOfAKind(room.Players[winner].Hand)
	if !ok {
		return result, fmt.Errorf("winner %s does not hold five of a kind", room.Players[winner].Name)
	}
	result.WinnerSeat = winner
	result.Kind = kind

	s.config.Logger.Debug().
		Int64("seed", seed).
		Int("passes", result.Passes).
		Int("winner_seat", winner).
		Str("kind", kind.String()).
		Msg("Game finished")
	return result, nil
}

func (s *Simulator) strategyFor(seat int) string {
	if len(s.config.Strategies) == 0 {
		return bot.DefaultStrategy
	}
	return s.config.Strategies[seat%len(s.config.Strategies)]
}

// StrategyLabel describes the seat assignment for reports.
func (s *Simulator) StrategyLabel() string {
	names := make([]string, s.config.Players)
	for i := range names {
		names[i] = s.strategyFor(i)
	}
	return strings.Join(names, ",")
}

// PrintSummary writes a report of stats to w
func PrintSummary(w io.Writer, stats *statistics.Statistics, label string) {
	fmt.Fprintf(w, "\n=== RESULTS (%s) ===\n", label)
	fmt.Fprintf(w, "Games played: %d (%d finished, %d hit the pass cap)\n", stats.Games, stats.Completed, stats.Capped)

	if stats.Completed > 0 {
		low, high := stats.ConfidenceInterval95()
		fmt.Fprintf(w, "\n=== PASSES TO WIN ===\n")
		fmt.Fprintf(w, "Mean: %.2f  Median: %.1f  Std Dev: %.2f\n", stats.Mean(), stats.Median(), stats.StdDev())
		fmt.Fprintf(w, "95%% CI: [%.2f, %.2f]\n", low, high)
		fmt.Fprintf(w, "Percentiles: P5=%.1f, P25=%.1f, P75=%.1f, P95=%.1f, max=%d\n",
			stats.Percentile(0.05), stats.Percentile(0.25), stats.Percentile(0.75), stats.Percentile(0.95), stats.MaxPasses)
	}

	fmt.Fprintf(w, "\n=== WIN SHARE BY SEAT ===\n")
	for seat, ss := range stats.Seats {
		if ss.Games == 0 {
			continue
		}
		fmt.Fprintf(w, "Seat %d: %d/%d wins (%.1f%%)\n", seat, ss.Wins, ss.Games, stats.WinShare(seat)*100)
	}

	if len(stats.KindWins) > 0 {
		fmt.Fprintf(w, "\n=== WINNING KINDS ===\n")
		for _, kind := range deck.AllKinds {
			if n := stats.KindWins[kind]; n > 0 {
				fmt.Fprintf(w, "%s: %d\n", kind, n)
			}
		}
	}
}

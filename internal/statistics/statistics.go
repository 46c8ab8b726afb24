// Package statistics aggregates simulated game outcomes.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/fruitpass/internal/deck"
	"github.com/lox/fruitpass/internal/game"
)

// GameResult is the outcome of one simulated game
type GameResult struct {
	Seed       int64     // RNG seed for this game (for replay)
	Players    int       // Seats at the table
	Passes     int       // Passes made before the game ended or was capped
	WinnerSeat int       // Seat index of the winner, -1 when capped
	Kind       deck.Kind // Kind the winner collected
	Capped     bool      // Stopped at the pass cap without a winner
}

// SeatStats tracks outcomes for one seat index
type SeatStats struct {
	Games int
	Wins  int
}

// Statistics tracks passes-to-win and win share across simulated games
type Statistics struct {
	Games     int
	Completed int
	Capped    int

	SumPasses  float64
	SumPasses2 float64   // Sum of squares for variance calculation
	Values     []float64 // Passes of every completed game, for median/percentile

	Seats     [game.MaxPlayers]SeatStats
	KindWins  map[deck.Kind]int
	MaxPasses int
}

// Add incorporates a new game result into the statistics
func (s *Statistics) Add(result GameResult) {
	s.Games++
	for seat := 0; seat < result.Players && seat < len(s.Seats); seat++ {
		s.Seats[seat].Games++
	}

	if result.Capped {
		s.Capped++
		return
	}

	passes := float64(result.Passes)
	s.Completed++
	s.SumPasses += passes
	s.SumPasses2 += passes * passes
	s.Values = append(s.Values, passes)
	if result.Passes > s.MaxPasses {
		s.MaxPasses = result.Passes
	}

	if result.WinnerSeat >= 0 && result.WinnerSeat < len(s.Seats) {
		s.Seats[result.WinnerSeat].Wins++
	}
	if s.KindWins == nil {
		s.KindWins = make(map[deck.Kind]int)
	}
	s.KindWins[result.Kind]++
}

// Mean returns the mean number of passes in completed games
func (s *Statistics) Mean() float64 {
	if s.Completed == 0 {
		return 0
	}
	return s.SumPasses / float64(s.Completed)
}

// Variance returns the sample variance of passes-to-win
func (s *Statistics) Variance() float64 {
	if s.Completed < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumPasses2 - float64(s.Completed)*mean*mean) / float64(s.Completed-1)
}

// StdDev returns the sample standard deviation of passes-to-win
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Completed == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Completed))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Median returns the median passes-to-win
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// WinShare returns the fraction of games played at seat that seat won
func (s *Statistics) WinShare(seat int) float64 {
	if seat < 0 || seat >= len(s.Seats) || s.Seats[seat].Games == 0 {
		return 0
	}
	return float64(s.Seats[seat].Wins) / float64(s.Seats[seat].Games)
}

// Validate checks that the counters agree with each other
func (s *Statistics) Validate() error {
	if s.Games <= 0 {
		return fmt.Errorf("invalid games count: %d", s.Games)
	}
	if s.Completed+s.Capped != s.Games {
		return fmt.Errorf("completed (%d) + capped (%d) does not match games (%d)", s.Completed, s.Capped, s.Games)
	}
	if len(s.Values) != s.Completed {
		return fmt.Errorf("values array length (%d) does not match completed games (%d)", len(s.Values), s.Completed)
	}

	wins := 0
	for _, seat := range s.Seats {
		wins += seat.Wins
	}
	if wins != s.Completed {
		return fmt.Errorf("seat wins (%d) do not match completed games (%d)", wins, s.Completed)
	}

	kinds := 0
	for _, n := range s.KindWins {
		kinds += n
	}
	if kinds != s.Completed {
		return fmt.Errorf("kind wins (%d) do not match completed games (%d)", kinds, s.Completed)
	}
	return nil
}

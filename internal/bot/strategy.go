// Package bot implements the automated seat players used to fill a table.
package bot

import (
	"fmt"
	rand "math/rand/v2"
	"sort"

	"github.com/lox/fruitpass/internal/deck"
	"github.com/lox/fruitpass/internal/randutil"
)

// Strategy chooses which card a bot relinquishes on its turn.
type Strategy interface {
	Name() string
	// ChooseDiscard returns an index into hand. hand is never empty.
	ChooseDiscard(hand []deck.Card) int
}

const (
	// StrategyConsolidate keeps the majority kind and sheds the rarest.
	StrategyConsolidate = "consolidate"
	// StrategyRandom discards a uniformly random card.
	StrategyRandom = "random"
)

// DefaultStrategy is used for every bot seat unless configured otherwise.
const DefaultStrategy = StrategyConsolidate

// Strategies lists the strategy names accepted by New.
func Strategies() []string {
	names := []string{StrategyConsolidate, StrategyRandom}
	sort.Strings(names)
	return names
}

// New constructs a strategy by name. seed only affects randomised strategies.
func New(name string, seed int64) (Strategy, error) {
	switch name {
	case "", StrategyConsolidate:
		return Consolidate{}, nil
	case StrategyRandom:
		return NewRandom(seed), nil
	default:
		return nil, fmt.Errorf("unknown bot strategy %q", name)
	}
}

// Lookup returns the named strategy, falling back to the default for unknown
// names so a stale room document can never stall a bot seat.
func Lookup(name string, seed int64) Strategy {
	s, err := New(name, seed)
	if err != nil {
		return Consolidate{}
	}
	return s
}

// Random discards a random card. It is only used by the simulator as a
// baseline opponent.
type Random struct {
	rng *randutil.Locked
}

// NewRandom creates a Random strategy seeded from seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: randutil.NewLocked(seed)}
}

func (r *Random) Name() string { return StrategyRandom }

func (r *Random) ChooseDiscard(hand []deck.Card) int {
	if len(hand) == 0 {
		return 0
	}
	var idx int
	r.rng.With(func(rng *rand.Rand) {
		idx = rng.IntN(len(hand))
	})
	return idx
}

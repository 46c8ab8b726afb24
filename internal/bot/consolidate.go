package bot

import (
	"sort"

	"github.com/lox/fruitpass/internal/deck"
)

// Consolidate accumulates its most-held kind (the keep target) and discards
// from the rarest other kind it holds.
type Consolidate struct{}

func (Consolidate) Name() string { return StrategyConsolidate }

func (Consolidate) ChooseDiscard(hand []deck.Card) int {
	return ChooseDiscard(hand)
}

// ChooseDiscard picks the card index the consolidate strategy gives away.
//
// Kinds are scanned in order of first appearance in hand and the first kind to
// reach a strictly greater count becomes the keep target. Among the remaining
// positions the one whose kind is held least is chosen, ties going to the
// earlier position. A single-kind hand yields 0.
func ChooseDiscard(hand []deck.Card) int {
	counts := make(map[deck.Kind]int, deck.MaxKinds)
	order := make([]deck.Kind, 0, deck.MaxKinds)
	for _, c := range hand {
		if counts[c.Type] == 0 {
			order = append(order, c.Type)
		}
		counts[c.Type]++
	}

	var target deck.Kind
	best := 0
	for _, kind := range order {
		if counts[kind] > best {
			best = counts[kind]
			target = kind
		}
	}

	candidates := make([]int, 0, len(hand))
	for i, c := range hand {
		if c.Type != target {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return counts[hand[candidates[a]].Type] < counts[hand[candidates[b]].Type]
	})
	return candidates[0]
}

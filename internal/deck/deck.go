// Package deck builds and deals the fruit deck.
package deck

import (
	"fmt"
	rand "math/rand/v2"
)

// Build returns a shuffled deck for a game of n players: CardsPerKind cards
// of each of the first n kinds.
func Build(n int, rng *rand.Rand) ([]Card, error) {
	kinds, err := ActiveKinds(n)
	if err != nil {
		return nil, err
	}

	cards := make([]Card, 0, n*CardsPerKind)
	for _, kind := range kinds {
		for i := 0; i < CardsPerKind; i++ {
			cards = append(cards, NewCard(kind))
		}
	}

	Shuffle(cards, rng)
	return cards, nil
}

// Shuffle permutes cards in place with Fisher-Yates.
func Shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// Deal splits cards into consecutive hands of CardsPerKind, one per player in
// order. The deck must contain exactly players*CardsPerKind cards.
func Deal(cards []Card, players int) ([][]Card, error) {
	if players <= 0 {
		return nil, fmt.Errorf("cannot deal to %d players", players)
	}
	if len(cards) != players*CardsPerKind {
		return nil, fmt.Errorf("deck has %d cards, need exactly %d for %d players",
			len(cards), players*CardsPerKind, players)
	}

	hands := make([][]Card, players)
	for i := range hands {
		start := i * CardsPerKind
		hands[i] = Clone(cards[start : start+CardsPerKind])
	}
	return hands, nil
}

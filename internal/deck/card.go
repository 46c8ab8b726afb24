package deck

import "github.com/google/uuid"

// CardsPerKind is how many cards of each active kind are dealt, and also the
// size of every starting hand.
const CardsPerKind = 5

// Card is a single dealt card. ID only gives clients a stable identity; it has
// no gameplay meaning.
type Card struct {
	Type Kind   `json:"type"`
	ID   string `json:"id"`
}

// NewCard creates a card of the given kind with a fresh id.
func NewCard(kind Kind) Card {
	return Card{Type: kind, ID: uuid.NewString()}
}

// String returns the kind name of the card
func (c Card) String() string {
	return c.Type.String()
}

// CountKinds counts the cards of each kind in hand.
func CountKinds(hand []Card) map[Kind]int {
	counts := make(map[Kind]int, MaxKinds)
	for _, c := range hand {
		counts[c.Type]++
	}
	return counts
}

// FiveOfAKind reports whether hand holds at least CardsPerKind cards of one
// kind, and which kind that is.
func FiveOfAKind(hand []Card) (Kind, bool) {
	counts := make([]int, MaxKinds+1)
	for _, c := range hand {
		if !c.Type.Valid() {
			continue
		}
		counts[c.Type]++
		if counts[c.Type] >= CardsPerKind {
			return c.Type, true
		}
	}
	return 0, false
}

// Clone returns a copy of hand that does not share its backing array.
func Clone(hand []Card) []Card {
	if hand == nil {
		return nil
	}
	out := make([]Card, len(hand))
	copy(out, hand)
	return out
}

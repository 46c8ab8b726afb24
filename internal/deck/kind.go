package deck

import (
	"fmt"
	"strings"
)

// Kind is one of the six fruit kinds. The numeric value is the display rank
// (1-6) and doubles as the fixed deal order.
type Kind int

const (
	Grape Kind = iota + 1
	Apple
	Orange
	Banana
	Cherry
	Lemon
)

// MaxKinds is the number of fruit kinds, and therefore the largest table.
const MaxKinds = 6

// AllKinds lists every kind in deal order.
var AllKinds = []Kind{Grape, Apple, Orange, Banana, Cherry, Lemon}

var kindNames = map[Kind]string{
	Grape:  "grape",
	Apple:  "apple",
	Orange: "orange",
	Banana: "banana",
	Cherry: "cherry",
	Lemon:  "lemon",
}

// String returns the lowercase name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Rank returns the display rank of the kind.
func (k Kind) Rank() int {
	return int(k)
}

// Valid reports whether k is one of the six kinds.
func (k Kind) Valid() bool {
	return k >= Grape && k <= Lemon
}

// MarshalText encodes the kind by name so room documents stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid fruit kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == needle {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown fruit kind %q", s)
}

// ActiveKinds returns the first n kinds in deal order.
func ActiveKinds(n int) ([]Kind, error) {
	if n < 1 || n > MaxKinds {
		return nil, fmt.Errorf("kind count must be between 1 and %d, got %d", MaxKinds, n)
	}
	kinds := make([]Kind, n)
	copy(kinds, AllKinds[:n])
	return kinds, nil
}

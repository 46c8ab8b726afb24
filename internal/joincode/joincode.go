package joincode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet holds digits 1-9 and uppercase letters without O, so a code never
// contains a zero/O pair that reads the same.
const Alphabet = "123456789ABCDEFGHIJKLMNPQRSTUVWXYZ"

// Length is the number of characters in a join code.
const Length = 6

// ErrExhausted is returned by GenerateUnique when every attempt collided.
var ErrExhausted = errors.New("joincode: no free code after retries")

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator produces join codes with configurable randomness
type Generator struct {
	randSource RandSource
}

// NewGenerator creates a new generator. A nil RandSource uses crypto/rand.
func NewGenerator(randSource RandSource) *Generator {
	return &Generator{randSource: randSource}
}

// Generate creates a code using crypto/rand.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate creates a new join code using the generator's RandSource
func (g *Generator) Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(Alphabet[g.intN(len(Alphabet))])
	}
	return b.String()
}

// GenerateUnique retries Generate up to attempts times while taken reports a
// collision with a code already in use locally.
func (g *Generator) GenerateUnique(attempts int, taken func(string) bool) (string, error) {
	for i := 0; i < attempts; i++ {
		code := g.Generate()
		if taken == nil || !taken(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) intN(n int) int {
	if g.randSource != nil {
		return g.randSource.IntN(n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("failed to generate random join code: " + err.Error())
	}
	return int(v.Int64())
}

// Normalize trims whitespace and upper-cases a user-typed code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks that code is Length characters from Alphabet. Callers
// should Normalize user input first.
func Validate(code string) error {
	if len(code) != Length {
		return fmt.Errorf("join code must be exactly %d characters, got %d", Length, len(code))
	}
	for i, char := range code {
		if !strings.ContainsRune(Alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}

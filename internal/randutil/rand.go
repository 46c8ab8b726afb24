// Package randutil centralises how the server derives its random sources so
// that deals, bot ids and simulations can be replayed from a single seed.
package randutil

import (
	rand "math/rand/v2"
	"sync"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from the provided int64.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Seed returns seed when non-nil, otherwise a time-derived value. The chosen
// seed is returned so callers can log it for replay.
func Seed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return time.Now().UnixNano()
}

// Derive returns a child seed for the i-th independent stream (for example
// the i-th simulated game) without consuming the parent generator.
func Derive(seed int64, i int) int64 {
	return int64(mix(uint64(seed) + uint64(i+1)*goldenRatio64))
}

// Locked wraps a *rand.Rand for use from several goroutines.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocked returns a goroutine-safe generator seeded from seed.
func NewLocked(seed int64) *Locked {
	return &Locked{rng: New(seed)}
}

// With runs fn with exclusive access to the underlying generator.
func (l *Locked) With(fn func(*rand.Rand)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.rng)
}

// Int64 returns a random int64, typically used to seed a per-room generator.
func (l *Locked) Int64() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Int64()
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

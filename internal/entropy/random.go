// Package entropy provides the pseudo-random sources threaded through every
// stochastic call in the decision pipeline. Nothing in the core reads ambient
// randomness: a seed goes in, the same choices come out.
// Falls back to crypto/rand only to pick a seed when none is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	mrand "math/rand"
)

// Source is the only randomness the core consumes. *math/rand.Rand satisfies it.
type Source interface {
	// Float64 returns a pseudo-random number in [0, 1).
	Float64() float64
}

// New returns a deterministic source for the given seed.
func New(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed))
}

// Derive mixes a base seed with a stable key (a character ID, a stream name)
// so that every character gets an independent but reproducible stream.
func Derive(seed int64, key string) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(key))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// ResolveSeed returns seed unchanged when it is non-zero. A zero seed means
// "not configured": a fresh one is drawn from crypto/rand and logged so the
// run can still be replayed.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	seed = cryptoSeed()
	slog.Info("no seed configured, drew one from crypto/rand", "seed", seed)
	return seed
}

// cryptoSeed generates a positive int64 using crypto/rand.
func cryptoSeed() int64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return a fixed seed as a safe default.
		return 1
	}
	n := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if n == 0 {
		return 1
	}
	return n
}

// Sequence is a Source that replays fixed values in order, cycling when
// exhausted. Useful to force a specific selection in tests and replays.
type Sequence struct {
	values []float64
	next   int
}

// NewSequence creates a Sequence over the given values.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float64 returns the next value in the sequence.
func (s *Sequence) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

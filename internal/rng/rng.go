// Package rng supplies the uniform random source consumed by outcome resolvers.
//
// The default source reads crypto/rand for every draw, so outcomes are not
// reproducible from any seed. Seeded sources exist for tests and simulations only.
package rng

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Source produces uniform reals in [0,1) and bounded integers.
type Source interface {
	Float64() float64
	// IntN returns an integer in [0,n). It panics if n <= 0.
	IntN(n int) int
}

type cryptoSource struct{}

func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	// 53 random bits
	u := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(u) / (1 << 53)
}

func (c cryptoSource) IntN(n int) int {
	if n <= 0 {
		panic("rng: IntN with non-positive n")
	}
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		return rand.IntN(n)
	}
	// Rejection sampling to avoid modulo bias.
	bound := uint64(n)
	limit := ^uint64(0) - (^uint64(0) % bound)
	for {
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return int(v % bound)
		}
		if _, err := cryptoRand.Read(buf[:]); err != nil {
			return rand.IntN(n)
		}
	}
}

// Default returns the non-replayable production source.
func Default() Source { return cryptoSource{} }

// seeded wraps a PCG generator. math/rand/v2 generators are not safe for concurrent
// use, so draws are serialized.
type seeded struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeeded returns a deterministic source for tests and Monte Carlo runs.
func NewSeeded(seed uint64) Source {
	return &seeded{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *seeded) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Chance reports true with probability p. p <= 0 never hits and p >= 1 always hits.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// SampleDistinct draws k distinct integers from [0,n) by partial Fisher-Yates,
// in draw order.
func SampleDistinct(src Source, n, k int) []int {
	if k > n {
		k = n
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + src.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Package generator synthesizes orders and products from fixed word pools
// and weighted random choices.
package generator

import "math/rand/v2"

// Rand is the subset of *rand.Rand the generators draw from.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

type globalRand struct{}

func (globalRand) IntN(n int) int   { return rand.IntN(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// Default returns a Rand backed by the goroutine-safe global source.
func Default() Rand { return globalRand{} }

// Between returns a uniform integer in [min, max].
func Between(r Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + r.IntN(max-min+1)
}

// Chance reports true with the given percent probability.
func Chance(r Rand, percent int) bool {
	return Between(r, 1, 100) <= percent
}

func pick[T any](r Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// Sample returns up to n distinct elements of items in random order.
func Sample[T any](r Rand, items []T, n int) []T {
	if n > len(items) {
		n = len(items)
	}
	shuffled := append([]T(nil), items...)
	for i := 0; i < n; i++ {
		j := i + r.IntN(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

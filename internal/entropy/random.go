// Package entropy provides the deterministic random streams that drive every
// stochastic decision in a run. A stream is identified by (seed, purpose,
// period) so that a run resumed from a snapshot replays exactly.
package entropy

import (
	"math/rand"
)

// Purpose separates independent random streams within one period.
type Purpose uint64

const (
	PurposeLabor     Purpose = 100 // Bernoulli match draws
	PurposeSpawn     Purpose = 200 // household profile generation
	PurposeHeuristic Purpose = 300 // heuristic intent jitter
	PurposeShocks    Purpose = 400 // TFP noise seed
	PurposeInit      Purpose = 500 // initial population
)

// Mix derives a 64-bit stream seed from the run seed, purpose and period.
// Uses the splitmix64 finalizer so neighbouring periods get unrelated seeds.
func Mix(seed int64, purpose Purpose, period int) int64 {
	x := uint64(seed)
	x ^= uint64(purpose) * 0x9E3779B97F4A7C15
	x ^= uint64(period+1) * 0xBF58476D1CE4E5B9
	x = splitmix(x)
	return int64(x)
}

// Stream returns a fresh generator for (seed, purpose, period).
func Stream(seed int64, purpose Purpose, period int) *rand.Rand {
	return rand.New(rand.NewSource(Mix(seed, purpose, period)))
}

// Bernoulli returns true with probability p. p >= 1 always succeeds without
// consuming a draw; p <= 0 always fails.
func Bernoulli(rng *rand.Rand, p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return rng.Float64() < p
}

func splitmix(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

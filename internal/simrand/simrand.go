// Copyright 2025 James Ross

// Package simrand implements the concrete random source the tick loop
// draws from: uniform floats/ints plus the triangular distribution used
// to sample visit/travel prolongations, grounded on sim_util.py's use of
// numpy.random.triangular.
package simrand

import (
	"math"
	"math/rand"
)

// Source wraps a math/rand generator to satisfy model.RNG, patient.RNG,
// and manager.RNG without any of those packages importing math/rand
// directly.
type Source struct {
	r *rand.Rand
}

// New builds a Source seeded deterministically, so a simulation run can
// be replayed exactly from the same seed.
func New(seed int64) *Source {
	return &Source{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a pseudo-random number in [0,1).
func (s *Source) Float64() float64 { return s.r.Float64() }

// Intn returns a pseudo-random number in [0,n).
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.r.Intn(n)
}

// Triangular samples the triangular distribution with support [min,max]
// and mode, via inverse-CDF sampling.
func (s *Source) Triangular(min, mode, max float64) float64 {
	if max <= min {
		return min
	}
	u := s.r.Float64()
	fc := (mode - min) / (max - min)
	if u < fc {
		return min + math.Sqrt(u*(max-min)*(mode-min))
	}
	return max - math.Sqrt((1-u)*(max-min)*(max-mode))
}

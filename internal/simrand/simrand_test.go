// Copyright 2025 James Ross
package simrand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat64StaysInUnitInterval(t *testing.T) {
	s := New(1)
	for i := 0; i < 1000; i++ {
		f := s.Float64()
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
	}
}

func TestIntnStaysInRange(t *testing.T) {
	s := New(2)
	for i := 0; i < 1000; i++ {
		n := s.Intn(7)
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 7)
	}
}

func TestIntnZeroOrNegativeReturnsZero(t *testing.T) {
	s := New(3)
	require.Equal(t, 0, s.Intn(0))
	require.Equal(t, 0, s.Intn(-5))
}

func TestTriangularStaysWithinBounds(t *testing.T) {
	s := New(4)
	for i := 0; i < 1000; i++ {
		v := s.Triangular(10, 25, 60)
		require.GreaterOrEqual(t, v, 10.0)
		require.LessOrEqual(t, v, 60.0)
	}
}

func TestTriangularDegenerateRangeReturnsMin(t *testing.T) {
	s := New(5)
	require.Equal(t, 10.0, s.Triangular(10, 10, 10))
}

func TestSameSeedReproducesSequence(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

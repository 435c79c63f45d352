// Copyright 2025 James Ross

// Package graph implements the commuting graph (C1): an undirected
// weighted graph over municipalities with travel-time edges in minutes.
// The matrix is symmetric and the triangle inequality is not assumed.
package graph

import "github.com/jamesross/carefleet-sim/internal/simerr"

// IntraMunTime is the self-loop weight: travel within one municipality.
const IntraMunTime = 15

// Point is a 2-D position, used only for the municipality's latitude/
// longitude pair carried alongside the travel-time matrix.
type Point struct {
	X, Y float64
}

// Graph holds a symmetric minute-weighted travel-time matrix over
// n municipalities, indexed 0..n-1.
type Graph struct {
	n        int
	weight   [][]int
	position []Point
	travels  [][]int // n_travels counter per edge
}

// New builds a commuting graph from a pre-computed symmetric matrix.
// Diagonal entries are forced to IntraMunTime per the data-model
// invariant; off-diagonal entries must already be symmetric.
func New(matrix [][]int, positions []Point) (*Graph, error) {
	n := len(matrix)
	if n == 0 {
		return nil, simerr.Wrap(simerr.ErrInvalidInput, "graph.New", 0, 0)
	}
	if len(positions) != n {
		return nil, simerr.Wrap(simerr.ErrInvalidInput, "graph.New: positions length mismatch", 0, 0)
	}
	g := &Graph{
		n:        n,
		weight:   make([][]int, n),
		position: append([]Point(nil), positions...),
		travels:  make([][]int, n),
	}
	for i := 0; i < n; i++ {
		if len(matrix[i]) != n {
			return nil, simerr.Wrap(simerr.ErrInvalidInput, "graph.New: row length mismatch", 0, 0)
		}
		g.weight[i] = append([]int(nil), matrix[i]...)
		g.weight[i][i] = IntraMunTime
		g.travels[i] = make([]int, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if g.weight[i][j] != g.weight[j][i] {
				return nil, simerr.Wrap(simerr.ErrInvalidInput, "graph.New: asymmetric edge", 0, 0)
			}
		}
	}
	return g, nil
}

// N returns the number of municipalities.
func (g *Graph) N() int { return g.n }

// Travel returns the travel time in minutes between municipalities i and j.
func (g *Graph) Travel(i, j int) int {
	return g.weight[i][j]
}

// Position returns the 2-D position of municipality i.
func (g *Graph) Position(i int) Point {
	return g.position[i]
}

// RecordTravel increments the n_travels counter on edge (i,j); used by
// stats for reporting inter-municipality traffic, purely observational.
func (g *Graph) RecordTravel(i, j int) {
	g.travels[i][j]++
	if i != j {
		g.travels[j][i]++
	}
}

// TravelCount returns how many times edge (i,j) has been traversed.
func (g *Graph) TravelCount(i, j int) int {
	return g.travels[i][j]
}

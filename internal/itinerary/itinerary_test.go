// Copyright 2025 James Ross
package itinerary

import (
	"testing"

	"github.com/jamesross/carefleet-sim/internal/graph"
	"github.com/jamesross/carefleet-sim/internal/visit"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T) *graph.Graph {
	t.Helper()
	matrix := [][]int{
		{15, 20, 30},
		{20, 15, 25},
		{30, 25, 15},
	}
	positions := []graph.Point{{0, 0}, {1, 0}, {2, 0}}
	g, err := graph.New(matrix, positions)
	require.NoError(t, err)
	return g
}

func sameMun(mun map[int]int) MunicipalityLookup {
	return func(patientID int) int { return mun[patientID] }
}

func TestCumulableDelayEmptyItinerary(t *testing.T) {
	it := New(0, 0, 0, 840, newGraph(t), sameMun(nil), nil, 0.15, 60, 15, 15)
	require.Equal(t, -1, it.CumulableDelay(0, 840))
}

func TestExtendVisitTailStretchesFreely(t *testing.T) {
	g := newGraph(t)
	v1 := visit.New(1000000, 1, 1, 0, 90, 150)
	require.NoError(t, v1.Schedule(0, 90, 150, 1000))
	mun := sameMun(map[int]int{1: 0})
	it := New(0, 0, 0, 840, g, mun, []*visit.Visit{v1}, 0.15, 60, 15, 15)

	it.ExtendVisit(v1, 20, nil)
	require.Equal(t, 170, v1.RealEnd)
}

func TestExtendVisitCascadesIntoNext(t *testing.T) {
	g := newGraph(t)
	v1 := visit.New(1000000, 1, 1, 0, 90, 150)
	require.NoError(t, v1.Schedule(0, 90, 150, 1000))
	v2 := visit.New(1000001, 2, 1, 0, 165, 225) // 15 min gap after travel(0,0)=15
	require.NoError(t, v2.Schedule(0, 165, 225, 1000))
	mun := sameMun(map[int]int{1: 0, 2: 0})
	it := New(0, 0, 0, 840, g, mun, []*visit.Visit{v1, v2}, 0.15, 60, 15, 15)

	it.ExtendVisit(v1, 20, nil)
	require.Equal(t, 170, v1.RealEnd)
	// postponing_time = max(0, 170+15-165) = 20; shrink absorbs 9 (shortening room),
	// remaining 11 postpones the whole visit: 165+9+11 = 185
	require.Equal(t, 185, v2.RealStart)
	require.Equal(t, 236, v2.RealEnd)
}

func TestShortenVisitPropagatesForward(t *testing.T) {
	g := newGraph(t)
	v1 := visit.New(1000000, 1, 1, 0, 90, 150)
	require.NoError(t, v1.Schedule(0, 90, 150, 1000))
	v2 := visit.New(1000001, 2, 1, 0, 165, 225)
	require.NoError(t, v2.Schedule(0, 165, 225, 1000))
	mun := sameMun(map[int]int{1: 0, 2: 0})
	it := New(0, 0, 0, 840, g, mun, []*visit.Visit{v1, v2}, 0.15, 60, 15, 15)

	it.ShortenVisit(v1, 10)
	// v1 shrinks to end at 140, then the forward walk stretches it back by
	// min(shortened 10, lag 165-(140+15)=10, recovered 10) = 10.
	require.Equal(t, 150, v1.RealEnd)
}

func TestAvailableForMunicipalityFindsGap(t *testing.T) {
	g := newGraph(t)
	v1 := visit.New(1000000, 1, 1, 0, 100, 160)
	require.NoError(t, v1.Schedule(0, 100, 160, 1000))
	mun := sameMun(map[int]int{1: 0})
	it := New(0, 0, 0, 300, g, mun, []*visit.Visit{v1}, 0.15, 60, 15, 15)

	windows := it.AvailableForMunicipality(0)
	require.Len(t, windows, 2)
	require.Equal(t, Window{15, 85}, windows[0])
	require.Equal(t, Window{175, 285}, windows[1])
}

func TestPossibleVisitsCountsFit(t *testing.T) {
	g := newGraph(t)
	mun := sameMun(nil)
	it := New(0, 0, 0, 300, g, mun, nil, 0.15, 60, 15, 15)
	// one window [15,285] duration 270; visits of 60 + 15 intra -> (270+15)/(75)=3
	count := it.PossibleVisits(60, 0, 0, 300)
	require.Equal(t, 3, count)
}

func TestAddedTravelCostEmptyItinerary(t *testing.T) {
	g := newGraph(t)
	it := New(0, 0, 0, 840, g, sameMun(nil), nil, 0.15, 60, 15, 15)
	require.Equal(t, 0, it.AddedTravelCost(100, 0))
	require.Equal(t, 2*20, it.AddedTravelCost(100, 1))
}

func TestAddedTravelCostBetweenVisits(t *testing.T) {
	g := newGraph(t)
	v1 := visit.New(1000000, 1, 1, 0, 100, 160)
	require.NoError(t, v1.Schedule(0, 100, 160, 1000))
	v2 := visit.New(1000001, 2, 1, 0, 220, 280)
	require.NoError(t, v2.Schedule(0, 220, 280, 1000))
	mun := sameMun(map[int]int{1: 0, 2: 1})
	it := New(0, 0, 0, 840, g, mun, []*visit.Visit{v1, v2}, 0.15, 60, 15, 15)

	// inserting in municipality 2 between v1(mun 0) and v2(mun 1)
	cost := it.AddedTravelCost(190, 2)
	require.Equal(t, g.Travel(2, 0)+g.Travel(1, 2)-g.Travel(0, 1), cost)
}

func TestAvailableForVisitRequiresSkill(t *testing.T) {
	g := newGraph(t)
	it := New(0, 0, 0, 840, g, sameMun(nil), nil, 0.15, 60, 15, 15)
	require.False(t, it.AvailableForVisit(0, 1, 100, 160, 0))
	require.True(t, it.AvailableForVisit(1, 1, 100, 160, 0))
}

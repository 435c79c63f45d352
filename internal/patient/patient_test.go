// Copyright 2025 James Ross
package patient

import (
	"testing"

	"github.com/jamesross/carefleet-sim/internal/visit"
	"github.com/stretchr/testify/require"
)

type fakeEnv struct {
	day, now  int
	numDays   int
	visits    []*visit.Visit
	dist      map[int]float64
	highSkill float64
	patStart  int
	patEnd    int
	timeUnit  int
	minNotice int
	added     []*visit.Visit
	removed   []*visit.Visit
	nextID    int
}

func (e *fakeEnv) CurrentDay() int  { return e.day }
func (e *fakeEnv) CurrentTime() int { return e.now }
func (e *fakeEnv) NumDays() int     { return e.numDays }
func (e *fakeEnv) OwnVisits(patientID int) []*visit.Visit {
	var out []*visit.Visit
	for _, v := range e.visits {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out
}
func (e *fakeEnv) AddVisit(patientID, day, skill, start, end int, newlyGenerated bool) *visit.Visit {
	e.nextID++
	v := visit.New(e.nextID, patientID, skill, day, start, end)
	v.NewlyGenerated = newlyGenerated
	e.visits = append(e.visits, v)
	e.added = append(e.added, v)
	return v
}
func (e *fakeEnv) RemoveVisit(v *visit.Visit) { e.removed = append(e.removed, v) }
func (e *fakeEnv) VisitDurationDistribution() map[int]float64 { return e.dist }
func (e *fakeEnv) HighSkillProb() float64                     { return e.highSkill }
func (e *fakeEnv) PatStartTime() int                          { return e.patStart }
func (e *fakeEnv) PatEndTime() int                             { return e.patEnd }
func (e *fakeEnv) TimeUnit() int                               { return e.timeUnit }
func (e *fakeEnv) MinNoticeTime() int                          { return e.minNotice }
func (e *fakeEnv) AllowUnexpectedEvent() bool                   { return true }

// seqRNG is a deterministic RNG stand-in: Float64 returns a fixed value,
// Intn always returns 0.
type seqRNG struct{ f float64 }

func (r seqRNG) Float64() float64 { return r.f }
func (r seqRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return 0
}

func baseEnv() *fakeEnv {
	return &fakeEnv{
		day: 0, now: 0, numDays: 5,
		dist:      map[int]float64{60: 1.0},
		highSkill: 0.05,
		patStart:  30, patEnd: 810, timeUnit: 15, minNotice: 120,
	}
}

func TestSelectSkillPremiumAlwaysOne(t *testing.T) {
	p := New(1, 0, true, NoAssignedOperator, false)
	require.Equal(t, 1, p.SelectSkill(baseEnv(), seqRNG{f: 0.99}))
}

func TestSelectSkillNonPremiumThreshold(t *testing.T) {
	p := New(1, 0, false, NoAssignedOperator, false)
	env := baseEnv()
	require.Equal(t, 1, p.SelectSkill(env, seqRNG{f: 0.01}))
	require.Equal(t, 0, p.SelectSkill(env, seqRNG{f: 0.5}))
}

func TestSelectDurationPicksFromDistribution(t *testing.T) {
	p := New(1, 0, false, NoAssignedOperator, false)
	env := baseEnv()
	env.dist = map[int]float64{30: 0.5, 60: 0.5}
	require.Equal(t, 30, p.SelectDuration(env, seqRNG{f: 0.1}))
	require.Equal(t, 60, p.SelectDuration(env, seqRNG{f: 0.9}))
}

func TestGenerateNewVisitAddsVisit(t *testing.T) {
	p := New(1, 0, false, NoAssignedOperator, false)
	env := baseEnv()
	ok := p.GenerateNewVisit(env, seqRNG{f: 0.1})
	require.True(t, ok)
	require.Len(t, env.added, 1)
	require.Equal(t, 60, env.added[0].ProposedEnd-env.added[0].ProposedStart)
}

func TestCancellableVisitsRespectsMinNotice(t *testing.T) {
	p := New(1, 0, false, NoAssignedOperator, false)
	env := baseEnv()
	v := env.AddVisit(1, 0, 0, 200, 260, false)
	require.NoError(t, v.Schedule(0, 200, 260, 1000))
	env.now = 100 // 200 - 100 = 100 < 120 min notice -> not cancellable
	require.Empty(t, p.CancellableVisits(env))
	env.now = 50 // 200-50=150 >= 120
	require.Len(t, p.CancellableVisits(env), 1)
}

func TestCancelAllVisitsMarksRemoved(t *testing.T) {
	p := New(1, 0, false, NoAssignedOperator, false)
	env := baseEnv()
	v := env.AddVisit(1, 0, 0, 200, 260, false)
	require.NoError(t, v.Schedule(0, 200, 260, 1000))
	env.now = 0
	require.True(t, p.CancelAllVisits(env))
	require.True(t, p.IsRemoved)
	require.Len(t, env.removed, 1)
}

func TestPreferredOperatorsTieBreaksByFirstSeen(t *testing.T) {
	p := New(1, 0, false, NoAssignedOperator, false)
	env := baseEnv()
	v1 := env.AddVisit(1, 0, 0, 100, 160, false)
	require.NoError(t, v1.Schedule(0, 100, 160, 2000))
	v2 := env.AddVisit(1, 1, 0, 300, 360, false)
	require.NoError(t, v2.Schedule(1, 300, 360, 1000))
	// both operators have count 1; 2000 seen first -> preferred first
	require.Equal(t, []int{2000, 1000}, p.PreferredOperators(env))
}

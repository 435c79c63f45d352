// Copyright 2025 James Ross
package stats

import (
	"testing"

	"github.com/jamesross/carefleet-sim/internal/operator"
	"github.com/jamesross/carefleet-sim/internal/patient"
	"github.com/jamesross/carefleet-sim/internal/visit"
	"github.com/stretchr/testify/require"
)

type fakeEnv struct {
	ops            []*operator.Operator
	pats           []*patient.Patient
	visits         []*visit.Visit
	notSchedulable []*visit.Visit
	numDays        int
}

func (e *fakeEnv) Operators() []*operator.Operator        { return e.ops }
func (e *fakeEnv) Patients() []*patient.Patient            { return e.pats }
func (e *fakeEnv) Visits() []*visit.Visit                  { return e.visits }
func (e *fakeEnv) NotSchedulableVisits() []*visit.Visit    { return e.notSchedulable }
func (e *fakeEnv) NumDays() int                            { return e.numDays }

func TestComputeObjectiveDecomposesWage(t *testing.T) {
	op := operator.New(1000, 0, 1, 100, 200, []bool{true}, []int{0}, []int{840})
	op.Workload = 120 // 100 contract + 20 overtime

	env := &fakeEnv{ops: []*operator.Operator{op}}
	snap := Compute(env, Costs{Sigma0: 0.3, Sigma1: 0.1, Omega: 0.27}, nil)

	expectedWage := (0.3 + 1*0.1) * (100 + 20*(1+0.27))
	require.InDelta(t, expectedWage, snap.Objective.Wage, 0.001)
}

func TestComputeAverageVisitDelay(t *testing.T) {
	v1 := visit.New(1000000, 1, 0, 0, 100, 160)
	require.NoError(t, v1.Schedule(0, 100, 160, 1000))
	require.NoError(t, v1.Start(0, 110, 1000)) // 10 min delay
	require.NoError(t, v1.Complete(170))

	v2 := visit.New(1000001, 1, 0, 0, 200, 260)
	require.NoError(t, v2.Schedule(0, 200, 260, 1000))
	require.NoError(t, v2.Start(0, 200, 1000)) // no delay
	require.NoError(t, v2.Complete(260))

	env := &fakeEnv{visits: []*visit.Visit{v1, v2}}
	snap := Compute(env, Costs{}, nil)

	require.Equal(t, 2, snap.NumExecutedVisits)
	require.InDelta(t, 5.0, snap.AverageVisitDelay, 0.001)
}

func TestComputeNotExecutedAttributedToAssignedOperator(t *testing.T) {
	p := patient.New(1, 0, false, 1000, false)
	v := visit.New(1000000, 1, 0, 0, 100, 160) // stays NOT_SCHEDULED

	env := &fakeEnv{pats: []*patient.Patient{p}, visits: []*visit.Visit{v}}
	op := operator.New(1000, 0, 1, 900, 900, []bool{true}, []int{0}, []int{840})
	env.ops = []*operator.Operator{op}

	snap := Compute(env, Costs{Execution: 10}, nil)
	require.Equal(t, 10.0, snap.Objective.NotExecuted)
	require.Equal(t, 1, snap.NumNotExecutedVisits)
}

func TestDurationPercentileOverExecutedVisits(t *testing.T) {
	durations := []int{30, 60, 60, 90, 120}
	var visits []*visit.Visit
	for i, d := range durations {
		v := visit.New(1000000+i, 1, 0, 0, 0, d)
		require.NoError(t, v.Schedule(0, 0, d, 1000))
		require.NoError(t, v.Start(0, 0, 1000))
		require.NoError(t, v.Complete(d))
		visits = append(visits, v)
	}
	env := &fakeEnv{visits: visits}
	require.Equal(t, 120, DurationPercentile(env, 100))
	require.Equal(t, 30, DurationPercentile(env, 0))
}

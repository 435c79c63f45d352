// Copyright 2025 James Ross

// Package stats implements the run-summary collector (C8): a pure,
// in-memory aggregation pass over a finished or in-progress model run,
// decomposing the scheduling objective into its wage/movement/overskill/
// not-executed components and reporting delay, utilization, and
// visit-duration-distribution snapshots.
package stats

import (
	"math"
	"sort"

	"github.com/jamesross/carefleet-sim/internal/operator"
	"github.com/jamesross/carefleet-sim/internal/patient"
	"github.com/jamesross/carefleet-sim/internal/visit"
)

// Env is the slice of model state the collector needs to read.
type Env interface {
	Operators() []*operator.Operator
	Patients() []*patient.Patient
	Visits() []*visit.Visit
	NotSchedulableVisits() []*visit.Visit
	NumDays() int
}

// ObjectiveBreakdown decomposes the scheduling cost functional into its
// four additive components, mirroring compute_objective.
type ObjectiveBreakdown struct {
	Wage        float64
	Movement    float64
	Overskill   float64
	NotExecuted float64
}

// Total sums the decomposed components into the scalar objective.
func (b ObjectiveBreakdown) Total() float64 {
	return b.Wage + b.Movement + b.Overskill + b.NotExecuted
}

// Snapshot is a point-in-time summary of a model run.
type Snapshot struct {
	Objective            ObjectiveBreakdown
	AverageVisitDelay     float64
	AverageTimeOffset     float64
	NumExecutedVisits     int
	NumNotExecutedVisits  int
	NumNotSchedulable     int
	NumNewlyGenerated     int
	OperatorsByUtilization map[int]float64 // workload / contract time, by operator ID
	DurationHistogram      map[int]int     // scheduled duration -> count
	VisitsDelayedBy        map[int]int     // threshold minutes -> count exceeding it
	OperatorsPerPatient    []int           // index i = number of patients with exactly i distinct operators; the last index counts that many or more
	OverlyDelayedVisits    int             // visits descheduled because a cascading delay could not be absorbed
}

// Costs bundles the weights needed to decompose the objective:
// c_movement/c_overskill/c_execution plus the wage formula's own
// sigma0/sigma1/omega (shared across every operator).
type Costs struct {
	Movement  float64
	Overskill float64
	Execution float64
	Sigma0    float64
	Sigma1    float64
	Omega     float64
}

// Compute builds a full Snapshot from the current model state.
func Compute(env Env, costs Costs, delayThresholds []int) Snapshot {
	snap := Snapshot{
		OperatorsByUtilization: map[int]float64{},
		DurationHistogram:      map[int]int{},
		VisitsDelayedBy:        map[int]int{},
	}

	for _, op := range env.Operators() {
		snap.Objective.Wage += op.Wage(costs.Sigma0, costs.Sigma1, costs.Omega)
		snap.Objective.Movement += float64(op.TravelToReimburse) * costs.Movement
		snap.Objective.Overskill += float64(op.OverskillVisits) * costs.Overskill
		snap.Objective.NotExecuted += float64(numNotExecutedVisits(env, op.ID)) * costs.Execution
		snap.OverlyDelayedVisits += op.OverlyDelayedVisits

		if op.ContractTime > 0 {
			snap.OperatorsByUtilization[op.ID] = float64(op.Workload) / float64(op.ContractTime)
		}
	}

	var delaySum, offsetSum float64
	var offsetCount int
	for _, v := range env.Visits() {
		switch v.State {
		case visit.Executed:
			snap.NumExecutedVisits++
			delaySum += float64(v.RealStart - v.SchedStart)
			snap.DurationHistogram[v.SchedDuration()]++
			for _, th := range delayThresholds {
				if v.RealStart-v.SchedStart > th {
					snap.VisitsDelayedBy[th]++
				}
			}
		case visit.NotScheduled:
			snap.NumNotExecutedVisits++
		}
		if v.ScheduledByManager && (v.State == visit.Executed || v.State == visit.Scheduled) {
			offsetSum += math.Abs(float64(v.SchedStart - v.ProposedStart))
			offsetCount++
		}
		if v.NewlyGenerated {
			snap.NumNewlyGenerated++
		}
	}
	if snap.NumExecutedVisits > 0 {
		snap.AverageVisitDelay = round2(delaySum / float64(snap.NumExecutedVisits))
	}
	if offsetCount > 0 {
		snap.AverageTimeOffset = round2(offsetSum / float64(offsetCount))
	}

	snap.NumNotSchedulable = len(env.NotSchedulableVisits())
	snap.OperatorsPerPatient = operatorsPerPatient(env)

	return snap
}

// numNotExecutedVisits counts NOT_SCHEDULED visits belonging to patients
// assigned to operatorID, mirroring Operator.n_not_executed_visits.
func numNotExecutedVisits(env Env, operatorID int) int {
	assigned := map[int]bool{}
	for _, p := range env.Patients() {
		if p.AssignedOperatorID == operatorID {
			assigned[p.ID] = true
		}
	}
	count := 0
	for _, v := range env.Visits() {
		if assigned[v.PatientID] && v.State == visit.NotScheduled {
			count++
		}
	}
	return count
}

// operatorsPerPatient buckets patients by how many distinct operators
// executed at least one of their visits, mirroring num_op_per_patient.
func operatorsPerPatient(env Env) []int {
	buckets := make([]int, 6)
	for _, p := range env.Patients() {
		if p.IsRemoved {
			continue
		}
		seen := map[int]bool{}
		for _, v := range env.Visits() {
			if v.PatientID != p.ID || v.State != visit.Executed {
				continue
			}
			seen[v.RealOperator] = true
		}
		n := len(seen)
		if n >= len(buckets) {
			n = len(buckets) - 1
		}
		buckets[n]++
	}
	return buckets
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// DurationPercentile returns the p-th percentile (0..100) scheduled
// duration across executed visits, using the same sorted-slice
// percentile technique as a simple cost aggregator.
func DurationPercentile(env Env, p float64) int {
	var durations []int
	for _, v := range env.Visits() {
		if v.State == visit.Executed {
			durations = append(durations, v.SchedDuration())
		}
	}
	if len(durations) == 0 {
		return 0
	}
	sort.Ints(durations)
	idx := int(float64(len(durations)) * p / 100)
	if idx >= len(durations) {
		idx = len(durations) - 1
	}
	return durations[idx]
}

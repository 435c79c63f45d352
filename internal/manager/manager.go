// Copyright 2025 James Ross

// Package manager implements the dispatcher (C6): the agent that decides
// which operator, if any, services a proposed visit and at what time,
// across four strategy levels of increasing sophistication.
package manager

import (
	"math"

	"github.com/jamesross/carefleet-sim/internal/itinerary"
	"github.com/jamesross/carefleet-sim/internal/operator"
	"github.com/jamesross/carefleet-sim/internal/visit"
)

// Level is a scheduling strategy, numbered to match the source system's
// escalating sophistication ladder.
type Level int

const (
	Dummy     Level = 0
	Random    Level = 1
	Optimizer Level = 2
	Robust    Level = 3
)

// RNG is the minimal random source the manager needs.
type RNG interface {
	Float64() float64
	Intn(n int) int
}

// Hyperparams are the cost-functional weights from configuration.
type Hyperparams struct {
	CMovement  float64
	CWage      float64
	COverskill float64
	Sigma0     float64
	Sigma1     float64
	Omega      float64
}

// PossibleVisitsTable is [skill][durationIndex][municipality] -> count,
// as produced by CheckAllPossibleVisits.
type PossibleVisitsTable [][][]int

// Env is the set of callbacks the manager needs from the model.
type Env interface {
	CurrentDay() int
	CurrentTime() int
	MinNoticeTime() int
	NumMunicipalities() int
	Operators() []*operator.Operator
	GetOperator(id int) *operator.Operator
	OperatorItinerary(op *operator.Operator, day int) *itinerary.Itinerary
	PreferredOperators(v *visit.Visit) []int
	VisitDurationDistributionBySkill(skill int) map[int]float64
	PatientMunicipalityDistribution() []float64
	HasVisit(patientID, day int) bool
	NotSchedulableVisit(v *visit.Visit)
	PingOperator(op *operator.Operator, v *visit.Visit)
}

// Manager is the scheduling agent. The model owns the Manager value.
type Manager struct {
	ID          int
	Level       Level
	Hyperparams Hyperparams
}

// New constructs a manager at the given strategy level.
func New(id int, level Level, hp Hyperparams) *Manager {
	return &Manager{ID: id, Level: level, Hyperparams: hp}
}

const objConstant = 1000.0
const timeOffsetConstant = 5000.0
const smoothingConstant = 0.1

// ComputeObjectiveDelta is the marginal cost of assigning visit v to
// operator op at [start,end): weighted travel increment, wage increment,
// and an overskill penalty when the operator is more skilled than the
// visit requires.
func (m *Manager) ComputeObjectiveDelta(v *visit.Visit, op *operator.Operator, it *itinerary.Itinerary, start, end int) float64 {
	travelIncrement := float64(it.AddedTravelCost(start, it.Mun(v.PatientID)))
	wageAt := func(workload float64) float64 {
		base := math.Min(float64(op.ContractTime), workload)
		overtime := math.Max(0, workload-float64(op.ContractTime))
		return (m.Hyperparams.Sigma0 + float64(op.Skill)*m.Hyperparams.Sigma1) * (base + overtime*(1+m.Hyperparams.Omega))
	}
	wageIncrement := wageAt(float64(op.Workload+(end-start))) - wageAt(float64(op.Workload))

	overskill := 0.0
	if v.Skill < op.Skill {
		overskill = 1
	}

	return m.Hyperparams.CMovement*travelIncrement + m.Hyperparams.CWage*wageIncrement + m.Hyperparams.COverskill*overskill
}

func objectiveFactor(delta float64) float64 { return 1 + delta/objConstant }

func timeOffsetFactor(v *visit.Visit) float64 {
	return 1 + math.Abs(float64(v.ProposedStart-v.SchedStart))/timeOffsetConstant
}

// CheckPossibleVisits sums possible_visits(duration, day, municipality)
// across every operator skilled enough for the visit, for one
// municipality (or, if mun < 0, for every municipality).
func (m *Manager) CheckPossibleVisits(env Env, duration, day, skill, mun int) []int {
	n := env.NumMunicipalities()
	totals := make([]int, n)
	for _, op := range env.Operators() {
		if op.Skill < skill {
			continue
		}
		it := env.OperatorItinerary(op, day)
		if mun >= 0 {
			totals[mun] += it.PossibleVisits(duration, mun, 0, math.MaxInt32)
			continue
		}
		for mm := 0; mm < n; mm++ {
			totals[mm] += it.PossibleVisits(duration, mm, 0, math.MaxInt32)
		}
	}
	return totals
}

// CheckAllPossibleVisits builds the [skill][durationIndex][municipality]
// table ComputeRobustnessFactor needs to compare before/after a tentative
// schedule.
func (m *Manager) CheckAllPossibleVisits(env Env, day int) PossibleVisitsTable {
	table := make(PossibleVisitsTable, 2)
	for skill := 0; skill <= 1; skill++ {
		dist := env.VisitDurationDistributionBySkill(skill)
		durations := sortedKeys(dist)
		perSkill := make([][]int, len(durations))
		for i, d := range durations {
			perSkill[i] = m.CheckPossibleVisits(env, d, day, skill, -1)
		}
		table[skill] = perSkill
	}
	return table
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// ComputeRobustnessFactor measures how much inserting a visit shrinks the
// remaining scheduling room, averaged across skill tiers the operator can
// cover and weighted by patient geography.
func (m *Manager) ComputeRobustnessFactor(env Env, opSkill int, durationDist map[int]float64, prev, next PossibleVisitsTable) float64 {
	durations := sortedKeys(durationDist)
	munDist := env.PatientMunicipalityDistribution()
	n := env.NumMunicipalities()

	var skillCoeffs []float64
	for skill := 0; skill <= 1; skill++ {
		if opSkill < skill {
			continue
		}
		skillCoeff := 0.0
		for di, d := range durations {
			durationCoeff := 0.0
			for mm := 0; mm < n; mm++ {
				ratio := (smoothingConstant + float64(prev[skill][di][mm])) / (smoothingConstant + float64(next[skill][di][mm]))
				durationCoeff += ratio * munDist[mm]
			}
			skillCoeff += durationCoeff * durationDist[d]
		}
		skillCoeffs = append(skillCoeffs, skillCoeff)
	}

	if len(skillCoeffs) == 0 {
		return 1
	}
	total := 0.0
	for _, c := range skillCoeffs {
		total += c
	}
	return total / float64(len(skillCoeffs))
}

// ComputeCriticity scores a (visit, operator, start, end) candidate: the
// lower the better. OPTIMIZER uses the objective factor alone; ROBUST
// additionally folds in the robustness and time-offset factors, which
// require tentatively scheduling the visit to observe their effect on
// everybody else's remaining room.
func (m *Manager) ComputeCriticity(env Env, v *visit.Visit, op *operator.Operator, it *itinerary.Itinerary, start, end int, prevPossible PossibleVisitsTable) (float64, bool) {
	delta := m.ComputeObjectiveDelta(v, op, it, start, end)
	objFactor := objectiveFactor(delta)

	switch m.Level {
	case Optimizer:
		return objFactor, true
	case Robust:
		if err := v.Schedule(v.ProposedDay, start, end, op.ID); err != nil {
			return 0, false
		}
		newPossible := m.CheckAllPossibleVisits(env, v.ProposedDay)
		robustness := m.ComputeRobustnessFactor(env, op.Skill, env.VisitDurationDistributionBySkill(v.Skill), prevPossible, newPossible)
		offset := timeOffsetFactor(v)
		_ = v.Deschedule()
		return robustness * offset * objFactor, true
	default:
		return 0, false
	}
}

// PingOperator notifies an IDLE operator scheduled for a same-day visit
// to refresh its itinerary immediately rather than waiting for its next
// natural poll.
func (m *Manager) PingOperator(env Env, op *operator.Operator, v *visit.Visit) {
	if op.State == operator.Idle && v.ProposedDay == env.CurrentDay() {
		env.PingOperator(op, v)
	}
}

type candidate struct {
	criticity float64
	start     int
	operator  *operator.Operator
}

// TryScheduleWithOperators evaluates a visit against a candidate operator
// set, returning the best (criticity, start, operator) found. RANDOM
// picks uniformly among feasible candidates instead of optimizing.
func (m *Manager) TryScheduleWithOperators(env Env, v *visit.Visit, ops []*operator.Operator, prevPossible PossibleVisitsTable, rng RNG) (candidate, bool) {
	day := v.ProposedDay
	minNotice := env.MinNoticeTime()
	sameDayTooSoon := v.ProposedDay == env.CurrentDay() && v.ProposedStart <= env.CurrentTime()+minNotice

	switch m.Level {
	case Random:
		if !sameDayTooSoon {
			var available []*operator.Operator
			for _, op := range ops {
				it := env.OperatorItinerary(op, day)
				if it.AvailableForVisit(op.Skill, v.Skill, v.ProposedStart, v.ProposedEnd, it.Mun(v.PatientID)) {
					available = append(available, op)
				}
			}
			if len(available) != 0 {
				chosen := available[rng.Intn(len(available))]
				return candidate{start: v.ProposedStart, operator: chosen}, true
			}
		}

		duration := v.ProposedEnd - v.ProposedStart
		type opTimes struct {
			op     *operator.Operator
			starts []int
		}
		var feasible []opTimes
		for _, op := range ops {
			it := env.OperatorItinerary(op, day)
			starts := it.PossibleTimesToStartVisit(duration, it.Mun(v.PatientID), it.DayStart, it.DayEnd)
			if v.ProposedDay == env.CurrentDay() {
				starts = filterGE(starts, env.CurrentTime()+minNotice)
			}
			if len(starts) != 0 {
				feasible = append(feasible, opTimes{op, starts})
			}
		}
		if len(feasible) == 0 {
			return candidate{}, false
		}
		chosen := feasible[rng.Intn(len(feasible))]
		start := chosen.starts[rng.Intn(len(chosen.starts))]
		return candidate{start: start, operator: chosen.op}, true

	case Optimizer, Robust:
		var best *candidate

		if !sameDayTooSoon {
			for _, op := range ops {
				it := env.OperatorItinerary(op, day)
				mun := it.Mun(v.PatientID)
				if !it.AvailableForVisit(op.Skill, v.Skill, v.ProposedStart, v.ProposedEnd, mun) {
					continue
				}
				crit, ok := m.ComputeCriticity(env, v, op, it, v.ProposedStart, v.ProposedEnd, prevPossible)
				if ok && (best == nil || crit < best.criticity) {
					best = &candidate{criticity: crit, start: v.ProposedStart, operator: op}
				}
			}
			if best != nil {
				return *best, true
			}
		}

		duration := v.ProposedEnd - v.ProposedStart
		for _, op := range ops {
			it := env.OperatorItinerary(op, day)
			mun := it.Mun(v.PatientID)
			starts := it.PossibleTimesToStartVisit(duration, mun, it.DayStart, it.DayEnd)
			if v.ProposedDay == env.CurrentDay() {
				starts = filterGE(starts, env.CurrentTime()+minNotice)
			}
			for _, pst := range starts {
				crit, ok := m.ComputeCriticity(env, v, op, it, pst, pst+duration, prevPossible)
				if ok && (best == nil || crit < best.criticity) {
					best = &candidate{criticity: crit, start: pst, operator: op}
				}
			}
		}
		if best != nil {
			return *best, true
		}
		return candidate{}, false
	}
	return candidate{}, false
}

func filterGE(xs []int, threshold int) []int {
	var out []int
	for _, x := range xs {
		if x >= threshold {
			out = append(out, x)
		}
	}
	return out
}

// FindBestScheduling tries each preferred operator on its own, in
// preference order, and returns the first one that yields a candidate;
// only if none does are all other operators evaluated together and the
// best candidate among them returned.
func (m *Manager) FindBestScheduling(env Env, v *visit.Visit, rng RNG) (candidate, bool) {
	preferred := env.PreferredOperators(v)
	prevPossible := m.CheckAllPossibleVisits(env, v.ProposedDay)

	for _, opID := range preferred {
		op := env.GetOperator(opID)
		if op == nil {
			continue
		}
		if c, ok := m.TryScheduleWithOperators(env, v, []*operator.Operator{op}, prevPossible, rng); ok {
			return c, true
		}
	}

	preferredSet := make(map[int]bool, len(preferred))
	for _, id := range preferred {
		preferredSet[id] = true
	}
	var others []*operator.Operator
	for _, op := range env.Operators() {
		if !preferredSet[op.ID] {
			others = append(others, op)
		}
	}
	return m.TryScheduleWithOperators(env, v, others, prevPossible, rng)
}

// ScheduleSingleVisit attempts to schedule v at the manager's
// configured strategy level, committing the schedule and pinging the
// chosen operator on success. On failure, DUMMY and RANDOM file the visit
// as not schedulable; OPTIMIZER and ROBUST leave it NOT_SCHEDULED for a
// later retry. Reports whether scheduling succeeded.
func (m *Manager) ScheduleSingleVisit(env Env, v *visit.Visit, rng RNG) bool {
	var committed bool

	switch m.Level {
	case Dummy:
		preferred := env.PreferredOperators(v)
		tooSoon := v.ProposedDay == env.CurrentDay() && v.ProposedStart <= env.CurrentTime()+env.MinNoticeTime()
		if len(preferred) != 0 && !tooSoon {
			for _, opID := range preferred {
				op := env.GetOperator(opID)
				if op == nil {
					continue
				}
				it := env.OperatorItinerary(op, v.ProposedDay)
				if it.AvailableForVisit(op.Skill, v.Skill, v.ProposedStart, v.ProposedEnd, it.Mun(v.PatientID)) {
					if err := v.Schedule(v.ProposedDay, v.ProposedStart, v.ProposedEnd, op.ID); err == nil {
						m.PingOperator(env, op, v)
						committed = true
					}
					break
				}
			}
		}

	case Random:
		preferred := env.PreferredOperators(v)
		preferredSet := make(map[int]bool, len(preferred))
		var prefOps []*operator.Operator
		for _, id := range preferred {
			preferredSet[id] = true
			if op := env.GetOperator(id); op != nil {
				prefOps = append(prefOps, op)
			}
		}
		var otherOps []*operator.Operator
		for _, op := range env.Operators() {
			if !preferredSet[op.ID] {
				otherOps = append(otherOps, op)
			}
		}

		if c, ok := m.TryScheduleWithOperators(env, v, prefOps, nil, rng); ok {
			duration := v.ProposedEnd - v.ProposedStart
			if err := v.Schedule(v.ProposedDay, c.start, c.start+duration, c.operator.ID); err == nil {
				m.PingOperator(env, c.operator, v)
				committed = true
			}
		} else if c, ok := m.TryScheduleWithOperators(env, v, otherOps, nil, rng); ok {
			duration := v.ProposedEnd - v.ProposedStart
			if err := v.Schedule(v.ProposedDay, c.start, c.start+duration, c.operator.ID); err == nil {
				m.PingOperator(env, c.operator, v)
				committed = true
			}
		}

	case Optimizer, Robust:
		if c, ok := m.FindBestScheduling(env, v, rng); ok {
			duration := v.ProposedEnd - v.ProposedStart
			if err := v.Schedule(v.ProposedDay, c.start, c.start+duration, c.operator.ID); err == nil {
				m.PingOperator(env, c.operator, v)
				committed = true
			}
		}
	}

	if !committed && (m.Level == Dummy || m.Level == Random) {
		env.NotSchedulableVisit(v)
	}
	return committed
}

// TryCoupledSchedule attempts to place every visit in a multi-visit
// patient's NOT_SCHEDULED set with a single operator, chosen to minimize
// the mean criticality across the whole group. visits must all belong
// to the same patient and, per the patient's one-visit-per-day
// invariant, each falls on a distinct proposed day. Only meaningful at
// OPTIMIZER/ROBUST levels, where criticality is defined; DUMMY/RANDOM
// always fall back to the caller's independent per-visit path. Reports
// whether the whole group was placed; a failed attempt leaves no visit
// mutated.
func (m *Manager) TryCoupledSchedule(env Env, visits []*visit.Visit, rng RNG) bool {
	if m.Level != Optimizer && m.Level != Robust {
		return false
	}
	if len(visits) < 2 {
		return false
	}

	prevPossibleByDay := map[int]PossibleVisitsTable{}
	possibleFor := func(day int) PossibleVisitsTable {
		if t, ok := prevPossibleByDay[day]; ok {
			return t
		}
		t := m.CheckAllPossibleVisits(env, day)
		prevPossibleByDay[day] = t
		return t
	}

	type opPlan struct {
		op     *operator.Operator
		starts []int
		mean   float64
	}
	var best *opPlan
	for _, op := range env.Operators() {
		starts := make([]int, len(visits))
		sum := 0.0
		feasible := true
		for i, v := range visits {
			it := env.OperatorItinerary(op, v.ProposedDay)
			mun := it.Mun(v.PatientID)
			if !it.AvailableForVisit(op.Skill, v.Skill, v.ProposedStart, v.ProposedEnd, mun) {
				feasible = false
				break
			}
			crit, ok := m.ComputeCriticity(env, v, op, it, v.ProposedStart, v.ProposedEnd, possibleFor(v.ProposedDay))
			if !ok {
				feasible = false
				break
			}
			starts[i] = v.ProposedStart
			sum += crit
		}
		if !feasible {
			continue
		}
		mean := sum / float64(len(visits))
		if best == nil || mean < best.mean {
			best = &opPlan{op: op, starts: starts, mean: mean}
		}
	}

	if best == nil {
		return false
	}

	for i, v := range visits {
		duration := v.ProposedEnd - v.ProposedStart
		if err := v.Schedule(v.ProposedDay, best.starts[i], best.starts[i]+duration, best.op.ID); err != nil {
			for j := 0; j < i; j++ {
				_ = visits[j].Deschedule()
			}
			return false
		}
	}
	for _, v := range visits {
		m.PingOperator(env, best.op, v)
	}
	return true
}

// ScheduleSingleVisitMultipleDays is the ROBUST-level fallback: if a
// visit cannot be scheduled on its proposed day, try every other
// eligible day (excluding the original day and any day the patient
// already has a visit on) before giving up.
func (m *Manager) ScheduleSingleVisitMultipleDays(env Env, v *visit.Visit, numDays int, rng RNG) bool {
	if m.ScheduleSingleVisit(env, v, rng) {
		return true
	}

	originalDay := v.ProposedDay
	v.OriginalDay = originalDay

	for day := env.CurrentDay() + 1; day < numDays; day++ {
		if day == originalDay || env.HasVisit(v.PatientID, day) {
			continue
		}
		v.ProposedDay = day
		if m.ScheduleSingleVisit(env, v, rng) {
			return true
		}
	}

	v.ProposedDay = originalDay
	v.OriginalDay = 0
	return false
}

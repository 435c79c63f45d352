// Copyright 2025 James Ross

// Package patient implements the patient entity and its visit-generation
// dynamics (C5): each tick a patient may request a new visit, cancel one
// visit, or cancel its whole remaining schedule, all gated by
// probabilities the model supplies.
package patient

import (
	"sort"

	"github.com/jamesross/carefleet-sim/internal/visit"
)

// RNG is the minimal random source patient dynamics need; the model
// supplies the concrete generator so patient stays deterministic-testable.
type RNG interface {
	Float64() float64   // in [0,1)
	Intn(n int) int     // in [0,n)
}

// Env is the set of callbacks a patient needs from the model to read and
// mutate shared visit state without holding an owning reference to it.
type Env interface {
	CurrentDay() int
	CurrentTime() int
	NumDays() int
	OwnVisits(patientID int) []*visit.Visit
	AddVisit(patientID, day, skill, start, end int, newlyGenerated bool) *visit.Visit
	RemoveVisit(v *visit.Visit)
	// VisitDurationDistribution returns duration (minutes) -> probability.
	VisitDurationDistribution() map[int]float64
	HighSkillProb() float64
	PatStartTime() int
	PatEndTime() int
	TimeUnit() int
	MinNoticeTime() int
	// AllowUnexpectedEvent reports whether the model's per-tick event
	// budget has room for one more unsolicited event (new visit,
	// cancellation). Backed by a token-bucket limiter so a pathological
	// configuration can't flood a single tick.
	AllowUnexpectedEvent() bool
}

// Patient is a care recipient. The model owns the Patient value.
type Patient struct {
	ID                 int
	Municipality       int
	Premium            bool
	AssignedOperatorID int
	NewlyGenerated     bool

	NewlyGeneratedVisits int
	IsRemoved            bool
}

// NoAssignedOperator is the sentinel for a patient without a fixed
// preferred operator.
const NoAssignedOperator = -1

// shuffle performs an in-place Fisher-Yates shuffle using rng.Intn.
func shuffle(rng RNG, xs []int) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// New constructs a patient. Pass NoAssignedOperator when the patient has
// no fixed-operator assignment.
func New(id, municipality int, premium bool, assignedOperatorID int, newlyGenerated bool) *Patient {
	return &Patient{
		ID:                 id,
		Municipality:       municipality,
		Premium:            premium,
		AssignedOperatorID: assignedOperatorID,
		NewlyGenerated:     newlyGenerated,
	}
}

// OwnVisits returns every visit belonging to this patient.
func (p *Patient) OwnVisits(env Env) []*visit.Visit { return env.OwnVisits(p.ID) }

// PreferredOperators ranks operators this patient has been scheduled or
// proposed to by descending frequency, breaking ties by first-seen order
// (not incidental map iteration order).
func (p *Patient) PreferredOperators(env Env) []int {
	counts := map[int]int{}
	firstSeen := map[int]int{}
	var order []int
	for _, v := range p.OwnVisits(env) {
		opID := v.SchedOperator
		if opID == visit.NoOperator {
			opID = v.ProposedOperator
		}
		if opID == visit.NoOperator {
			continue
		}
		if _, ok := counts[opID]; !ok {
			firstSeen[opID] = len(order)
			order = append(order, opID)
		}
		counts[opID]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return firstSeen[a] < firstSeen[b]
	})
	return order
}

// PreferredStartTimes ranks proposed start times by descending frequency,
// same tie-break policy as PreferredOperators.
func (p *Patient) PreferredStartTimes(env Env) []int {
	counts := map[int]int{}
	firstSeen := map[int]int{}
	var order []int
	for _, v := range p.OwnVisits(env) {
		t := v.ProposedStart
		if _, ok := counts[t]; !ok {
			firstSeen[t] = len(order)
			order = append(order, t)
		}
		counts[t]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return firstSeen[a] < firstSeen[b]
	})
	return order
}

// HasVisit reports whether the patient has any non-NOT_SCHEDULED visit
// falling on the given day.
func (p *Patient) HasVisit(env Env, day int) bool {
	for _, v := range p.OwnVisits(env) {
		if v.RealDay == day && v.State != visit.NotScheduled {
			return true
		}
	}
	return false
}

// SelectSkill returns 1 for a premium patient, otherwise a Bernoulli draw
// at HighSkillProb.
func (p *Patient) SelectSkill(env Env, rng RNG) int {
	if p.Premium {
		return 1
	}
	if rng.Float64() < env.HighSkillProb() {
		return 1
	}
	return 0
}

// SelectDuration samples a visit duration from the model's distribution.
func (p *Patient) SelectDuration(env Env, rng RNG) int {
	dist := env.VisitDurationDistribution()
	if len(dist) == 0 {
		return 0
	}
	durations := make([]int, 0, len(dist))
	for d := range dist {
		durations = append(durations, d)
	}
	sort.Ints(durations)
	r := rng.Float64()
	cum := 0.0
	for _, d := range durations {
		cum += dist[d]
		if r < cum {
			return d
		}
	}
	return durations[len(durations)-1]
}

// SelectStartTime picks a start time for a visit of the given duration on
// the given day: a matching preferred start time if one is still free, or
// else a uniformly random grid slot. ok is false when no slot remains.
func (p *Patient) SelectStartTime(env Env, duration, day int, rng RNG) (int, bool) {
	firstAvTime := env.PatStartTime()
	if day == env.CurrentDay() && env.CurrentTime() > firstAvTime {
		firstAvTime = env.CurrentTime()
	}

	for _, pst := range p.PreferredStartTimes(env) {
		if pst >= firstAvTime {
			return pst, true
		}
	}

	timeUnit := env.TimeUnit()
	firstSlot := firstAvTime / timeUnit
	lastSlot := (env.PatEndTime() - duration) / timeUnit

	if firstSlot > lastSlot {
		return 0, false
	}
	if firstSlot == lastSlot {
		return firstSlot * timeUnit, true
	}
	slot := firstSlot + rng.Intn(lastSlot-firstSlot)
	return slot * timeUnit, true
}

// SelectSlot picks a (day, start time) pair for a new visit of the given
// duration: a day with no existing proposed visit, tried in random order,
// paired with SelectStartTime. ok is false when nothing is available.
func (p *Patient) SelectSlot(env Env, duration int, rng RNG) (day, start int, ok bool) {
	currentDay := env.CurrentDay()
	numDays := env.NumDays()
	if currentDay >= numDays {
		return 0, 0, false
	}

	ownVisits := p.OwnVisits(env)
	hasProposalOn := func(d int) bool {
		for _, v := range ownVisits {
			if v.ProposedDay == d {
				return true
			}
		}
		return false
	}

	var available []int
	for d := currentDay; d < numDays; d++ {
		if !hasProposalOn(d) {
			available = append(available, d)
		}
	}
	if len(available) == 0 {
		return 0, 0, false
	}
	shuffle(rng, available)

	for _, d := range available {
		if s, ok := p.SelectStartTime(env, duration, d, rng); ok {
			return d, s, true
		}
	}
	return 0, 0, false
}

// GenerateNewVisit samples skill/duration/slot and, if a slot exists,
// asks the model to add a new proposed visit. Returns whether a visit was
// created.
func (p *Patient) GenerateNewVisit(env Env, rng RNG) bool {
	skill := p.SelectSkill(env, rng)
	duration := p.SelectDuration(env, rng)
	day, start, ok := p.SelectSlot(env, duration, rng)
	if !ok {
		return false
	}
	env.AddVisit(p.ID, day, skill, start, start+duration, true)
	return true
}

// CancellableVisits returns SCHEDULED visits far enough in the future to
// cancel without violating the minimum notice period.
func (p *Patient) CancellableVisits(env Env) []*visit.Visit {
	currentDay := env.CurrentDay()
	currentTime := env.CurrentTime()
	minNotice := env.MinNoticeTime()
	var out []*visit.Visit
	for _, v := range p.OwnVisits(env) {
		if v.State != visit.Scheduled {
			continue
		}
		if v.RealDay > currentDay || (v.RealDay == currentDay && v.RealStart >= currentTime+minNotice) {
			out = append(out, v)
		}
	}
	return out
}

// CancelVisit removes one randomly chosen cancellable visit.
func (p *Patient) CancelVisit(env Env, rng RNG) bool {
	canc := p.CancellableVisits(env)
	if len(canc) == 0 {
		return false
	}
	idx := rng.Intn(len(canc))
	env.RemoveVisit(canc[idx])
	return true
}

// CancelAllVisits removes every cancellable visit and marks the patient
// removed from the simulation (no further visit generation).
func (p *Patient) CancelAllVisits(env Env) bool {
	canc := p.CancellableVisits(env)
	if len(canc) == 0 {
		return false
	}
	for _, v := range canc {
		env.RemoveVisit(v)
	}
	p.IsRemoved = true
	return true
}

// Probabilities bundles the per-tick event rates the model derives from
// configuration and the current day's adjustment factor.
type Probabilities struct {
	NewVisit      float64
	SingleCancel  float64
	AllCancel     float64
	DayAdjustment float64
}

// Step runs one tick of patient dynamics: possibly generate a new visit,
// possibly cancel one visit, possibly cancel everything. Only active
// strictly inside (PatStartTime, PatEndTime) and only while not removed.
// Each event fires with its probability scaled by DayAdjustment.
func (p *Patient) Step(env Env, rng RNG, probs Probabilities) {
	if p.IsRemoved {
		return
	}
	now := env.CurrentTime()
	if now <= env.PatStartTime() || now >= env.PatEndTime() {
		return
	}

	if rng.Float64() < probs.NewVisit*probs.DayAdjustment && env.AllowUnexpectedEvent() {
		if p.GenerateNewVisit(env, rng) {
			p.NewlyGeneratedVisits++
		}
	}
	if rng.Float64() < probs.SingleCancel*probs.DayAdjustment && env.AllowUnexpectedEvent() {
		p.CancelVisit(env, rng)
	}
	if rng.Float64() < probs.AllCancel*probs.DayAdjustment && env.AllowUnexpectedEvent() {
		p.CancelAllVisits(env)
	}
}

// Copyright 2025 James Ross

// Package model implements the tick loop (C7): a single-threaded,
// cooperative arena that owns every patient, operator, and visit by
// value, advances simulated time one minute at a time, and wires the
// entity packages together through small Env interfaces so none of them
// holds an owning reference back into the model.
package model

import (
	"sort"
	"time"

	"github.com/jamesross/carefleet-sim/internal/graph"
	"github.com/jamesross/carefleet-sim/internal/itinerary"
	"github.com/jamesross/carefleet-sim/internal/manager"
	"github.com/jamesross/carefleet-sim/internal/operator"
	"github.com/jamesross/carefleet-sim/internal/patient"
	"github.com/jamesross/carefleet-sim/internal/visit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RNG is the random source the model and every entity it drives share.
type RNG interface {
	Float64() float64
	Intn(n int) int
	// Triangular draws from a triangular distribution, used to sample
	// visit/travel prolongations.
	Triangular(min, mode, max float64) float64
}

// Clock holds the minute-granular day-window constants.
type Clock struct {
	TimeUnit     int
	IntraMunTime int
	OpStartTime  int
	OpEndTime    int
	PatStartTime int
	PatEndTime   int
	BrokenTime   int
}

// Hyperparams bundles the cost-functional weights and scheduling limits.
type Hyperparams struct {
	CWage            float64
	CMovement        float64
	COverskill       float64
	CExecution       float64
	BigM             float64
	Sigma0           float64
	Sigma1           float64
	Omega            float64
	ShorteningPerc   float64
	MaxAllowedDelay  int
	NumDays          int
	NumMunicipalities int
	// EventRateLimitPerTick caps how many unsolicited events (new
	// visits, cancellations, new-patient arrivals) Step will admit in a
	// single tick; 0 means unlimited.
	EventRateLimitPerTick int
}

// EventProbabilities are the per-tick unexpected-event rates.
type EventProbabilities struct {
	NewVisit           float64
	SingleCancellation float64
	AllCancellations   float64
	NewPatient         float64
	QuitDay            float64
	LateEntry          float64
	EarlyExit          float64
	ProlongedVisit     float64
	ProlongedTravel    float64
	ProlongMin         float64
	ProlongMode        float64
	ProlongMax         float64
	NoiseTime          int
	HighSkillProb      float64
	PremiumProb        float64
}

// Hooks are optional side-effect callbacks the model invokes at key
// points, letting cmd/simulate wire in event-bus publication and
// checkpointing without model importing either package.
type Hooks struct {
	OnTick       func(day, minute int)
	OnScheduled  func(v *visit.Visit)
	OnUnschedulable func(v *visit.Visit)
	OnDayStart   func(day int)
	OnDayEnd     func(day int)
	OnBroken     func(day, minute int)
}

// Model is the simulation arena. It owns every patient, operator, and
// visit; entity packages reach back into it only through the small Env
// interfaces they themselves define.
type Model struct {
	Graph       *graph.Graph
	Manager     *manager.Manager
	Hyperparams Hyperparams
	Clock       Clock
	Probs       EventProbabilities
	RNG         RNG
	Log         *zap.Logger
	Hooks       Hooks

	eventLimiter *rate.Limiter

	patients map[int]*patient.Patient
	operators map[int]*operator.Operator
	visits    map[int]*visit.Visit

	operatorOrder []int // insertion order, for deterministic iteration
	patientOrder  []int

	notSchedulable []*visit.Visit

	nextPatientID int
	nextOperatorID int
	nextVisitID    int

	Day     int
	Minute  int
	Running bool
	IsBroken bool
	steps    int
}

const (
	patBaseID   = 0
	opBaseID    = 1000
	visitBaseID = 1000000
)

// New constructs an empty model ready to receive patients and operators.
func New(g *graph.Graph, mgr *manager.Manager, hp Hyperparams, clock Clock, probs EventProbabilities, rng RNG, log *zap.Logger) *Model {
	var limiter *rate.Limiter
	if hp.EventRateLimitPerTick > 0 {
		limiter = rate.NewLimiter(rate.Limit(hp.EventRateLimitPerTick), hp.EventRateLimitPerTick)
	}
	return &Model{
		Graph:         g,
		Manager:       mgr,
		Hyperparams:   hp,
		Clock:         clock,
		Probs:         probs,
		RNG:           rng,
		Log:           log,
		eventLimiter:  limiter,
		patients:      map[int]*patient.Patient{},
		operators:     map[int]*operator.Operator{},
		visits:        map[int]*visit.Visit{},
		nextPatientID: patBaseID,
		nextOperatorID: opBaseID,
		nextVisitID:    visitBaseID,
		Minute:         -1,
		Running:        true,
	}
}

// AddOperator registers a new operator and returns it.
func (m *Model) AddOperator(municipality, skill, contractTime, maxTime int, availability []bool, dayStart, dayEnd []int) *operator.Operator {
	id := m.nextOperatorID
	m.nextOperatorID++
	op := operator.New(id, municipality, skill, contractTime, maxTime, availability, dayStart, dayEnd)
	op.Log = m.Log
	m.operators[id] = op
	m.operatorOrder = append(m.operatorOrder, id)
	return op
}

// AddPatient registers a new patient and returns it.
func (m *Model) AddPatient(municipality int, premium bool, assignedOperatorID int, newlyGenerated bool) *patient.Patient {
	id := m.nextPatientID
	m.nextPatientID++
	p := patient.New(id, municipality, premium, assignedOperatorID, newlyGenerated)
	m.patients[id] = p
	m.patientOrder = append(m.patientOrder, id)
	return p
}

// AddVisit registers a NOT_SCHEDULED visit proposed by a patient. Skill
// is 0 or 1; day/start/end are in the proposed-time fields.
func (m *Model) AddVisit(patientID, day, skill, start, end int, newlyGenerated bool) *visit.Visit {
	id := m.nextVisitID
	m.nextVisitID++
	v := visit.New(id, patientID, skill, day, start, end)
	v.NewlyGenerated = newlyGenerated
	m.visits[id] = v
	return v
}

// RemoveVisit descheduled (if necessary) and deletes a visit from the
// arena, used by patient cancellation.
func (m *Model) RemoveVisit(v *visit.Visit) {
	if v.State == visit.Scheduled {
		_ = v.Deschedule()
	}
	delete(m.visits, v.ID)
}

// NotSchedulableVisit removes a visit from the live set and files it
// under permanently unscheduled, mirroring the manager's give-up path.
func (m *Model) NotSchedulableVisit(v *visit.Visit) {
	delete(m.visits, v.ID)
	m.notSchedulable = append(m.notSchedulable, v)
	if m.Log != nil {
		m.Log.Warn("visit not schedulable",
			zap.Int("visit_id", v.ID), zap.Int("patient_id", v.PatientID),
			zap.Int("day", m.Day))
	}
	if m.Hooks.OnUnschedulable != nil {
		m.Hooks.OnUnschedulable(v)
	}
}

// RestoreOperator inserts a fully-formed operator into the arena without
// allocating a new ID, used by checkpoint restore to rehydrate a snapshot
// in place of replaying ticks.
func (m *Model) RestoreOperator(op *operator.Operator) {
	op.Log = m.Log
	m.operators[op.ID] = op
	m.operatorOrder = append(m.operatorOrder, op.ID)
	if op.ID >= m.nextOperatorID {
		m.nextOperatorID = op.ID + 1
	}
}

// RestorePatient inserts a fully-formed patient into the arena, used by
// checkpoint restore.
func (m *Model) RestorePatient(p *patient.Patient) {
	m.patients[p.ID] = p
	m.patientOrder = append(m.patientOrder, p.ID)
	if p.ID >= m.nextPatientID {
		m.nextPatientID = p.ID + 1
	}
}

// RestoreVisit inserts a fully-formed visit into the arena, used by
// checkpoint restore.
func (m *Model) RestoreVisit(v *visit.Visit) {
	m.visits[v.ID] = v
	if v.ID >= m.nextVisitID {
		m.nextVisitID = v.ID + 1
	}
}

// SetClock forces the arena's live clock and run state, used by checkpoint
// restore to resume mid-run without re-running StartWeek.
func (m *Model) SetClock(day, minute int, running, broken bool) {
	m.Day = day
	m.Minute = minute
	m.Running = running
	m.IsBroken = broken
	m.steps = 1
}

// GetOperator, GetPatient, GetVisit are arena lookups by ID.
func (m *Model) GetOperator(id int) *operator.Operator { return m.operators[id] }
func (m *Model) GetPatient(id int) *patient.Patient    { return m.patients[id] }
func (m *Model) GetVisit(id int) *visit.Visit          { return m.visits[id] }

func (m *Model) Operators() []*operator.Operator {
	out := make([]*operator.Operator, 0, len(m.operatorOrder))
	for _, id := range m.operatorOrder {
		out = append(out, m.operators[id])
	}
	return out
}

func (m *Model) Patients() []*patient.Patient {
	out := make([]*patient.Patient, 0, len(m.patientOrder))
	for _, id := range m.patientOrder {
		out = append(out, m.patients[id])
	}
	return out
}

func (m *Model) Visits() []*visit.Visit {
	out := make([]*visit.Visit, 0, len(m.visits))
	for _, v := range m.visits {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NotSchedulableVisits returns every visit the manager gave up on.
func (m *Model) NotSchedulableVisits() []*visit.Visit { return m.notSchedulable }

// ---- operator.Env ----

func (m *Model) VisitMunicipality(v *visit.Visit) int {
	if p := m.patients[v.PatientID]; p != nil {
		return p.Municipality
	}
	return 0
}

func (m *Model) TravelTime(from, to int) int { return m.Graph.Travel(from, to) }

func (m *Model) VisitByID(id int) *visit.Visit { return m.visits[id] }

// NextScheduledVisit returns the next SCHEDULED/EXECUTING visit, by real
// start time, belonging to the same operator and day as the visit
// identified by afterVisitID.
func (m *Model) NextScheduledVisit(afterVisitID int) *visit.Visit {
	cur := m.visits[afterVisitID]
	if cur == nil {
		return nil
	}
	it := m.dayItinerary(cur.RealOperator, cur.RealDay)
	for i, v := range it.Visits {
		if v.ID == afterVisitID && i+1 < len(it.Visits) {
			return it.Visits[i+1]
		}
	}
	return nil
}

// rushHourWindows are the internal-minute ranges (spec.md §4.2/§9) during
// which the prolonged-travel probability is doubled; a magic coefficient
// tied to these two specific windows. Neither the windows nor the factor
// of 2 in SampleTravelProlong is configurable.
var rushHourWindows = [2][2]int{{60, 180}, {630, 810}}

func inRushHour(minute int) bool {
	for _, w := range rushHourWindows {
		if minute >= w[0] && minute <= w[1] {
			return true
		}
	}
	return false
}

// SampleTravelProlong draws a signed perturbation for the upcoming
// travel leg: with ProlongedTravelProbability (doubled during rush
// hour), a positive triangular delay; otherwise symmetric noise.
func (m *Model) SampleTravelProlong() int {
	p := m.Probs.ProlongedTravel
	if inRushHour(m.Minute) {
		p *= 2
	}
	if m.RNG.Float64() < p {
		return int(m.RNG.Triangular(m.Probs.ProlongMin, m.Probs.ProlongMode, m.Probs.ProlongMax))
	}
	if m.Probs.NoiseTime <= 0 {
		return 0
	}
	return m.RNG.Intn(2*m.Probs.NoiseTime+1) - m.Probs.NoiseTime
}

// SampleVisitProlong draws a signed perturbation for a visit that just
// started: with ProlongedVisit probability, a positive triangular
// overrun; otherwise symmetric noise. No rush-hour adjustment applies
// here (that factor is specific to travel, per spec.md §4.2).
func (m *Model) SampleVisitProlong() int {
	if m.RNG.Float64() < m.Probs.ProlongedVisit {
		return int(m.RNG.Triangular(m.Probs.ProlongMin, m.Probs.ProlongMode, m.Probs.ProlongMax))
	}
	if m.Probs.NoiseTime <= 0 {
		return 0
	}
	return m.RNG.Intn(2*m.Probs.NoiseTime+1) - m.Probs.NoiseTime
}

// overrunHandler increments op's OverlyDelayedVisits accumulator and
// logs whenever itinerary.ExtendVisit/ExtendTravel has to deschedule the
// day's last SCHEDULED visit to absorb an unabsorbable delay.
func (m *Model) overrunHandler(op *operator.Operator) func(*visit.Visit) {
	return func(descheduled *visit.Visit) {
		op.OverlyDelayedVisits++
		if m.Log != nil {
			m.Log.Warn("visit overrun unabsorbable, descheduled",
				zap.Int("operator_id", op.ID), zap.Int("visit_id", descheduled.ID),
				zap.Int("day", m.Day))
		}
	}
}

// CascadeTravelDelta pushes a travel-leg perturbation of delta minutes
// into op's itinerary for its upcoming visit, mirroring
// extend_travel/shorten_travel: positive deltas extend (absorbed by the
// visit's own start-side slack, then cascaded through the rest of the
// day via ExtendVisit); negative deltas shorten (recovered forward via
// ShortenVisit).
func (m *Model) CascadeTravelDelta(op *operator.Operator, delta int) {
	if delta == 0 {
		return
	}
	next := m.visits[op.NextVisitID]
	it := m.dayItinerary(op.ID, m.Day)
	if delta > 0 {
		it.ExtendTravel(next, delta, m.overrunHandler(op))
	} else {
		it.ShortenTravel(next, -delta)
	}
}

// CascadeVisitDelta pushes a visit-duration perturbation of delta
// minutes into op's itinerary, mirroring extend_visit/shorten_visit:
// positive deltas extend (cascading postponement through the rest of
// the day, descheduling the last visit if unabsorbable); negative
// deltas shorten (recovering slack forward).
func (m *Model) CascadeVisitDelta(op *operator.Operator, v *visit.Visit, delta int) {
	if delta == 0 {
		return
	}
	it := m.dayItinerary(op.ID, v.RealDay)
	if delta > 0 {
		it.ExtendVisit(v, delta, m.overrunHandler(op))
	} else {
		it.ShortenVisit(v, -delta)
	}
}

// dayItinerary builds the sorted SCHEDULED/EXECUTING itinerary for one
// operator on one day.
func (m *Model) dayItinerary(operatorID, day int) *itinerary.Itinerary {
	op := m.operators[operatorID]
	var home, dayStart, dayEnd int
	if op != nil {
		home = op.HomeMunicipality
		if day >= 0 && day < len(op.DayStart) {
			dayStart = op.DayStart[day]
		}
		if day >= 0 && day < len(op.DayEnd) {
			dayEnd = op.DayEnd[day]
		} else {
			dayEnd = m.Clock.OpEndTime
		}
	} else {
		dayStart, dayEnd = m.Clock.OpStartTime, m.Clock.OpEndTime
	}

	var visits []*visit.Visit
	for _, v := range m.visits {
		if v.RealOperator == operatorID && v.RealDay == day && (v.State == visit.Scheduled || v.State == visit.Executing) {
			visits = append(visits, v)
		}
	}
	return itinerary.New(day, home, dayStart, dayEnd, m.Graph, m.patientMunicipality, visits,
		m.Hyperparams.ShorteningPerc, m.Hyperparams.MaxAllowedDelay, m.Clock.IntraMunTime, m.Clock.TimeUnit)
}

func (m *Model) patientMunicipality(patientID int) int {
	if p := m.patients[patientID]; p != nil {
		return p.Municipality
	}
	return 0
}

// ---- manager.Env ----

func (m *Model) CurrentDay() int        { return m.Day }
func (m *Model) CurrentTime() int       { return m.Minute }
func (m *Model) MinNoticeTime() int     { return minNoticeTime }
func (m *Model) NumMunicipalities() int { return m.Hyperparams.NumMunicipalities }

const minNoticeTime = 120

func (m *Model) OperatorItinerary(op *operator.Operator, day int) *itinerary.Itinerary {
	return m.dayItinerary(op.ID, day)
}

func (m *Model) PreferredOperators(v *visit.Visit) []int {
	p := m.patients[v.PatientID]
	if p == nil {
		return nil
	}
	return p.PreferredOperators(m)
}

func (m *Model) VisitDurationDistributionBySkill(skill int) map[int]float64 {
	counts := map[int]int{}
	total := 0
	for _, v := range m.visits {
		if v.Skill == skill {
			d := v.ProposedEnd - v.ProposedStart
			counts[d]++
			total++
		}
	}
	dist := make(map[int]float64, len(counts))
	if total == 0 {
		return dist
	}
	for d, c := range counts {
		dist[d] = float64(c) / float64(total)
	}
	return dist
}

func (m *Model) PatientMunicipalityDistribution() []float64 {
	n := m.Hyperparams.NumMunicipalities
	counts := make([]float64, n)
	total := 0.0
	for _, p := range m.patients {
		if p.Municipality >= 0 && p.Municipality < n {
			counts[p.Municipality]++
			total++
		}
	}
	if total == 0 {
		return counts
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts
}

func (m *Model) HasVisit(patientID, day int) bool {
	p := m.patients[patientID]
	if p == nil {
		return false
	}
	return p.HasVisit(m, day)
}

func (m *Model) PingOperator(op *operator.Operator, v *visit.Visit) {
	op.NextVisitID = m.firstScheduledVisitID(op.ID, m.Day)
	op.RefreshNextVisit(m)
}

// ---- patient.Env ----

func (m *Model) NumDays() int { return m.Hyperparams.NumDays }

func (m *Model) OwnVisits(patientID int) []*visit.Visit {
	var out []*visit.Visit
	for _, v := range m.visits {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Model) VisitDurationDistribution() map[int]float64 {
	return m.VisitDurationDistributionBySkill(0)
}

func (m *Model) HighSkillProb() float64 { return m.Probs.HighSkillProb }
func (m *Model) PatStartTime() int      { return m.Clock.PatStartTime }
func (m *Model) PatEndTime() int        { return m.Clock.PatEndTime }
func (m *Model) TimeUnit() int          { return m.Clock.TimeUnit }

// AllowUnexpectedEvent reports whether the per-tick event budget has
// room for one more unsolicited event. With no limit configured it
// always allows, mirroring the teacher's Producer.RateLimitPerSec <= 0
// meaning "unlimited". Each tick counts as one second of limiter time, so
// the bucket refills per simulated minute, not per wall-clock second.
func (m *Model) AllowUnexpectedEvent() bool {
	if m.eventLimiter == nil {
		return true
	}
	return m.eventLimiter.AllowN(time.Unix(int64(m.steps), 0), 1)
}

// ---- tick loop ----

// StartWeek runs the manager's initial scheduling pass, mirroring the
// one-time Manager.start_week call made before the first tick.
func (m *Model) StartWeek() {
	m.ScheduleAllUnscheduledVisits()
}

// firstScheduledVisitID returns the earliest-starting SCHEDULED visit
// belonging to operatorID on day, or operator.NoVisit if none.
func (m *Model) firstScheduledVisitID(operatorID, day int) int {
	best := operator.NoVisit
	bestStart := 0
	for _, v := range m.visits {
		if v.RealOperator != operatorID || v.RealDay != day || v.State != visit.Scheduled {
			continue
		}
		if best == operator.NoVisit || v.RealStart < bestStart {
			best = v.ID
			bestStart = v.RealStart
		}
	}
	return best
}

// StartDay resets every operator's per-day live state and queues its
// first scheduled visit, mirroring HCModel.start_day.
func (m *Model) StartDay() {
	for _, op := range m.Operators() {
		op.StartDay(m.Day, m.firstScheduledVisitID(op.ID, m.Day))
		op.RefreshNextVisit(m)
	}
	if m.Hooks.OnDayStart != nil {
		m.Hooks.OnDayStart(m.Day)
	}
}

func (m *Model) allOperatorsUnavailable() bool {
	for _, op := range m.operators {
		if op.State != operator.Unavailable {
			return false
		}
	}
	return true
}

// generateNewPatient adds a patient with a uniformly-drawn municipality
// and draws its first visit immediately, mirroring
// generate_new_patient/generate_new_visit.
func (m *Model) generateNewPatient() {
	mun := 0
	if n := m.Hyperparams.NumMunicipalities; n > 0 {
		mun = m.RNG.Intn(n)
	}
	premium := m.RNG.Float64() < m.Probs.PremiumProb
	p := m.AddPatient(mun, premium, patient.NoAssignedOperator, true)
	p.GenerateNewVisit(m, m.RNG)
}

// unexpectedEvents fires the per-tick unsolicited events: currently
// just new-patient arrival, gated the same way as the source system
// (strictly inside the patient day window).
func (m *Model) unexpectedEvents() {
	if m.Minute > m.Clock.PatStartTime && m.Minute < m.Clock.PatEndTime && m.RNG.Float64() < m.Probs.NewPatient && m.AllowUnexpectedEvent() {
		m.generateNewPatient()
	}
}

// shuffled returns a random permutation of [0,n), used to activate
// patients and operators in randomized order each tick.
func shuffled(rng RNG, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// activateAgents steps every patient and every operator exactly once,
// in a randomized combined order, mirroring the source system's
// RandomActivation schedule.
func (m *Model) activateAgents() {
	type job func()
	jobs := make([]job, 0, len(m.patientOrder)+len(m.operatorOrder))
	for _, id := range m.patientOrder {
		p := m.patients[id]
		jobs = append(jobs, func() {
			p.Step(m, m.RNG, patient.Probabilities{
				NewVisit:      m.Probs.NewVisit,
				SingleCancel:  m.Probs.SingleCancellation,
				AllCancel:     m.Probs.AllCancellations,
				DayAdjustment: dayAdjustment(m.Day),
			})
		})
	}
	for _, id := range m.operatorOrder {
		op := m.operators[id]
		jobs = append(jobs, func() { op.Step(m.Minute, m) })
	}
	for _, i := range shuffled(m.RNG, len(jobs)) {
		jobs[i]()
	}
}

// dayAdjustment scales event probabilities down as the week winds on,
// per day_adjustment(day) = (5-day)/3.
func dayAdjustment(day int) float64 {
	return (5.0 - float64(day)) / 3.0
}

// ScheduleAllUnscheduledVisits hands every NOT_SCHEDULED visit to the
// manager. Multi-visit patients with no preferred operator first get a
// coupled attempt (one operator for every one of their pending visits,
// picked by mean criticality); whatever a coupled attempt didn't place,
// and every other visit, falls through to the per-visit path, routing
// ROBUST-level scheduling through the multi-day fallback.
func (m *Model) ScheduleAllUnscheduledVisits() {
	groups := map[int][]*visit.Visit{}
	var patientOrder []int
	for _, v := range m.Visits() {
		if v.State != visit.NotScheduled {
			continue
		}
		if _, seen := groups[v.PatientID]; !seen {
			patientOrder = append(patientOrder, v.PatientID)
		}
		groups[v.PatientID] = append(groups[v.PatientID], v)
	}

	handled := map[int]bool{}
	for _, pid := range patientOrder {
		group := groups[pid]
		if len(group) < 2 || len(m.PreferredOperators(group[0])) != 0 {
			continue
		}
		if m.Manager.TryCoupledSchedule(m, group, m.RNG) {
			for _, v := range group {
				handled[v.ID] = true
				if m.Hooks.OnScheduled != nil {
					m.Hooks.OnScheduled(v)
				}
			}
		}
	}

	for _, v := range m.Visits() {
		if v.State != visit.NotScheduled || handled[v.ID] {
			continue
		}
		if m.Manager.Level == manager.Robust {
			if !m.Manager.ScheduleSingleVisitMultipleDays(m, v, m.Hyperparams.NumDays, m.RNG) {
				continue
			}
			if m.Hooks.OnScheduled != nil {
				m.Hooks.OnScheduled(v)
			}
			continue
		}
		if m.Manager.ScheduleSingleVisit(m, v, m.RNG) && m.Hooks.OnScheduled != nil {
			m.Hooks.OnScheduled(v)
		}
	}
}

// Step advances the simulation by exactly one minute, mirroring
// HCModel.step(): unexpected events, randomized agent activation,
// manager scheduling, then day/week/broken-run bookkeeping.
func (m *Model) Step() {
	if !m.Running {
		return
	}
	if m.steps == 0 {
		m.StartWeek()
	}
	if m.Minute == -1 {
		m.StartDay()
	}
	m.Minute++
	m.steps++

	m.unexpectedEvents()
	m.activateAgents()
	m.ScheduleAllUnscheduledVisits()

	if m.Hooks.OnTick != nil {
		m.Hooks.OnTick(m.Day, m.Minute)
	}

	if m.Minute >= m.Clock.OpEndTime && m.allOperatorsUnavailable() {
		if m.Log != nil {
			m.Log.Info("day complete", zap.Int("day", m.Day))
		}
		if m.Hooks.OnDayEnd != nil {
			m.Hooks.OnDayEnd(m.Day)
		}
		if m.Day >= m.Hyperparams.NumDays-1 {
			m.Running = false
		} else {
			m.Minute = -1
			m.Day++
		}
	}

	if m.Minute >= m.Clock.BrokenTime {
		m.Running = false
		m.IsBroken = true
		if m.Log != nil {
			m.Log.Error("simulation run broken", zap.Int("day", m.Day), zap.Int("minute", m.Minute))
		}
		if m.Hooks.OnBroken != nil {
			m.Hooks.OnBroken(m.Day, m.Minute)
		}
	}
}

// Run steps the simulation until it stops running.
func (m *Model) Run() {
	for m.Running {
		m.Step()
	}
}

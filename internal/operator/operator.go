// Copyright 2025 James Ross

// Package operator implements the operator entity and its state machine
// (C3): a mobile worker with skill, time budget, daily windows, and
// location, advanced one minute at a time by the model's tick loop.
package operator

import (
	"math"

	"github.com/jamesross/carefleet-sim/internal/visit"
	"go.uber.org/zap"
)

// State is one of the five legal operator states. Numeric values mirror
// the source system's state encoding (UNAVAILABLE=-1 .. WORKING=3).
type State int

const (
	Unavailable State = -1
	Idle        State = 0
	Travelling  State = 1
	Ready       State = 2
	Working     State = 3
)

func (s State) String() string {
	switch s {
	case Unavailable:
		return "unavailable"
	case Idle:
		return "idle"
	case Travelling:
		return "travelling"
	case Ready:
		return "ready"
	case Working:
		return "working"
	default:
		return "unknown"
	}
}

// NoVisit is the sentinel for "no next visit queued today".
const NoVisit = -1

// Env is the set of callbacks the model provides so Operator.Step can
// read visit/municipality state it does not own directly.
type Env interface {
	// VisitMunicipality returns the municipality a visit must be
	// serviced in (the owning patient's municipality).
	VisitMunicipality(v *visit.Visit) int
	// TravelTime returns the commuting time in minutes between two
	// municipalities.
	TravelTime(fromMun, toMun int) int
	// VisitByID returns the visit with the given ID, or nil.
	VisitByID(id int) *visit.Visit
	// NextScheduledVisit returns the next SCHEDULED visit for this
	// operator on the current day after the visit identified by
	// afterVisitID, or nil if none remain.
	NextScheduledVisit(afterVisitID int) *visit.Visit
	// SampleTravelProlong draws a signed prolongation delta (minutes)
	// to apply to the upcoming travel leg; 0 means no perturbation.
	SampleTravelProlong() int
	// CascadeTravelDelta pushes a travel-leg perturbation of delta
	// minutes (positive delays arrival, negative hastens it) into the
	// operator's itinerary for its upcoming visit, absorbing part of it
	// through the visit's own start-side slack before cascading the
	// remainder through the rest of the day, mirroring
	// extend_travel/shorten_travel.
	CascadeTravelDelta(op *Operator, delta int)
	// SampleVisitProlong draws a signed perturbation (minutes) for the
	// visit that just started; 0 means no perturbation.
	SampleVisitProlong() int
	// CascadeVisitDelta pushes a visit-duration perturbation of delta
	// minutes (positive the visit is running long, negative it finished
	// early) into the operator's itinerary, mirroring
	// extend_visit/shorten_visit.
	CascadeVisitDelta(op *Operator, v *visit.Visit, delta int)
}

// Operator is a mobile worker. The model owns the Operator value.
type Operator struct {
	ID               int
	HomeMunicipality int
	Skill            int
	ContractTime     int
	MaxTime          int

	Availability []bool
	DayStart     []int
	DayEnd       []int

	State               State
	CurrentMunicipality int
	NextVisitID         int

	CurrentEdgeFrom   int
	CurrentEdgeTo     int
	CurrentEdgeWeight int
	ETD               int
	ETA               int

	Workload            int
	ExecutedVisits      int
	RealTravelTime      int
	RealInterTravelTime int
	OverskillVisits     int
	OverskillTime       int
	TravelToReimburse   int
	IsReimbursed        bool
	OverlyDelayedVisits int

	Log *zap.Logger `json:"-"` // optional; nil disables transition logging
}

// New constructs an operator in the UNAVAILABLE state.
func New(id, homeMunicipality, skill, contractTime, maxTime int, availability []bool, dayStart, dayEnd []int) *Operator {
	return &Operator{
		ID:                  id,
		HomeMunicipality:    homeMunicipality,
		Skill:               skill,
		ContractTime:        contractTime,
		MaxTime:             maxTime,
		Availability:        availability,
		DayStart:            dayStart,
		DayEnd:              dayEnd,
		State:               Unavailable,
		CurrentMunicipality: homeMunicipality,
		NextVisitID:         NoVisit,
	}
}

// StartDay resets the operator's per-day live state: location goes home,
// reimbursement clears, and the first SCHEDULED visit of the day (if any)
// is queued.
func (o *Operator) StartDay(day int, firstVisitID int) {
	o.CurrentMunicipality = o.HomeMunicipality
	o.IsReimbursed = false
	o.TravelToReimburse = 0
	o.NextVisitID = firstVisitID
	if day >= 0 && day < len(o.Availability) && o.Availability[day] {
		o.State = Idle
	} else {
		o.State = Unavailable
	}
}

// RefreshNextVisit recomputes ETD/ETA/current-edge for the operator's
// queued next visit. The manager calls this when "pinging" an IDLE
// operator after scheduling a same-day visit for it.
func (o *Operator) RefreshNextVisit(env Env) {
	if o.NextVisitID == NoVisit {
		return
	}
	v := env.VisitByID(o.NextVisitID)
	if v == nil {
		return
	}
	mun := env.VisitMunicipality(v)
	travel := env.TravelTime(o.CurrentMunicipality, mun)
	o.ETD = v.RealStart - travel
	o.ETA = v.RealStart
	o.CurrentEdgeFrom = o.CurrentMunicipality
	o.CurrentEdgeTo = mun
	o.CurrentEdgeWeight = travel
}

// ExtendTravel lengthens the current travel leg (arrival slips later).
func (o *Operator) ExtendTravel(delta int) {
	if delta > 0 {
		o.ETA += delta
	}
}

// ShortenTravel shortens the current travel leg, never crossing ETD.
func (o *Operator) ShortenTravel(delta int) {
	if delta <= 0 {
		return
	}
	o.ETA -= delta
	if o.ETA < o.ETD {
		o.ETA = o.ETD
	}
}

// Step advances the operator's state machine by one simulated minute.
// Transitions are checked as a sequential re-examined chain, not a
// single dispatch: a visit completing at now can free the operator into
// IDLE and have it immediately re-enter TRAVELLING within the same
// call, exactly as arriving at a visit's municipality (now==ETA) can
// immediately satisfy READY's now==real_start and start the visit in
// the same minute. Each handler below only re-checks states later in
// the chain than itself; workingStep calls idleStep explicitly at its
// end since IDLE's own check has already passed by the time it runs.
func (o *Operator) Step(now int, env Env) {
	before := o.State
	if o.State == Unavailable {
		return
	}
	if o.State == Idle {
		o.idleStep(now, env)
	}
	if o.State == Travelling {
		o.travellingStep(now, env)
	}
	if o.State == Ready {
		o.readyStep(now, env)
	}
	if o.State == Working {
		o.workingStep(now, env)
	}
	if o.State != before && o.Log != nil {
		o.Log.Debug("operator state transition",
			zap.Int("operator_id", o.ID), zap.String("from", before.String()),
			zap.String("to", o.State.String()), zap.Int("time", now))
	}
}

func (o *Operator) idleStep(now int, env Env) {
	if o.NextVisitID != NoVisit {
		if now == o.ETD {
			if delta := env.SampleTravelProlong(); delta > 0 {
				o.ExtendTravel(delta)
				env.CascadeTravelDelta(o, delta)
			} else if delta < 0 {
				o.ShortenTravel(-delta)
				env.CascadeTravelDelta(o, delta)
			}
			o.State = Travelling
		}
		return
	}
	if o.CurrentMunicipality != o.HomeMunicipality {
		travel := env.TravelTime(o.CurrentMunicipality, o.HomeMunicipality)
		o.CurrentEdgeFrom = o.CurrentMunicipality
		o.CurrentEdgeTo = o.HomeMunicipality
		o.CurrentEdgeWeight = travel
		o.ETD = now
		o.ETA = now + travel
		o.State = Travelling
	}
}

func (o *Operator) travellingStep(now int, env Env) {
	if now != o.ETA {
		return
	}
	o.CurrentMunicipality = o.CurrentEdgeTo
	o.RealTravelTime += o.CurrentEdgeWeight
	if o.CurrentEdgeFrom != o.HomeMunicipality && o.CurrentEdgeTo != o.HomeMunicipality {
		o.RealInterTravelTime += o.CurrentEdgeWeight
	}
	if o.NextVisitID != NoVisit {
		o.State = Ready
	} else {
		o.State = Unavailable
	}
}

func (o *Operator) readyStep(now int, env Env) {
	if o.NextVisitID == NoVisit {
		return
	}
	v := env.VisitByID(o.NextVisitID)
	if v == nil || now != v.RealStart {
		return
	}
	_ = v.Start(v.RealDay, now, o.ID)
	o.State = Working

	if delta := env.SampleVisitProlong(); delta != 0 {
		env.CascadeVisitDelta(o, v, delta)
	}
}

func (o *Operator) workingStep(now int, env Env) {
	v := env.VisitByID(o.NextVisitID)
	if v == nil || now != v.RealEnd {
		return
	}
	_ = v.Complete(now)
	o.Workload += v.RealDuration()
	o.ExecutedVisits++
	if v.Skill < o.Skill {
		o.OverskillVisits++
		o.OverskillTime += v.RealDuration()
	}
	next := env.NextScheduledVisit(v.ID)
	if next != nil {
		o.NextVisitID = next.ID
	} else {
		o.NextVisitID = NoVisit
	}
	o.RefreshNextVisit(env)
	o.State = Idle
	o.idleStep(now, env)
}

// IsDayComplete reports whether the operator has satisfied the
// end-of-day condition: clock past day_end, nothing left in the
// itinerary, and physically back home.
func (o *Operator) IsDayComplete(now, dayEnd int) bool {
	return now >= dayEnd &&
		o.NextVisitID == NoVisit &&
		o.CurrentMunicipality == o.HomeMunicipality &&
		o.State != Working &&
		o.State != Travelling
}

// Wage computes total_wage = (σ0 + skill·σ1) · (min(contract, workload) +
// max(0, workload−contract)·(1+ω)).
func (o *Operator) Wage(sigma0, sigma1, omega float64) float64 {
	base := math.Min(float64(o.ContractTime), float64(o.Workload))
	overtime := math.Max(0, float64(o.Workload)-float64(o.ContractTime))
	return (sigma0 + float64(o.Skill)*sigma1) * (base + overtime*(1+omega))
}

// QuitDay truncates the operator's remaining day by clearing its queued
// next visit, so an IDLE operator heads home on its next step. It does
// not deschedule the operator's remaining SCHEDULED visits for today. The
// model generates no quit-day event and does not call it.
func (o *Operator) QuitDay() {
	o.NextVisitID = NoVisit
}

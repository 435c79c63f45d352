// Copyright 2025 James Ross

// Package itinerary implements the schedule-mutation algebra (C4): pure
// operations over a single operator's sorted, day-filtered itinerary —
// shrink, stretch, postpone, anticipate, extend-with-cascade,
// shorten-with-cascade — plus the feasibility queries the manager (C6)
// uses to pick candidate (operator, start-time) pairs.
package itinerary

import (
	"sort"

	"github.com/jamesross/carefleet-sim/internal/graph"
	"github.com/jamesross/carefleet-sim/internal/visit"
)

// MunicipalityLookup resolves the municipality a visit must be serviced
// in, i.e. the owning patient's municipality.
type MunicipalityLookup func(patientID int) int

// Window is a free time interval [Start,End] during which a new visit
// could be inserted.
type Window struct {
	Start, End int
}

// Itinerary is the sorted, day-filtered view of one operator's
// SCHEDULED/EXECUTING visits plus the constants needed to reason about
// slack and cascades.
type Itinerary struct {
	Day              int
	HomeMunicipality int
	DayStart, DayEnd int
	Graph            *graph.Graph
	Mun              MunicipalityLookup
	Visits           []*visit.Visit
	ShortenPerc      float64
	MaxAllowedDelay  int
	IntraMunTime     int
	TimeUnit         int
}

// New builds an itinerary from an unsorted visit slice, sorting it by
// real start time as required by every operation below.
func New(day, home, dayStart, dayEnd int, g *graph.Graph, mun MunicipalityLookup, visits []*visit.Visit, shortenPerc float64, maxAllowedDelay, intraMunTime, timeUnit int) *Itinerary {
	it := &Itinerary{
		Day:              day,
		HomeMunicipality: home,
		DayStart:         dayStart,
		DayEnd:           dayEnd,
		Graph:            g,
		Mun:              mun,
		Visits:           append([]*visit.Visit(nil), visits...),
		ShortenPerc:      shortenPerc,
		MaxAllowedDelay:  maxAllowedDelay,
		IntraMunTime:     intraMunTime,
		TimeUnit:         timeUnit,
	}
	sort.Slice(it.Visits, func(i, j int) bool { return it.Visits[i].RealStart < it.Visits[j].RealStart })
	return it
}

func (it *Itinerary) mun(v *visit.Visit) int { return it.Mun(v.PatientID) }
func (it *Itinerary) travel(a, b int) int    { return it.Graph.Travel(a, b) }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min3(a, b, c int) int { return min(a, min(b, c)) }

// CumulableDelay is the amount of slack available between fromT and toT
// that can absorb delays: the sum of gap excesses (gap minus required
// travel) between consecutive visits and the bookending home intervals,
// plus the shortening_time of every visit in the window. Returns -1 if
// the itinerary is empty.
func (it *Itinerary) CumulableDelay(fromT, toT int) int {
	if len(it.Visits) == 0 {
		return -1
	}
	slack := 0
	addGap := func(gapStart, gapEnd, required int) {
		overlapStart := max(gapStart, fromT)
		overlapEnd := min(gapEnd, toT)
		if overlapEnd <= overlapStart {
			return
		}
		overlapLen := overlapEnd - overlapStart
		excess := max(0, (gapEnd-gapStart)-required)
		slack += min(excess, overlapLen)
	}

	prevEnd := it.DayStart
	prevMun := it.HomeMunicipality
	for _, v := range it.Visits {
		addGap(prevEnd, v.RealStart, it.travel(prevMun, it.mun(v)))
		if v.RealStart < toT && v.RealEnd > fromT {
			slack += v.ShorteningTime(it.ShortenPerc)
		}
		prevEnd = v.RealEnd
		prevMun = it.mun(v)
	}
	addGap(prevEnd, it.DayEnd, it.travel(prevMun, it.HomeMunicipality))
	return slack
}

func (it *Itinerary) indexOf(v *visit.Visit) int {
	for i, c := range it.Visits {
		if c.ID == v.ID {
			return i
		}
	}
	return -1
}

// ExtendVisit absorbs a visit running Δ minutes long. If unabsorbable
// inside the remaining slack plus MAX_ALLOWED_DELAY, the last SCHEDULED
// visit of the day is descheduled and the attempt recurses; onOverrun is
// invoked once per deschedule so the caller can increment its
// overly_delayed_visits counter.
func (it *Itinerary) ExtendVisit(v *visit.Visit, delta int, onOverrun func(descheduled *visit.Visit)) {
	if delta <= 0 {
		return
	}
	idx := it.indexOf(v)
	if idx < 0 {
		return
	}
	if idx == len(it.Visits)-1 {
		v.Stretch(delta, false)
		return
	}

	c := it.CumulableDelay(v.RealEnd, it.DayEnd)
	if c+it.MaxAllowedDelay >= delta {
		v.Stretch(delta, false)
		for i := idx; i < len(it.Visits)-1; i++ {
			cur, next := it.Visits[i], it.Visits[i+1]
			postponingTime := max(0, cur.RealEnd+it.travel(it.mun(cur), it.mun(next))-next.RealStart)
			if postponingTime <= 0 {
				break
			}
			shrinkAmt := min(postponingTime, next.ShorteningTime(it.ShortenPerc))
			if shrinkAmt > 0 {
				next.Shrink(shrinkAmt, true)
			}
			remaining := postponingTime - shrinkAmt
			if remaining <= 0 {
				break
			}
			next.Postpone(remaining)
		}
		return
	}

	last := it.Visits[len(it.Visits)-1]
	_ = last.Deschedule()
	it.Visits = it.Visits[:len(it.Visits)-1]
	if onOverrun != nil {
		onOverrun(last)
	}
	it.ExtendVisit(v, delta, onOverrun)
}

// ShortenVisit absorbs a visit that ran Δ minutes short: it shrinks v's
// end by Δ, then walks forward pair by pair, anticipating each next visit
// by min(lag, its delay) and stretching the current visit (v included)
// back by min(shortened time, lag, time still recovered). Where the lag
// allows, v therefore ends up back at its scheduled end.
func (it *Itinerary) ShortenVisit(v *visit.Visit, delta int) {
	if delta <= 0 {
		return
	}
	idx := it.indexOf(v)
	if idx < 0 {
		return
	}
	v.Shrink(delta, false)
	recovered := delta

	for i := idx; i < len(it.Visits)-1; i++ {
		cur, next := it.Visits[i], it.Visits[i+1]
		lag := max(0, next.RealStart-(cur.RealEnd+it.travel(it.mun(cur), it.mun(next))))
		delayNext := max(0, next.Delay())
		anticipateAmt := min(lag, delayNext)
		if anticipateAmt > 0 {
			next.Anticipate(anticipateAmt)
		}
		stretchAmt := min3(cur.ShortenedTime(), lag, recovered)
		if stretchAmt > 0 {
			cur.Stretch(stretchAmt, false)
			recovered -= stretchAmt
		}
	}

	last := it.Visits[len(it.Visits)-1]
	lagHome := max(0, it.DayEnd-(last.RealEnd+it.travel(it.mun(last), it.HomeMunicipality)))
	finalStretch := min3(last.ShortenedTime(), recovered, lagHome)
	if finalStretch > 0 {
		last.Stretch(finalStretch, false)
	}
}

// ExtendTravel lengthens the travel leg preceding "next" (the upcoming
// visit) by delta minutes: first absorbed by shrinking next's start,
// then cascaded through ExtendVisit. If next is nil the travel is a
// pure home-bound leg and nothing here applies.
func (it *Itinerary) ExtendTravel(next *visit.Visit, delta int, onOverrun func(descheduled *visit.Visit)) {
	if next == nil || delta <= 0 {
		return
	}
	absorb := min(delta, next.ShorteningTime(it.ShortenPerc))
	if absorb > 0 {
		next.Shrink(absorb, true)
	}
	remaining := delta - absorb
	if remaining > 0 {
		it.ExtendVisit(next, remaining, onOverrun)
	}
}

// ShortenTravel shortens the travel leg preceding "next" by delta
// minutes, reusing ShortenVisit's forward propagation.
func (it *Itinerary) ShortenTravel(next *visit.Visit, delta int) {
	if next == nil || delta <= 0 {
		return
	}
	it.ShortenVisit(next, delta)
}

// AddedTravelCost is the marginal travel-time cost of inserting a visit
// at the given start time in municipality m: the extra distance the
// operator must drive to detour through m, relative to whatever direct
// leg it replaces.
func (it *Itinerary) AddedTravelCost(start, m int) int {
	if len(it.Visits) == 0 {
		if it.HomeMunicipality == m {
			return 0
		}
		return 2 * it.travel(it.HomeMunicipality, m)
	}

	prevMun, nextMun := -1, -1
	first, last := it.Visits[0], it.Visits[len(it.Visits)-1]
	switch {
	case start < first.RealStart:
		prevMun, nextMun = it.HomeMunicipality, it.mun(first)
	case start > last.RealEnd:
		prevMun, nextMun = it.mun(last), it.HomeMunicipality
	default:
		for i := 0; i < len(it.Visits)-1; i++ {
			cur, next := it.Visits[i], it.Visits[i+1]
			if start >= cur.RealEnd && start <= next.RealStart {
				prevMun, nextMun = it.mun(cur), it.mun(next)
				break
			}
		}
	}
	if prevMun < 0 || nextMun < 0 {
		return 0
	}

	firstNew := 0
	if m != prevMun {
		firstNew = it.travel(m, prevMun)
	}
	secondNew := 0
	if m != nextMun {
		secondNew = it.travel(nextMun, m)
	}
	old := 0
	if prevMun != nextMun {
		old = it.travel(prevMun, nextMun)
	}
	return firstNew + secondNew - old
}

// AvailableForMunicipality returns the sorted, non-overlapping free
// windows during which a visit starting in municipality m could be
// inserted, shrinking the pre/post slots by travel time to/from m.
func (it *Itinerary) AvailableForMunicipality(m int) []Window {
	var windows []Window
	prevEnd := it.DayStart
	prevMun := it.HomeMunicipality
	for _, v := range it.Visits {
		a := prevEnd + it.travel(prevMun, m)
		b := v.RealStart - it.travel(m, it.mun(v))
		if a <= b {
			windows = append(windows, Window{a, b})
		}
		prevEnd = v.RealEnd
		prevMun = it.mun(v)
	}
	a := prevEnd + it.travel(prevMun, m)
	b := it.DayEnd - it.travel(m, it.HomeMunicipality)
	if a <= b {
		windows = append(windows, Window{a, b})
	}
	return windows
}

// AvailableForTimePeriod reports whether some free window in
// municipality m contains [s,e].
func (it *Itinerary) AvailableForTimePeriod(s, e, m int) bool {
	for _, w := range it.AvailableForMunicipality(m) {
		if w.Start <= s && e <= w.End {
			return true
		}
	}
	return false
}

// AvailableForVisit combines the skill-qualification check
// (operatorSkill >= visitSkill) with the time-period feasibility check.
func (it *Itinerary) AvailableForVisit(operatorSkill, visitSkill, s, e, m int) bool {
	if operatorSkill < visitSkill {
		return false
	}
	return it.AvailableForTimePeriod(s, e, m)
}

// PossibleVisits counts how many back-to-back visits of the given
// duration (separated by IntraMunTime) fit in the intersection of the
// free windows for municipality m and [fromT,toT].
func (it *Itinerary) PossibleVisits(duration, m, fromT, toT int) int {
	count := 0
	for _, w := range it.AvailableForMunicipality(m) {
		overlapStart := max(w.Start, fromT)
		overlapEnd := min(w.End, toT)
		if overlapEnd <= overlapStart {
			continue
		}
		timeWindow := overlapEnd - overlapStart
		count += (timeWindow + it.IntraMunTime) / (duration + it.IntraMunTime)
	}
	return count
}

func isPossibleStartTime(windows []Window, start, duration int) bool {
	for _, w := range windows {
		if w.Start <= start && start+duration <= w.End {
			return true
		}
	}
	return false
}

// PossibleTimesToStartVisit returns the set of TIME_UNIT-grid minutes in
// [patStart, patEnd-duration] at which a visit of the given duration
// could start in municipality m.
func (it *Itinerary) PossibleTimesToStartVisit(duration, m, patStart, patEnd int) []int {
	windows := it.AvailableForMunicipality(m)
	var starts []int
	for t := patStart; t+duration <= patEnd; t += it.TimeUnit {
		if isPossibleStartTime(windows, t, duration) {
			starts = append(starts, t)
		}
	}
	return starts
}

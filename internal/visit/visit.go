// Copyright 2025 James Ross

// Package visit implements the visit entity and its state machine (C2):
// a single care appointment tracking proposed / scheduled / real timings.
package visit

import "github.com/jamesross/carefleet-sim/internal/simerr"

// State is one of the four legal visit states.
type State int

const (
	NotScheduled State = iota
	Scheduled
	Executing
	Executed
)

func (s State) String() string {
	switch s {
	case NotScheduled:
		return "not scheduled"
	case Scheduled:
		return "scheduled"
	case Executing:
		return "executing"
	case Executed:
		return "executed"
	default:
		return "unknown"
	}
}

// NoOperator is the sentinel for an absent proposed/sched/real operator.
const NoOperator = -1

// Visit is a single care appointment. The model owns the Visit value;
// the manager and operator packages hold it by ID, never by reference
// across ticks, per the arena-ownership design.
type Visit struct {
	ID        int
	PatientID int
	Skill     int // 0 or 1

	ProposedDay      int
	ProposedStart    int
	ProposedEnd      int
	ProposedOperator int

	SchedDay      int
	SchedStart    int
	SchedEnd      int
	SchedOperator int

	RealDay      int
	RealStart    int
	RealEnd      int
	RealOperator int

	State State

	NewlyGenerated     bool
	ScheduledByManager bool
	OriginalDay        int
}

// New constructs a NOT_SCHEDULED visit from its proposed timing.
func New(id, patientID, skill, proposedDay, proposedStart, proposedEnd int) *Visit {
	return &Visit{
		ID:               id,
		PatientID:        patientID,
		Skill:            skill,
		ProposedDay:      proposedDay,
		ProposedStart:    proposedStart,
		ProposedEnd:      proposedEnd,
		ProposedOperator: NoOperator,
		SchedOperator:    NoOperator,
		RealOperator:     NoOperator,
		State:            NotScheduled,
		OriginalDay:      proposedDay,
	}
}

// Schedule transitions NOT_SCHEDULED -> SCHEDULED, anchoring sched_* and
// real_* to the same (day, start, end, operator).
func (v *Visit) Schedule(day, start, end, operator int) error {
	if v.State != NotScheduled {
		return simerr.New(simerr.KindInvalidInput, "visit.Schedule", v.ID, operator)
	}
	v.SchedDay, v.SchedStart, v.SchedEnd, v.SchedOperator = day, start, end, operator
	v.RealDay, v.RealStart, v.RealEnd, v.RealOperator = day, start, end, operator
	v.State = Scheduled
	v.ScheduledByManager = true
	return nil
}

// Deschedule transitions SCHEDULED -> NOT_SCHEDULED, clearing sched_* and
// real_*.
func (v *Visit) Deschedule() error {
	if v.State != Scheduled {
		return simerr.New(simerr.KindInvalidInput, "visit.Deschedule", v.ID, v.SchedOperator)
	}
	v.SchedDay, v.SchedStart, v.SchedEnd, v.SchedOperator = 0, 0, 0, NoOperator
	v.RealDay, v.RealStart, v.RealEnd, v.RealOperator = 0, 0, 0, NoOperator
	v.State = NotScheduled
	v.ScheduledByManager = false
	return nil
}

// Start transitions SCHEDULED -> EXECUTING.
func (v *Visit) Start(day, t, operator int) error {
	if v.State != Scheduled {
		return simerr.New(simerr.KindInvalidInput, "visit.Start", v.ID, operator)
	}
	v.RealDay = day
	v.RealStart = t
	v.RealOperator = operator
	v.State = Executing
	return nil
}

// Complete transitions EXECUTING -> EXECUTED.
func (v *Visit) Complete(t int) error {
	if v.State != Executing {
		return simerr.New(simerr.KindInvalidInput, "visit.Complete", v.ID, v.RealOperator)
	}
	v.RealEnd = t
	v.State = Executed
	return nil
}

// Stretch extends the real duration by delta minutes, either on the
// start side (moving real_start earlier) or the end side (moving
// real_end later). Only real_* changes.
func (v *Visit) Stretch(delta int, atStart bool) {
	if delta <= 0 {
		return
	}
	if atStart {
		v.RealStart -= delta
	} else {
		v.RealEnd += delta
	}
}

// Shrink reduces the real duration by delta minutes, either on the
// start side (moving real_start later) or the end side (moving
// real_end earlier). Only real_* changes.
func (v *Visit) Shrink(delta int, atStart bool) {
	if delta <= 0 {
		return
	}
	if atStart {
		v.RealStart += delta
	} else {
		v.RealEnd -= delta
	}
}

// Postpone shifts the whole real window later by delta minutes.
func (v *Visit) Postpone(delta int) {
	v.RealStart += delta
	v.RealEnd += delta
}

// Anticipate shifts the whole real window earlier by delta minutes.
func (v *Visit) Anticipate(delta int) {
	v.RealStart -= delta
	v.RealEnd -= delta
}

// SchedDuration returns the originally scheduled duration.
func (v *Visit) SchedDuration() int { return v.SchedEnd - v.SchedStart }

// RealDuration returns the current real duration.
func (v *Visit) RealDuration() int { return v.RealEnd - v.RealStart }

// ShorteningTime is the amount by which the visit can still be
// shortened without dropping below shortenPerc of the scheduled
// duration.
func (v *Visit) ShorteningTime(shortenPerc float64) int {
	floor := int(float64(v.SchedDuration()) * (1 - shortenPerc))
	room := v.RealDuration() - floor
	if room < 0 {
		return 0
	}
	return room
}

// ShortenedTime is how much the visit has already been shortened
// relative to its scheduled duration (signed).
func (v *Visit) ShortenedTime() int {
	return v.SchedDuration() - v.RealDuration()
}

// Delay is the deviation of the real start from the scheduled start.
func (v *Visit) Delay() int {
	return v.RealStart - v.SchedStart
}

// IsPremiumSkill reports whether this visit requires the high-skill tier.
func (v *Visit) IsPremiumSkill() bool { return v.Skill > 0 }

// Copyright 2025 James Ross

// Package checkpoint persists and restores day-boundary simulation
// snapshots against Redis, so a long-running simulation can resume from
// the last completed day after a crash instead of replaying from minute
// zero. This is operational recovery, distinct from publishing final run
// statistics (internal/stats handles that).
package checkpoint

import (
	"time"

	"github.com/jamesross/carefleet-sim/internal/model"
	"github.com/jamesross/carefleet-sim/internal/operator"
	"github.com/jamesross/carefleet-sim/internal/patient"
	"github.com/jamesross/carefleet-sim/internal/visit"
)

// Snapshot is the full, JSON-serializable arena state for one run at the
// instant it was taken.
type Snapshot struct {
	RunID    string    `json:"run_id"`
	Day      int       `json:"day"`
	Minute   int       `json:"minute"`
	Running  bool      `json:"running"`
	IsBroken bool      `json:"is_broken"`
	SavedAt  time.Time `json:"saved_at"`

	Patients  []*patient.Patient   `json:"patients"`
	Operators []*operator.Operator `json:"operators"`
	Visits    []*visit.Visit       `json:"visits"`
}

// FromModel captures the current arena state of a running model.
func FromModel(runID string, m *model.Model) Snapshot {
	return Snapshot{
		RunID:     runID,
		Day:       m.Day,
		Minute:    m.Minute,
		Running:   m.Running,
		IsBroken:  m.IsBroken,
		SavedAt:   time.Now(),
		Patients:  m.Patients(),
		Operators: m.Operators(),
		Visits:    m.Visits(),
	}
}

// RestoreInto rehydrates an empty model with the snapshot's entities and
// clock state, skipping StartWeek on the next Step since scheduling has
// already happened in a prior run.
func (s Snapshot) RestoreInto(m *model.Model) {
	for _, p := range s.Patients {
		m.RestorePatient(p)
	}
	for _, op := range s.Operators {
		m.RestoreOperator(op)
	}
	for _, v := range s.Visits {
		m.RestoreVisit(v)
	}
	m.SetClock(s.Day, s.Minute, s.Running, s.IsBroken)
}

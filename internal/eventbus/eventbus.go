// Copyright 2025 James Ross

// Package eventbus fans simulation domain events out to in-process
// subscribers and, optionally, to NATS, grounded on
// internal/event-hooks/manager.go's subscriber-registry shape.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type names the kind of domain event emitted by a running simulation.
type Type string

const (
	VisitScheduled   Type = "visit_scheduled"
	VisitDescheduled Type = "visit_descheduled"
	OperatorBroken   Type = "operator_broken"
	DayCompleted     Type = "day_completed"
	RunBroken        Type = "run_broken"
)

// Event is one domain occurrence. Fields outside the event's own concern
// are left zero; e.g. VisitID is meaningless on a DayCompleted event.
type Event struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Type       Type      `json:"type"`
	Day        int       `json:"day"`
	Minute     int       `json:"minute"`
	VisitID    int       `json:"visit_id,omitempty"`
	PatientID  int       `json:"patient_id,omitempty"`
	OperatorID int       `json:"operator_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Subscriber receives every event published after it subscribes.
type Subscriber interface {
	ID() string
	Notify(Event)
}

// FuncSubscriber adapts a plain function to the Subscriber interface.
type FuncSubscriber struct {
	SubID string
	Fn    func(Event)
}

func (f FuncSubscriber) ID() string     { return f.SubID }
func (f FuncSubscriber) Notify(e Event) { f.Fn(e) }

// Publisher is an optional external delivery sink, e.g. NATS.
type Publisher interface {
	Publish(Event) error
	Close() error
}

// Bus is an in-process fan-out point with an optional external publisher.
// Subscribers are notified synchronously and in registration order; a
// slow or panicking subscriber is the caller's problem, same as the
// teacher's own synchronous EventBus.Emit.
type Bus struct {
	runID     string
	publisher Publisher
	log       *zap.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
}

// New builds a Bus scoped to one simulation run. publisher may be nil to
// disable external delivery.
func New(runID string, publisher Publisher, log *zap.Logger) *Bus {
	return &Bus{runID: runID, publisher: publisher, log: log}
}

// Subscribe registers a subscriber for every future Emit call.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Unsubscribe removes a previously registered subscriber by ID.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.subscribers[:0]
	for _, s := range b.subscribers {
		if s.ID() != id {
			out = append(out, s)
		}
	}
	b.subscribers = out
}

// Emit stamps an event with an ID, run ID, and timestamp, then fans it
// out to every in-process subscriber and, if configured, the external
// publisher.
func (b *Bus) Emit(typ Type, day, minute int, fields ...func(*Event)) {
	e := Event{
		ID:        uuid.NewString(),
		RunID:     b.runID,
		Type:      typ,
		Day:       day,
		Minute:    minute,
		Timestamp: time.Now(),
	}
	for _, f := range fields {
		f(&e)
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		s.Notify(e)
	}

	if b.publisher != nil {
		if err := b.publisher.Publish(e); err != nil && b.log != nil {
			b.log.Warn("eventbus: external publish failed",
				zap.String("event_type", string(typ)), zap.String("event_id", e.ID), zap.Error(err))
		}
	}
}

// WithVisit sets VisitID/PatientID on the event being emitted.
func WithVisit(visitID, patientID int) func(*Event) {
	return func(e *Event) { e.VisitID = visitID; e.PatientID = patientID }
}

// WithOperator sets OperatorID on the event being emitted.
func WithOperator(operatorID int) func(*Event) {
	return func(e *Event) { e.OperatorID = operatorID }
}

// Close releases the external publisher, if any.
func (b *Bus) Close() error {
	if b.publisher == nil {
		return nil
	}
	return b.publisher.Close()
}

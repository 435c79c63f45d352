// Copyright 2025 James Ross
package eventbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []Event
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func TestEmitNotifiesAllSubscribersInOrder(t *testing.T) {
	bus := New("run-1", nil, nil)
	var order []string
	bus.Subscribe(FuncSubscriber{SubID: "a", Fn: func(e Event) { order = append(order, "a") }})
	bus.Subscribe(FuncSubscriber{SubID: "b", Fn: func(e Event) { order = append(order, "b") }})

	bus.Emit(VisitScheduled, 1, 200, WithVisit(42, 7))

	require.Equal(t, []string{"a", "b"}, order)
}

func TestEmitStampsRunIDAndFields(t *testing.T) {
	bus := New("run-7", nil, nil)
	var got Event
	bus.Subscribe(FuncSubscriber{SubID: "capture", Fn: func(e Event) { got = e }})

	bus.Emit(OperatorBroken, 3, 450, WithOperator(1001))

	require.Equal(t, "run-7", got.RunID)
	require.Equal(t, OperatorBroken, got.Type)
	require.Equal(t, 3, got.Day)
	require.Equal(t, 450, got.Minute)
	require.Equal(t, 1001, got.OperatorID)
	require.NotEmpty(t, got.ID)
}

func TestUnsubscribeStopsNotification(t *testing.T) {
	bus := New("run-1", nil, nil)
	count := 0
	bus.Subscribe(FuncSubscriber{SubID: "x", Fn: func(e Event) { count++ }})

	bus.Emit(DayCompleted, 0, 840)
	bus.Unsubscribe("x")
	bus.Emit(DayCompleted, 1, 840)

	require.Equal(t, 1, count)
}

func TestEmitForwardsToExternalPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	bus := New("run-1", pub, nil)

	bus.Emit(RunBroken, 4, 900)

	require.Len(t, pub.events, 1)
	require.Equal(t, RunBroken, pub.events[0].Type)
}

func TestEmitSwallowsPublisherErrorWithoutPanicking(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("network down")}
	bus := New("run-1", pub, nil)

	require.NotPanics(t, func() { bus.Emit(VisitDescheduled, 0, 10) })
}

func TestCloseClosesExternalPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	bus := New("run-1", pub, nil)

	require.NoError(t, bus.Close())
	require.True(t, pub.closed)
}

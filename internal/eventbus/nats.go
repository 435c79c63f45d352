// Copyright 2025 James Ross
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher delivers events to a NATS subject, grounded on
// internal/event-hooks/nats.go's NATSPublisher.ProcessEvent.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to natsURL and publishes every event to a
// single subject (no per-event-type fan-out, unlike the teacher's
// per-subscription subject templates — this bus has one external sink).
func NewNATSPublisher(natsURL, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to NATS: %w", err)
	}
	if subject == "" {
		subject = "carefleet.simulate.events"
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Publish(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("eventbus: publish to %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

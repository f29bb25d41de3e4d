package events

import "time"

// Event is the contract for everything published on the message bus.
type Event interface {
	// EventType is the stable code consumers switch on, e.g. "TICKET_SUBMITTED".
	EventType() string

	// Payload carries the event data as a flat map for JSON transport.
	Payload() map[string]interface{}

	// Timestamp is when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the plain implementation the New* constructors return.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string { return e.Type }

func (e BaseEvent) Payload() map[string]interface{} { return e.Data }

func (e BaseEvent) Timestamp() time.Time { return e.OccurredAt }

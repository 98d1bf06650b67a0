// Package events provides the typed event model and the in-process hub
// that fans events out to subscribers and projects them onto the ledger.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the closed enum of event types flowing through the hub.
type Type string

// Task lifecycle events.
const (
	TypeTaskCreated   Type = "task.created"
	TypeTaskUpdated   Type = "task.updated"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskFailed    Type = "task.failed"
)

// Information flow events.
const (
	TypeFactDiscovered Type = "info.fact_discovered"
	TypeQueryRaised    Type = "info.query_raised"
	TypeQueryResolved  Type = "info.query_resolved"
)

// Artifact events.
const (
	TypeCodeWritten Type = "artifact.code_written"
	TypeTestPassed  Type = "artifact.test_passed"
	TypeTestFailed  Type = "artifact.test_failed"
)

// Control events.
const (
	TypeHandoffInitiated Type = "handoff.initiated"
	TypeHandoffCompleted Type = "handoff.completed"
	TypeInterruptRaised  Type = "interrupt.raised"
	TypeInterruptResumed Type = "interrupt.resumed"
	TypeHeartbeat        Type = "system.heartbeat"
	TypeError            Type = "system.error"
)

var validTypes = map[Type]bool{
	TypeTaskCreated:      true,
	TypeTaskUpdated:      true,
	TypeTaskCompleted:    true,
	TypeTaskFailed:       true,
	TypeFactDiscovered:   true,
	TypeQueryRaised:      true,
	TypeQueryResolved:    true,
	TypeCodeWritten:      true,
	TypeTestPassed:       true,
	TypeTestFailed:       true,
	TypeHandoffInitiated: true,
	TypeHandoffCompleted: true,
	TypeInterruptRaised:  true,
	TypeInterruptResumed: true,
	TypeHeartbeat:        true,
	TypeError:            true,
}

// IsValid reports whether t is a member of the closed enum.
func (t Type) IsValid() bool {
	return validTypes[t]
}

// Event is an immutable record published on the hub. Once published, the
// payload map must not be mutated by subscribers.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType Type, source string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// String returns the payload value for key as a string, or "" when absent
// or not a string.
func (e Event) String(key string) string {
	v, _ := e.Payload[key].(string)
	return v
}

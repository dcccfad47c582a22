package workflowrun

import "time"

// EventKind tags an entry in a run's append-only event log. Grounded on
// the teacher's workflow.EventType vocabulary (state_changed etc.),
// adapted to this runtime's gate/emit surface.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventGateOpened   EventKind = "gate_opened"
	EventGateAnswered EventKind = "gate_answered"
	EventEmitted      EventKind = "emitted"
)

// Event is one append-only log entry.
type Event struct {
	Kind EventKind
	Data map[string]any
	Ts   time.Time
}

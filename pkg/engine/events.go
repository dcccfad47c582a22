package engine

import "time"

// EventKind tags an Event published to the EventSink.
type EventKind string

const (
	EventNodeCreated   EventKind = "NODE_CREATED"
	EventNodeReady     EventKind = "NODE_READY"
	EventNodeBusy      EventKind = "NODE_BUSY"
	EventNodeStopped   EventKind = "NODE_STOPPED"
	EventOutputParsed  EventKind = "OUTPUT_PARSED"
	EventOutputChunk   EventKind = "OUTPUT_CHUNK"
	EventGraphStarted   EventKind = "GRAPH_STARTED"
	EventGraphCompleted EventKind = "GRAPH_COMPLETED"
	EventGraphCreated   EventKind = "GRAPH_CREATED"
	EventGraphDeleted   EventKind = "GRAPH_DELETED"
	EventStepStarted   EventKind = "STEP_STARTED"
	EventStepCompleted EventKind = "STEP_COMPLETED"
	EventStepFailed    EventKind = "STEP_FAILED"
	EventSessionCreated EventKind = "SESSION_CREATED"
	EventSessionDeleted EventKind = "SESSION_DELETED"
	EventError          EventKind = "ERROR"
	EventServerShutdown EventKind = "SERVER_SHUTDOWN"
)

// Event is one item pushed to the EventSink. Transports adapt it to
// their own wire format; the engine itself performs no framing.
type Event struct {
	Kind      EventKind
	SessionID string
	Data      map[string]any
	Ts        time.Time
}

// EventSink receives every event the engine emits. Engine construction
// takes exactly one sink; fanning out to multiple transports is the
// sink implementation's concern, not the engine's.
type EventSink interface {
	Publish(e Event)
}

// NopSink discards every event; useful for tests and for a headless
// engine with no attached transport.
type NopSink struct{}

func (NopSink) Publish(Event) {}

func (e *Engine) emit(kind EventKind, sessionID string, data map[string]any) {
	e.sink.Publish(Event{Kind: kind, SessionID: sessionID, Data: data, Ts: time.Now()})
}

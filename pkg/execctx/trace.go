package execctx

import (
	"sync"
	"time"
)

// StepTrace captures one executed graph step, opt-in via ExecutionTrace.
type StepTrace struct {
	StepID   string
	NodeID   string
	NodeType string
	Input    any
	Output   any
	Error    string
	Start    time.Time
	End      time.Time
	Metadata map[string]any
}

// DurationMS returns the step's wall-clock duration in milliseconds.
func (s StepTrace) DurationMS() int64 {
	return s.End.Sub(s.Start).Milliseconds()
}

// ExecutionTrace aggregates step traces for one graph execution.
type ExecutionTrace struct {
	mu      sync.Mutex
	TraceID string
	GraphID string
	Status  string
	Steps   []StepTrace
}

// NewExecutionTrace starts an empty trace for graphID.
func NewExecutionTrace(traceID, graphID string) *ExecutionTrace {
	return &ExecutionTrace{TraceID: traceID, GraphID: graphID, Status: "running"}
}

// Append records a completed step trace.
func (t *ExecutionTrace) Append(step StepTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Steps = append(t.Steps, step)
}

// Finish sets the overall status ("completed" or "failed").
func (t *ExecutionTrace) Finish(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
}

// Snapshot returns a shallow copy of recorded steps, safe to read
// concurrently with further Append calls.
func (t *ExecutionTrace) Snapshot() []StepTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StepTrace, len(t.Steps))
	copy(out, t.Steps)
	return out
}

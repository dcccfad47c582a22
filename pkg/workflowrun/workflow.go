// Package workflowrun implements the imperative Workflow runtime (C6): a
// bound function of (WorkflowContext) -> result, its per-invocation
// WorkflowRun state machine, and the gate-suspension mechanism.
package workflowrun

import (
	"github.com/nerved/nerved/pkg/execctx"
)

// Fn is the function a Workflow binds. It receives a WorkflowContext and
// returns an arbitrary result.
type Fn func(wctx *Context) (any, error)

// Workflow pairs an id with the session it runs against and the bound
// function.
type Workflow struct {
	ID      string
	Session execctx.SessionAccessor
	Fn      Fn
}

// New constructs a Workflow.
func New(id string, session execctx.SessionAccessor, fn Fn) *Workflow {
	return &Workflow{ID: id, Session: session, Fn: fn}
}

// Start creates and starts a new run of this workflow with the given
// input and params.
func (w *Workflow) Start(input any, params map[string]any) *Run {
	r := newRun(w, input, params)
	r.start()
	return r
}

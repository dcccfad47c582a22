package workflowrun

import (
	"fmt"
	"sync"
	"time"

	nerverrors "github.com/nerved/nerved/pkg/errors"
	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/node"
)

// State is a WorkflowRun's lifecycle state.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateWaiting   State = "WAITING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Gate describes a pending gate(prompt, timeout?, choices?) suspension.
type Gate struct {
	Prompt  string
	Timeout *time.Duration
	Choices []string
}

// Run is one invocation of a Workflow: its state, scratch state map,
// pending gate (if WAITING), cancellation, result, and event log.
type Run struct {
	workflow *Workflow
	input    any
	params   map[string]any

	mu          sync.Mutex
	state       State
	result      any
	err         error
	pendingGate *Gate
	gateAnswer  chan any
	events      []Event

	token *execctx.CancellationToken
	done  chan struct{}

	scratchMu sync.Mutex
	scratch   map[string]any
}

func newRun(w *Workflow, input any, params map[string]any) *Run {
	return &Run{
		workflow: w,
		input:    input,
		params:   params,
		state:    StatePending,
		token:    execctx.NewCancellationToken(),
		done:     make(chan struct{}),
		scratch:  make(map[string]any),
	}
}

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Events returns a snapshot copy of the event log.
func (r *Run) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Run) appendEvent(kind EventKind, data map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Kind: kind, Data: data, Ts: time.Now()})
	r.mu.Unlock()
}

func (r *Run) setState(next State) {
	r.mu.Lock()
	prev := r.state
	r.state = next
	r.mu.Unlock()
	r.appendEvent(EventStateChanged, map[string]any{"from": prev, "to": next})
}

// start transitions PENDING->RUNNING and spawns the bound function in a
// goroutine. The goroutine drives the run to a terminal state and closes
// done.
func (r *Run) start() {
	r.setState(StateRunning)
	go func() {
		defer close(r.done)
		wctx := &Context{run: r, session: r.workflow.Session, input: r.input, params: r.params}
		result, err := r.workflow.Fn(wctx)
		r.mu.Lock()
		already := r.state.terminal()
		r.mu.Unlock()
		if already {
			return
		}
		if err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			if r.token.IsCancelled() {
				r.setState(StateCancelled)
			} else {
				r.setState(StateFailed)
			}
			return
		}
		r.mu.Lock()
		r.result = result
		r.mu.Unlock()
		r.setState(StateCompleted)
	}()
}

// AnswerGate verifies the run is WAITING and writes the answer into the
// gate's single-slot channel; otherwise it is rejected.
func (r *Run) AnswerGate(answer any) error {
	r.mu.Lock()
	if r.state != StateWaiting || r.gateAnswer == nil {
		r.mu.Unlock()
		return &nerverrors.ValidationError{
			Field:      "run",
			Message:    "workflow run is not waiting on a gate",
			Suggestion: "call answer_gate only while the run is in the WAITING state",
		}
	}
	ch := r.gateAnswer
	r.mu.Unlock()

	select {
	case ch <- answer:
		r.appendEvent(EventGateAnswered, map[string]any{"answer": answer})
		return nil
	default:
		return fmt.Errorf("gate already answered")
	}
}

// Cancel sets the cancellation token; a pending Gate call wakes via the
// token's Done channel and returns a cancellation error. The run settles
// into CANCELLED once the bound function observes the token and
// returns, unless it had already reached a terminal state.
func (r *Run) Cancel() {
	r.token.Cancel("workflow run cancelled")
}

// Wait blocks until the run reaches a terminal state and returns its
// result, or its error.
func (r *Run) Wait() (any, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Context is the capability bundle passed to a Workflow's bound
// function: node execution, gate suspension, event emission, and
// read-only accessors over input/params/session plus mutable scratch.
type Context struct {
	run     *Run
	session execctx.SessionAccessor
	input   any
	params  map[string]any
}

func (c *Context) Input() any                 { return c.input }
func (c *Context) Params() map[string]any     { return c.params }
func (c *Context) Session() execctx.SessionAccessor { return c.session }

// State returns the run's mutable scratch map for read/write.
func (c *Context) State() map[string]any {
	c.run.scratchMu.Lock()
	defer c.run.scratchMu.Unlock()
	return c.run.scratch
}

// Run looks node_id up in the bound session, constructs an
// ExecutionContext, and invokes node.Execute, returning {"output": result}.
func (c *Context) Run(nodeID string, input any, timeout *time.Duration) (map[string]any, error) {
	raw, ok := c.session.GetNode(nodeID)
	if !ok {
		return nil, fmt.Errorf("workflow run: unknown node %q", nodeID)
	}
	n, ok := raw.(node.Node)
	if !ok {
		return nil, fmt.Errorf("workflow run: node %q is not executable", nodeID)
	}

	ectx := execctx.New(c.session, input)
	ectx.Token = c.run.token
	if timeout != nil {
		ectx = ectx.WithTimeout(*timeout)
	}
	out, err := n.Execute(ectx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"output": out}, nil
}

// Gate suspends the run, publishing a gate_opened event and waiting for
// AnswerGate (or the optional timeout, or cancellation). Only one gate
// may be pending at a time.
func (c *Context) Gate(prompt string, timeout *time.Duration, choices []string) (any, error) {
	r := c.run
	r.mu.Lock()
	if r.pendingGate != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("workflow run already has a pending gate")
	}
	gate := &Gate{Prompt: prompt, Timeout: timeout, Choices: choices}
	r.pendingGate = gate
	r.gateAnswer = make(chan any, 1)
	answerCh := r.gateAnswer
	r.mu.Unlock()

	r.setState(StateWaiting)
	r.appendEvent(EventGateOpened, map[string]any{"prompt": prompt, "choices": choices})

	var timeoutCh <-chan time.Time
	if timeout != nil {
		t := time.NewTimer(*timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	var answer any
	var err error
	select {
	case answer = <-answerCh:
	case <-timeoutCh:
		err = fmt.Errorf("gate %q timed out waiting for an answer", prompt)
	case <-r.token.Done():
		err = r.token.Check()
	}

	r.mu.Lock()
	r.pendingGate = nil
	r.gateAnswer = nil
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r.setState(StateRunning)
	return answer, nil
}

// Emit appends {kind, data, ts} to the run's event log.
func (c *Context) Emit(kind string, data map[string]any) {
	c.run.appendEvent(EventEmitted, mergeKind(kind, data))
}

func mergeKind(kind string, data map[string]any) map[string]any {
	out := map[string]any{"kind": kind}
	for k, v := range data {
		out[k] = v
	}
	return out
}

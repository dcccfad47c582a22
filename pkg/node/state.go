package node

import (
	"sync"

	nerverrors "github.com/nerved/nerved/pkg/errors"
)

// State is a Node's lifecycle state.
type State string

const (
	StateCreated  State = "CREATED"
	StateStarting State = "STARTING"
	StateReady    State = "READY"
	StateBusy     State = "BUSY"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// allowed maps each state to the set of states it may transition to.
// STOPPED is absorbing: it has no outgoing transitions.
var allowed = map[State]map[State]bool{
	StateCreated:  {StateStarting: true, StateStopped: true},
	StateStarting: {StateReady: true, StateStopped: true},
	StateReady:    {StateBusy: true, StateStopping: true},
	StateBusy:     {StateReady: true, StateStopping: true},
	StateStopping: {StateStopped: true},
	StateStopped:  {},
}

// machine is a small mutex-guarded state machine shared by every Node
// variant that has lifecycle (terminal nodes; function and graph nodes
// are stateless and don't use it).
type machine struct {
	mu    sync.Mutex
	state State
}

func newMachine() *machine {
	return &machine{state: StateCreated}
}

func (m *machine) Get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next if the transition is legal, else returns an
// *InternalError describing the illegal transition.
func (m *machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowed[m.state][next] {
		return &nerverrors.InternalError{Message: "illegal state transition " + string(m.state) + " -> " + string(next)}
	}
	m.state = next
	return nil
}

// requireNotStopped is the guard every operation other than Close/Stop
// must pass.
func (m *machine) requireNotStopped(nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateStopped {
		return &nerverrors.ClosedError{NodeID: nodeID}
	}
	return nil
}

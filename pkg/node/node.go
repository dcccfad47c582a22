// Package node implements the polymorphic Node capability set (C4): the
// Terminal and Function variants, and the shared lifecycle state machine
// they (and Graph, defined in pkg/graph) participate in.
package node

import (
	"github.com/nerved/nerved/pkg/execctx"
)

// Node is the minimal capability every unit of work implements: an
// addressable id and a single blocking execution. Terminal nodes,
// function nodes, and graphs (pkg/graph.Graph) all satisfy this.
type Node interface {
	ID() string
	Execute(ctx *execctx.ExecutionContext) (any, error)
}

// StreamEvent is one chunk produced by a streaming execution.
type StreamEvent struct {
	Chunk []byte
	Err   error
}

// Streamer is implemented by nodes that can produce output incrementally
// (terminal nodes and wrappers). Graph has its own ExecuteStream, which
// yields StepEvents and does not satisfy this interface.
type Streamer interface {
	ExecuteStream(ctx *execctx.ExecutionContext) (<-chan StreamEvent, error)
}

// Persistent is implemented by nodes that hold a lifecycle across
// multiple executions (terminal nodes). Graphs and function nodes are
// ephemeral and do not implement it.
type Persistent interface {
	State() State
	Stop() error
}

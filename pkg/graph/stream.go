package graph

import (
	"time"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/node"
)

// StepEventKind tags one event from ExecuteStream.
type StepEventKind string

const (
	StepStart    StepEventKind = "step_start"
	StepChunk    StepEventKind = "step_chunk"
	StepComplete StepEventKind = "step_complete"
	StepError    StepEventKind = "step_error"
)

// StepEvent is one event produced while streaming a Graph's execution.
// Consumers recover the final results from StepComplete payloads.
type StepEvent struct {
	Kind   StepEventKind
	StepID string
	NodeID string
	Chunk  []byte
	Result any
	Err    error
}

// ExecuteStream runs the same control flow as Execute but emits per-step
// StepEvents; a step whose node implements node.Streamer is delegated to
// its ExecuteStream and its chunks forwarded as StepChunk events.
func (g *Graph) ExecuteStream(ctx *execctx.ExecutionContext) (<-chan StepEvent, error) {
	order, err := g.executionOrder()
	if err != nil {
		return nil, err
	}

	out := make(chan StepEvent, 64)
	go func() {
		defer close(out)
		results := make(map[string]any, len(order))

		for _, s := range order {
			if err := ctx.CheckCancelled(); err != nil {
				out <- StepEvent{Kind: StepError, StepID: s.StepID, Err: err}
				return
			}
			if err := ctx.CheckBudget(); err != nil {
				out <- StepEvent{Kind: StepError, StepID: s.StepID, Err: err}
				return
			}

			n, err := g.resolveNode(ctx, s)
			if err != nil {
				out <- StepEvent{Kind: StepError, StepID: s.StepID, Err: err}
				return
			}
			out <- StepEvent{Kind: StepStart, StepID: s.StepID, NodeID: n.ID()}

			stepInput := resolveInput(s, results)
			stepCtx := ctx.WithInput(stepInput).WithUpstream(results)
			if s.Parser != nil {
				stepCtx = stepCtx.WithParser(s.Parser)
			}
			if s.SubBudget != nil {
				stepCtx = stepCtx.WithSubBudget(s.SubBudget)
			}

			start := time.Now()
			result, err := g.runStepStreaming(stepCtx, n, s, out)
			if ctx.Trace != nil {
				ctx.Trace.Append(StepTraceOf(s, n, stepInput, result, err, start, time.Now()))
			}
			if err != nil {
				out <- StepEvent{Kind: StepError, StepID: s.StepID, NodeID: n.ID(), Err: err}
				return
			}

			results[s.StepID] = result
			ctx.IncrementSteps()
			out <- StepEvent{Kind: StepComplete, StepID: s.StepID, NodeID: n.ID(), Result: result}
		}
	}()
	return out, nil
}

// runStepStreaming delegates to the node's ExecuteStream when available,
// forwarding chunks and returning the accumulated bytes as the step
// result; otherwise it falls back to a single blocking Execute under the
// step's error policy.
func (g *Graph) runStepStreaming(ctx *execctx.ExecutionContext, n node.Node, s Step, out chan<- StepEvent) (any, error) {
	streamer, ok := n.(node.Streamer)
	if !ok {
		return runWithPolicy(ctx, n, s)
	}

	chunks, err := streamer.ExecuteStream(ctx)
	if err != nil {
		return nil, err
	}

	var acc []byte
	for ev := range chunks {
		if ev.Err != nil {
			return nil, ev.Err
		}
		acc = append(acc, ev.Chunk...)
		out <- StepEvent{Kind: StepChunk, StepID: s.StepID, NodeID: n.ID(), Chunk: ev.Chunk}
	}
	return string(acc), nil
}

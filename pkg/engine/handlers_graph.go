package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nerved/nerved/pkg/execctx"
	ourgraph "github.com/nerved/nerved/pkg/graph"
)

func handleCreateGraph(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	if _, err := s.CreateGraph(id); err != nil {
		return fail(err)
	}
	e.emit(EventGraphCreated, cmd.SessionID, map[string]any{"graph_id": id})
	return ok(map[string]any{"graph_id": id})
}

func handleDeleteGraph(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	existed := s.DeleteGraph(id)
	if existed {
		e.emit(EventGraphDeleted, cmd.SessionID, map[string]any{"graph_id": id})
	}
	return ok(map[string]any{"existed": existed})
}

func handleListGraphs(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{"graph_ids": s.ListGraphs()})
}

func newToken() string {
	return uuid.NewString()
}

// handleRunGraph validates then runs the named graph, emitting
// GRAPH_STARTED, per-step STEP_STARTED/COMPLETED/FAILED, and
// GRAPH_COMPLETED. The run is tracked under an opaque token so it can
// be cancelled out-of-band via its own cancellation token.
func handleRunGraph(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	g, found := s.GetGraph(id)
	if !found {
		return fail(fmt.Errorf("unknown graph %q", id))
	}
	if errs := g.Validate(); len(errs) > 0 {
		return fail(fmt.Errorf("graph %q failed validation: %v", id, errs))
	}

	token := newToken()
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runningGraphs[token] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runningGraphs, token)
		e.mu.Unlock()
		cancel()
	}()

	ectx := execctx.New(s, cmd.Params["input"])
	go func() {
		<-runCtx.Done()
		ectx.Token.Cancel("run_graph cancelled")
	}()

	if trace := optionalBool(cmd.Params, "trace"); trace != nil && *trace {
		ectx.Trace = execctx.NewExecutionTrace(uuid.NewString(), id)
	}

	e.emit(EventGraphStarted, cmd.SessionID, map[string]any{"graph_id": id, "run_token": token})

	events, err := g.ExecuteStream(ectx)
	if err != nil {
		return fail(err)
	}

	results := make(map[string]any)
	for ev := range events {
		switch ev.Kind {
		case ourgraph.StepStart:
			e.emit(EventStepStarted, cmd.SessionID, map[string]any{"graph_id": id, "step_id": ev.StepID, "node_id": ev.NodeID})
		case ourgraph.StepComplete:
			results[ev.StepID] = ev.Result
			e.emit(EventStepCompleted, cmd.SessionID, map[string]any{"graph_id": id, "step_id": ev.StepID, "node_id": ev.NodeID})
		case ourgraph.StepError:
			e.emit(EventStepFailed, cmd.SessionID, map[string]any{"graph_id": id, "step_id": ev.StepID, "error": ev.Err.Error()})
			if ectx.Trace != nil {
				ectx.Trace.Finish("failed")
			}
			e.emit(EventGraphCompleted, cmd.SessionID, map[string]any{"graph_id": id, "run_token": token, "status": "failed"})
			return fail(ev.Err)
		}
	}

	if ectx.Trace != nil {
		ectx.Trace.Finish("completed")
	}
	e.emit(EventGraphCompleted, cmd.SessionID, map[string]any{"graph_id": id, "run_token": token, "status": "completed"})

	data := map[string]any{"results": results, "run_token": token}
	if ectx.Trace != nil {
		data["trace"] = ectx.Trace.Snapshot()
	}
	return ok(data)
}

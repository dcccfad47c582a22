package engine

import (
	"context"
	"fmt"

	"github.com/nerved/nerved/pkg/workflowrun"
)

func handleExecuteWorkflow(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	w, found := s.GetWorkflow(id)
	if !found {
		return fail(fmt.Errorf("unknown workflow %q", id))
	}
	input := cmd.Params["input"]
	params, _ := cmd.Params["params"].(map[string]any)

	run := w.Start(input, params)
	token := newToken()
	s.TrackRun(token, run)
	return ok(map[string]any{"run_token": token, "state": string(run.State())})
}

func handleListWorkflows(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{"workflow_ids": s.ListWorkflows()})
}

func resolveRun(e *Engine, cmd Command) (*workflowrun.Run, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return nil, err
	}
	token, err := requireString(cmd.Params, "run_token")
	if err != nil {
		return nil, err
	}
	r, found := s.GetRun(token)
	if !found {
		return nil, fmt.Errorf("unknown workflow run %q", token)
	}
	return r, nil
}

func handleGetWorkflowRun(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	r, err := resolveRun(e, cmd)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{"state": string(r.State()), "events": r.Events()})
}

func handleListWorkflowRuns(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{"run_tokens": s.ListRuns()})
}

func handleAnswerGate(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	r, err := resolveRun(e, cmd)
	if err != nil {
		return fail(err)
	}
	answer := cmd.Params["answer"]
	if err := r.AnswerGate(answer); err != nil {
		return fail(err)
	}
	return ok(map[string]any{"ok": true})
}

func handleCancelWorkflow(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	r, err := resolveRun(e, cmd)
	if err != nil {
		return fail(err)
	}
	r.Cancel()
	return ok(map[string]any{"ok": true})
}

package engine

import (
	"context"
	"testing"

	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/graph"
	"github.com/nerved/nerved/pkg/log"
	"github.com/nerved/nerved/pkg/workflowrun"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Publish(e Event) { r.events = append(r.events, e) }

func newTestEngine(t *testing.T) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	e, err := New(Config{
		DefaultSessionID: "default",
		ServerName:       "test",
		HistoryBaseDir:   t.TempDir(),
		Sink:             sink,
		Logger:           log.Nop(),
	})
	require.NoError(t, err)
	return e, sink
}

func TestPing(t *testing.T) {
	e, _ := newTestEngine(t)
	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdPing})
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestCreateGraphAndRunGraphEmitsEvents(t *testing.T) {
	e, sink := newTestEngine(t)
	s, _ := e.resolveSession("")

	_, err := s.CreateFunction("double", func(ctx *execctx.ExecutionContext) (any, error) {
		return ctx.Input.(int) * 2, nil
	})
	require.NoError(t, err)
	g, err := s.CreateGraph("g")
	require.NoError(t, err)
	g.AddStep(graph.Step{StepID: "a", NodeRef: "double", Input: 21})

	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdRunGraph, Params: map[string]any{"id": "g"}})
	require.NoError(t, err)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	results := data["results"].(map[string]any)
	require.Equal(t, 42, results["a"])

	var sawStarted, sawCompleted bool
	var completedStatus string
	for _, ev := range sink.events {
		if ev.Kind == EventGraphStarted {
			sawStarted = true
		}
		if ev.Kind == EventGraphCompleted {
			sawCompleted = true
			completedStatus, _ = ev.Data["status"].(string)
		}
	}
	require.True(t, sawStarted, "expected GRAPH_STARTED event, got %+v", sink.events)
	require.True(t, sawCompleted, "expected GRAPH_COMPLETED event, got %+v", sink.events)
	require.Equal(t, "completed", completedStatus)
}

func TestRunGraphFailureEmitsGraphCompletedFailed(t *testing.T) {
	e, sink := newTestEngine(t)
	s, _ := e.resolveSession("")

	_, err := s.CreateFunction("boom", func(ctx *execctx.ExecutionContext) (any, error) {
		return nil, assertErr
	})
	require.NoError(t, err)
	g, err := s.CreateGraph("g3")
	require.NoError(t, err)
	g.AddStep(graph.Step{StepID: "a", NodeRef: "boom", Input: nil})

	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdRunGraph, Params: map[string]any{"id": "g3"}})
	require.NoError(t, err)
	require.False(t, resp.Success)

	var completedStatus string
	var sawFailed, sawError bool
	for _, ev := range sink.events {
		if ev.Kind == EventGraphCompleted {
			completedStatus, _ = ev.Data["status"].(string)
		}
		if ev.Kind == EventStepFailed {
			sawFailed = true
		}
		if ev.Kind == EventError {
			sawError = true
		}
	}
	require.Equal(t, "failed", completedStatus)
	require.True(t, sawFailed, "expected STEP_FAILED event, got %+v", sink.events)
	require.True(t, sawError, "expected ERROR event, got %+v", sink.events)
}

func TestRunGraphWithTraceEnabled(t *testing.T) {
	e, _ := newTestEngine(t)
	s, _ := e.resolveSession("")

	_, err := s.CreateFunction("inc", func(ctx *execctx.ExecutionContext) (any, error) {
		return ctx.Input.(int) + 1, nil
	})
	require.NoError(t, err)
	g, err := s.CreateGraph("g2")
	require.NoError(t, err)
	g.AddStep(graph.Step{StepID: "a", NodeRef: "inc", Input: 1})

	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdRunGraph, Params: map[string]any{"id": "g2", "trace": true}})
	require.NoError(t, err)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	require.Contains(t, data, "trace")
}

func TestExecuteWorkflowWithGate(t *testing.T) {
	e, _ := newTestEngine(t)
	s, _ := e.resolveSession("")

	w := workflowrun.New("approval", s, func(wctx *workflowrun.Context) (any, error) {
		answer, err := wctx.Gate("proceed?", nil, []string{"yes", "no"})
		if err != nil {
			return nil, err
		}
		return answer, nil
	})
	s.RegisterWorkflow(w)

	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdExecuteWorkflow, Params: map[string]any{"id": "approval"}})
	require.NoError(t, err)
	token := resp.Data.(map[string]any)["run_token"].(string)

	for i := 0; i < 1000; i++ {
		r, _ := s.GetRun(token)
		if r.State() == workflowrun.StateWaiting {
			break
		}
		time.Sleep(time.Millisecond)
	}

	ansResp, err := e.Dispatch(context.Background(), Command{Kind: CmdAnswerGate, Params: map[string]any{"run_token": token, "answer": "yes"}})
	require.NoError(t, err)
	require.True(t, ansResp.Success)
}

func TestUnknownSessionFails(t *testing.T) {
	e, _ := newTestEngine(t)
	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdListNodes, SessionID: "nope"})
	require.NoError(t, err)
	require.False(t, resp.Success)
}

func TestCreateAndDeleteSessionEmitEvents(t *testing.T) {
	e, sink := newTestEngine(t)

	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdCreateSession, Params: map[string]any{"id": "extra"}})
	require.NoError(t, err)
	require.True(t, resp.Success)

	resp, err = e.Dispatch(context.Background(), Command{Kind: CmdDeleteSession, Params: map[string]any{"id": "extra"}})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var sawCreated, sawDeleted bool
	for _, ev := range sink.events {
		if ev.Kind == EventSessionCreated && ev.Data["session_id"] == "extra" {
			sawCreated = true
		}
		if ev.Kind == EventSessionDeleted && ev.Data["session_id"] == "extra" {
			sawDeleted = true
		}
	}
	require.True(t, sawCreated, "expected SESSION_CREATED event, got %+v", sink.events)
	require.True(t, sawDeleted, "expected SESSION_DELETED event, got %+v", sink.events)
}

func TestShutdownEmitsServerShutdown(t *testing.T) {
	e, sink := newTestEngine(t)

	resp, err := e.Dispatch(context.Background(), Command{Kind: CmdShutdown})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var sawShutdown bool
	for _, ev := range sink.events {
		if ev.Kind == EventServerShutdown {
			sawShutdown = true
		}
	}
	require.True(t, sawShutdown, "expected SERVER_SHUTDOWN event, got %+v", sink.events)
}

type panicError struct{ msg string }

func (e *panicError) Error() string { return e.msg }

var assertErr = &panicError{msg: "boom"}

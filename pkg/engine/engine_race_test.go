package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/graph"
)

// TestEngineConcurrentSessionCreateDelete drives CREATE_SESSION and
// DELETE_SESSION from many goroutines against one Engine so `go test
// -race` catches any access to Engine.sessions not covered by e.mu.
func TestEngineConcurrentSessionCreateDelete(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("race-%d", i)
			resp, err := e.Dispatch(ctx, Command{Kind: CmdCreateSession, Params: map[string]any{"id": id}})
			require.NoError(t, err)
			require.True(t, resp.Success)
			_, err = e.Dispatch(ctx, Command{Kind: CmdDeleteSession, Params: map[string]any{"id": id}})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	resp, err := e.Dispatch(ctx, Command{Kind: CmdListSessions})
	require.NoError(t, err)
	ids := resp.Data.(map[string]any)["session_ids"].([]string)
	require.Len(t, ids, 1, "only the default session should remain")
}

// TestEngineConcurrentGraphRuns drives RUN_GRAPH concurrently against
// distinct graphs in one session so `go test -race` catches any access
// to Engine.runningGraphs not covered by e.mu.
func TestEngineConcurrentGraphRuns(t *testing.T) {
	e, _ := newTestEngine(t)
	s, _ := e.resolveSession("")
	ctx := context.Background()

	_, err := s.CreateFunction("identity", func(ectx *execctx.ExecutionContext) (any, error) {
		return ectx.Input, nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gid := fmt.Sprintf("race-graph-%d", i)
			g, err := s.CreateGraph(gid)
			require.NoError(t, err)
			g.AddStep(graph.Step{StepID: "a", NodeRef: "identity", Input: i})
			resp, err := e.Dispatch(ctx, Command{Kind: CmdRunGraph, Params: map[string]any{"id": gid}})
			require.NoError(t, err)
			require.True(t, resp.Success)
		}(i)
	}
	wg.Wait()
}

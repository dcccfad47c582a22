package workflowrun

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRunStateConcurrentAccess drives State() and Events() from many
// goroutines while the run's own goroutine writes its scratch map via
// Context.State() and appends events, so `go test -race` catches any access not
// covered by Run's mutexes.
func TestRunStateConcurrentAccess(t *testing.T) {
	w := New("scratch", nil, func(wctx *Context) (any, error) {
		for i := 0; i < 100; i++ {
			state := wctx.State()
			state["i"] = i
			wctx.Emit("tick", map[string]any{"i": i})
		}
		return "done", nil
	})
	r := w.Start(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.State()
				_ = r.Events()
			}
		}()
	}
	wg.Wait()

	result, err := r.Wait()
	require.NoError(t, err)
	require.Equal(t, "done", result)
}

// TestConcurrentRunsOnSameWorkflow exercises many simultaneous Run
// invocations of one Workflow, guarding against shared mutable state
// leaking between runs.
func TestConcurrentRunsOnSameWorkflow(t *testing.T) {
	w := New("concurrent", nil, func(wctx *Context) (any, error) {
		return wctx.Input(), nil
	})

	var wg sync.WaitGroup
	results := make([]any, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := w.Start(i, nil)
			result, err := r.Wait()
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		require.Equal(t, i, v)
	}
}

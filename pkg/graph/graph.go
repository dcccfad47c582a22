// Package graph implements the Graph scheduler (C5): a DAG of Steps
// executed in topological order, with per-step error policy, budget, and
// cancellation enforcement. A Graph is itself a node.Node so graphs nest.
package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/node"
)

// nodeType names the concrete kind of n for trace records; the Node
// interface itself carries no type tag.
func nodeType(n node.Node) string {
	switch n.(type) {
	case *node.TerminalNode:
		return "terminal"
	case *node.FunctionNode:
		return "function"
	case *node.Wrapper:
		return "terminal"
	case *Graph:
		return "graph"
	default:
		return fmt.Sprintf("%T", n)
	}
}

// Graph is an acyclic dependency graph of Steps. It is ephemeral and
// non-persistent: it has no lifecycle state of its own beyond the steps
// it resolves and runs.
type Graph struct {
	id    string
	steps []Step
}

// New constructs an empty graph; steps are added with AddStep.
func New(id string) *Graph {
	return &Graph{id: id}
}

func (g *Graph) ID() string { return g.id }

// AddStep appends a step to the graph. Order of addition has no bearing
// on execution order, which is computed from DependsOn.
func (g *Graph) AddStep(s Step) {
	g.steps = append(g.steps, s)
}

// Validate returns every structural error found, or nil if the graph is
// executable. Checks run in the order named by §4.5: empty/whitespace
// step_id, duplicate ids, self-dependency, input/input_fn conflicts,
// unknown dependency, and finally (only if the above are clean) a cycle
// check via topological sort.
func (g *Graph) Validate() []string {
	var errs []string

	seen := make(map[string]bool, len(g.steps))
	for _, s := range g.steps {
		id := strings.TrimSpace(s.StepID)
		if id == "" {
			errs = append(errs, "step_id must not be empty or whitespace")
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Sprintf("duplicate step_id: %s", id))
		}
		seen[id] = true
	}

	for _, s := range g.steps {
		for _, dep := range s.DependsOn {
			if dep == s.StepID {
				errs = append(errs, fmt.Sprintf("step %s depends on itself", s.StepID))
			}
		}
		if s.Input != nil && s.InputFn != nil {
			errs = append(errs, fmt.Sprintf("step %s sets both input and input_fn", s.StepID))
		}
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				errs = append(errs, fmt.Sprintf("step %s depends on unknown step %s", s.StepID, dep))
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}

	if _, err := g.executionOrder(); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// executionOrder computes a deterministic topological sort (Kahn's
// algorithm, ties broken by addition order) and reports a cycle as an
// error if one exists.
func (g *Graph) executionOrder() ([]Step, error) {
	byID := make(map[string]Step, len(g.steps))
	indegree := make(map[string]int, len(g.steps))
	for _, s := range g.steps {
		byID[s.StepID] = s
		if _, ok := indegree[s.StepID]; !ok {
			indegree[s.StepID] = 0
		}
	}
	dependents := make(map[string][]string)
	for _, s := range g.steps {
		for _, dep := range s.DependsOn {
			indegree[s.StepID]++
			dependents[dep] = append(dependents[dep], s.StepID)
		}
	}

	var ready []string
	for _, s := range g.steps {
		if indegree[s.StepID] == 0 {
			ready = append(ready, s.StepID)
		}
	}

	var order []Step
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(g.steps) {
		return nil, fmt.Errorf("graph %s contains a dependency cycle", g.id)
	}
	return order, nil
}

// resolveNode returns s.Node if set, else looks s.NodeRef up via
// ctx.Session. A missing node_ref is fatal.
func (g *Graph) resolveNode(ctx *execctx.ExecutionContext, s Step) (node.Node, error) {
	if s.Node != nil {
		return s.Node, nil
	}
	if ctx.Session == nil {
		return nil, fmt.Errorf("step %s references node_ref %q but context has no session", s.StepID, s.NodeRef)
	}
	raw, ok := ctx.Session.GetNode(s.NodeRef)
	if !ok {
		return nil, fmt.Errorf("step %s references unknown node_ref %q", s.StepID, s.NodeRef)
	}
	n, ok := raw.(node.Node)
	if !ok {
		return nil, fmt.Errorf("step %s node_ref %q did not resolve to a node.Node", s.StepID, s.NodeRef)
	}
	return n, nil
}

func resolveInput(s Step, results map[string]any) any {
	if s.InputFn != nil {
		return s.InputFn(results)
	}
	return s.Input
}

// Execute runs every step in topological order, building results keyed
// by step_id. It implements node.Node so a Graph can be nested as
// another graph's step.
func (g *Graph) Execute(ctx *execctx.ExecutionContext) (any, error) {
	order, err := g.executionOrder()
	if err != nil {
		return nil, err
	}

	results := make(map[string]any, len(order))
	for _, s := range order {
		if err := ctx.CheckCancelled(); err != nil {
			return results, err
		}
		if err := ctx.CheckBudget(); err != nil {
			return results, err
		}

		n, err := g.resolveNode(ctx, s)
		if err != nil {
			return results, err
		}

		stepInput := resolveInput(s, results)
		stepCtx := ctx.WithInput(stepInput).WithUpstream(results)
		if s.Parser != nil {
			stepCtx = stepCtx.WithParser(s.Parser)
		}
		if s.SubBudget != nil {
			stepCtx = stepCtx.WithSubBudget(s.SubBudget)
		}

		start := time.Now()
		out, err := runWithPolicy(stepCtx, n, s)
		if ctx.Trace != nil {
			trace := StepTraceOf(s, n, stepInput, out, err, start, time.Now())
			ctx.Trace.Append(trace)
		}
		if err != nil {
			return results, err
		}

		results[s.StepID] = out
		ctx.IncrementSteps()
	}
	return results, nil
}

// StepTraceOf builds the execctx.StepTrace record for one executed step.
func StepTraceOf(s Step, n node.Node, input, output any, err error, start, end time.Time) execctx.StepTrace {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return execctx.StepTrace{
		StepID:   s.StepID,
		NodeID:   n.ID(),
		NodeType: nodeType(n),
		Input:    input,
		Output:   output,
		Error:    errStr,
		Start:    start,
		End:      end,
	}
}

// runWithPolicy runs n.Execute under s.ErrorPolicy's retry/fallback
// rules (§4.5.1). A nil policy behaves as on_error=fail, retry_count=0.
func runWithPolicy(ctx *execctx.ExecutionContext, n node.Node, s Step) (any, error) {
	policy := s.ErrorPolicy
	attempts := 0
	if policy != nil {
		attempts = policy.RetryCount
	}

	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		out, err := runOnce(ctx, n, policy)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt < attempts {
			if err := ctx.CheckCancelled(); err != nil {
				return nil, err
			}
			if d := policy.retryDelay(attempt); d > 0 {
				select {
				case <-ctx.Token.Done():
					return nil, ctx.CheckCancelled()
				case <-time.After(d):
				}
			}
			continue
		}
	}

	if policy == nil {
		return nil, lastErr
	}
	switch policy.OnError {
	case OnErrorSkip:
		return policy.FallbackValue, nil
	case OnErrorFallback:
		if policy.FallbackNode == nil {
			return nil, fmt.Errorf("step %s: on_error=fallback set with no fallback_node", s.StepID)
		}
		return policy.FallbackNode.Execute(ctx)
	default:
		return nil, lastErr
	}
}

func runOnce(ctx *execctx.ExecutionContext, n node.Node, policy *ErrorPolicy) (any, error) {
	stepCtx := ctx
	if policy != nil && policy.TimeoutMS > 0 {
		stepCtx = ctx.WithTimeout(time.Duration(policy.TimeoutMS) * time.Millisecond)
	}
	return n.Execute(stepCtx)
}

package execctx

import (
	"time"

	"github.com/nerved/nerved/pkg/parser"
)

// SessionAccessor is the minimal view of a session an ExecutionContext
// needs: resolving a node_ref. It returns `any` rather than a concrete
// Node type to avoid a package cycle between execctx and the node
// package that implements Node; callers type-assert the result.
type SessionAccessor interface {
	GetNode(id string) (any, bool)
}

// ExecutionContext is the capability bundle threaded through every node
// execution. Budget, usage, cancellation token, and trace are shared by
// reference across With* derivations, which is how budgets apply across
// nested graphs.
type ExecutionContext struct {
	Session  SessionAccessor
	Input    any
	Upstream map[string]any

	Parser  parser.Parser
	Timeout *time.Duration

	Budget *Budget
	Usage  *ResourceUsage
	Token  *CancellationToken
	Trace  *ExecutionTrace

	// ParentUsage is set when WithSubBudget installs a fresh Usage
	// counter for a step; increments must apply to both so the parent
	// graph's own budget still sees the child's consumption.
	ParentUsage *ResourceUsage
}

// New constructs a root ExecutionContext with a fresh usage counter and
// cancellation token.
func New(session SessionAccessor, input any) *ExecutionContext {
	return &ExecutionContext{
		Session: session,
		Input:   input,
		Usage:   NewResourceUsage(),
		Token:   NewCancellationToken(),
	}
}

// WithInput returns a new context with a different input, sharing every
// other field (including Budget/Usage/Token/Trace by reference).
func (c *ExecutionContext) WithInput(input any) *ExecutionContext {
	next := *c
	next.Input = input
	return &next
}

// WithUpstream returns a new context carrying the enclosing graph's
// results-so-far.
func (c *ExecutionContext) WithUpstream(upstream map[string]any) *ExecutionContext {
	next := *c
	next.Upstream = upstream
	return &next
}

// WithParser returns a new context with a parser override applied.
func (c *ExecutionContext) WithParser(p parser.Parser) *ExecutionContext {
	next := *c
	next.Parser = p
	return &next
}

// WithTimeout returns a new context with a timeout override applied.
func (c *ExecutionContext) WithTimeout(d time.Duration) *ExecutionContext {
	next := *c
	next.Timeout = &d
	return &next
}

// WithSubBudget returns a new context whose Usage is a fresh counter
// constrained by sub, while parentUsage keeps accumulating alongside it
// (exceeding either raises).
func (c *ExecutionContext) WithSubBudget(sub *Budget) *ExecutionContext {
	next := *c
	next.Budget = sub
	next.ParentUsage = c.Usage
	next.Usage = NewResourceUsage()
	return &next
}

// IncrementSteps increments this context's usage, and the parent's usage
// if a sub-budget is installed, keeping both budgets live simultaneously.
func (c *ExecutionContext) IncrementSteps() {
	c.Usage.IncrementSteps()
	if c.ParentUsage != nil {
		c.ParentUsage.IncrementSteps()
	}
}

// CheckCancelled raises *CancelledError if the shared token has tripped.
func (c *ExecutionContext) CheckCancelled() error {
	if c.Token == nil {
		return nil
	}
	return c.Token.Check()
}

// CheckBudget raises *BudgetExceededError if the shared usage has
// breached the active budget.
func (c *ExecutionContext) CheckBudget() error {
	return Check(c.Budget, c.Usage)
}

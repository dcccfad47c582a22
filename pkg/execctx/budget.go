package execctx

import (
	"fmt"
	"sync"
	"time"

	nerverrors "github.com/nerved/nerved/pkg/errors"
)

// Budget bounds a single execution's resource consumption. Any nil
// pointer disables that dimension.
type Budget struct {
	MaxTokens      *int64
	MaxTimeSeconds *float64
	MaxSteps       *int64
	MaxAPICalls    *int64
	MaxCostDollars *float64
}

// ResourceUsage tracks the running totals for a Budget, plus a monotonic
// start timestamp. Guarded by mu since a nested graph and its parent
// share the same counter via ParentUsage and may read it from other
// goroutines.
type ResourceUsage struct {
	mu            sync.Mutex
	TokensUsed    int64
	StepsExecuted int64
	APICalls      int64
	CostDollars   float64
	startedAt     time.Time
}

// NewResourceUsage starts a usage counter with its clock running.
func NewResourceUsage() *ResourceUsage {
	return &ResourceUsage{startedAt: time.Now()}
}

// Snapshot returns an immutable copy safe for cross-goroutine reads.
type Snapshot struct {
	TokensUsed    int64
	StepsExecuted int64
	APICalls      int64
	CostDollars   float64
	ElapsedSeconds float64
}

func (u *ResourceUsage) Snapshot() Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Snapshot{
		TokensUsed:     u.TokensUsed,
		StepsExecuted:  u.StepsExecuted,
		APICalls:       u.APICalls,
		CostDollars:    u.CostDollars,
		ElapsedSeconds: time.Since(u.startedAt).Seconds(),
	}
}

// AddTokens increments the token counter (terminal nodes increment on
// each Execute; function nodes may do so by convention).
func (u *ResourceUsage) AddTokens(n int64) {
	u.mu.Lock()
	u.TokensUsed += n
	u.mu.Unlock()
}

// AddAPICall increments the API-call counter.
func (u *ResourceUsage) AddAPICall() {
	u.mu.Lock()
	u.APICalls++
	u.mu.Unlock()
}

// AddCost increments the accumulated dollar cost.
func (u *ResourceUsage) AddCost(dollars float64) {
	u.mu.Lock()
	u.CostDollars += dollars
	u.mu.Unlock()
}

// IncrementSteps increments the executed-step counter. Called by the
// Graph scheduler after each successful step.
func (u *ResourceUsage) IncrementSteps() {
	u.mu.Lock()
	u.StepsExecuted++
	u.mu.Unlock()
}

// Check compares the current usage against budget and returns a
// *BudgetExceededError describing the first violated dimension, or nil.
// A nil budget never raises.
func Check(budget *Budget, usage *ResourceUsage) error {
	if budget == nil || usage == nil {
		return nil
	}
	snap := usage.Snapshot()

	// Check runs before each step, so reaching MaxSteps already blocks
	// the next one.
	if budget.MaxSteps != nil && snap.StepsExecuted >= *budget.MaxSteps {
		return budgetErr("max_steps", snap, budget)
	}
	if budget.MaxTokens != nil && snap.TokensUsed > *budget.MaxTokens {
		return budgetErr("max_tokens", snap, budget)
	}
	if budget.MaxAPICalls != nil && snap.APICalls > *budget.MaxAPICalls {
		return budgetErr("max_api_calls", snap, budget)
	}
	if budget.MaxCostDollars != nil && snap.CostDollars > *budget.MaxCostDollars {
		return budgetErr("max_cost_dollars", snap, budget)
	}
	if budget.MaxTimeSeconds != nil && snap.ElapsedSeconds > *budget.MaxTimeSeconds {
		return budgetErr("max_time_seconds", snap, budget)
	}
	return nil
}

func budgetErr(reason string, snap Snapshot, budget *Budget) error {
	return &nerverrors.BudgetExceededError{
		Reason: reason,
		Usage:  fmt.Sprintf("%+v", snap),
		Budget: fmt.Sprintf("%+v", budget),
	}
}

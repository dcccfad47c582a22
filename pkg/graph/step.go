package graph

import (
	"time"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/node"
	"github.com/nerved/nerved/pkg/parser"
)

// OnError selects what Step.execute does once retries are exhausted.
type OnError string

const (
	OnErrorFail     OnError = "fail"
	OnErrorRetry    OnError = "retry"
	OnErrorSkip     OnError = "skip"
	OnErrorFallback OnError = "fallback"
)

// ErrorPolicy governs retry, timeout, and fallback behavior for one step.
// The zero value is OnErrorFail with no retries and no per-attempt
// timeout, matching §4.5.1's default.
type ErrorPolicy struct {
	OnError       OnError
	RetryCount    int
	RetryDelayMS  int64
	RetryBackoff  float64
	TimeoutMS     int64
	FallbackValue any
	FallbackNode  node.Node
}

// InputFunc derives a step's input from the upstream results accumulated
// so far (step_id -> result).
type InputFunc func(results map[string]any) any

// Step is one unit of a Graph's dependency DAG. Input and InputFn are
// mutually exclusive; Graph.Validate rejects a step carrying both.
type Step struct {
	StepID      string
	Node        node.Node // direct reference; takes priority over NodeRef
	NodeRef     string
	Input       any
	InputFn     InputFunc
	DependsOn   []string
	ErrorPolicy *ErrorPolicy
	Parser      parser.Parser

	// SubBudget, when set, constrains this step's own resource usage
	// (and any sub-graph it runs) independently of the enclosing
	// graph's budget; both are checked and incremented together.
	SubBudget *execctx.Budget
}

// retryDelay returns the sleep duration before attempt N+1, applying the
// configured backoff multiplier.
func (p *ErrorPolicy) retryDelay(attempt int) time.Duration {
	if p == nil || p.RetryDelayMS <= 0 {
		return 0
	}
	backoff := p.RetryBackoff
	if backoff <= 0 {
		backoff = 1
	}
	ms := float64(p.RetryDelayMS)
	for i := 0; i < attempt; i++ {
		ms *= backoff
	}
	return time.Duration(ms) * time.Millisecond
}

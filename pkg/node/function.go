package node

import "github.com/nerved/nerved/pkg/execctx"

// Func is the callable a Function Node wraps: (ExecutionContext) -> result.
type Func func(ctx *execctx.ExecutionContext) (any, error)

// FunctionNode wraps a stateless callable. It has no lifecycle (always
// considered ready) and no history.
type FunctionNode struct {
	id string
	fn Func
}

// NewFunction constructs a Function Node. id must satisfy the identifier
// grammar; callers validate via idgrammar.ValidateID before construction
// the same way Session.CreateFunction does.
func NewFunction(id string, fn Func) *FunctionNode {
	return &FunctionNode{id: id, fn: fn}
}

func (f *FunctionNode) ID() string { return f.id }

// Execute invokes the wrapped callable, checking cancellation first.
func (f *FunctionNode) Execute(ctx *execctx.ExecutionContext) (any, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}
	return f.fn(ctx)
}

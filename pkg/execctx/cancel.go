// Package execctx defines the capability bundle threaded through every
// node execution: input, upstream results, budget, resource usage,
// cancellation, and an optional execution trace (the ExecutionContext of
// the spec).
package execctx

import (
	"sync"

	nerverrors "github.com/nerved/nerved/pkg/errors"
)

// CancellationToken is a single-shot cancellation signal shared by
// reference across an execution subtree: a graph, its nested graphs, and
// any function nodes sharing the same token.
type CancellationToken struct {
	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
	reason   string
	cancelled bool
}

// NewCancellationToken returns an un-cancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel trips the token. Idempotent; the reason from the first call
// wins.
func (c *CancellationToken) Cancel(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.cancelled = true
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// Check returns a *CancelledError if the token has been tripped.
func (c *CancellationToken) Check() error {
	select {
	case <-c.done:
		c.mu.Lock()
		reason := c.reason
		c.mu.Unlock()
		return &nerverrors.CancelledError{Reason: reason}
	default:
		return nil
	}
}

// Done returns a channel closed when the token is cancelled, for use in
// select statements alongside other blocking waits.
func (c *CancellationToken) Done() <-chan struct{} {
	return c.done
}

// IsCancelled reports whether the token has been tripped.
func (c *CancellationToken) IsCancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

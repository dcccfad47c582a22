package ptybackend

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	nerverrors "github.com/nerved/nerved/pkg/errors"
)

// panePollInterval is the query cadence for the pane-attached variant: no
// background reader runs, so every ReadBuffer-driven poll re-queries the
// external terminal emulator.
const panePollInterval = 2 * time.Second

// Pane attaches to a pane already running inside an external terminal
// multiplexer (identified by paneID) instead of forking a child itself.
// It has no background reader; each read shells out to the multiplexer's
// capture command.
type Pane struct {
	mu     sync.Mutex
	paneID string
	closed bool
}

// NewPane attaches to an existing multiplexer pane.
func NewPane(paneID string) *Pane {
	return &Pane{paneID: paneID}
}

// Start for the pane-attached variant does not spawn a process. It
// requires a non-empty pane id but does not check that the pane exists;
// a non-empty command is typed into the pane followed by a newline.
func (p *Pane) Start(ctx context.Context, command []string, cwd string, env []string) error {
	if p.paneID == "" {
		return &nerverrors.SpawnError{Command: "", Cause: nerverrors.New("pane id required")}
	}
	if len(command) > 0 {
		// Issue the startup command into the pane the same way a
		// caller's subsequent Write would.
		return p.Write([]byte(joinArgs(command) + "\n"))
	}
	return nil
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func (p *Pane) Write(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	paneID := p.paneID
	p.mu.Unlock()
	if closed {
		return &nerverrors.ClosedError{}
	}
	cmd := exec.Command("tmux", "send-keys", "-t", paneID, "-l", string(data))
	if err := cmd.Run(); err != nil {
		return &nerverrors.ClosedError{}
	}
	return nil
}

func (p *Pane) ReadBuffer() string {
	p.mu.Lock()
	paneID := p.paneID
	p.mu.Unlock()

	var out bytes.Buffer
	cmd := exec.Command("tmux", "capture-pane", "-t", paneID, "-p", "-S", "-")
	cmd.Stdout = &out
	_ = cmd.Run()
	return out.String()
}

func (p *Pane) ReadTail(n int) string {
	return tailLines(p.ReadBuffer(), n)
}

// ClearBuffer is a no-op: the pane-attached variant has no private
// buffer, only the multiplexer's own scrollback.
func (p *Pane) ClearBuffer() {}

func (p *Pane) Stream(ctx context.Context) <-chan []byte {
	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(panePollInterval)
		defer ticker.Stop()
		last := p.ReadBuffer()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if p.isClosed() {
					return
				}
				cur := p.ReadBuffer()
				if len(cur) > len(last) {
					select {
					case ch <- []byte(cur[len(last):]):
					default:
					}
				}
				last = cur
			}
		}
	}()
	return ch
}

func (p *Pane) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Alive reports whether the target pane still exists.
func (p *Pane) Alive() bool {
	p.mu.Lock()
	paneID := p.paneID
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return false
	}
	return exec.Command("tmux", "has-session", "-t", paneID).Run() == nil
}

// Stop marks the backend closed. The underlying pane and its process are
// left running since this backend never owned them.
func (p *Pane) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

package ptybackend

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	nerverrors "github.com/nerved/nerved/pkg/errors"
)

// Direct spawns the child directly under a freshly allocated PTY pair via
// github.com/creack/pty and continuously drains its output into an
// in-memory, append-only buffer.
type Direct struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	pty    *os.File
	cmd    *exec.Cmd
	closed bool
	done   chan struct{}

	subsMu sync.Mutex
	subs   []chan []byte
}

// NewDirect constructs an unstarted direct-PTY backend.
func NewDirect() *Direct {
	return &Direct{done: make(chan struct{})}
}

func (d *Direct) Start(ctx context.Context, command []string, cwd string, env []string) error {
	if len(command) == 0 {
		return &nerverrors.SpawnError{Command: "", Cause: nerverrors.New("empty command")}
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = cwd
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	f, err := pty.Start(cmd)
	if err != nil {
		return &nerverrors.SpawnError{Command: command[0], Cause: err}
	}

	d.mu.Lock()
	d.pty = f
	d.cmd = cmd
	d.mu.Unlock()

	go d.readLoop()
	return nil
}

func (d *Direct) readLoop() {
	defer close(d.done)
	chunk := make([]byte, 4096)
	for {
		n, err := d.pty.Read(chunk)
		if n > 0 {
			data := append([]byte(nil), chunk[:n]...)
			d.mu.Lock()
			d.buf.Write(data)
			d.mu.Unlock()
			d.broadcast(data)
		}
		if err != nil {
			return
		}
	}
}

func (d *Direct) broadcast(data []byte) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- data:
		default:
			// Slow subscriber drops a chunk rather than blocking the reader.
		}
	}
}

func (d *Direct) Write(data []byte) error {
	d.mu.Lock()
	closed := d.closed
	f := d.pty
	d.mu.Unlock()
	if closed || f == nil {
		return &nerverrors.ClosedError{}
	}
	_, err := f.Write(data)
	if err != nil {
		return &nerverrors.ClosedError{}
	}
	return nil
}

func (d *Direct) ReadBuffer() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

func (d *Direct) ReadTail(n int) string {
	return tailLines(d.ReadBuffer(), n)
}

func (d *Direct) ClearBuffer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
}

func (d *Direct) Stream(ctx context.Context) <-chan []byte {
	ch := make(chan []byte, 64)
	d.subsMu.Lock()
	d.subs = append(d.subs, ch)
	d.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-d.done:
		}
		d.subsMu.Lock()
		for i, s := range d.subs {
			if s == ch {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				break
			}
		}
		d.subsMu.Unlock()
		close(ch)
	}()
	return ch
}

func (d *Direct) Alive() bool {
	select {
	case <-d.done:
		return false
	default:
		d.mu.Lock()
		started := d.cmd != nil
		d.mu.Unlock()
		return started
	}
}

func (d *Direct) Stop() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cmd := d.cmd
	f := d.pty
	d.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if f != nil {
		_ = f.Close()
	}
	<-d.done
	if cmd != nil {
		_ = cmd.Wait()
	}
	return nil
}

// tailLines returns the last n logical lines of s.
func tailLines(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	lines := splitLines(s)
	if n >= len(lines) {
		return s
	}
	return joinLines(lines[len(lines)-n:])
}

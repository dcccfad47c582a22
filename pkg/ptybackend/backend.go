// Package ptybackend spawns child processes attached to a pseudo-terminal
// (or an already-running terminal-emulator pane) and exposes a growing
// output buffer plus a raw-byte write channel (C1).
package ptybackend

import "context"

// Backend is the capability set shared by the direct-PTY and
// pane-attached variants. Node chooses a variant by construction
// parameter; both expose this same surface.
type Backend interface {
	// Start spawns command (argv form) in cwd with env appended to the
	// current process environment, and begins draining output.
	Start(ctx context.Context, command []string, cwd string, env []string) error

	// Write enqueues bytes to the child's input. Returns Closed if the
	// child has already exited.
	Write(data []byte) error

	// ReadBuffer returns the full accumulated output as text.
	ReadBuffer() string

	// ReadTail returns the last n logical (newline-delimited) lines of
	// the buffer.
	ReadTail(n int) string

	// ClearBuffer truncates the in-memory buffer. Does not affect the
	// child process.
	ClearBuffer()

	// Stream returns a channel of newly arrived chunks. The channel is
	// closed when the child exits or ctx is cancelled. Each call opens
	// an independent subscription starting from the current tail;
	// backends are not required to replay history to late subscribers.
	Stream(ctx context.Context) <-chan []byte

	// Stop signals the child to terminate, joins the reader, and
	// releases the PTY (or stops polling, for the pane-attached variant).
	// Idempotent.
	Stop() error

	// Alive reports whether the child process is still running.
	Alive() bool
}

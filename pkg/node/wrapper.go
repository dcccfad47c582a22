package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/history"
	"github.com/nerved/nerved/pkg/parser"
	"github.com/nerved/nerved/pkg/ptybackend"
)

// WrapperConfig configures a target-CLI specialization: a terminal node
// that spawns an inner shell, issues a fixed startup command into it, and
// waits for the target CLI's own idle prompt before declaring itself
// ready.
type WrapperConfig struct {
	ID              string
	ShellCommand    []string // e.g. {"/bin/bash", "-i"}
	TargetCommand   string   // issued into the inner shell at construction
	Cwd             string
	Env             []string
	Accumulating    bool
	DefaultParser   parser.Parser
	ReadyTimeout    time.Duration
	ResponseTimeout time.Duration
	History         *history.Writer // owned by the wrapper; inner history is always disabled
	Logger          *slog.Logger
}

// Wrapper composes an inner TerminalNode with history disabled and
// delegates every public operation to it, logging on its own history
// instead (the ownership rule of §4.3: exactly one history file per
// wrapped node).
type Wrapper struct {
	id      string
	inner   *TerminalNode
	history *history.Writer
	logger  *slog.Logger
}

// NewWrapper constructs and starts the inner node, then issues
// TargetCommand through it and waits up to ReadyTimeout for the default
// parser to report ready.
func NewWrapper(ctx context.Context, cfg WrapperConfig, backend ptybackend.Backend) (*Wrapper, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	inner := NewTerminal(TerminalConfig{
		ID:              cfg.ID + "-inner",
		Command:         cfg.ShellCommand,
		Cwd:             cfg.Cwd,
		Env:             cfg.Env,
		Persistent:      true,
		Accumulating:    cfg.Accumulating,
		DefaultParser:   cfg.DefaultParser,
		ReadyTimeout:    cfg.ReadyTimeout,
		ResponseTimeout: cfg.ResponseTimeout,
		History:         nil, // inner history stays disabled; wrapper owns history
		Logger:          logger,
	}, backend)

	if err := inner.Start(ctx); err != nil {
		return nil, err
	}
	if cfg.TargetCommand != "" {
		if err := inner.Run(cfg.TargetCommand); err != nil {
			_ = inner.Close()
			return nil, err
		}
		if err := inner.waitReady(execctx.New(nil, nil), inner.defaultParser, inner.readyTimeout); err != nil {
			_ = inner.Close()
			return nil, err
		}
	}

	return &Wrapper{id: cfg.ID, inner: inner, history: cfg.History, logger: logger}, nil
}

func (w *Wrapper) ID() string   { return w.id }
func (w *Wrapper) State() State { return w.inner.State() }

func (w *Wrapper) Execute(ctx *execctx.ExecutionContext) (any, error) {
	// The wrapper delegates execution to the inner node but records the
	// history entry itself, swapping history writers for the duration.
	inner := w.inner
	prior := inner.history
	inner.history = w.history
	defer func() { inner.history = prior }()
	return inner.Execute(ctx)
}

func (w *Wrapper) ExecuteStream(ctx *execctx.ExecutionContext) (<-chan StreamEvent, error) {
	inner := w.inner
	prior := inner.history
	inner.history = w.history
	defer func() { inner.history = prior }()
	return inner.ExecuteStream(ctx)
}

func (w *Wrapper) Write(data []byte) error {
	inner := w.inner
	prior := inner.history
	inner.history = w.history
	defer func() { inner.history = prior }()
	return inner.Write(data)
}

func (w *Wrapper) Run(command string) error {
	inner := w.inner
	prior := inner.history
	inner.history = w.history
	defer func() { inner.history = prior }()
	return inner.Run(command)
}

func (w *Wrapper) Interrupt() error {
	inner := w.inner
	prior := inner.history
	inner.history = w.history
	defer func() { inner.history = prior }()
	return inner.Interrupt()
}

func (w *Wrapper) ReadTail(n int) string { return w.inner.ReadTail(n) }

func (w *Wrapper) Close() error {
	if w.history != nil {
		w.history.LogClose(time.Now(), "closed")
		_ = w.history.Close()
	}
	return w.inner.Close()
}

func (w *Wrapper) Stop() error { return w.Close() }

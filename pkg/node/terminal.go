package node

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nerved/nerved/pkg/execctx"
	nerverrors "github.com/nerved/nerved/pkg/errors"
	"github.com/nerved/nerved/pkg/history"
	"github.com/nerved/nerved/pkg/parser"
	"github.com/nerved/nerved/pkg/ptybackend"
)

const (
	// DefaultReadyTimeout bounds how long Start waits for the backend to
	// reach an idle prompt before giving up.
	DefaultReadyTimeout = 60 * time.Second
	// DefaultResponseTimeout bounds how long Execute waits for a
	// response when the caller supplies no override.
	DefaultResponseTimeout = 1800 * time.Second

	directPollInterval = 300 * time.Millisecond
	panePollInterval    = 2 * time.Second
)

// TerminalConfig configures a new TerminalNode.
type TerminalConfig struct {
	ID              string
	Command         []string
	Cwd             string
	Env             []string
	Persistent      bool
	Accumulating    bool // true for the direct-PTY backend, false for pane-attached
	DefaultParser   parser.Parser
	ReadyTimeout    time.Duration
	ResponseTimeout time.Duration
	History         *history.Writer // nil disables history
	Logger          *slog.Logger
}

// TerminalNode owns a PTY (or pane-attached) backend and a parser
// selection, and implements the send/receive contract of §4.4.
type TerminalNode struct {
	id           string
	persistent   bool
	accumulating bool
	command      []string
	cwd          string
	env          []string

	backend       ptybackend.Backend
	defaultParser parser.Parser
	history       *history.Writer
	logger        *slog.Logger

	readyTimeout    time.Duration
	responseTimeout time.Duration
	pollInterval    time.Duration

	machine *machine

	// opMu enforces "exactly one logical operation in flight" (§3).
	opMu sync.Mutex
}

// NewTerminal constructs an unstarted terminal node around backend.
func NewTerminal(cfg TerminalConfig, backend ptybackend.Backend) *TerminalNode {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readyTimeout := cfg.ReadyTimeout
	if readyTimeout == 0 {
		readyTimeout = DefaultReadyTimeout
	}
	responseTimeout := cfg.ResponseTimeout
	if responseTimeout == 0 {
		responseTimeout = DefaultResponseTimeout
	}
	poll := panePollInterval
	if cfg.Accumulating {
		poll = directPollInterval
	}
	defaultParser := cfg.DefaultParser
	if defaultParser == nil {
		defaultParser = parser.Null()
	}
	return &TerminalNode{
		id:              cfg.ID,
		persistent:      cfg.Persistent,
		accumulating:    cfg.Accumulating,
		command:         cfg.Command,
		cwd:             cfg.Cwd,
		env:             cfg.Env,
		backend:         backend,
		defaultParser:   defaultParser,
		history:         cfg.History,
		logger:          logger,
		readyTimeout:    readyTimeout,
		responseTimeout: responseTimeout,
		pollInterval:    poll,
		machine:         newMachine(),
	}
}

func (n *TerminalNode) ID() string    { return n.id }
func (n *TerminalNode) State() State  { return n.machine.Get() }

// Start spawns the subprocess and waits for it to reach an idle prompt
// (per the default parser) within ReadyTimeout.
func (n *TerminalNode) Start(ctx context.Context) error {
	if err := n.machine.Transition(StateStarting); err != nil {
		return err
	}
	if err := n.backend.Start(ctx, n.command, n.cwd, n.env); err != nil {
		_ = n.machine.Transition(StateStopped)
		return err
	}

	deadline := time.Now().Add(n.readyTimeout)
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		if n.defaultParser.IsReady(n.backend.ReadBuffer()) {
			break
		}
		if time.Now().After(deadline) {
			_ = n.backend.Stop()
			_ = n.machine.Transition(StateStopped)
			return &nerverrors.TimeoutError{Operation: "node start", Duration: n.readyTimeout}
		}
		select {
		case <-ctx.Done():
			_ = n.backend.Stop()
			_ = n.machine.Transition(StateStopped)
			return &nerverrors.CancelledError{Reason: "start cancelled"}
		case <-ticker.C:
		}
	}
	return n.machine.Transition(StateReady)
}

// resolveParser applies §4.2's priority order: operation override beats
// node default beats null. Step-level override is threaded in by the
// Graph scheduler via ctx.Parser before Execute is called.
func (n *TerminalNode) resolveParser(ctx *execctx.ExecutionContext) parser.Parser {
	return parser.Resolve(nil, ctx.Parser, n.defaultParser)
}

func (n *TerminalNode) inputString(ctx *execctx.ExecutionContext) string {
	if s, ok := ctx.Input.(string); ok {
		return s
	}
	return ""
}

// Execute is the send/receive contract: write input, wait for readiness,
// return the ParsedResponse (boxed as `any` to satisfy node.Node).
func (n *TerminalNode) Execute(ctx *execctx.ExecutionContext) (any, error) {
	if err := n.machine.requireNotStopped(n.id); err != nil {
		return nil, err
	}
	n.opMu.Lock()
	defer n.opMu.Unlock()

	p := n.resolveParser(ctx)
	input := n.inputString(ctx)

	tsStart := time.Now()
	precedingSeq := n.logRead(tsStart)

	if err := n.machine.Transition(StateBusy); err != nil {
		return nil, err
	}
	defer n.machine.Transition(StateReady)

	preLen := len(n.backend.ReadBuffer())

	if err := n.writeWithTerminator(p, input); err != nil {
		return nil, err
	}

	timeout := n.responseTimeout
	if ctx.Timeout != nil {
		timeout = *ctx.Timeout
	}
	if err := n.waitReady(ctx, p, timeout); err != nil {
		return nil, err
	}

	resp := n.parseNew(p, preLen)
	tsEnd := time.Now()

	if n.history != nil {
		n.history.LogSend(tsStart, tsEnd, input, precedingSeq, resp)
	}
	ctx.Usage.AddTokens(int64(resp.Tokens))

	return resp, nil
}

// ExecuteStream streams chunks until the parser reports readiness.
func (n *TerminalNode) ExecuteStream(ctx *execctx.ExecutionContext) (<-chan StreamEvent, error) {
	if err := n.machine.requireNotStopped(n.id); err != nil {
		return nil, err
	}
	n.opMu.Lock()

	p := n.resolveParser(ctx)
	input := n.inputString(ctx)
	tsStart := time.Now()
	precedingSeq := n.logRead(tsStart)

	if err := n.machine.Transition(StateBusy); err != nil {
		n.opMu.Unlock()
		return nil, err
	}

	if err := n.writeWithTerminator(p, input); err != nil {
		n.machine.Transition(StateReady)
		n.opMu.Unlock()
		return nil, err
	}

	out := make(chan StreamEvent, 64)
	go func() {
		defer n.opMu.Unlock()
		defer close(out)
		defer n.machine.Transition(StateReady)

		streamCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		chunks := n.backend.Stream(streamCtx)

		for {
			select {
			case <-ctx.Token.Done():
				out <- StreamEvent{Err: &nerverrors.CancelledError{Reason: "stream cancelled"}}
				return
			case chunk, ok := <-chunks:
				if !ok {
					return
				}
				out <- StreamEvent{Chunk: chunk}
				if p.IsReady(n.backend.ReadBuffer()) {
					tsEnd := time.Now()
					if n.history != nil {
						n.history.LogSendStream(tsStart, tsEnd, input, precedingSeq, n.backend.ReadTail(50), p.Kind())
					}
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *TerminalNode) writeWithTerminator(p parser.Parser, input string) error {
	data := append([]byte(input), p.SubmitSequence()...)
	return n.backend.Write(data)
}

func (n *TerminalNode) waitReady(ctx *execctx.ExecutionContext, p parser.Parser, timeout time.Duration) error {
	if p.IsReady(n.backend.ReadBuffer()) {
		return nil
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		if timeout == 0 || time.Now().After(deadline) {
			return &nerverrors.TimeoutError{Operation: "response", Duration: timeout}
		}
		select {
		case <-ctx.Token.Done():
			return ctx.CheckCancelled()
		case <-ticker.C:
			if p.IsReady(n.backend.ReadBuffer()) {
				return nil
			}
		}
	}
}

// parseNew parses only the portion of the buffer written since preLen on
// an accumulating backend; on the pane-attached backend it parses the
// whole buffer, since pane capture has no stable offset.
func (n *TerminalNode) parseNew(p parser.Parser, preLen int) parser.ParsedResponse {
	buf := n.backend.ReadBuffer()
	if n.accumulating && preLen <= len(buf) {
		return p.Parse(buf[preLen:])
	}
	return p.Parse(buf)
}

func (n *TerminalNode) logRead(ts time.Time) int64 {
	if n.history == nil {
		return 0
	}
	return n.history.LogRead(ts, n.backend.ReadTail(50), nil)
}

// Write sends raw bytes, logging a write followed by a settle-delay read.
func (n *TerminalNode) Write(data []byte) error {
	if err := n.machine.requireNotStopped(n.id); err != nil {
		return err
	}
	n.opMu.Lock()
	defer n.opMu.Unlock()

	ts := time.Now()
	if err := n.backend.Write(data); err != nil {
		return err
	}
	if n.history != nil {
		n.history.LogWrite(ts, string(data))
		time.Sleep(100 * time.Millisecond)
		n.history.LogRead(time.Now(), n.backend.ReadTail(50), nil)
	}
	return nil
}

// Run sends command+"\n", logging a run followed by a settle-delay read.
func (n *TerminalNode) Run(command string) error {
	if err := n.machine.requireNotStopped(n.id); err != nil {
		return err
	}
	n.opMu.Lock()
	defer n.opMu.Unlock()

	ts := time.Now()
	if err := n.backend.Write([]byte(command + "\n")); err != nil {
		return err
	}
	if n.history != nil {
		n.history.LogRun(ts, command)
		time.Sleep(500 * time.Millisecond)
		n.history.LogRead(time.Now(), n.backend.ReadTail(50), nil)
	}
	return nil
}

// Interrupt sends Ctrl-C, logging an interrupt followed by a read.
func (n *TerminalNode) Interrupt() error {
	if err := n.machine.requireNotStopped(n.id); err != nil {
		return err
	}
	n.opMu.Lock()
	defer n.opMu.Unlock()

	ts := time.Now()
	if err := n.backend.Write([]byte{0x03}); err != nil {
		return err
	}
	if n.history != nil {
		n.history.LogInterrupt(ts)
		n.history.LogRead(time.Now(), n.backend.ReadTail(50), nil)
	}
	return nil
}

// ReadTail is a non-mutating query.
func (n *TerminalNode) ReadTail(count int) string {
	return n.backend.ReadTail(count)
}

// Close logs a final read and close, closes history, stops the backend,
// then transitions to STOPPED. Idempotent after it first completes.
func (n *TerminalNode) Close() error {
	if n.machine.Get() == StateStopped {
		return nil
	}
	_ = n.machine.Transition(StateStopping)

	if n.history != nil {
		n.history.LogRead(time.Now(), n.backend.ReadTail(50), nil)
		n.history.LogClose(time.Now(), "closed")
		_ = n.history.Close()
	}
	err := n.backend.Stop()
	_ = n.machine.Transition(StateStopped)
	return err
}

// Stop is an alias for Close, matching the Node lifecycle vocabulary
// used by Session and the command engine.
func (n *TerminalNode) Stop() error { return n.Close() }

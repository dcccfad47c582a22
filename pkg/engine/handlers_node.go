package engine

import (
	"context"
	"fmt"
	"time"

	nerverrors "github.com/nerved/nerved/pkg/errors"
	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/history"
	"github.com/nerved/nerved/pkg/node"
	"github.com/nerved/nerved/pkg/parser"
	"github.com/nerved/nerved/pkg/session"
)

// readTailer is the raw-buffer query surface terminal nodes and
// wrappers expose; it isn't part of node.Node because graphs and
// function nodes don't have a buffer to read.
type readTailer interface {
	ReadTail(n int) string
}

func paramsCommand(params map[string]any) []string {
	raw, ok := params["command"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func handleCreateNode(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	command := paramsCommand(cmd.Params)
	backend, _ := optionalString(cmd.Params, "backend")
	paneID, _ := optionalString(cmd.Params, "pane_id")
	cwd, _ := optionalString(cmd.Params, "cwd")
	targetCommand, _ := optionalString(cmd.Params, "target_command")
	_, wrapped := cmd.Params["target_command"]

	n, err := s.CreateNode(ctx, session.NodeConfig{
		ID:            id,
		Command:       command,
		Backend:       backend,
		PaneID:        paneID,
		Cwd:           cwd,
		HistoryEnabled: optionalBool(cmd.Params, "history_enabled"),
		DefaultParser: parser.Null(),
		Wrapped:       wrapped,
		TargetCommand: targetCommand,
	})
	if err != nil {
		return fail(err)
	}

	e.emit(EventNodeCreated, cmd.SessionID, map[string]any{"node_id": id})
	e.monitorNode(cmd.SessionID, n)
	return ok(map[string]any{"node_id": n.ID()})
}

// monitorNode starts a background goroutine that polls a persistent
// node's state and emits NODE_READY/NODE_BUSY/NODE_STOPPED transitions,
// exiting once the node reaches STOPPED.
func (e *Engine) monitorNode(sessionID string, n node.Node) {
	p, ok := n.(node.Persistent)
	if !ok {
		return
	}
	go func() {
		last := p.State()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			cur := p.State()
			if cur == last {
				if cur == node.StateStopped {
					return
				}
				continue
			}
			last = cur
			switch cur {
			case node.StateReady:
				e.emit(EventNodeReady, sessionID, map[string]any{"node_id": n.ID()})
			case node.StateBusy:
				e.emit(EventNodeBusy, sessionID, map[string]any{"node_id": n.ID()})
			case node.StateStopped:
				e.emit(EventNodeStopped, sessionID, map[string]any{"node_id": n.ID()})
				return
			}
		}
	}()
}

func handleStopNode(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	existed := s.DeleteNode(id)
	return ok(map[string]any{"existed": existed})
}

func handleListNodes(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{"node_ids": s.ListNodes()})
}

func handleGetNode(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	raw, found := s.GetNode(id)
	if !found {
		return fail(fmt.Errorf("unknown node %q", id))
	}
	resp := map[string]any{"id": id}
	if p, ok := raw.(node.Persistent); ok {
		resp["state"] = string(p.State())
	}
	return ok(resp)
}

func nodeParams(params map[string]any) (timeout *time.Duration, stream bool) {
	if v, ok := params["timeout_ms"].(float64); ok && v > 0 {
		d := time.Duration(v) * time.Millisecond
		timeout = &d
	}
	if v, ok := params["stream"].(bool); ok {
		stream = v
	}
	return timeout, stream
}

func handleExecuteInput(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	raw, found := s.GetNode(id)
	if !found {
		return fail(fmt.Errorf("unknown node %q", id))
	}
	n, ok := raw.(node.Node)
	if !ok {
		return fail(fmt.Errorf("node %q is not executable", id))
	}
	input := cmd.Params["input"]
	timeout, stream := nodeParams(cmd.Params)

	ectx := execctx.New(s, input)
	if timeout != nil {
		ectx = ectx.WithTimeout(*timeout)
	}

	e.emit(EventNodeBusy, cmd.SessionID, map[string]any{"node_id": id})

	if !stream {
		result, err := safeExecute(n, ectx)
		if err != nil {
			return fail(err)
		}
		e.emit(EventOutputParsed, cmd.SessionID, map[string]any{"node_id": id, "result": result})
		return ok(map[string]any{"result": result})
	}

	streamer, ok := n.(node.Streamer)
	if !ok {
		return fail(fmt.Errorf("node %q does not support streaming execution", id))
	}
	chunks, err := safeExecuteStream(streamer, ectx)
	if err != nil {
		return fail(err)
	}
	var acc []byte
	for ev := range chunks {
		if ev.Err != nil {
			return fail(ev.Err)
		}
		acc = append(acc, ev.Chunk...)
		e.emit(EventOutputChunk, cmd.SessionID, map[string]any{"node_id": id, "chunk": string(ev.Chunk)})
	}
	return ok(map[string]any{"result": string(acc)})
}

type rawOpNode interface {
	Write(data []byte) error
	Run(command string) error
	Interrupt() error
}

func handleRunCommand(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	command, err := requireString(cmd.Params, "command")
	if err != nil {
		return fail(err)
	}
	raw, found := s.GetNode(id)
	if !found {
		return fail(fmt.Errorf("unknown node %q", id))
	}
	n, ok := raw.(rawOpNode)
	if !ok {
		return fail(fmt.Errorf("node %q does not support raw operations", id))
	}
	if err := n.Run(command); err != nil {
		return fail(err)
	}
	return ok(map[string]any{"ok": true})
}

func handleWriteData(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	data, err := requireString(cmd.Params, "data")
	if err != nil {
		return fail(err)
	}
	raw, found := s.GetNode(id)
	if !found {
		return fail(fmt.Errorf("unknown node %q", id))
	}
	n, ok := raw.(rawOpNode)
	if !ok {
		return fail(fmt.Errorf("node %q does not support raw operations", id))
	}
	if err := n.Write([]byte(data)); err != nil {
		return fail(err)
	}
	return ok(map[string]any{"ok": true})
}

func handleSendInterrupt(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	raw, found := s.GetNode(id)
	if !found {
		return fail(fmt.Errorf("unknown node %q", id))
	}
	n, ok := raw.(rawOpNode)
	if !ok {
		return fail(fmt.Errorf("node %q does not support raw operations", id))
	}
	if err := n.Interrupt(); err != nil {
		return fail(err)
	}
	return ok(map[string]any{"ok": true})
}

func handleGetBuffer(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	raw, found := s.GetNode(id)
	if !found {
		return fail(fmt.Errorf("unknown node %q", id))
	}
	n, ok := raw.(readTailer)
	if !ok {
		return fail(fmt.Errorf("node %q has no readable buffer", id))
	}
	lines := 0
	if v, ok := cmd.Params["lines"].(float64); ok {
		lines = int(v)
	}
	return ok(map[string]any{"buffer": n.ReadTail(lines)})
}

// safeExecute runs n.Execute with a panic boundary: a panicking node
// (most commonly a Function Node's user-supplied Go func) is converted
// into an *nerverrors.InternalError instead of crashing the engine.
func safeExecute(n node.Node, ctx *execctx.ExecutionContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &nerverrors.InternalError{Message: fmt.Sprintf("node %q panicked: %v", n.ID(), r)}
		}
	}()
	return n.Execute(ctx)
}

// safeExecuteStream is safeExecute's streaming counterpart, guarding the
// call that sets up the node's ExecuteStream.
func safeExecuteStream(n node.Streamer, ctx *execctx.ExecutionContext) (chunks <-chan node.StreamEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = &nerverrors.InternalError{Message: fmt.Sprintf("node panicked: %v", r)}
		}
	}()
	return n.ExecuteStream(ctx)
}

func handleGetHistory(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	s, err := e.resolveSession(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	path := history.Path(s.HistoryBaseDir, s.ServerName, id)
	reader := history.NewReader(path, e.logger)
	entries, err := reader.GetAll()
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{"entries": entries})
}

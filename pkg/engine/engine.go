package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nerved/nerved/pkg/session"
)

// Config configures a new Engine.
type Config struct {
	DefaultSessionID string
	ServerName       string
	HistoryEnabled   bool
	HistoryBaseDir   string
	Sink             EventSink
	Logger           *slog.Logger
}

// Engine dispatches Commands to Session and WorkflowRun operations and
// publishes Events to a single injected sink. One Engine owns one or
// more Sessions, always including a default session that cannot be
// deleted.
type Engine struct {
	defaultSessionID string
	serverName       string
	historyEnabled   bool
	historyBaseDir   string
	sink             EventSink
	logger           *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session

	runningGraphs map[string]context.CancelFunc
}

// New constructs an Engine with its default session already created.
func New(cfg Config) (*Engine, error) {
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultSessionID == "" {
		cfg.DefaultSessionID = "default"
	}

	e := &Engine{
		defaultSessionID: cfg.DefaultSessionID,
		serverName:       cfg.ServerName,
		historyEnabled:   cfg.HistoryEnabled,
		historyBaseDir:   cfg.HistoryBaseDir,
		sink:             cfg.Sink,
		logger:           cfg.Logger,
		sessions:         make(map[string]*session.Session),
		runningGraphs:    make(map[string]context.CancelFunc),
	}

	s, err := session.New(cfg.DefaultSessionID, cfg.ServerName, cfg.HistoryEnabled, cfg.HistoryBaseDir, cfg.Logger)
	if err != nil {
		return nil, err
	}
	e.sessions[cfg.DefaultSessionID] = s
	return e, nil
}

// resolveSession picks the target session: cmd.SessionID if set, else
// the default session; a set-but-unknown id is an error.
func (e *Engine) resolveSession(sessionID string) (*session.Session, error) {
	if sessionID == "" {
		sessionID = e.defaultSessionID
	}
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, unknownSession(sessionID)
	}
	return s, nil
}

// Dispatch routes cmd to its handler. Parameter extraction is
// permissive about missing optional fields but returns a failed
// Response (not an error) on a missing required field, matching the
// engine's "errors are data" response contract.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (Response, error) {
	handler, ok := dispatchTable[cmd.Kind]
	if !ok {
		err := unknownCommand(cmd.Kind)
		e.emit(EventError, cmd.SessionID, map[string]any{"command": string(cmd.Kind), "error": err.Error()})
		return fail(err)
	}
	resp, err := handler(ctx, e, cmd)
	if err != nil {
		e.emit(EventError, cmd.SessionID, map[string]any{"command": string(cmd.Kind), "error": err.Error()})
		return fail(err)
	}
	if !resp.Success {
		e.emit(EventError, cmd.SessionID, map[string]any{"command": string(cmd.Kind), "error": resp.Error})
	}
	return resp, nil
}

type handlerFunc func(ctx context.Context, e *Engine, cmd Command) (Response, error)

var dispatchTable map[CommandKind]handlerFunc

func init() {
	dispatchTable = map[CommandKind]handlerFunc{
		CmdPing:     handlePing,
		CmdShutdown: handleShutdown,

		CmdCreateSession: handleCreateSession,
		CmdDeleteSession: handleDeleteSession,
		CmdListSessions:  handleListSessions,
		CmdGetSession:    handleGetSession,

		CmdCreateNode: handleCreateNode,
		CmdStopNode:   handleStopNode,
		CmdListNodes:  handleListNodes,
		CmdGetNode:    handleGetNode,

		CmdExecuteInput:  handleExecuteInput,
		CmdRunCommand:    handleRunCommand,
		CmdWriteData:     handleWriteData,
		CmdSendInterrupt: handleSendInterrupt,
		CmdGetBuffer:     handleGetBuffer,
		CmdGetHistory:    handleGetHistory,

		CmdCreateGraph: handleCreateGraph,
		CmdDeleteGraph: handleDeleteGraph,
		CmdListGraphs:  handleListGraphs,
		CmdRunGraph:    handleRunGraph,

		CmdExecuteWorkflow:  handleExecuteWorkflow,
		CmdListWorkflows:    handleListWorkflows,
		CmdGetWorkflowRun:   handleGetWorkflowRun,
		CmdListWorkflowRuns: handleListWorkflowRuns,
		CmdAnswerGate:       handleAnswerGate,
		CmdCancelWorkflow:   handleCancelWorkflow,
	}
}

func handlePing(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	return ok(map[string]any{"ok": true})
}

// handleShutdown requests an orderly stop of every session.
func handleShutdown(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	e.mu.Lock()
	sessions := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
	e.emit(EventServerShutdown, cmd.SessionID, nil)
	return ok(map[string]any{"ok": true})
}

func handleCreateSession(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	historyEnabled := e.historyEnabled
	if v := optionalBool(cmd.Params, "history_enabled"); v != nil {
		historyEnabled = *v
	}

	e.mu.Lock()
	if _, exists := e.sessions[id]; exists {
		e.mu.Unlock()
		return fail(fmt.Errorf("session %q already exists", id))
	}
	e.mu.Unlock()

	s, err := session.New(id, e.serverName, historyEnabled, e.historyBaseDir, e.logger)
	if err != nil {
		return fail(err)
	}
	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()
	e.emit(EventSessionCreated, id, map[string]any{"session_id": id})
	return ok(map[string]any{"session_id": id})
}

// handleDeleteSession removes the session from the registry, then stops
// all its nodes and cancels its workflow runs. The default session
// cannot be deleted.
func handleDeleteSession(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	id, err := requireString(cmd.Params, "id")
	if err != nil {
		return fail(err)
	}
	if id == e.defaultSessionID {
		return fail(fmt.Errorf("the default session cannot be deleted"))
	}
	e.mu.Lock()
	s, exists := e.sessions[id]
	if exists {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !exists {
		return ok(map[string]any{"deleted": false})
	}
	s.Stop()
	e.emit(EventSessionDeleted, id, map[string]any{"session_id": id})
	return ok(map[string]any{"deleted": true})
}

func handleListSessions(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ok(map[string]any{"session_ids": ids})
}

func handleGetSession(ctx context.Context, e *Engine, cmd Command) (Response, error) {
	id, _ := optionalString(cmd.Params, "id")
	s, err := e.resolveSession(id)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]any{
		"id":              s.ID,
		"server_name":     s.ServerName,
		"history_enabled": s.HistoryEnabled,
		"created_at":      s.CreatedAt.Format(time.RFC3339),
		"node_count":      len(s.ListNodes()),
		"graph_count":     len(s.ListGraphs()),
	})
}

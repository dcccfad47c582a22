// Package session implements the Session registry (C7): the single
// source of truth for a namespace of nodes, graphs, workflows, and
// workflow runs. Grounded on the teacher's in-memory daemon backend's
// registry-map-plus-mutex shape.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nerverrors "github.com/nerved/nerved/pkg/errors"
	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/graph"
	"github.com/nerved/nerved/pkg/history"
	"github.com/nerved/nerved/pkg/idgrammar"
	"github.com/nerved/nerved/pkg/node"
	"github.com/nerved/nerved/pkg/parser"
	"github.com/nerved/nerved/pkg/ptybackend"
	"github.com/nerved/nerved/pkg/workflowrun"
)

// NodeConfig configures CreateNode's call into the Node factory.
type NodeConfig struct {
	ID              string
	Command         []string
	Backend         string // "direct" or "pane"
	PaneID          string // required when Backend == "pane"
	Cwd             string
	Env             []string
	HistoryEnabled  *bool // nil defers to the session default
	ReadyTimeout    time.Duration
	ResponseTimeout time.Duration
	DefaultParser   parser.Parser
	Wrapped         bool
	TargetCommand   string // required when Wrapped is true
}

// Session is the top-level container: a namespace of nodes, graphs,
// workflows, and workflow runs, plus the filesystem/history defaults new
// nodes inherit.
type Session struct {
	ID             string
	Name           string
	Description    string
	Tags           []string
	CreatedAt      time.Time
	ServerName     string
	HistoryEnabled bool
	HistoryBaseDir string

	logger *slog.Logger

	mu            sync.Mutex
	nodes         map[string]node.Node
	graphs        map[string]*graph.Graph
	workflows     map[string]*workflowrun.Workflow
	workflowRuns  map[string]*workflowrun.Run
}

// New constructs an empty session. serverName doubles as the history
// filesystem namespace and must satisfy the identifier grammar.
func New(id, serverName string, historyEnabled bool, historyBaseDir string, logger *slog.Logger) (*Session, error) {
	if err := idgrammar.ValidateID(id); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:             id,
		ServerName:     serverName,
		HistoryEnabled: historyEnabled,
		HistoryBaseDir: historyBaseDir,
		CreatedAt:      time.Now(),
		logger:         logger,
		nodes:          make(map[string]node.Node),
		graphs:         make(map[string]*graph.Graph),
		workflows:      make(map[string]*workflowrun.Workflow),
		workflowRuns:   make(map[string]*workflowrun.Run),
	}, nil
}

// GetNode implements execctx.SessionAccessor.
func (s *Session) GetNode(id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}

// newBackend picks the PTY backend variant named by cfg.Backend.
func newBackend(cfg NodeConfig) (ptybackend.Backend, error) {
	switch cfg.Backend {
	case "", "direct":
		return ptybackend.NewDirect(), nil
	case "pane":
		if cfg.PaneID == "" {
			return nil, fmt.Errorf("pane backend requires a pane_id")
		}
		return ptybackend.NewPane(cfg.PaneID), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// historyFor constructs a history writer for nodeID honoring the
// session's default and cfg's override, logging and continuing without
// history if construction fails. history.NewWriter fails hard on an
// invalid id or a directory-create/file-open error; this is where that
// failure is downgraded to a warning.
func (s *Session) historyFor(nodeID string, override *bool) *history.Writer {
	enabled := s.HistoryEnabled
	if override != nil {
		enabled = *override
	}
	if !enabled {
		return nil
	}
	w, err := history.NewWriter(s.HistoryBaseDir, s.ServerName, nodeID, s.logger)
	if err != nil {
		s.logger.Warn("history disabled for node: writer construction failed", "node_id", nodeID, "error", err)
		return nil
	}
	return w
}

// CreateNode validates id uniqueness, constructs the requested backend
// and (optionally) a history writer, starts the node, and registers it.
// The wrapped-CLI variant requires a non-empty TargetCommand.
func (s *Session) CreateNode(ctx context.Context, cfg NodeConfig) (node.Node, error) {
	if err := idgrammar.ValidateID(cfg.ID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.nodes[cfg.ID]; exists {
		s.mu.Unlock()
		return nil, &nerverrors.AlreadyExistsError{Resource: "node", ID: cfg.ID}
	}
	s.mu.Unlock()

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	hw := s.historyFor(cfg.ID, cfg.HistoryEnabled)

	var n node.Node
	if cfg.Wrapped {
		if cfg.TargetCommand == "" {
			return nil, fmt.Errorf("wrapped node %q requires a non-empty target command", cfg.ID)
		}
		w, err := node.NewWrapper(ctx, node.WrapperConfig{
			ID:              cfg.ID,
			ShellCommand:    cfg.Command,
			TargetCommand:   cfg.TargetCommand,
			Cwd:             cfg.Cwd,
			Env:             cfg.Env,
			Accumulating:    cfg.Backend != "pane",
			DefaultParser:   cfg.DefaultParser,
			ReadyTimeout:    cfg.ReadyTimeout,
			ResponseTimeout: cfg.ResponseTimeout,
			History:         hw,
			Logger:          s.logger,
		}, backend)
		if err != nil {
			return nil, err
		}
		n = w
	} else {
		t := node.NewTerminal(node.TerminalConfig{
			ID:              cfg.ID,
			Command:         cfg.Command,
			Cwd:             cfg.Cwd,
			Env:             cfg.Env,
			Persistent:      true,
			Accumulating:    cfg.Backend != "pane",
			DefaultParser:   cfg.DefaultParser,
			ReadyTimeout:    cfg.ReadyTimeout,
			ResponseTimeout: cfg.ResponseTimeout,
			History:         hw,
			Logger:          s.logger,
		}, backend)
		if err := t.Start(ctx); err != nil {
			return nil, err
		}
		n = t
	}

	s.mu.Lock()
	s.nodes[cfg.ID] = n
	s.mu.Unlock()
	return n, nil
}

// CreateFunction registers a stateless Function Node; no I/O involved.
func (s *Session) CreateFunction(id string, fn node.Func) (node.Node, error) {
	if err := idgrammar.ValidateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[id]; exists {
		return nil, &nerverrors.AlreadyExistsError{Resource: "node", ID: id}
	}
	n := node.NewFunction(id, fn)
	s.nodes[id] = n
	return n, nil
}

// CreateGraph registers a new, empty Graph under id.
func (s *Session) CreateGraph(id string) (*graph.Graph, error) {
	if err := idgrammar.ValidateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[id]; exists {
		return nil, &nerverrors.AlreadyExistsError{Resource: "graph", ID: id}
	}
	g := graph.New(id)
	s.graphs[id] = g
	return g, nil
}

func (s *Session) GetGraph(id string) (*graph.Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[id]
	return g, ok
}

func (s *Session) ListNodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, id)
	}
	return out
}

func (s *Session) ListGraphs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.graphs))
	for id := range s.graphs {
		out = append(out, id)
	}
	return out
}

// DeleteNode stops the node (idempotent) then removes it, reporting
// whether it existed.
func (s *Session) DeleteNode(id string) bool {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if ok {
		delete(s.nodes, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if p, ok := n.(node.Persistent); ok {
		_ = p.Stop()
	}
	return true
}

// DeleteGraph removes a graph, reporting whether it existed.
func (s *Session) DeleteGraph(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[id]; !ok {
		return false
	}
	delete(s.graphs, id)
	return true
}

// RegisterWorkflow binds a Workflow under id so EXECUTE_WORKFLOW can
// find it later.
func (s *Session) RegisterWorkflow(w *workflowrun.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
}

func (s *Session) GetWorkflow(id string) (*workflowrun.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	return w, ok
}

func (s *Session) ListWorkflows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		out = append(out, id)
	}
	return out
}

// TrackRun registers a started WorkflowRun under an opaque run id so it
// can be looked up and cancelled out-of-band.
func (s *Session) TrackRun(runID string, r *workflowrun.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowRuns[runID] = r
}

func (s *Session) GetRun(runID string) (*workflowrun.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.workflowRuns[runID]
	return r, ok
}

func (s *Session) ListRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.workflowRuns))
	for id := range s.workflowRuns {
		out = append(out, id)
	}
	return out
}

// Stop stops every registered node, cancels every non-terminal workflow
// run, and clears all registries.
func (s *Session) Stop() {
	s.mu.Lock()
	nodes := make([]node.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	runs := make([]*workflowrun.Run, 0, len(s.workflowRuns))
	for _, r := range s.workflowRuns {
		runs = append(runs, r)
	}
	s.nodes = make(map[string]node.Node)
	s.graphs = make(map[string]*graph.Graph)
	s.workflows = make(map[string]*workflowrun.Workflow)
	s.workflowRuns = make(map[string]*workflowrun.Run)
	s.mu.Unlock()

	for _, n := range nodes {
		if p, ok := n.(node.Persistent); ok {
			_ = p.Stop()
		}
	}
	for _, r := range runs {
		if !terminalRun(r) {
			r.Cancel()
		}
	}
}

func terminalRun(r *workflowrun.Run) bool {
	switch r.State() {
	case workflowrun.StateCompleted, workflowrun.StateFailed, workflowrun.StateCancelled:
		return true
	default:
		return false
	}
}

var _ execctx.SessionAccessor = (*Session)(nil)

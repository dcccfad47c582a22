// Package log provides structured logging for the nerve engine, built on
// log/slog. There is no ambient global logger: every constructor takes an
// explicit *slog.Logger, the way Session and Engine take an explicit Config.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Standard field keys, kept consistent across packages.
const (
	NodeIDKey    = "node_id"
	SessionIDKey = "session_id"
	GraphIDKey   = "graph_id"
	StepIDKey    = "step_id"
	RunIDKey     = "run_id"
	SeqKey       = "seq"
	DurationKey  = "duration_ms"
)

// Config holds logger construction options.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Default: info.
	Level string

	// Format is "json" or "text". Default: json.
	Format Format

	// Output is the destination writer. Default: os.Stderr.
	Output io.Writer

	// AddSource adds file:line to each record.
	AddSource bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv overlays NERVE_LOG_LEVEL / NERVE_LOG_FORMAT / NERVE_LOG_SOURCE on
// top of DefaultConfig, following the precedence convention of taking the
// most specific environment variable first.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if level := os.Getenv("NERVE_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := os.Getenv("NERVE_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}
	if os.Getenv("NERVE_LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}
	return cfg
}

// New builds a *slog.Logger from cfg.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithNode returns a logger annotated with a node id.
func WithNode(logger *slog.Logger, nodeID string) *slog.Logger {
	return logger.With(slog.String(NodeIDKey, nodeID))
}

// WithSession returns a logger annotated with a session id.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(slog.String(SessionIDKey, sessionID))
}

// WithStep returns a logger annotated with graph/step ids.
func WithStep(logger *slog.Logger, graphID, stepID string) *slog.Logger {
	return logger.With(slog.String(GraphIDKey, graphID), slog.String(StepIDKey, stepID))
}

// WithRun returns a logger annotated with a workflow run id.
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String(RunIDKey, runID))
}

// Nop returns a logger that discards all output, for tests and callers
// that decline observability.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Package stdiotransport is a stand-in transport for the command/event
// engine: line-delimited JSON commands in on stdin, line-delimited JSON
// responses and events out on stdout. Real deployments are expected to
// adapt the engine to a socket or RPC transport instead; this package
// exists so cmd/nerved has something runnable without committing the
// core engine to any one wire protocol.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nerved/nerved/pkg/engine"
)

// request is the line-delimited JSON shape read from stdin.
type request struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// envelope is the line-delimited JSON shape written to stdout, used for
// both command responses (kind "response") and engine events (kind
// "event").
type envelope struct {
	Kind      string         `json:"kind"`
	Success   bool           `json:"success,omitempty"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Event     string         `json:"event,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	EventData map[string]any `json:"event_data,omitempty"`
	Ts        time.Time      `json:"ts,omitempty"`
}

// LineSink adapts engine.Event to one JSON object per line on w. Safe
// for concurrent use since graph steps and node monitors emit from
// their own goroutines.
type LineSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewLineSink constructs a LineSink writing to w.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{enc: json.NewEncoder(w)}
}

func (s *LineSink) Publish(e engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(envelope{
		Kind:      "event",
		Event:     string(e.Kind),
		SessionID: e.SessionID,
		EventData: e.Data,
		Ts:        e.Ts,
	})
}

// Serve reads one JSON command per line from in, dispatches it to e,
// and writes one JSON response per line to out, until ctx is cancelled
// or in reaches EOF.
func Serve(ctx context.Context, e *engine.Engine, in io.Reader, out io.Writer, logger *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(out)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if line == "" {
				continue
			}
			handleLine(ctx, e, line, enc, logger)
		}
	}
}

func handleLine(ctx context.Context, e *engine.Engine, line string, enc *json.Encoder, logger *slog.Logger) {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		_ = enc.Encode(envelope{Kind: "response", Success: false, Error: fmt.Sprintf("invalid command: %v", err)})
		return
	}

	resp, err := e.Dispatch(ctx, engine.Command{
		Kind:      engine.CommandKind(req.Kind),
		SessionID: req.SessionID,
		Params:    req.Params,
	})
	if err != nil {
		logger.Error("engine dispatch returned an unexpected error", slog.Any("error", err))
		_ = enc.Encode(envelope{Kind: "response", Success: false, Error: err.Error()})
		return
	}
	_ = enc.Encode(envelope{Kind: "response", Success: resp.Success, Data: resp.Data, Error: resp.Error})
}

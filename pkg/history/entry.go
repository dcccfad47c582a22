// Package history implements the per-node append-only JSONL audit log
// (C3): one file per node at {base_dir}/{server_name}/{node_id}.jsonl,
// with strictly monotonic, dense sequence numbers.
package history

import (
	"time"

	"github.com/nerved/nerved/pkg/parser"
)

// Op identifies the kind of history entry.
type Op string

const (
	OpRun         Op = "run"
	OpWrite       Op = "write"
	OpRead        Op = "read"
	OpSend        Op = "send"
	OpSendStream  Op = "send_stream"
	OpInterrupt   Op = "interrupt"
	OpClose       Op = "close"
)

// Entry is one JSONL line. Fields are a superset across all ops; unused
// fields are omitted on write and must be tolerated as absent on read.
type Entry struct {
	Seq int64 `json:"seq"`
	Op  Op    `json:"op"`

	Ts      *time.Time `json:"ts,omitempty"`
	TsStart *time.Time `json:"ts_start,omitempty"`
	TsEnd   *time.Time `json:"ts_end,omitempty"`

	Input string `json:"input,omitempty"`

	Buffer string   `json:"buffer,omitempty"`
	Lines  []string `json:"lines,omitempty"`

	PrecedingBufferSeq int64 `json:"preceding_buffer_seq,omitempty"`

	Response *parser.ParsedResponse `json:"response,omitempty"`

	FinalBuffer string `json:"final_buffer,omitempty"`
	Parser      string `json:"parser,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// inputOps is the set of ops considered "inputs" by GetInputsOnly.
var inputOps = map[Op]bool{
	OpSend:       true,
	OpSendStream: true,
	OpWrite:      true,
	OpRun:        true,
}

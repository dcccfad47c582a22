package history

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	nerverrors "github.com/nerved/nerved/pkg/errors"
	"github.com/nerved/nerved/pkg/idgrammar"
	"github.com/nerved/nerved/pkg/parser"
)

// DefaultBaseDir is used when a caller does not supply one.
const DefaultBaseDir = ".nerve/history"

// Writer appends HistoryEntry records to a node's JSONL file. It is safe
// for use from a single goroutine; the engine's cooperative single-loop
// scheduling model means no additional locking is required in practice,
// but Writer serializes internally anyway so misuse can't corrupt a line.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	seq    int64
	path   string
	nodeID string
	logger *slog.Logger
}

// Path returns {base_dir}/{server_name}/{node_id}.jsonl.
func Path(baseDir, serverName, nodeID string) string {
	return filepath.Join(baseDir, serverName, nodeID+".jsonl")
}

// NewWriter validates ids, creates the directory and file if needed, and
// recovers the sequence counter by scanning any existing content.
//
// Creation is the one operation that fails hard: if the directory can't
// be created or the file can't be opened, the caller gets a *HistoryError
// and is expected to proceed without history rather than retry.
func NewWriter(baseDir, serverName, nodeID string, logger *slog.Logger) (*Writer, error) {
	if err := idgrammar.ValidateID(serverName); err != nil {
		return nil, &nerverrors.HistoryError{NodeID: nodeID, Cause: err}
	}
	if err := idgrammar.ValidateID(nodeID); err != nil {
		return nil, &nerverrors.HistoryError{NodeID: nodeID, Cause: err}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	dir := filepath.Join(baseDir, serverName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &nerverrors.HistoryError{NodeID: nodeID, Cause: err}
	}
	path := Path(baseDir, serverName, nodeID)

	maxSeq, err := recoverMaxSeq(path, logger)
	if err != nil {
		return nil, &nerverrors.HistoryError{NodeID: nodeID, Cause: err}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &nerverrors.HistoryError{NodeID: nodeID, Cause: err}
	}

	return &Writer{file: f, seq: maxSeq, path: path, nodeID: nodeID, logger: logger}, nil
}

// recoverMaxSeq scans an existing file (if any), skipping malformed lines,
// and returns the highest seq found, or 0.
func recoverMaxSeq(path string, logger *slog.Logger) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var maxSeq int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.Warn("skipping malformed history line on recovery", "path", path, "error", err)
			continue
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	return maxSeq, scanner.Err()
}

// append assigns the next seq, serializes entry, and flushes. On failure
// it logs a warning and returns 0 without advancing the counter; failures
// are never surfaced to the caller (fail-soft per the history contract).
func (w *Writer) append(entry Entry) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.seq + 1
	entry.Seq = next

	line, err := json.Marshal(entry)
	if err != nil {
		w.logger.Warn("failed to marshal history entry", "node_id", w.nodeID, "op", entry.Op, "error", err)
		return 0
	}
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		w.logger.Warn("failed to append history entry", "node_id", w.nodeID, "op", entry.Op, "error", err)
		return 0
	}
	if err := w.file.Sync(); err != nil {
		w.logger.Warn("failed to flush history entry", "node_id", w.nodeID, "op", entry.Op, "error", err)
		return 0
	}
	w.seq = next
	return next
}

// LogRun records a `run` entry and returns its seq (0 on fail-soft error).
func (w *Writer) LogRun(ts time.Time, input string) int64 {
	return w.append(Entry{Op: OpRun, Ts: &ts, Input: input})
}

// LogWrite records a `write` entry.
func (w *Writer) LogWrite(ts time.Time, input string) int64 {
	return w.append(Entry{Op: OpWrite, Ts: &ts, Input: input})
}

// LogRead records a `read` entry.
func (w *Writer) LogRead(ts time.Time, buffer string, lines []string) int64 {
	return w.append(Entry{Op: OpRead, Ts: &ts, Buffer: buffer, Lines: lines})
}

// LogSend records a `send` entry.
func (w *Writer) LogSend(tsStart, tsEnd time.Time, input string, precedingBufferSeq int64, response parser.ParsedResponse) int64 {
	return w.append(Entry{
		Op:                 OpSend,
		TsStart:            &tsStart,
		TsEnd:              &tsEnd,
		Input:              input,
		PrecedingBufferSeq: precedingBufferSeq,
		Response:           &response,
	})
}

// LogSendStream records a `send_stream` entry.
func (w *Writer) LogSendStream(tsStart, tsEnd time.Time, input string, precedingBufferSeq int64, finalBuffer, parserKind string) int64 {
	return w.append(Entry{
		Op:                 OpSendStream,
		TsStart:            &tsStart,
		TsEnd:              &tsEnd,
		Input:              input,
		PrecedingBufferSeq: precedingBufferSeq,
		FinalBuffer:        finalBuffer,
		Parser:             parserKind,
	})
}

// LogInterrupt records an `interrupt` entry.
func (w *Writer) LogInterrupt(ts time.Time) int64 {
	return w.append(Entry{Op: OpInterrupt, Ts: &ts})
}

// LogClose records a `close` entry and is the last write before Close.
func (w *Writer) LogClose(ts time.Time, reason string) int64 {
	return w.append(Entry{Op: OpClose, Ts: &ts, Reason: reason})
}

// Close closes the underlying file. Safe to call once; a second call
// returns the OS's already-closed error, which callers should ignore.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// FilePath returns the file path this writer appends to.
func (w *Writer) FilePath() string {
	return w.path
}

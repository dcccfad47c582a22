package history

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
)

// Reader loads a history file for offline inspection. Readers always
// load the whole file; malformed lines are skipped with a warning rather
// than aborting the read.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader opens path for reading. The file is not read until GetAll
// (or another accessor) is called.
func NewReader(path string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{path: path, logger: logger}
}

// GetAll returns every well-formed entry, in file order.
func (r *Reader) GetAll() ([]Entry, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			r.logger.Warn("skipping malformed history line", "path", r.path, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetLast returns the last n entries (fewer if the file has fewer).
func (r *Reader) GetLast(n int) ([]Entry, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	if n >= len(all) {
		return all, nil
	}
	if n <= 0 {
		return nil, nil
	}
	return all[len(all)-n:], nil
}

// GetByOp returns every entry matching op, in file order.
func (r *Reader) GetByOp(op Op) ([]Entry, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetBySeq returns the entry with the given seq, if present.
func (r *Reader) GetBySeq(seq int64) (Entry, bool, error) {
	all, err := r.GetAll()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range all {
		if e.Seq == seq {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// GetInputsOnly returns every entry whose op represents caller input
// (send, send_stream, write, run).
func (r *Reader) GetInputsOnly() ([]Entry, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if inputOps[e.Op] {
			out = append(out, e)
		}
	}
	return out, nil
}

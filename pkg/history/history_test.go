package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerved/nerved/pkg/log"
	"github.com/nerved/nerved/pkg/parser"
)

func TestWriterSeqMonotonicAndDense(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "srv", "node-a", log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	s1 := w.LogRun(time.Now(), "echo hi")
	s2 := w.LogRead(time.Now(), "hi\n", []string{"hi"})
	s3 := w.LogSend(time.Now(), time.Now(), "echo hi", s1, parser.ParsedResponse{IsReady: true})

	if s1 != 1 || s2 != 2 || s3 != 3 {
		t.Fatalf("expected dense monotonic seq 1,2,3; got %d,%d,%d", s1, s2, s3)
	}
}

func TestWriterRecoversMaxSeqSkippingMalformed(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "srv", "node-b")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `{"seq":1,"op":"run"}
not valid json
{"seq":2,"op":"read"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWriter(dir, "srv", "node-b", log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	next := w.LogInterrupt(time.Now())
	if next != 3 {
		t.Fatalf("expected recovery to continue from seq 2, got next=%d", next)
	}

	r := NewReader(path, log.Nop())
	entries, err := r.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 well-formed entries (malformed line skipped), got %d", len(entries))
	}
}

func TestGetInputsOnly(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "srv", "node-c", log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	w.LogRun(time.Now(), "cmd")
	w.LogRead(time.Now(), "buf", nil)
	w.LogWrite(time.Now(), "raw")
	w.Close()

	r := NewReader(w.FilePath(), log.Nop())
	inputs, err := r.GetInputsOnly()
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 {
		t.Fatalf("expected 2 input entries (run, write), got %d", len(inputs))
	}
}

package node

import (
	"context"
	"os"
	"testing"

	"github.com/nerved/nerved/pkg/history"
	"github.com/nerved/nerved/pkg/log"
)

func TestWrapperOwnsExactlyOneHistoryFile(t *testing.T) {
	dir := t.TempDir()
	w, err := history.NewWriter(dir, "srv", "wrapped", log.Nop())
	if err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{reply: "ready> "}
	wrapper, err := NewWrapper(context.Background(), WrapperConfig{
		ID:            "wrapped",
		ShellCommand:  []string{"bash"},
		TargetCommand: "",
		Accumulating:  true,
		History:       w,
		Logger:        log.Nop(),
	}, backend)
	if err != nil {
		t.Fatal(err)
	}
	defer wrapper.Close()

	innerPath := history.Path(dir, "srv", "wrapped-inner")
	if _, err := os.Stat(innerPath); !os.IsNotExist(err) {
		t.Fatalf("inner node must not have its own history file, found: %s", innerPath)
	}
	if _, err := os.Stat(w.FilePath()); err != nil {
		t.Fatalf("wrapper history file must exist: %v", err)
	}
}

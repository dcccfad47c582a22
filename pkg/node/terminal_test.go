package node

import (
	"context"
	"strings"
	"testing"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/log"
	"github.com/nerved/nerved/pkg/parser"
)

func TestTerminalExecuteWithNullParser(t *testing.T) {
	backend := &fakeBackend{reply: "done\n"}
	n := NewTerminal(TerminalConfig{
		ID:            "sh",
		Command:       []string{"bash"},
		Accumulating:  true,
		DefaultParser: parser.Null(),
		Logger:        log.Nop(),
	}, backend)

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n.State() != StateReady {
		t.Fatalf("expected READY after start, got %s", n.State())
	}

	ctx := execctx.New(nil, "printf done\n")
	result, err := n.Execute(ctx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	resp := result.(parser.ParsedResponse)
	if !strings.Contains(resp.Text(), "done") {
		t.Fatalf("expected response to contain 'done', got %q", resp.Text())
	}
	if n.State() != StateReady {
		t.Fatalf("expected READY after execute, got %s", n.State())
	}
}

func TestTerminalClosedRejectsOperations(t *testing.T) {
	backend := &fakeBackend{reply: "ok\n"}
	n := NewTerminal(TerminalConfig{ID: "sh", Command: []string{"bash"}, Accumulating: true, Logger: log.Nop()}, backend)
	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second close must be idempotent: %v", err)
	}
	if err := n.Write([]byte("x")); err == nil {
		t.Fatal("expected Closed error after Close")
	}
}

func TestTerminalStateNeverRevisitsCreatedOrStarting(t *testing.T) {
	backend := &fakeBackend{reply: "ok\n"}
	n := NewTerminal(TerminalConfig{ID: "sh", Command: []string{"bash"}, Accumulating: true, Logger: log.Nop()}, backend)
	seen := []State{n.State()}
	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	seen = append(seen, n.State())
	ctx := execctx.New(nil, "hi")
	if _, err := n.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	seen = append(seen, n.State())
	_ = n.Close()
	seen = append(seen, n.State())

	for _, s := range seen[1:] {
		if s == StateCreated || s == StateStarting {
			t.Fatalf("state machine revisited %s after reaching READY", s)
		}
	}
}

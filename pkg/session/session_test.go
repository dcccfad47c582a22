package session

import (
	"testing"

	"github.com/nerved/nerved/pkg/execctx"
	"github.com/nerved/nerved/pkg/log"
)

func TestCreateFunctionAndExecute(t *testing.T) {
	s, err := New("default", "test-server", false, t.TempDir(), log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.CreateFunction("echo", func(ctx *execctx.ExecutionContext) (any, error) {
		return ctx.Input, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, ok := s.GetNode("echo")
	if !ok {
		t.Fatal("expected node to be registered")
	}
	n := raw.(interface {
		Execute(ctx *execctx.ExecutionContext) (any, error)
	})
	ctx := execctx.New(s, "hi")
	out, err := n.Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Fatalf("expected 'hi', got %v", out)
	}
}

func TestCreateFunctionDuplicateIDRejected(t *testing.T) {
	s, err := New("default", "test-server", false, t.TempDir(), log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateFunction("dup", func(ctx *execctx.ExecutionContext) (any, error) { return nil, nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateFunction("dup", func(ctx *execctx.ExecutionContext) (any, error) { return nil, nil }); err == nil {
		t.Fatal("expected AlreadyExistsError for duplicate id")
	}
}

func TestDeleteNodeReportsExistence(t *testing.T) {
	s, err := New("default", "test-server", false, t.TempDir(), log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateFunction("n", func(ctx *execctx.ExecutionContext) (any, error) { return nil, nil }); err != nil {
		t.Fatal(err)
	}
	if !s.DeleteNode("n") {
		t.Fatal("expected true for existing node")
	}
	if s.DeleteNode("n") {
		t.Fatal("expected false for already-deleted node")
	}
}

func TestCreateGraphAndDelete(t *testing.T) {
	s, err := New("default", "test-server", false, t.TempDir(), log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateGraph("g"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetGraph("g"); !ok {
		t.Fatal("expected graph to be registered")
	}
	if !s.DeleteGraph("g") {
		t.Fatal("expected true for existing graph")
	}
}

func TestStopClearsRegistries(t *testing.T) {
	s, err := New("default", "test-server", false, t.TempDir(), log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateFunction("n", func(ctx *execctx.ExecutionContext) (any, error) { return nil, nil }); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if len(s.ListNodes()) != 0 {
		t.Fatal("expected empty node registry after Stop")
	}
}

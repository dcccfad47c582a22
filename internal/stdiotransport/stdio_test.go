package stdiotransport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nerved/nerved/pkg/engine"
	"github.com/nerved/nerved/pkg/log"
)

func newTestEngine(t *testing.T, sink engine.EventSink) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{
		DefaultSessionID: "default",
		ServerName:       "test",
		HistoryBaseDir:   t.TempDir(),
		Sink:             sink,
		Logger:           log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestServeDispatchesOneCommandPerLine(t *testing.T) {
	e := newTestEngine(t, engine.NopSink{})

	in := strings.NewReader(`{"kind":"PING"}` + "\n")
	var out bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, e, in, &out, log.Nop()) }()

	deadline := time.Now().Add(time.Second)
	for out.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &env); err != nil {
		t.Fatalf("invalid response line: %v (%q)", err, out.String())
	}
	if env.Kind != "response" || !env.Success {
		t.Fatalf("expected a successful response envelope, got %+v", env)
	}
}

func TestServeReportsInvalidJSON(t *testing.T) {
	e := newTestEngine(t, engine.NopSink{})

	in := strings.NewReader("not json\n")
	var out bytes.Buffer
	_ = Serve(context.Background(), e, in, &out, log.Nop())

	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &env); err != nil {
		t.Fatalf("invalid response line: %v (%q)", err, out.String())
	}
	if env.Success || env.Error == "" {
		t.Fatalf("expected a failure envelope, got %+v", env)
	}
}

func TestLineSinkEncodesEvents(t *testing.T) {
	var out bytes.Buffer
	sink := NewLineSink(&out)
	sink.Publish(engine.Event{Kind: engine.EventNodeCreated, SessionID: "s1", Data: map[string]any{"node_id": "n1"}})

	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &env); err != nil {
		t.Fatalf("invalid event line: %v (%q)", err, out.String())
	}
	if env.Kind != "event" || env.Event != "NODE_CREATED" || env.SessionID != "s1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

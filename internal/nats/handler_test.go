package nats

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/results"
)

type stubRunner struct{}

func (s *stubRunner) Run(name, pattern string, jobID uint64, maxWait int, env []string) (int, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHandler(t *testing.T) (*Handler, *results.Queue) {
	t.Helper()

	classes := []hooks.Class{
		{Name: hooks.ClassProlog, Pattern: "", MaxWait: 10},
	}
	hookHandler := hooks.NewHandler(classes, &stubRunner{}, "node01", testLogger())

	queue, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	// Publisher over an unconnected client; publishing fails and results
	// fall through to the queue.
	publisher := NewPublisher(NewClient(Config{NodeName: "node01"}, testLogger()), testLogger())

	return NewHandler(hookHandler, publisher, queue, testLogger()), queue
}

func waitForCount(t *testing.T, queue *results.Queue, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count, err := queue.Count()
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	count, _ := queue.Count()
	t.Fatalf("expected %d queued results, got %d", want, count)
}

func TestHandleHookRequest_QueuesResultWhenPublishFails(t *testing.T) {
	h, queue := testHandler(t)

	msg := &HookRequestMessage{ID: "req-1", Class: hooks.ClassProlog, JobID: 42}
	if err := h.HandleHookRequest(msg); err != nil {
		t.Fatalf("HandleHookRequest failed: %v", err)
	}

	waitForCount(t, queue, 1)

	pending, err := queue.Dequeue(1)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if pending[0].Result.RequestID != "req-1" || pending[0].Result.JobID != 42 {
		t.Errorf("unexpected queued result: %+v", pending[0].Result)
	}
}

func TestHandleHookRequest_DuplicateRunsOnce(t *testing.T) {
	h, queue := testHandler(t)

	msg := &HookRequestMessage{ID: "req-dup", Class: hooks.ClassProlog}
	if err := h.HandleHookRequest(msg); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if err := h.HandleHookRequest(msg); err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	waitForCount(t, queue, 1)

	// A second result must not appear.
	time.Sleep(100 * time.Millisecond)
	count, err := queue.Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("duplicate request produced %d results", count)
	}
}

type slowRunner struct {
	delay time.Duration
}

func (s *slowRunner) Run(name, pattern string, jobID uint64, maxWait int, env []string) (int, error) {
	time.Sleep(s.delay)
	return 0, nil
}

func TestShutdown_WaitsForInFlightRequest(t *testing.T) {
	classes := []hooks.Class{
		{Name: hooks.ClassProlog, Pattern: "", MaxWait: 10},
	}
	hookHandler := hooks.NewHandler(classes, &slowRunner{delay: 300 * time.Millisecond}, "node01", testLogger())

	queue, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	defer queue.Close()

	publisher := NewPublisher(NewClient(Config{NodeName: "node01"}, testLogger()), testLogger())
	h := NewHandler(hookHandler, publisher, queue, testLogger())

	msg := &HookRequestMessage{ID: "req-slow", Class: hooks.ClassProlog, JobID: 7}
	if err := h.HandleHookRequest(msg); err != nil {
		t.Fatalf("HandleHookRequest failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// After Shutdown returns, the request must have finished and its
	// result must be safely persisted.
	count, err := queue.Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("in-flight request abandoned: %d queued results", count)
	}
}

func TestShutdown_HonoursDeadline(t *testing.T) {
	classes := []hooks.Class{
		{Name: hooks.ClassProlog, Pattern: "", MaxWait: 10},
	}
	hookHandler := hooks.NewHandler(classes, &slowRunner{delay: 2 * time.Second}, "node01", testLogger())

	publisher := NewPublisher(NewClient(Config{NodeName: "node01"}, testLogger()), testLogger())
	h := NewHandler(hookHandler, publisher, nil, testLogger())

	msg := &HookRequestMessage{ID: "req-stuck", Class: hooks.ClassProlog}
	if err := h.HandleHookRequest(msg); err != nil {
		t.Fatalf("HandleHookRequest failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := h.Shutdown(ctx); err == nil {
		t.Error("expected deadline error from shutdown")
	}
}

func TestClient_NotConnectedByDefault(t *testing.T) {
	c := NewClient(Config{NodeName: "node01"}, testLogger())
	if c.IsConnected() {
		t.Error("unconnected client reported connected")
	}
}

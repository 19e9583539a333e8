// hooks_test.go tests request handling with a stubbed script runner:
// environment construction, result mapping, and cross-channel dedup.
package hooks

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
)

// stubRunner records the last invocation and returns a canned outcome.
type stubRunner struct {
	name    string
	pattern string
	jobID   uint64
	maxWait int
	env     []string
	calls   int

	status int
	err    error
}

func (s *stubRunner) Run(name, pattern string, jobID uint64, maxWait int, env []string) (int, error) {
	s.name, s.pattern, s.jobID, s.maxWait, s.env = name, pattern, jobID, maxWait, env
	s.calls++
	return s.status, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClasses() []Class {
	return []Class{
		{Name: ClassProlog, Pattern: "/etc/hookd/prolog.d/*.sh", MaxWait: 30},
		{Name: ClassEpilog, Pattern: "/etc/hookd/epilog.d/*.sh", MaxWait: -1},
	}
}

func TestRunClass_UnknownClass(t *testing.T) {
	h := NewHandler(testClasses(), &stubRunner{}, "node01", testLogger())

	_, err := h.RunClass("teardown", 0, "")
	if err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestRunClass_PassesClassParameters(t *testing.T) {
	stub := &stubRunner{}
	h := NewHandler(testClasses(), stub, "node01", testLogger())

	res, err := h.RunClass(ClassProlog, 42, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Succeeded() {
		t.Errorf("stub returned 0, result should be a success: %+v", res)
	}
	if stub.name != ClassProlog || stub.pattern != "/etc/hookd/prolog.d/*.sh" {
		t.Errorf("runner got class=%q pattern=%q", stub.name, stub.pattern)
	}
	if stub.jobID != 42 || stub.maxWait != 30 {
		t.Errorf("runner got jobID=%d maxWait=%d", stub.jobID, stub.maxWait)
	}
}

func TestRunClass_JobEnvironment(t *testing.T) {
	stub := &stubRunner{}
	h := NewHandler(testClasses(), stub, "node01", testLogger())

	if _, err := h.RunClass(ClassProlog, 42, "alice"); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		minimalPath,
		"HOOKD_HOOK=prolog",
		"HOOKD_NODE=node01",
		"HOOKD_JOB_ID=42",
		"HOOKD_JOB_USER=alice",
	} {
		if !slices.Contains(stub.env, want) {
			t.Errorf("env missing %q: %v", want, stub.env)
		}
	}
}

func TestRunClass_NoJobContextOmitsJobVariables(t *testing.T) {
	stub := &stubRunner{}
	h := NewHandler(testClasses(), stub, "node01", testLogger())

	if _, err := h.RunClass(ClassEpilog, 0, ""); err != nil {
		t.Fatal(err)
	}
	if stub.env == nil {
		t.Fatal("env must never be nil")
	}
	for _, v := range stub.env {
		if v == "HOOKD_JOB_ID=0" || v == "HOOKD_JOB_USER=" {
			t.Errorf("job variables should be omitted without a job: %v", stub.env)
		}
	}
}

func TestRunClass_FailureMapping(t *testing.T) {
	// Raw wait status for exit code 3.
	stub := &stubRunner{status: 3 << 8}
	h := NewHandler(testClasses(), stub, "node01", testLogger())

	res, err := h.RunClass(ClassProlog, 7, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded() {
		t.Error("non-zero status should not be a success")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Signal != -1 {
		t.Errorf("Signal = %d, want -1 for a normal exit", res.Signal)
	}
}

func TestRunClass_DiscoveryErrorMapping(t *testing.T) {
	stub := &stubRunner{err: errors.New("discover scripts: permission denied")}
	h := NewHandler(testClasses(), stub, "node01", testLogger())

	res, err := h.RunClass(ClassProlog, 7, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded() {
		t.Error("discovery failure should not be a success")
	}
	if res.Error == "" {
		t.Error("discovery failure should be recorded in the result")
	}
}

func TestHandleRequest_Deduplicates(t *testing.T) {
	stub := &stubRunner{}
	h := NewHandler(testClasses(), stub, "node01", testLogger())

	req := &Request{ID: "req-1", Class: ClassProlog, JobID: 42}

	res, err := h.HandleRequest(req)
	if err != nil || res == nil {
		t.Fatalf("first delivery should run: res=%v err=%v", res, err)
	}
	if res.RequestID != "req-1" {
		t.Errorf("result should carry the request ID, got %q", res.RequestID)
	}

	res, err = h.HandleRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Error("duplicate delivery should be dropped")
	}
	if stub.calls != 1 {
		t.Errorf("runner invoked %d times, want exactly once", stub.calls)
	}
}

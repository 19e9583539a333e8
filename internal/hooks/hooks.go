// Package hooks ties configured hook classes to the script supervisor.
//
// A hook class names a batch of scripts (prolog, epilog, healthcheck, ...)
// selected by a glob pattern and bounded by a per-class wall-clock budget.
// The handler receives hook requests from the delivery channels (NATS push
// or HTTP poll), deduplicates them, builds the fully-formed child
// environment, runs the batch through internal/script, and wraps the raw
// outcome into a Result for reporting.
package hooks

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opsforge/hookd/internal/script"
)

// Well-known hook class names. Additional classes may be configured.
const (
	ClassProlog      = "prolog"
	ClassEpilog      = "epilog"
	ClassHealthCheck = "healthcheck"
)

// Class describes one configured hook class.
type Class struct {
	// Name is the class identifier, e.g. "prolog".
	Name string

	// Pattern is the glob selecting the class's scripts. Empty means the
	// class is configured but has nothing to run.
	Pattern string

	// MaxWait is the per-script wall-clock budget in whole seconds.
	// Negative means wait indefinitely.
	MaxWait int
}

// Request is a hook invocation order from the controller.
type Request struct {
	// ID uniquely identifies the request across delivery channels.
	ID string `json:"id"`

	// Class names the hook class to run.
	Class string `json:"class"`

	// JobID is the associated job, or 0 when there is no job context
	// (e.g. health checks).
	JobID uint64 `json:"jobId,omitempty"`

	// JobUser is the owning user of the job, if any.
	JobUser string `json:"jobUser,omitempty"`
}

// Result is the aggregate outcome of one hook batch.
type Result struct {
	RequestID  string    `json:"requestId,omitempty"`
	Class      string    `json:"class"`
	JobID      uint64    `json:"jobId,omitempty"`
	Status     int       `json:"status"`             // raw wait status, StartFailed, or 0
	ExitCode   int       `json:"exitCode"`           // decoded, -1 if not a normal exit
	Signal     int       `json:"signal,omitempty"`   // decoded, -1 if not signaled
	DurationMs int64     `json:"durationMs"`
	ExecutedAt time.Time `json:"executedAt"`
	Error      string    `json:"error,omitempty"` // discovery failure, if any
}

// Succeeded reports whether every script in the batch exited zero.
func (r *Result) Succeeded() bool {
	return r.Status == 0 && r.Error == ""
}

// ScriptRunner runs a batch of scripts for one hook class. Satisfied by
// *script.Runner; stubbed in tests.
type ScriptRunner interface {
	Run(name, pattern string, jobID uint64, maxWait int, env []string) (int, error)
}

// Handler executes hook requests against the configured classes.
type Handler struct {
	classes map[string]Class
	runner  ScriptRunner
	dedup   *Deduplicator
	node    string
	logger  *slog.Logger
}

// NewHandler creates a hook handler for the given classes. node is the
// local node name exported to hook scripts.
func NewHandler(classes []Class, runner ScriptRunner, node string, logger *slog.Logger) *Handler {
	m := make(map[string]Class, len(classes))
	for _, c := range classes {
		m[c.Name] = c
	}
	return &Handler{
		classes: m,
		runner:  runner,
		dedup:   NewDeduplicator(logger),
		node:    node,
		logger:  logger.With(slog.String("component", "hooks")),
	}
}

// Deduplicator returns the handler's request deduplicator, shared across
// delivery channels so a request arriving via both NATS and polling runs
// exactly once.
func (h *Handler) Deduplicator() *Deduplicator {
	return h.dedup
}

// HandleRequest runs a hook request end to end. It returns nil (and no
// error) when the request is a duplicate that was already handled.
func (h *Handler) HandleRequest(req *Request) (*Result, error) {
	if req.ID != "" && !h.dedup.MarkSeen(req.ID) {
		h.logger.Debug("skipping duplicate hook request",
			slog.String("request_id", req.ID),
		)
		return nil, nil
	}

	res, err := h.RunClass(req.Class, req.JobID, req.JobUser)
	if err != nil {
		return nil, err
	}
	res.RequestID = req.ID
	return res, nil
}

// RunClass runs the named hook class for the given job context. jobID 0
// means no job context. The returned Result is always non-nil on success;
// an unknown class is an error.
func (h *Handler) RunClass(name string, jobID uint64, jobUser string) (*Result, error) {
	class, ok := h.classes[name]
	if !ok {
		return nil, fmt.Errorf("hooks: unknown hook class %q", name)
	}

	env := h.buildEnv(class.Name, jobID, jobUser)

	start := time.Now()
	status, runErr := h.runner.Run(class.Name, class.Pattern, jobID, class.MaxWait, env)
	elapsed := time.Since(start)

	res := &Result{
		Class:      class.Name,
		JobID:      jobID,
		Status:     status,
		ExitCode:   script.ExitCode(status),
		Signal:     int(script.Signal(status)),
		DurationMs: elapsed.Milliseconds(),
		ExecutedAt: start,
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}

	if res.Succeeded() {
		h.logger.Info("hook class completed",
			slog.String("class", class.Name),
			slog.Uint64("job_id", jobID),
			slog.Int64("duration_ms", res.DurationMs),
		)
	} else {
		h.logger.Warn("hook class failed",
			slog.String("class", class.Name),
			slog.Uint64("job_id", jobID),
			slog.String("status", script.FormatStatus(status)),
			slog.String("error", res.Error),
		)
	}

	return res, nil
}

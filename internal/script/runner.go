// Package script implements supervised execution of hook scripts.
//
// A hook class (prolog, epilog, ...) is configured as a glob pattern.
// Run expands the pattern and executes every match sequentially, each as
// the leader of its own process group. A non-negative wall-clock budget
// bounds the runtime of each script; when the budget runs out the whole
// process group is SIGKILLed so no descendant survives. The first script
// that fails stops the batch.
//
// The supervisor is synchronous and single-threaded by design: scripts run
// strictly one at a time, in discovery order, and the only cancellation is
// the internal timeout. Concurrent invocations from different callers are
// independent; each spawns its own unrelated process group.
package script

import (
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// StartFailed is the status reported when a script could not be started at
// all (permission check or spawn failure). Real wait statuses are never
// negative.
const StartFailed = -1

// Runner executes hook scripts under supervision.
type Runner struct {
	logger *slog.Logger

	// pollInterval is the sleep between non-blocking wait attempts when a
	// budget is set. The budget is decremented once per sleep, so the
	// effective granularity is one interval.
	pollInterval time.Duration
}

// NewRunner creates a script runner that logs supervision events to logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger:       logger.With(slog.String("component", "script")),
		pollInterval: time.Second,
	}
}

// RunOne executes a single script as an isolated process group and returns
// its raw wait status.
//
// The script is invoked with no arguments under exactly the supplied
// environment; env must be non-nil (a nil env is a caller bug and panics).
// An empty path means "nothing to run" and returns 0 without spawning.
// maxWait is the wall-clock budget in whole seconds; negative means wait
// indefinitely. On timeout the entire process group receives SIGKILL and
// the supervisor blocks until the child is reaped.
//
// Returns StartFailed if the script is not readable and executable by the
// current credentials or could not be spawned. Otherwise the kernel wait
// status is returned as-is: use ExitCode, Signal or FormatStatus to decode
// it. The child is always reaped before RunOne returns, on every path.
func (r *Runner) RunOne(name, path string, jobID uint64, maxWait int, env []string) int {
	if env == nil {
		panic("script: RunOne called with nil env")
	}
	if path == "" {
		return 0
	}

	if jobID != 0 {
		r.logger.Debug("attempting to run script",
			slog.Uint64("job_id", jobID),
			slog.String("class", name),
			slog.String("path", path),
		)
	} else {
		r.logger.Debug("attempting to run script",
			slog.String("class", name),
			slog.String("path", path),
		)
	}

	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		r.logger.Error("script is not readable and executable",
			slog.String("class", name),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return StartFailed
	}

	cmd := exec.Command(path)
	cmd.Env = env
	// Detach the child into its own process group so that its pid doubles
	// as the group id. One signal to -pid then reaches every descendant.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		r.logger.Error("failed to start script",
			slog.String("class", name),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return StartFailed
	}

	pid := cmd.Process.Pid
	defer cmd.Process.Release()

	return r.supervise(name, path, pid, maxWait)
}

// supervise waits for the child to exit, enforcing the wall-clock budget.
// It reaps the child on every return path.
func (r *Runner) supervise(name, path string, pid, maxWait int) int {
	blocking := maxWait < 0
	remaining := maxWait

	var status syscall.WaitStatus
	for {
		opts := 0
		if !blocking {
			opts = syscall.WNOHANG
		}

		wpid, err := syscall.Wait4(pid, &status, opts, nil)
		switch {
		case err == syscall.EINTR:
			// Interrupted wait attempts are retried, never surfaced.
			continue

		case err != nil:
			// The child may be unreapable. Treating this as success is a
			// known weak point, but the alternative is blocking forever
			// on a wait that cannot complete.
			r.logger.Error("wait for script failed",
				slog.String("class", name),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return 0

		case wpid == 0:
			// Still running. Burn one interval of budget; once it is
			// spent, kill the whole group and block until the reap.
			if remaining == 0 {
				r.logger.Warn("script exceeded time budget, killing process group",
					slog.String("class", name),
					slog.String("path", path),
					slog.Int("max_wait", maxWait),
				)
				r.killGroup(pid)
				blocking = true
				continue
			}
			time.Sleep(r.pollInterval)
			remaining--

		default:
			// Sweep the group even after a clean exit: the script may have
			// left descendants behind in the same group.
			r.killGroup(pid)
			return int(status)
		}
	}
}

// killGroup SIGKILLs the whole process group led by pid. ESRCH means the
// group is already gone, which is fine.
func (r *Runner) killGroup(pid int) {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		r.logger.Warn("failed to signal process group",
			slog.Int("pgid", pid),
			slog.String("error", err.Error()),
		)
	}
}

// run.go is the batch entry point: discover every script matching a hook
// pattern and run them in order, stopping at the first failure.
package script

import (
	"log/slog"
)

// Run expands pattern and executes every match in discovery order with
// identical parameters, stopping at the first script that fails.
//
// An empty pattern is a no-op success, as is a pattern with zero matches.
// A discovery failure is returned as a *DiscoveryError without running
// anything. Otherwise Run returns the raw wait status of the first failing
// script (later scripts are not run), or 0 if every script succeeded.
func (r *Runner) Run(name, pattern string, jobID uint64, maxWait int, env []string) (int, error) {
	if pattern == "" {
		return 0, nil
	}

	paths, err := Discover(pattern)
	if err != nil {
		r.logger.Error("unable to run scripts",
			slog.String("class", name),
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	for _, path := range paths {
		status := r.RunOne(name, path, jobID, maxWait, env)
		if status != 0 {
			r.logger.Error("script failed",
				slog.String("class", name),
				slog.String("path", path),
				slog.String("status", FormatStatus(status)),
			)
			return status, nil
		}
	}

	return 0, nil
}

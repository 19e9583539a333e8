// Package version provides build-time version information for hookd.
// Version, Commit, and BuildTime are populated via ldflags during the
// build; development builds use the defaults.
package version

// Build information variables, set via ldflags at build time:
//
//	go build -ldflags "-X github.com/opsforge/hookd/internal/version.Version=1.0.0 \
//	                   -X github.com/opsforge/hookd/internal/version.Commit=abc123 \
//	                   -X github.com/opsforge/hookd/internal/version.BuildTime=2026-08-31T12:00:00Z"
var (
	// Version is the semantic version of the agent (e.g. "1.0.0", "dev").
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"

	// BuildTime is when the binary was built (RFC3339).
	BuildTime = "unknown"
)

// Info returns a formatted string with all version information.
func Info() string {
	return "hookd " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}

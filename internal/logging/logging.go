// Package logging provides structured logging configuration for hookd.
//
// Logging strategy:
// - JSON output on stdout, which journald captures cleanly for a
//   systemd-managed agent
// - Source locations (file:line) for debugging
// - Level configurable from the config file (debug, info, warn, error)
// - The logger is set as the slog default and also returned for explicit
//   injection into components
//
// Usage:
//
//	logger := logging.SetupLogger("info")
//	logger.Info("hook class completed", "class", "prolog", "job_id", 42)
package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SetupLogger creates and configures a structured JSON logger. The level
// parameter accepts "debug", "info", "warn", "error" (case-insensitive);
// anything else falls back to "info".
func SetupLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten source paths to start at internal/ so log lines stay
			// readable regardless of the build directory.
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					if idx := strings.Index(source.File, "internal/"); idx != -1 {
						source.File = source.File[idx:]
					} else {
						source.File = filepath.Base(source.File)
					}
					if idx := strings.Index(source.Function, "internal/"); idx != -1 {
						source.Function = source.Function[idx:]
					}
				}
			}
			return a
		},
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	return logger
}

// parseLevel converts a string log level to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a pre-set component attribute, so
// every log line from a subsystem is tagged consistently.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// Package systemd integrates hookd with systemd service management.
//
// hookd ships as a Type=notify unit: the daemon must tell systemd when it
// has finished initializing and when it begins shutting down, and it keeps
// a watchdog ping alive when the unit sets WatchdogSec. Everything here
// degrades to a no-op when the process is not running under systemd, so
// development runs behave the same minus the notifications.
package systemd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady sends sd_notify READY=1. Call it once initialization is
// complete. Returns true if the notification was actually delivered.
func NotifyReady() bool {
	return notify(daemon.SdNotifyReady, "ready")
}

// NotifyStopping sends sd_notify STOPPING=1 at the start of the shutdown
// sequence so systemd waits for the process instead of killing it.
func NotifyStopping() bool {
	return notify(daemon.SdNotifyStopping, "stopping")
}

func notify(state, what string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		slog.Warn("failed to send systemd notification",
			slog.String("state", what),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !sent {
		slog.Debug("systemd notification socket not available",
			slog.String("state", what),
		)
	}
	return sent
}

// HealthCheckFunc reports whether the service is healthy. StartWatchdog
// skips the ping when it returns false, letting systemd restart the unit.
type HealthCheckFunc func() bool

// StartWatchdog starts a goroutine that pings the systemd watchdog at half
// the WatchdogSec interval, as systemd documentation recommends. It is a
// no-op when the unit does not enable the watchdog. The goroutine exits
// when the context is cancelled.
func StartWatchdog(ctx context.Context, healthCheck HealthCheckFunc) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		slog.Debug("systemd watchdog not enabled")
		return
	}

	pingInterval := interval / 2
	slog.Info("starting systemd watchdog",
		slog.Duration("watchdog_interval", interval),
		slog.Duration("ping_interval", pingInterval),
	)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !healthCheck() {
					slog.Warn("health check failed, skipping watchdog ping")
					continue
				}
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					slog.Warn("failed to send watchdog ping",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
}

// IsRunningUnderSystemd reports whether systemd started this process.
func IsRunningUnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}

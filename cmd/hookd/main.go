// hookd - Node Hook Agent Entry Point
//
// hookd runs as a systemd service on cluster nodes, responsible for:
//   - Running prolog hook scripts before a job starts on the node
//   - Running epilog hook scripts after a job completes
//   - Running periodic node health check scripts
//   - Reporting hook results and node state to the job controller
//
// Hook requests arrive over NATS when configured, with HTTP polling as the
// fallback channel. A shared deduplicator guarantees a request delivered on
// both channels runs exactly once.
//
// Configuration is loaded from /etc/hookd/config.yaml (or the path given by
// the -config flag).
//
// Lifecycle:
//  1. Load configuration from YAML file
//  2. Setup structured JSON logger
//  3. Complete registration if needed (exchange bootstrap token for the
//     node token, persist issued credentials)
//  4. Open the persistent result queue
//  5. Connect NATS if configured
//  6. Notify systemd that the service is ready (Type=notify)
//  7. Start watchdog goroutine if systemd provides WatchdogSec
//  8. Start polling loop, health check loop and result uploader
//  9. Wait for shutdown signal (SIGTERM/SIGINT)
//  10. Notify systemd that the service is stopping
//  11. Coordinated shutdown with timeout
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/opsforge/hookd/internal/client"
	"github.com/opsforge/hookd/internal/config"
	"github.com/opsforge/hookd/internal/health"
	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/logging"
	natsinternal "github.com/opsforge/hookd/internal/nats"
	"github.com/opsforge/hookd/internal/nodeinfo"
	"github.com/opsforge/hookd/internal/poller"
	"github.com/opsforge/hookd/internal/results"
	"github.com/opsforge/hookd/internal/script"
	"github.com/opsforge/hookd/internal/shutdown"
	"github.com/opsforge/hookd/internal/systemd"
	"github.com/opsforge/hookd/internal/version"
)

// Default shutdown timeout. A hook that is mid-run gets this long to finish.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic stderr logging before the logger is configured.
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	logger := logging.SetupLogger(cfg.LogLevel)

	nodeName := cfg.NodeName
	if nodeName == "" {
		nodeName, err = os.Hostname()
		if err != nil {
			logger.Error("failed to determine node name", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("hookd starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("build_time", version.BuildTime),
		slog.String("config_path", *configPath),
		slog.String("controller_url", cfg.ControllerURL),
		slog.String("node", nodeName),
		slog.Int("poll_interval", cfg.PollInterval),
		slog.Bool("nats_enabled", cfg.NATSEnabled()),
		slog.Bool("registered", cfg.IsRegistered()),
	)

	// Shutdown context that listens for SIGTERM and SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Exchange the one-time bootstrap token for issued credentials.
	if cfg.NeedsRegistration() {
		logger.Info("node needs registration, starting registration process")

		regResult, err := client.Register(ctx, cfg.ControllerURL, cfg.BootstrapToken, nodeName, logger)
		if err != nil {
			logger.Error("registration failed", "error", err)
			os.Exit(1)
		}

		// Persist the credentials immediately. Without this the node would
		// re-register on every restart with an already-used token.
		cfg.NodeToken = regResult.NodeToken
		cfg.BootstrapToken = ""
		if cfg.NodeName == "" && regResult.NodeName != "" {
			cfg.NodeName = regResult.NodeName
			nodeName = regResult.NodeName
		}
		if regResult.NATSServers != "" {
			cfg.NATSServers = regResult.NATSServers
			cfg.NATSNKeySeed = regResult.NATSNKeySeed
		}

		if err := config.Save(*configPath, cfg); err != nil {
			logger.Error("failed to save config after registration", "error", err)
			os.Exit(1)
		}

		logger.Info("credentials saved to config file",
			slog.String("config_path", *configPath),
		)
	}

	httpClient := client.NewClient(cfg.ControllerURL, cfg.NodeToken, nodeName, logger)

	// Shutdown coordinator for ordered component shutdown.
	coordinator := shutdown.NewCoordinator(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Error("failed to create data directory",
			slog.String("path", cfg.DataDir),
			"error", err,
		)
		os.Exit(1)
	}

	// Persistent result queue. Results survive controller outages and agent
	// restarts; the uploader drains them when the controller is reachable.
	queuePath := filepath.Join(cfg.DataDir, "results.db")
	resultQueue, err := results.Open(queuePath)
	if err != nil {
		logger.Error("failed to open result queue",
			slog.String("path", queuePath),
			"error", err,
		)
		os.Exit(1)
	}
	logger.Info("result queue initialized",
		slog.String("path", queuePath),
	)

	resultUploader := results.NewUploader(resultQueue, httpClient, logger)
	coordinator.Register("result-uploader", resultUploader)

	// Hook execution core shared by every delivery channel.
	runner := script.NewRunner(logger)
	hookHandler := hooks.NewHandler(cfg.HookClasses(), runner, nodeName, logger)

	collector := nodeinfo.NewCollector(logger)

	pollInterval := time.Duration(cfg.PollInterval) * time.Second
	pollJitter := time.Duration(cfg.JitterSeconds) * time.Second
	poll := poller.NewPoller(httpClient, hookHandler, resultQueue, collector, pollInterval, pollJitter, logger)
	coordinator.Register("poller", poll)

	// Health check loop, enabled when a script pattern is configured.
	var healthChecker *health.Checker
	if cfg.HealthCheck.Pattern != "" {
		healthChecker, err = health.NewChecker(hookHandler, resultQueue, cfg.HealthCheck.Cron, logger)
		if err != nil {
			logger.Error("failed to create health checker", "error", err)
			os.Exit(1)
		}
		coordinator.Register("health", healthChecker)
		logger.Info("health checker initialized",
			slog.String("schedule", cfg.HealthCheck.Cron),
			slog.String("pattern", cfg.HealthCheck.Pattern),
		)
	}

	// NATS for push delivery of hook requests, preferred over polling.
	var natsClient *natsinternal.Client
	if cfg.NATSEnabled() {
		logger.Info("NATS enabled, initializing NATS client",
			slog.String("servers", cfg.NATSServers),
		)

		natsCfg := natsinternal.Config{
			Servers:  cfg.NATSServers,
			NKeySeed: cfg.NATSNKeySeed,
			NodeName: nodeName,
		}

		natsClient = natsinternal.NewClient(natsCfg, logger)

		if err := natsClient.Connect(ctx); err != nil {
			logger.Warn("NATS connection failed, falling back to HTTP polling only",
				slog.String("error", err.Error()),
			)
			natsClient = nil
		} else {
			natsPublisher := natsinternal.NewPublisher(natsClient, logger)

			// Heartbeats go over NATS while connected.
			poll.SetHeartbeatPublisher(natsPublisher)

			natsHandler := natsinternal.NewHandler(hookHandler, natsPublisher, resultQueue, logger)
			natsClient.SetHandler(natsHandler)

			// LIFO shutdown: the handler drains in-flight hook requests
			// before the connection itself drains.
			coordinator.Register("nats", natsClient)
			coordinator.Register("nats-requests", natsHandler)
			logger.Info("NATS client initialized")
		}
	}

	systemd.NotifyReady()
	logger.Info("hookd ready")

	// Watchdog health combines the poll loop state with the most recent
	// health check outcome.
	systemd.StartWatchdog(ctx, func() bool {
		if !poll.IsHealthy() {
			return false
		}
		if healthChecker != nil && !healthChecker.IsHealthy() {
			return false
		}
		return true
	})

	go poll.Run(ctx)
	go resultUploader.Run(ctx)

	if healthChecker != nil {
		go healthChecker.Run(ctx)
	}

	if natsClient != nil {
		go natsClient.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, starting graceful shutdown")

	systemd.NotifyStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	if err := resultQueue.Close(); err != nil {
		logger.Warn("failed to close result queue",
			slog.String("error", err.Error()),
		)
	}

	logger.Info("shutdown complete")
}

// Package poller implements the agent polling loop with jitter.
// It periodically sends heartbeats with a node snapshot and fetches pending
// hook requests from the controller for execution.
//
// The polling loop uses time.Timer instead of time.Ticker to support
// variable intervals with jitter. This prevents "thundering herd" problems
// where many nodes poll the controller simultaneously.
//
// The poller coordinates graceful shutdown using sync.WaitGroup to track
// in-flight work, ensuring a prolog that is mid-run completes before exit.
//
// Usage:
//
//	poller := poller.NewPoller(client, handler, queue, collector, 60*time.Second, 30*time.Second, logger)
//	go poller.Run(ctx)
//	// ... on shutdown:
//	poller.Shutdown(shutdownCtx)
package poller

import (
	"context"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opsforge/hookd/internal/client"
	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/nodeinfo"
	"github.com/opsforge/hookd/internal/results"
	"github.com/opsforge/hookd/internal/version"
)

// Poller manages the periodic polling loop for controller communication.
// It sends heartbeats at regular intervals with random jitter, fetches
// pending hook requests, and tracks in-flight work for graceful shutdown.
type Poller struct {
	client             *client.Client
	hooks              *hooks.Handler
	queue              *results.Queue
	collector          *nodeinfo.Collector
	baseInterval       time.Duration
	jitter             time.Duration
	logger             *slog.Logger
	heartbeatPublisher HeartbeatPublisher

	wg      sync.WaitGroup
	running atomic.Bool

	cancel context.CancelFunc
}

// HeartbeatPublisher defines the interface for publishing presence via NATS.
// This lets the poller prefer NATS when connected without importing the nats
// package.
type HeartbeatPublisher interface {
	PublishHeartbeat(version, platform string) error
	PublishNodeState(snap *nodeinfo.Snapshot) error
	IsConnected() bool
}

// NewPoller creates a new Poller.
//
// The actual poll interval is interval + random(0, jitter). Fetched requests
// run through handler; their results are queued for the uploader rather than
// reported inline, so a controller hiccup after execution loses nothing.
func NewPoller(c *client.Client, handler *hooks.Handler, queue *results.Queue, collector *nodeinfo.Collector, interval, jitter time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		client:       c,
		hooks:        handler,
		queue:        queue,
		collector:    collector,
		baseInterval: interval,
		jitter:       jitter,
		logger:       logger.With(slog.String("component", "poller")),
	}
}

// SetHeartbeatPublisher sets the NATS publisher for sending heartbeats.
// When set and connected, heartbeats go via NATS instead of HTTP.
func (p *Poller) SetHeartbeatPublisher(publisher HeartbeatPublisher) {
	p.heartbeatPublisher = publisher
}

// Run starts the polling loop. It blocks until the context is cancelled.
//
//  1. Polls immediately on startup
//  2. Waits for the interval (with jitter)
//  3. Sends heartbeat, fetches and runs pending hook requests
//  4. Repeats
//
// Run should be called in a goroutine. To stop the poller, cancel the
// context and then call Shutdown() to wait for in-flight work.
func (p *Poller) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)

	p.logger.Info("poller starting",
		slog.Duration("interval", p.baseInterval),
		slog.Duration("jitter", p.jitter),
	)

	p.doPoll(internalCtx)

	for {
		interval := p.baseInterval
		if p.jitter > 0 {
			interval += time.Duration(rand.Int63n(int64(p.jitter)))
		}

		p.logger.Debug("waiting for next poll",
			slog.Duration("interval", interval),
		)

		// Timer instead of Ticker to support the variable interval.
		timer := time.NewTimer(interval)

		select {
		case <-internalCtx.Done():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			p.running.Store(false)
			p.logger.Info("poller stopped")
			return

		case <-timer.C:
			p.doPoll(internalCtx)
		}
	}
}

// doPoll performs a single poll cycle: heartbeat plus request fetch.
func (p *Poller) doPoll(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	p.sendHeartbeat(ctx)
	p.processPendingRequests(ctx)
}

// sendHeartbeat reports presence via NATS when connected, HTTP otherwise.
func (p *Poller) sendHeartbeat(ctx context.Context) {
	snap, err := p.collector.Collect(ctx)
	if err != nil {
		p.logger.Warn("failed to collect node snapshot",
			slog.String("error", err.Error()),
		)
		return
	}

	var heartbeatErr error
	var transport string

	if p.heartbeatPublisher != nil && p.heartbeatPublisher.IsConnected() {
		platform := runtime.GOOS + "-" + runtime.GOARCH
		heartbeatErr = p.heartbeatPublisher.PublishHeartbeat(version.Version, platform)
		if heartbeatErr == nil {
			heartbeatErr = p.heartbeatPublisher.PublishNodeState(snap)
		}
		transport = "nats"
	} else {
		heartbeatErr = p.client.Heartbeat(ctx, snap)
		transport = "http"
	}

	if heartbeatErr != nil {
		// Transient errors are expected; keep polling.
		p.logger.Error("heartbeat failed",
			slog.String("transport", transport),
			slog.String("error", heartbeatErr.Error()),
		)
	} else {
		p.logger.Debug("heartbeat sent",
			slog.String("transport", transport),
		)
	}
}

// processPendingRequests fetches queued hook requests from the controller
// and runs them sequentially. Duplicates already handled via NATS are
// filtered by the shared deduplicator.
func (p *Poller) processPendingRequests(ctx context.Context) {
	requests, err := p.client.FetchPendingRequests(ctx)
	if err != nil {
		p.logger.Warn("failed to fetch pending requests",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(requests) == 0 {
		return
	}

	p.logger.Info("processing pending hook requests",
		slog.Int("count", len(requests)),
	)

	for i := range requests {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := p.hooks.HandleRequest(&requests[i])
		if err != nil {
			p.logger.Error("hook request failed",
				slog.String("request_id", requests[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if result == nil {
			p.logger.Debug("skipping duplicate hook request from poll",
				slog.String("request_id", requests[i].ID),
			)
			continue
		}

		if err := p.queue.Enqueue(result); err != nil {
			p.logger.Error("failed to queue result",
				slog.String("request_id", requests[i].ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Shutdown stops the poller and waits for in-flight work to complete.
// Returns nil on clean shutdown, or ctx.Err() if the deadline passes first.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.logger.Info("poller shutting down")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller shutdown complete")
		return nil
	case <-ctx.Done():
		p.logger.Warn("poller shutdown timed out, some work may be incomplete")
		return ctx.Err()
	}
}

// IsHealthy returns true if the poller is running normally.
// Used by the systemd watchdog to determine service health.
func (p *Poller) IsHealthy() bool {
	return p.running.Load()
}

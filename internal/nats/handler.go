// Package nats handler processes incoming hook requests for the node agent.
//
// The handler routes requests to the shared hooks.Handler, which carries the
// deduplicator shared with the HTTP poller. A request delivered over both
// channels runs exactly once.
package nats

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/results"
)

// Handler processes incoming NATS hook requests.
type Handler struct {
	hooks     *hooks.Handler
	publisher *Publisher
	queue     *results.Queue
	logger    *slog.Logger

	// Tracks request goroutines so shutdown waits for an in-flight prolog.
	// The message is acked on dispatch and JetStream will not redeliver, so
	// abandoning a tracked request would lose it entirely.
	wg sync.WaitGroup
}

// NewHandler creates a new NATS message handler.
// hookHandler executes hook classes and deduplicates across channels.
// publisher reports results back over NATS; queue is the fallback when
// publishing fails, drained later by the HTTP uploader.
func NewHandler(hookHandler *hooks.Handler, publisher *Publisher, queue *results.Queue, logger *slog.Logger) *Handler {
	return &Handler{
		hooks:     hookHandler,
		publisher: publisher,
		queue:     queue,
		logger:    logger,
	}
}

// HandleHookRequest processes a hook request message from NATS.
// Implements the MessageHandler interface.
func (h *Handler) HandleHookRequest(msg *HookRequestMessage) error {
	reqLogger := h.logger.With(
		slog.String("request_id", msg.ID),
		slog.String("class", msg.Class),
	)
	reqLogger.Info("received hook request via NATS")

	req := &hooks.Request{
		ID:      msg.ID,
		Class:   msg.Class,
		JobID:   msg.JobID,
		JobUser: msg.JobUser,
	}

	// Run in a goroutine so a slow prolog does not stall the consumer.
	// Redelivery protection comes from the deduplicator, not from NAK.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runRequest(req, reqLogger)
	}()

	return nil
}

// runRequest executes a hook request and reports the result.
func (h *Handler) runRequest(req *hooks.Request, logger *slog.Logger) {
	result, err := h.hooks.HandleRequest(req)
	if err != nil {
		logger.Error("hook request failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if result == nil {
		logger.Debug("skipping duplicate hook request from NATS")
		return
	}

	if err := h.publisher.PublishResult(result); err != nil {
		logger.Warn("failed to publish result, queueing for upload",
			slog.String("error", err.Error()),
		)
		if h.queue != nil {
			if qerr := h.queue.Enqueue(result); qerr != nil {
				logger.Error("failed to queue result",
					slog.String("error", qerr.Error()),
				)
			}
		}
	}
}

// Shutdown waits for in-flight hook requests, honouring the context
// deadline. Registered to run before the NATS connection drains.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.logger.Info("waiting for in-flight hook requests")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hook request handler drained")
		return nil
	case <-ctx.Done():
		h.logger.Warn("hook request handler shutdown timed out")
		return ctx.Err()
	}
}

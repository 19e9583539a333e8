package results

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsforge/hookd/internal/hooks"
)

// ResultSender uploads a batch of results to the controller.
type ResultSender interface {
	ReportResults(ctx context.Context, batch []*hooks.Result) error
}

// Uploader periodically drains the result queue to the controller. Upload
// failures leave entries queued for the next cycle; the controller
// deduplicates by request ID, so a crash between upload and Remove at worst
// re-sends a batch.
type Uploader struct {
	queue    *Queue
	sender   ResultSender
	logger   *slog.Logger
	interval time.Duration
	batch    int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewUploader creates a result uploader draining queue through sender.
func NewUploader(queue *Queue, sender ResultSender, logger *slog.Logger) *Uploader {
	return &Uploader{
		queue:    queue,
		sender:   sender,
		logger:   logger.With(slog.String("component", "result-uploader")),
		interval: 30 * time.Second,
		batch:    50,
	}
}

// Run starts the upload loop. It drains once immediately, then on every
// interval tick until the context is cancelled. Run should be called in a
// goroutine; stop it via Shutdown or by cancelling the context.
func (u *Uploader) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel

	u.logger.Info("result uploader started",
		slog.Duration("interval", u.interval),
	)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.drain(internalCtx)

	for {
		select {
		case <-internalCtx.Done():
			u.logger.Info("result uploader stopping")
			return

		case <-ticker.C:
			u.drain(internalCtx)
		}
	}
}

// drain uploads one batch of pending results. Errors are logged and retried
// on the next cycle.
func (u *Uploader) drain(ctx context.Context) {
	u.wg.Add(1)
	defer u.wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	pending, err := u.queue.Dequeue(u.batch)
	if err != nil {
		u.logger.Warn("failed to dequeue results",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(pending) == 0 {
		u.logger.Debug("no pending results")
		return
	}

	batch := make([]*hooks.Result, len(pending))
	seqs := make([]uint64, len(pending))
	for i, p := range pending {
		batch[i] = p.Result
		seqs[i] = p.Seq
	}

	if err := u.sender.ReportResults(ctx, batch); err != nil {
		u.logger.Warn("failed to upload results, will retry next cycle",
			slog.String("error", err.Error()),
			slog.Int("count", len(batch)),
		)
		return
	}

	if err := u.queue.Remove(seqs); err != nil {
		// Already uploaded; the batch may be re-sent next cycle.
		u.logger.Warn("failed to remove uploaded results from queue",
			slog.String("error", err.Error()),
			slog.Int("count", len(seqs)),
		)
		return
	}

	u.logger.Info("results uploaded",
		slog.Int("count", len(batch)),
	)
}

// Shutdown stops the uploader and waits for in-flight work, honouring the
// shutdown context's deadline.
func (u *Uploader) Shutdown(ctx context.Context) error {
	u.logger.Info("uploader shutdown initiated")

	if u.cancel != nil {
		u.cancel()
	}

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		u.logger.Info("uploader shutdown complete")
		return nil
	case <-ctx.Done():
		u.logger.Warn("uploader shutdown timed out")
		return ctx.Err()
	}
}

package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/results"
)

// Checker periodically runs the health check hook class and queues the
// outcome for upload. A failing health check marks the node unhealthy until
// the next passing run; the systemd watchdog and the controller both read
// that state.
type Checker struct {
	hooks    *hooks.Handler
	queue    *results.Queue
	parser   *CronParser
	schedule string
	logger   *slog.Logger

	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewChecker creates a health checker firing on the given cron schedule.
// The schedule is validated here so a typo in the config fails at startup
// rather than silently never firing.
func NewChecker(hookHandler *hooks.Handler, queue *results.Queue, schedule string, logger *slog.Logger) (*Checker, error) {
	parser := NewCronParser()
	if err := parser.Validate(schedule); err != nil {
		return nil, fmt.Errorf("invalid health check schedule %q: %w", schedule, err)
	}

	c := &Checker{
		hooks:    hookHandler,
		queue:    queue,
		parser:   parser,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "health")),
	}
	// Healthy until the first check says otherwise.
	c.healthy.Store(true)
	return c, nil
}

// Run starts the check loop (blocking). It runs one check immediately, then
// sleeps until each cron fire time. Run should be called in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.logger.Info("health checker started",
		slog.String("schedule", c.schedule),
	)

	c.runCheck()

	for {
		next, err := c.parser.NextRun(c.schedule, time.Now())
		if err != nil {
			// Validated at construction; a parse failure here means the
			// expression was mutated, which cannot happen.
			c.logger.Error("health check schedule parse failed",
				slog.String("error", err.Error()),
			)
			return
		}

		timer := time.NewTimer(time.Until(next))

		select {
		case <-internalCtx.Done():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			c.logger.Info("health checker stopped")
			return

		case <-timer.C:
			c.runCheck()
		}
	}
}

// runCheck executes the health check hook class once and records the state.
func (c *Checker) runCheck() {
	result, err := c.hooks.RunClass(hooks.ClassHealthCheck, 0, "")
	if err != nil {
		c.logger.Error("health check failed to run",
			slog.String("error", err.Error()),
		)
		c.healthy.Store(false)
		return
	}

	c.healthy.Store(result.Succeeded())

	if result.Succeeded() {
		c.logger.Debug("health check passed")
	} else {
		c.logger.Warn("health check failed",
			slog.Int("exit_code", result.ExitCode),
			slog.Int("signal", result.Signal),
			slog.String("error", result.Error),
		)
	}

	if c.queue != nil {
		if err := c.queue.Enqueue(result); err != nil {
			c.logger.Error("failed to queue health check result",
				slog.String("error", err.Error()),
			)
		}
	}
}

// IsHealthy reports the outcome of the most recent check.
func (c *Checker) IsHealthy() bool {
	return c.healthy.Load()
}

// Shutdown stops the check loop.
func (c *Checker) Shutdown(ctx context.Context) error {
	c.logger.Info("health checker shutdown initiated")
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

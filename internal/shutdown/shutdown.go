// Package shutdown coordinates ordered teardown of the agent's components.
// Components register in startup order and are stopped in reverse, so the
// delivery channels stop accepting hook requests before the pieces they
// depend on go away.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Shutdowner is implemented by components participating in coordinated
// shutdown. Shutdown should respect the context deadline and return
// ctx.Err() if it cannot finish in time.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

type component struct {
	name       string
	shutdowner Shutdowner
}

// Coordinator stops registered components in LIFO order.
type Coordinator struct {
	components []component
	logger     *slog.Logger
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logger.With(slog.String("component", "shutdown")),
	}
}

// Register adds a component. Registration order should match startup
// order; shutdown happens in reverse.
func (c *Coordinator) Register(name string, s Shutdowner) {
	c.components = append(c.components, component{name: name, shutdowner: s})
	c.logger.Debug("registered shutdown handler", slog.String("handler", name))
}

// Shutdown stops all registered components in reverse order, continuing
// past individual failures. The context deadline bounds the whole
// sequence. Returns the first error encountered, if any.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.logger.Info("starting coordinated shutdown",
		slog.Int("components", len(c.components)),
	)

	var firstErr error
	for i := len(c.components) - 1; i >= 0; i-- {
		comp := c.components[i]

		select {
		case <-ctx.Done():
			c.logger.Error("shutdown deadline exceeded",
				slog.String("remaining_component", comp.name),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown deadline exceeded at component %s: %w", comp.name, ctx.Err())
			}
			return firstErr
		default:
		}

		start := time.Now()
		if err := comp.shutdowner.Shutdown(ctx); err != nil {
			c.logger.Error("component shutdown failed",
				slog.String("handler", comp.name),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to shutdown %s: %w", comp.name, err)
			}
			continue
		}
		c.logger.Info("component shutdown complete",
			slog.String("handler", comp.name),
			slog.Duration("duration", time.Since(start)),
		)
	}

	return firstErr
}

// ComponentCount returns the number of registered components.
func (c *Coordinator) ComponentCount() int {
	return len(c.components)
}

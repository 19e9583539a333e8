// Package health runs the node health check hook on a cron schedule.
// This file wraps robfig/cron for expression parsing without running its
// scheduler; the check loop owns its own timing.

package health

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser wraps robfig/cron for schedule-only usage.
type CronParser struct {
	parser cron.Parser
}

// NewCronParser creates a parser supporting standard 5-field cron with
// descriptors such as "@hourly" and "@every 5m".
func NewCronParser() *CronParser {
	return &CronParser{
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// NextRun calculates the next execution time for a cron expression.
func (p *CronParser) NextRun(expression string, after time.Time) (time.Time, error) {
	schedule, err := p.parser.Parse(expression)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

// Validate checks if a cron expression is valid.
func (p *CronParser) Validate(expression string) error {
	_, err := p.parser.Parse(expression)
	return err
}

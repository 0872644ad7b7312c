// Package scheduler fires the orchestrator on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/logging"
)

// Job is one scheduled run. The context is cancelled when the scheduler
// stops.
type Job func(ctx context.Context)

type Scheduler struct {
	spec   string
	job    Job
	logger zerolog.Logger
}

// New validates a standard five-field cron spec. Schedules run in UTC so
// they line up with window boundaries.
func New(spec string, job Job, logger zerolog.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job is required")
	}
	return &Scheduler{spec: spec, job: job, logger: logging.Component(logger, "scheduler")}, nil
}

// Next reports the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	schedule, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(t.UTC())
}

// Serve runs until ctx is cancelled. A tick that fires while the previous
// run is still going is skipped.
func (s *Scheduler) Serve(ctx context.Context) error {
	cronLogger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		cron.WithLogger(cronLogger),
	)

	if _, err := c.AddFunc(s.spec, func() { s.job(ctx) }); err != nil {
		return fmt.Errorf("add cron entry: %w", err)
	}

	c.Start()
	s.logger.Info().Str("schedule", s.spec).Time("next", s.Next(time.Now())).Msg("scheduler started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

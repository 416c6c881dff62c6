// Package scheduler triggers daily pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/snowrank/snowrank/internal/pipeline"
	"go.uber.org/zap"
)

// Scheduler runs the pipeline on a cron expression. Overlapping triggers are
// skipped: if a run is still executing when the next trigger fires, the
// trigger is dropped rather than queued.
type Scheduler struct {
	runner   *pipeline.Runner
	schedule string
	cron     *cron.Cron
	logger   *zap.SugaredLogger
}

// New creates a Scheduler for the given cron expression (standard 5-field
// syntax).
func New(runner *pipeline.Runner, schedule string, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the schedule and begins firing. It returns immediately;
// the cron runs on its own goroutine until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		summary, err := s.runner.RunOnce(ctx)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			s.logger.Warn("scheduled run skipped: previous run still in progress")
			return
		}
		if err != nil {
			s.logger.Errorf("scheduled run failed: %v", err)
			return
		}
		s.logger.Infow("scheduled run complete",
			"resorts", summary.Resorts,
			"snapshots", summary.SnapshotsWritten,
			"scores", summary.ScoresWritten,
		)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Infof("scheduler started with schedule %q", s.schedule)

	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.logger.Info("scheduler stopped")
	}()

	return nil
}

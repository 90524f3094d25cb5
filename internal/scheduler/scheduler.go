// File: internal/scheduler/scheduler.go

// Package scheduler fires the visit run on a cron expression, sharing the
// runner (and its overlap guard) with the manual HTTP trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/config"
	"github.com/hevesm/linkvisitor/internal/visitor"
)

// Scheduler wraps a single cron entry around the shared runner.
type Scheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
}

// New registers the configured cron expression. The job calls the same
// TryRun path as the manual endpoint; an overlapping trigger is skipped with
// a log line rather than queued.
func New(ctx context.Context, logger *zap.Logger, cfg config.ScheduleConfig, runner *visitor.Runner) (*Scheduler, error) {
	s := &Scheduler{
		logger: logger.Named("scheduler"),
		cron:   cron.New(),
	}

	_, err := s.cron.AddFunc(cfg.Cron, func() {
		s.logger.Info("Scheduled run triggered.")
		summary, err := runner.Run(ctx)
		if err != nil {
			if errors.Is(err, visitor.ErrRunInProgress) {
				s.logger.Warn("Scheduled run skipped; another run is in progress.")
				return
			}
			s.logger.Error("Scheduled run failed to start.", zap.Error(err))
			return
		}
		if !summary.Success {
			s.logger.Warn("Scheduled run finished with failures.",
				zap.Int("failures", summary.FailureCount),
				zap.Bool("aborted", summary.Aborted),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}

	return s, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() {
	s.logger.Info("Schedule registered.")
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight job to return.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Schedule stopped.")
}

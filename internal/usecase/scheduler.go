package usecase

import (
	"context"
	"log/slog"
	"time"

	"sunkelo/internal/ports"
)

// Scheduler wires the cron driver with the trending refresh job.
type Scheduler struct {
	driver   ports.Scheduler
	trending *TrendingSuggestions
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, trending *TrendingSuggestions, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, trending: trending, logger: logger}
}

// Start registers the refresh job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.trending == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.trending.Refresh(ctx); err != nil && s.logger != nil {
			s.logger.Warn("trending refresh failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

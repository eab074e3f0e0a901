// Package cron runs keyshop's periodic jobs: payment reconciliation, the
// reservation reaper and outbox retention. Each job has its own cadence and
// its own Redis lock, so a slow job never delays or blocks the others across
// replicas.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
)

const defaultTick = 15 * time.Second

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the schedule is checked. Zero picks the shorter of
	// 15s and the smallest job interval.
	Tick time.Duration
	Now  func() time.Time
}

type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
		if shortest := params.Registry.Shortest(); shortest > 0 && shortest < tick {
			tick = shortest
		}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
	}, nil
}

// Run checks the schedule every tick until ctx is cancelled. Due jobs run
// one after another on this goroutine.
func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// RunOnce runs every registered job now, ignoring the schedule but still
// honouring the locks. It returns the first job error.
func (s *Service) RunOnce(ctx context.Context) error {
	var first error
	for _, job := range s.registry.Jobs() {
		if err := s.runLocked(ctx, job); err != nil && first == nil {
			first = fmt.Errorf("%s: %w", job.Name(), err)
		}
	}
	return first
}

func (s *Service) runDue(ctx context.Context) {
	for _, job := range s.registry.Due(s.now()) {
		if ctx.Err() != nil {
			return
		}
		_ = s.runLocked(ctx, job)
	}
}

func (s *Service) runLocked(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())

	acquired, err := s.lock.Acquire(jobCtx, job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "cron.lock_failed", err)
		s.metrics.Observe(job.Name(), metrics.CronFailed, 0)
		return err
	}
	if !acquired {
		s.logg.Debug(jobCtx, "cron.skipped: held by another worker")
		s.metrics.Observe(job.Name(), metrics.CronSkipped, 0)
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(jobCtx), job.Name()); err != nil {
			s.logg.Error(jobCtx, "cron.unlock_failed", err)
		}
	}()

	start := s.now()
	err = job.Run(jobCtx)
	took := s.now().Sub(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		s.metrics.Observe(job.Name(), metrics.CronFailed, took)
		return err
	}
	s.logg.Info(jobCtx, "cron.job_done")
	s.metrics.Observe(job.Name(), metrics.CronSucceeded, took)
	return nil
}

package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
)

const defaultTick = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is the tick. Jobs wrapped with Every run on their own cadence.
	Interval time.Duration
}

// Service drives the registered jobs. On every tick it works out which jobs
// are due and, only if it wins the shared lock, runs them in registration order.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	// nextDue is keyed by job name; a job with no entry is due immediately.
	nextDue map[string]time.Time
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	var errs error
	if params.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger required"))
	}
	if params.Lock == nil {
		errs = multierr.Append(errs, errors.New("lock required"))
	}
	if errs != nil {
		return nil, fmt.Errorf("cron service: %w", errs)
	}

	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Interval
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		nextDue:  make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// Run fires one cycle right away and then one per tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(s.registry.Jobs())), "cron service started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	due := s.dueJobs()
	if len(due) == 0 {
		return nil
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.IncLockSkipped()
		s.logg.Debug(ctx, "cron lock held by another instance")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	for _, job := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A failed job waits for its next slot like a successful one.
		s.nextDue[job.Name()] = s.now().Add(intervalOf(job))
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) dueJobs() []Job {
	now := s.now()
	var due []Job
	for _, job := range s.registry.Jobs() {
		next, seen := s.nextDue[job.Name()]
		if !seen || !now.Before(next) {
			due = append(due, job)
		}
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	started := time.Now()
	err := safeRun(jobCtx, job)
	took := time.Since(started)
	s.metrics.ObserveRun(job.Name(), took, s.now(), err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}

// safeRun reports a job panic as an error.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	return job.Run(ctx)
}

package cron

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduled is implemented by jobs that run less often than every tick.
type Scheduled interface {
	Interval() time.Duration
}

type everyJob struct {
	Job
	interval time.Duration
}

func (e everyJob) Interval() time.Duration { return e.interval }

// Every wraps job so the service runs it at most once per interval.
func Every(job Job, interval time.Duration) Job {
	if job == nil {
		return nil
	}
	return everyJob{Job: job, interval: interval}
}

// Registry tracks registered cron jobs.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

func intervalOf(job Job) time.Duration {
	if scheduled, ok := job.(Scheduled); ok {
		return scheduled.Interval()
	}
	return 0
}

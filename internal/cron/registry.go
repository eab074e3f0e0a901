package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one unit of periodic work. Name doubles as its lock and metric label.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type schedule struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Registry holds the jobs the worker runs and when each is next due.
type Registry struct {
	mu        sync.Mutex
	schedules []*schedule
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job to run every interval. A new job is due immediately.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.job.Name() == job.Name() {
			return fmt.Errorf("job %s already registered", job.Name())
		}
	}
	r.schedules = append(r.schedules, &schedule{job: job, every: every})
	return nil
}

// Jobs returns every job in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.schedules))
	for _, s := range r.schedules {
		jobs = append(jobs, s.job)
	}
	return jobs
}

// Due returns the jobs whose time has come and books their next run.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, s := range r.schedules {
		if now.Before(s.next) {
			continue
		}
		due = append(due, s.job)
		s.next = now.Add(s.every)
	}
	return due
}

// Shortest is the smallest registered interval, or zero when empty.
func (r *Registry) Shortest() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var shortest time.Duration
	for _, s := range r.schedules {
		if shortest == 0 || s.every < shortest {
			shortest = s.every
		}
	}
	return shortest
}

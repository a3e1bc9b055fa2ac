// Package scheduler runs the timer jobs. Every job has its own ticker, and
// each tick runs under a named lock so that replicas do not run the same tick
// twice.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	redisclient "github.com/hackgods/clinic-functions/internal/redis"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs    []Job
	locker  redisclient.Locker
	timeout time.Duration
	log     zerolog.Logger
}

func New(locker redisclient.Locker, timeout time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{locker: locker, timeout: timeout, log: log}
}

func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Run starts every job and blocks until ctx is cancelled. Jobs run once at
// startup and then on each tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("scheduler: no jobs registered")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("scheduler: job %s has no interval", job.Name)
		}
		g.Go(func() error {
			s.loop(gctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.RunOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("job", job.Name).Msg("job stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce runs one tick of job under its lock. A tick already held by another
// replica is skipped.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.locker.WithLock(runCtx, job.Name, job.Run)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.log.Debug().Str("job", job.Name).Msg("job tick held elsewhere, skipping")
	case err != nil:
		s.log.Error().Err(err).Str("job", job.Name).Msg("job run error")
	default:
		s.log.Info().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("job run complete")
	}
}

// Trigger runs the named job once, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			s.RunOnce(ctx, job)
			return nil
		}
	}
	return fmt.Errorf("scheduler: unknown job %q", name)
}

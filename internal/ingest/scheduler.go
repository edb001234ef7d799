// Package ingest pulls external market, macro, and news data into the
// snapshot store: periodic HTTP pollers driven by a job scheduler, plus a
// continuous Hyperliquid WebSocket feed. Every tick lands under the venue's
// key namespace with a TTL a few multiples of its fetch period, so consumers
// judge freshness by age-since-write.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one periodic ingest task. Run errors are logged, never fatal.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives independent periodic jobs. Each job runs on its own
// goroutine; a failing or panicking job never starves the others.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	log     zerolog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	// OnResult is an optional metrics hook called after every job run.
	OnResult func(job string, err error, elapsed time.Duration)
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start launches every job: one immediate run, then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()

	s.log.Info().Int("jobs", len(s.jobs)).Msg("ingest scheduler started")
}

// Stop cancels all jobs and waits for them to drain, bounded by grace.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(grace):
		s.log.Warn().Msg("ingest scheduler stop timed out")
	}
	s.log.Info().Msg("ingest scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job", job.Name).Msg("ingest job panicked")
		}
	}()
	start := time.Now()
	err := job.Run(ctx)
	if s.OnResult != nil {
		s.OnResult(job.Name, err, time.Since(start))
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("job", job.Name).Msg("ingest job failed")
		return
	}
	s.log.Debug().Str("job", job.Name).Msg("ingest job completed")
}

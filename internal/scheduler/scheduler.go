// Package scheduler runs hlsgate's recurring maintenance jobs: pruning
// the stream event journal and sweeping orphaned scratch directories.
// Jobs are registered with standard 5-field cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/hlsgate/pkg/format"
)

// jobTimeout bounds a single job run. Maintenance jobs touch the
// database and the filesystem; neither should take minutes.
const jobTimeout = 5 * time.Minute

// Job is one run of a scheduled maintenance task.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with job-level logging and a context
// bound to the scheduler's lifetime.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    int
	running bool
}

// NewScheduler creates a stopped scheduler. Register jobs with AddJob,
// then call Start.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob registers a named job on a cron schedule. Standard 5-field
// expressions and @every descriptors are accepted. The spec is
// validated immediately; a bad expression fails fast at wiring time.
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	s.jobs++

	s.logger.Info("scheduled job",
		slog.String("job", name),
		slog.String("schedule", spec),
		slog.String("description", format.CronDescription(spec)),
	)
	return nil
}

// run executes one job with a bounded context and logs the outcome.
func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("job finished",
		slog.String("job", name),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started", slog.Int("jobs", s.jobs))
	return nil
}

// Stop halts scheduling, cancels running jobs and waits for them to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.ctx = nil
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	s.logger.Info("scheduler stopped")
}

// Running reports whether the scheduler has been started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

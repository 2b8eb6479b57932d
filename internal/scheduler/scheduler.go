// Package scheduler implements the dispatcher: it loads persisted job
// definitions from the store, registers each enabled one with gocron, and
// hands due jobs to the execution runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"botjobs/internal/database"
	"botjobs/internal/logger"
	"botjobs/internal/metrics"
)

// Executor runs one dispatch of a job definition. Implemented by the runner.
type Executor interface {
	Execute(ctx context.Context, job *database.ScheduledJob) error
}

// Scheduler manages dispatch of persisted job definitions using gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	store     database.Store
	executor  Executor
	metrics   *metrics.Metrics
	mu        sync.Mutex
	running   bool

	// baseCtx is the lifetime context given to Start. Dispatches are bound
	// to it, never to the shorter-lived context of the mutation that
	// triggered a resync.
	baseCtx context.Context
}

// NewScheduler creates a scheduler dispatching in the given timezone.
// metrics may be nil when instrumentation is disabled.
func NewScheduler(log *slog.Logger, store database.Store, executor Executor, m *metrics.Metrics, timezone string) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(logger.NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		store:     store,
		executor:  executor,
		metrics:   m,
	}, nil
}

// Start loads the enabled job definitions, registers them, and starts the
// scheduler's internal ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.baseCtx = ctx

	count, err := s.syncLocked(ctx)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	s.running = true
	s.logger.InfoContext(ctx, "Scheduler initialized and started", "jobs_scheduled", count)
	return nil
}

// Resync reloads the enabled job definitions from the store and replaces the
// registered gocron job set. Called after any definition mutation.
func (s *Scheduler) Resync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}

	count, err := s.syncLocked(ctx)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Scheduler resynced", "jobs_scheduled", count)
	return nil
}

// syncLocked replaces the gocron job set with the store's enabled
// definitions. Caller holds s.mu.
func (s *Scheduler) syncLocked(ctx context.Context) (int, error) {
	defs, err := s.store.ListEnabledJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load job definitions: %w", err)
	}

	for _, j := range s.scheduler.Jobs() {
		if err := s.scheduler.RemoveJob(j.ID()); err != nil {
			s.logger.WarnContext(ctx, "Failed to remove stale gocron job", "gocron_id", j.ID(), "error", err)
		}
	}

	scheduledCount := 0
	for i := range defs {
		def := defs[i]
		if err := s.registerJob(ctx, &def); err != nil {
			// Keep scheduling the rest; a single bad definition must not
			// take the dispatcher down.
			s.logger.ErrorContext(ctx, "Failed to schedule job",
				"job", def.Name, "schedule", def.Schedule, "error", err)
			continue
		}
		scheduledCount++
	}

	if s.metrics != nil {
		s.metrics.SetScheduledJobs(scheduledCount)
	}
	return scheduledCount, nil
}

// registerJob adds one definition to gocron, wrapping the executor call with
// logging. Caller holds s.mu.
func (s *Scheduler) registerJob(ctx context.Context, def *database.ScheduledJob) error {
	if err := ValidateSchedule(def.Schedule); err != nil {
		return err
	}

	jobID := def.ID
	dispatchCtx := s.baseCtx
	if dispatchCtx == nil {
		dispatchCtx = context.Background()
	}
	_, err := s.scheduler.NewJob(
		gocron.CronJob(def.Schedule, HasSecondsField(def.Schedule)),
		gocron.NewTask(func(taskCtx context.Context) {
			s.dispatch(taskCtx, jobID)
		}, dispatchCtx),
		gocron.WithName(def.Name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %q with gocron: %w", def.Name, err)
	}

	s.logger.InfoContext(ctx, "Scheduled job",
		"job", def.Name, "identifier", def.Identifier, "schedule", def.Schedule)
	return nil
}

// dispatch fetches the definition fresh and hands it to the executor. The
// re-read picks up parameter or target edits made since registration.
func (s *Scheduler) dispatch(ctx context.Context, jobID uint) {
	def, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load job for dispatch", "job_id", jobID, "error", err)
		return
	}
	if def == nil || !def.Enabled {
		s.logger.WarnContext(ctx, "Job vanished or was disabled between tick and dispatch", "job_id", jobID)
		return
	}

	s.logger.InfoContext(ctx, "Dispatching job", "job", def.Name)
	startTime := time.Now()

	if err := s.executor.Execute(ctx, def); err != nil {
		// The runner already recorded the failure; the dispatcher only logs.
		s.logger.ErrorContext(ctx, "Job dispatch finished with error",
			"job", def.Name, "duration", time.Since(startTime), "error", err)
		return
	}

	s.logger.InfoContext(ctx, "Job dispatch finished",
		"job", def.Name, "duration", time.Since(startTime))
}

// RunNow dispatches a job definition immediately, outside its schedule.
// Used by the /job_run admin command and the CLI.
func (s *Scheduler) RunNow(ctx context.Context, def *database.ScheduledJob) error {
	if def == nil {
		return fmt.Errorf("cannot run nil job")
	}
	s.logger.InfoContext(ctx, "Running job out of schedule", "job", def.Name)
	return s.executor.Execute(ctx, def)
}

// Stop gracefully stops the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}

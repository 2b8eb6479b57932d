// Package runner implements the execution runner: it loads a job's
// executable unit by identifier, resolves its dependencies, decodes the
// parameter payload, invokes it, records status and result in the run
// history, and delivers the result to the job's target chats.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"botjobs/internal/database"
	"botjobs/internal/jobs"
	"botjobs/internal/metrics"
)

// Notifier delivers a run's result text to target chats.
type Notifier interface {
	Deliver(ctx context.Context, chatIDs []int64, text string) error
}

// Runner executes scheduled jobs and records their runs.
type Runner struct {
	logger     *slog.Logger
	store      database.Store
	registry   *jobs.Registry
	notifier   Notifier
	metrics    *metrics.Metrics
	runTimeout time.Duration
}

// New creates a Runner. metrics may be nil when instrumentation is disabled;
// notifier may be nil when running without a Telegram connection (CLI mode).
func New(logger *slog.Logger, store database.Store, registry *jobs.Registry, notifier Notifier, m *metrics.Metrics, runTimeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:     logger.With("component", "runner"),
		store:      store,
		registry:   registry,
		notifier:   notifier,
		metrics:    m,
		runTimeout: runTimeout,
	}
}

// Execute runs one dispatch of the given job definition, recording a run row
// through its whole lifecycle (queued, running, terminal).
//
// An interruption is never intercepted: when the invocation fails because
// ctx was cancelled or the run deadline expired, the run is marked
// interrupted and the context error is returned to the caller unmodified.
func (r *Runner) Execute(ctx context.Context, job *database.ScheduledJob) error {
	if job == nil {
		return fmt.Errorf("cannot execute nil job")
	}

	log := r.logger.With("job", job.Name, "identifier", job.Identifier)

	run := &database.JobRun{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		Identifier: job.Identifier,
		Status:     database.RunStatusQueued,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	log = log.With("run_id", run.ID)

	runnable, err := r.registry.Resolve(job.Identifier)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve job identifier", "error", err)
		r.finish(ctx, run.ID, database.RunStatusFailed, "", err.Error(), 0)
		return err
	}

	params, err := jobs.DecodeParams(job.Params)
	if err != nil {
		log.ErrorContext(ctx, "Failed to decode job params", "error", err)
		r.finish(ctx, run.ID, database.RunStatusFailed, "", err.Error(), 0)
		return err
	}

	startTime := time.Now()
	if err := r.store.MarkRunRunning(ctx, run.ID, startTime); err != nil {
		log.WarnContext(ctx, "Failed to mark run running", "error", err)
	}
	if err := r.store.TouchJobLastRun(ctx, job.ID, startTime); err != nil {
		log.WarnContext(ctx, "Failed to record job last run", "error", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	log.InfoContext(ctx, "Running job")
	result, runErr := runnable.Run(runCtx, params)
	duration := time.Since(startTime)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			log.WarnContext(ctx, "Job run interrupted", "duration", duration, "error", runErr)
			r.finish(ctx, run.ID, database.RunStatusInterrupted, "", runErr.Error(), duration)
			return runErr
		}

		log.ErrorContext(ctx, "Job run failed", "duration", duration, "error", runErr)
		r.finish(ctx, run.ID, database.RunStatusFailed, "", runErr.Error(), duration)
		return fmt.Errorf("job %q failed: %w", job.Name, runErr)
	}

	log.InfoContext(ctx, "Job run succeeded", "duration", duration)
	r.finish(ctx, run.ID, database.RunStatusSucceeded, result, "", duration)

	if r.notifier != nil && result != "" {
		chatIDs, chatErr := job.ChatIDs()
		if chatErr != nil {
			log.ErrorContext(ctx, "Invalid target chats, result not delivered", "error", chatErr)
		} else if deliverErr := r.notifier.Deliver(ctx, chatIDs, result); deliverErr != nil {
			// Delivery problems do not fail the run; the result is recorded.
			log.ErrorContext(ctx, "Failed to deliver run result", "error", deliverErr)
		}
	}

	return nil
}

// finish records the terminal state of a run. The bookkeeping write must
// survive the interruption that may have ended the run, so it detaches from
// ctx's cancellation while keeping its values.
func (r *Runner) finish(ctx context.Context, runID, status, result, errMsg string, duration time.Duration) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.store.FinishRun(writeCtx, runID, status, result, errMsg); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record run outcome",
			"run_id", runID, "status", status, "error", err)
	}

	if r.metrics != nil {
		r.metrics.ObserveRun(status, duration)
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Sentinel errors callers branch on.
var (
	// ErrJobExists is returned when creating a job whose name is already
	// taken for the same bot.
	ErrJobExists = errors.New("job already exists")

	// ErrJobNotFound is returned by mutations targeting a job name that
	// does not exist for the bot.
	ErrJobNotFound = errors.New("job not found")
)

// Store defines the interface for database operations on job definitions
// and run history. All queries are scoped to the bot ID the store was
// created with; methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateJob inserts a new job definition. Returns ErrJobExists if the
	// name is taken for this bot.
	CreateJob(ctx context.Context, job *ScheduledJob) error

	// GetJobByName retrieves a job definition by name. Returns nil, nil if not found.
	GetJobByName(ctx context.Context, name string) (*ScheduledJob, error)

	// GetJobByID retrieves a job definition by ID. Returns nil, nil if not found.
	GetJobByID(ctx context.Context, id uint) (*ScheduledJob, error)

	// ListJobs retrieves all job definitions for this bot, ordered by name.
	ListJobs(ctx context.Context) ([]ScheduledJob, error)

	// ListEnabledJobs retrieves the enabled job definitions for this bot.
	ListEnabledJobs(ctx context.Context) ([]ScheduledJob, error)

	// SetJobEnabled flips the enabled flag. Returns ErrJobNotFound if no
	// job with that name exists for this bot.
	SetJobEnabled(ctx context.Context, name string, enabled bool) error

	// DeleteJob removes a job definition and, via cascade, its run history.
	// Returns ErrJobNotFound if no job with that name exists for this bot.
	DeleteJob(ctx context.Context, name string) error

	// TouchJobLastRun records the most recent dispatch time of a job.
	TouchJobLastRun(ctx context.Context, jobID uint, at time.Time) error

	// CreateRun inserts a new run record in the queued state.
	CreateRun(ctx context.Context, run *JobRun) error

	// MarkRunRunning transitions a run from queued to running.
	MarkRunRunning(ctx context.Context, runID string, startedAt time.Time) error

	// FinishRun transitions a run to a terminal status, recording the
	// result text or error message.
	FinishRun(ctx context.Context, runID, status, result, errMsg string) error

	// ListRecentRuns retrieves the most recent runs, newest first. A zero
	// jobID means runs of all jobs for this bot.
	ListRecentRuns(ctx context.Context, jobID uint, limit int) ([]JobRun, error)

	// PruneRuns deletes terminal runs created before the cutoff and reports
	// how many rows were removed.
	PruneRuns(ctx context.Context, olderThan time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	botID  int64
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx, scoped to the
// given bot ID. It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, botID int64, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		botID:  botID,
		logger: logger.With("component", "store", "bot_id", botID),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateJob inserts a new job definition inside a transaction.
func (s *sqlxStore) CreateJob(ctx context.Context, job *ScheduledJob) error {
	if job == nil {
		return fmt.Errorf("cannot save nil job")
	}
	if job.Name == "" {
		return fmt.Errorf("job must have a non-empty name")
	}
	if job.Identifier == "" {
		return fmt.Errorf("job must have a non-empty identifier")
	}
	if job.Schedule == "" {
		return fmt.Errorf("job must have a non-empty schedule")
	}
	if job.Params == "" {
		job.Params = "{}"
	}
	if job.TargetChats == "" {
		job.TargetChats = "[]"
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.BotID = s.botID

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for creating job",
			"name", job.Name, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        INSERT INTO scheduled_jobs (created_at, updated_at, bot_id, name, identifier, schedule, params, target_chats, enabled, last_run_at)
        VALUES (:created_at, :updated_at, :bot_id, :name, :identifier, :schedule, :params, :target_chats, :enabled, :last_run_at);
    `

	result, err := tx.NamedExecContext(ctx, query, job)
	if err != nil {
		if isUniqueViolation(err) {
			s.logger.DebugContext(ctx, "Job name already taken", "name", job.Name)
			return fmt.Errorf("%w: %q", ErrJobExists, job.Name)
		}
		s.logger.ErrorContext(ctx, "Error creating job", "name", job.Name, "error", err)
		return fmt.Errorf("failed to create job %q: %w", job.Name, err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		job.ID = uint(id)
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after creating job",
			"name", job.Name, "error", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "name", job.Name, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Job created successfully",
		"name", job.Name, "identifier", job.Identifier, "job_id", job.ID)
	return nil
}

// GetJobByName retrieves a job definition by name. Returns nil, nil if not found.
func (s *sqlxStore) GetJobByName(ctx context.Context, name string) (*ScheduledJob, error) {
	if name == "" {
		return nil, fmt.Errorf("job name cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var job ScheduledJob
	query := `SELECT id, created_at, updated_at, bot_id, name, identifier, schedule, params, target_chats, enabled, last_run_at
	          FROM scheduled_jobs WHERE bot_id = ? AND name = ?`

	err := s.db.GetContext(ctx, &job, query, s.botID, name)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No job found", "name", name)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting job by name", "name", name, "error", err)
		return nil, fmt.Errorf("failed to get job %q: %w", name, err)
	}

	return &job, nil
}

// GetJobByID retrieves a job definition by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetJobByID(ctx context.Context, id uint) (*ScheduledJob, error) {
	if id == 0 {
		return nil, fmt.Errorf("job id cannot be zero")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var job ScheduledJob
	query := `SELECT id, created_at, updated_at, bot_id, name, identifier, schedule, params, target_chats, enabled, last_run_at
	          FROM scheduled_jobs WHERE bot_id = ? AND id = ?`

	err := s.db.GetContext(ctx, &job, query, s.botID, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting job by ID", "job_id", id, "error", err)
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}

	return &job, nil
}

// ListJobs retrieves all job definitions for this bot, ordered by name.
func (s *sqlxStore) ListJobs(ctx context.Context) ([]ScheduledJob, error) {
	return s.listJobs(ctx, false)
}

// ListEnabledJobs retrieves the enabled job definitions for this bot.
func (s *sqlxStore) ListEnabledJobs(ctx context.Context) ([]ScheduledJob, error) {
	return s.listJobs(ctx, true)
}

func (s *sqlxStore) listJobs(ctx context.Context, onlyEnabled bool) ([]ScheduledJob, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query := `SELECT id, created_at, updated_at, bot_id, name, identifier, schedule, params, target_chats, enabled, last_run_at
	          FROM scheduled_jobs WHERE bot_id = ?`
	args := []any{s.botID}
	if onlyEnabled {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY name ASC`

	var jobs []ScheduledJob
	err := s.db.SelectContext(ctx, &jobs, query, args...)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing jobs", "only_enabled", onlyEnabled, "error", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	s.logger.DebugContext(ctx, "Listed jobs", "count", len(jobs), "only_enabled", onlyEnabled)
	return jobs, nil
}

// SetJobEnabled flips the enabled flag of a job definition.
func (s *sqlxStore) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}

	query := `UPDATE scheduled_jobs SET enabled = ?, updated_at = ? WHERE bot_id = ? AND name = ?`
	result, err := s.db.ExecContext(ctx, query, enabled, time.Now().UTC(), s.botID, name)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating job enabled flag",
			"name", name, "enabled", enabled, "error", err)
		return fmt.Errorf("failed to update job %q: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "name", name, "error", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}

	s.logger.InfoContext(ctx, "Job enabled flag updated", "name", name, "enabled", enabled)
	return nil
}

// DeleteJob removes a job definition.
func (s *sqlxStore) DeleteJob(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}

	query := `DELETE FROM scheduled_jobs WHERE bot_id = ? AND name = ?`
	result, err := s.db.ExecContext(ctx, query, s.botID, name)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting job", "name", name, "error", err)
		return fmt.Errorf("failed to delete job %q: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "name", name, "error", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}

	s.logger.InfoContext(ctx, "Job deleted", "name", name)
	return nil
}

// TouchJobLastRun records the most recent dispatch time of a job.
func (s *sqlxStore) TouchJobLastRun(ctx context.Context, jobID uint, at time.Time) error {
	if jobID == 0 {
		return fmt.Errorf("job id cannot be zero")
	}

	query := `UPDATE scheduled_jobs SET last_run_at = ? WHERE bot_id = ? AND id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), s.botID, jobID); err != nil {
		s.logger.ErrorContext(ctx, "Error touching job last run", "job_id", jobID, "error", err)
		return fmt.Errorf("failed to record last run for job %d: %w", jobID, err)
	}
	return nil
}

// CreateRun inserts a new run record.
func (s *sqlxStore) CreateRun(ctx context.Context, run *JobRun) error {
	if run == nil {
		return fmt.Errorf("cannot save nil run")
	}
	if run.ID == "" {
		return fmt.Errorf("run must have a non-empty id")
	}
	if run.JobID == 0 {
		return fmt.Errorf("run must reference a job")
	}
	if run.Status == "" {
		run.Status = RunStatusQueued
	}

	run.CreatedAt = time.Now().UTC()
	run.BotID = s.botID

	query := `
        INSERT INTO job_runs (id, created_at, bot_id, job_id, identifier, status, started_at, finished_at, result, error)
        VALUES (:id, :created_at, :bot_id, :job_id, :identifier, :status, :started_at, :finished_at, :result, :error);
    `

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		s.logger.ErrorContext(ctx, "Error creating run",
			"run_id", run.ID, "job_id", run.JobID, "error", err)
		return fmt.Errorf("failed to create run for job %d: %w", run.JobID, err)
	}

	s.logger.DebugContext(ctx, "Run created", "run_id", run.ID, "job_id", run.JobID)
	return nil
}

// MarkRunRunning transitions a run from queued to running.
func (s *sqlxStore) MarkRunRunning(ctx context.Context, runID string, startedAt time.Time) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	query := `UPDATE job_runs SET status = ?, started_at = ? WHERE bot_id = ? AND id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query, RunStatusRunning, startedAt.UTC(), s.botID, runID, RunStatusQueued)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking run running", "run_id", runID, "error", err)
		return fmt.Errorf("failed to mark run %s running: %w", runID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Run was not in queued state when marked running",
			"run_id", runID, "affected", affected)
	}
	return nil
}

// FinishRun transitions a run to a terminal status.
func (s *sqlxStore) FinishRun(ctx context.Context, runID, status, result, errMsg string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	switch status {
	case RunStatusSucceeded, RunStatusFailed, RunStatusInterrupted:
	default:
		return fmt.Errorf("%q is not a terminal run status", status)
	}

	resultVal := sql.NullString{String: result, Valid: result != ""}
	errVal := sql.NullString{String: errMsg, Valid: errMsg != ""}

	query := `UPDATE job_runs SET status = ?, finished_at = ?, result = ?, error = ? WHERE bot_id = ? AND id = ?`
	res, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), resultVal, errVal, s.botID, runID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error finishing run", "run_id", runID, "status", status, "error", err)
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when finishing run",
			"run_id", runID, "affected", affected)
	}

	s.logger.DebugContext(ctx, "Run finished", "run_id", runID, "status", status)
	return nil
}

// ListRecentRuns retrieves the most recent runs, newest first.
func (s *sqlxStore) ListRecentRuns(ctx context.Context, jobID uint, limit int) ([]JobRun, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}

	query := `SELECT id, created_at, bot_id, job_id, identifier, status, started_at, finished_at, result, error
	          FROM job_runs WHERE bot_id = ?`
	args := []any{s.botID}
	if jobID != 0 {
		query += ` AND job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var runs []JobRun
	err := s.db.SelectContext(ctx, &runs, query, args...)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing recent runs", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// PruneRuns deletes terminal runs created before the cutoff.
func (s *sqlxStore) PruneRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	terminal := []string{RunStatusSucceeded, RunStatusFailed, RunStatusInterrupted}

	query, args, err := sqlx.In(
		`DELETE FROM job_runs WHERE bot_id = ? AND created_at < ? AND status IN (?)`,
		s.botID, olderThan.UTC(), terminal)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error building prune query", "error", err)
		return 0, fmt.Errorf("failed to build prune query: %w", err)
	}

	query = s.db.Rebind(query)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning runs", "error", err)
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get pruned row count", "error", err)
		return 0, nil
	}

	s.logger.InfoContext(ctx, "Pruned old runs", "count", count, "older_than", olderThan)
	return count, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// isUniqueViolation reports whether err looks like a SQLite unique
// constraint failure. The modernc driver surfaces these as plain error
// strings, so string matching is the only portable check.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: scheduled_jobs")
}

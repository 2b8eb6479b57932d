// Package builtin registers the plain function jobs that ship with botjobs:
// database maintenance and run-history cleanup.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"botjobs/internal/config"
	"botjobs/internal/database"
	"botjobs/internal/jobs"
)

// Deps contains the dependencies required by the built-in jobs.
type Deps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}

// Register adds the built-in plain function jobs to the registry.
func Register(r *jobs.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if err := r.RegisterFunc("sql_maintenance", newSQLMaintenanceJob(deps)); err != nil {
		return err
	}
	if err := r.RegisterFunc("cleanup_runs", newCleanupRunsJob(deps)); err != nil {
		return err
	}

	deps.Logger.Info("Registered built-in jobs", "count", 2)
	return nil
}

// newSQLMaintenanceJob creates the job function for running database maintenance.
func newSQLMaintenanceJob(deps Deps) jobs.JobFunc {
	log := deps.Logger.With("job", "sql_maintenance")

	return func(ctx context.Context, _ map[string]any) (string, error) {
		log.InfoContext(ctx, "Starting SQL maintenance...")
		startTime := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			return "", fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "SQL maintenance completed", "duration", time.Since(startTime))
		return "", nil
	}
}

// newCleanupRunsJob creates the job function that prunes old run history.
// The retention window defaults to the configured value; a "retention_days"
// parameter on the job definition overrides it.
func newCleanupRunsJob(deps Deps) jobs.JobFunc {
	log := deps.Logger.With("job", "cleanup_runs")

	return func(ctx context.Context, params map[string]any) (string, error) {
		retentionDays := deps.Config.Scheduler.RetentionDays
		if v, ok := params["retention_days"]; ok {
			// JSON numbers decode as float64.
			f, ok := v.(float64)
			if !ok || f < 1 {
				return "", fmt.Errorf("invalid retention_days parameter: %v", v)
			}
			retentionDays = int(f)
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		log.InfoContext(ctx, "Pruning run history", "cutoff", cutoff, "retention_days", retentionDays)

		count, err := deps.Store.PruneRuns(ctx, cutoff)
		if err != nil {
			return "", fmt.Errorf("run cleanup failed: %w", err)
		}

		log.InfoContext(ctx, "Run history pruned", "removed", count)
		return fmt.Sprintf("Pruned %d job runs older than %d days.", count, retentionDays), nil
	}
}

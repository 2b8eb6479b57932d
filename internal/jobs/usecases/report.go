// Package usecases contains the class-based use cases shipped with botjobs,
// addressable from job definitions via the "usecase:" identifier prefix.
package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"botjobs/internal/database"
	"botjobs/internal/jobs"
	"botjobs/internal/workflow"
)

// RegisterAll adds every shipped use case to the registry. Constructors are
// validated against the service pool at registration time.
func RegisterAll(r *jobs.Registry) error {
	if err := r.RegisterUseCase("report.DailyDigest", NewDailyDigest); err != nil {
		return err
	}
	if err := r.RegisterUseCase("admin.PurgeHistory", NewPurgeHistory); err != nil {
		return err
	}
	return nil
}

// DailyDigest summarizes recent run history as a short report, delivered to
// the job's target chats. It is implemented as a fixed workflow: load runs,
// tally statuses, format the digest.
type DailyDigest struct {
	store  database.Store
	logger *slog.Logger
}

// NewDailyDigest constructs the use case. Invoked by the injector with
// services resolved from the pool.
func NewDailyDigest(store database.Store, logger *slog.Logger) *DailyDigest {
	return &DailyDigest{store: store, logger: logger}
}

// Schedulable reports that end users may schedule this use case.
func (d *DailyDigest) Schedulable() bool { return true }

// Do runs the digest workflow. Params: "limit" caps how many recent runs are
// considered (default 50).
func (d *DailyDigest) Do(ctx context.Context, params map[string]any) (string, error) {
	limit := 50
	if v, ok := params["limit"]; ok {
		f, ok := v.(float64)
		if !ok || f < 1 {
			return "", fmt.Errorf("invalid limit parameter: %v", v)
		}
		limit = int(f)
	}

	pipeline, err := workflow.New("daily_digest", d.logger,
		workflow.Stage{Name: "load_runs", Run: func(ctx context.Context, state workflow.State) (workflow.State, error) {
			runs, err := d.store.ListRecentRuns(ctx, 0, limit)
			if err != nil {
				return nil, err
			}
			state["runs"] = runs
			return state, nil
		}},
		workflow.Stage{Name: "tally", Run: func(_ context.Context, state workflow.State) (workflow.State, error) {
			runs := state["runs"].([]database.JobRun)
			counts := map[string]int{}
			for _, run := range runs {
				counts[run.Status]++
			}
			state["counts"] = counts
			return state, nil
		}},
		workflow.Stage{Name: "format", Run: func(_ context.Context, state workflow.State) (workflow.State, error) {
			runs := state["runs"].([]database.JobRun)
			counts := state["counts"].(map[string]int)
			state["digest"] = formatDigest(runs, counts)
			return state, nil
		}},
	)
	if err != nil {
		return "", err
	}

	state, err := pipeline.Run(ctx, workflow.State{})
	if err != nil {
		return "", err
	}

	return state["digest"].(string), nil
}

func formatDigest(runs []database.JobRun, counts map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job run digest (%d recent runs)\n", len(runs))
	for _, status := range []string{
		database.RunStatusSucceeded,
		database.RunStatusFailed,
		database.RunStatusInterrupted,
		database.RunStatusRunning,
		database.RunStatusQueued,
	} {
		if counts[status] > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", status, counts[status])
		}
	}

	var lastFailure *database.JobRun
	for i := range runs {
		if runs[i].Status == database.RunStatusFailed {
			lastFailure = &runs[i]
			break
		}
	}
	if lastFailure != nil {
		fmt.Fprintf(&b, "Last failure: %s (%s)", lastFailure.Identifier, lastFailure.Error.String)
	}

	return strings.TrimRight(b.String(), "\n")
}

// PurgeHistory deletes the entire run history older than a given number of
// days. It is destructive, so end users may not schedule it; only the admin
// path can.
type PurgeHistory struct {
	store  database.Store
	logger *slog.Logger
}

// NewPurgeHistory constructs the use case.
func NewPurgeHistory(store database.Store, logger *slog.Logger) *PurgeHistory {
	return &PurgeHistory{store: store, logger: logger}
}

// Schedulable reports that end users may NOT schedule this use case.
func (p *PurgeHistory) Schedulable() bool { return false }

// Do prunes runs older than the "days" parameter (default 0, i.e. all
// terminal history).
func (p *PurgeHistory) Do(ctx context.Context, params map[string]any) (string, error) {
	days := 0
	if v, ok := params["days"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return "", fmt.Errorf("invalid days parameter: %v", v)
		}
		days = int(f)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	count, err := p.store.PruneRuns(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("history purge failed: %w", err)
	}

	p.logger.InfoContext(ctx, "Run history purged", "removed", count, "cutoff", cutoff)
	return fmt.Sprintf("Purged %d run records.", count), nil
}

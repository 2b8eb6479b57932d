package builtin_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"botjobs/internal/config"
	"botjobs/internal/database"
	"botjobs/internal/jobs"
	"botjobs/internal/jobs/builtin"
)

// fakeStore implements only the Store methods the built-in jobs reach for;
// anything else panics through the embedded nil interface.
type fakeStore struct {
	database.Store

	maintained  bool
	pruned      int64
	pruneCutoff time.Time
}

func (s *fakeStore) RunSQLMaintenance(context.Context) error {
	s.maintained = true
	return nil
}

func (s *fakeStore) PruneRuns(_ context.Context, olderThan time.Time) (int64, error) {
	s.pruneCutoff = olderThan
	return s.pruned, nil
}

func newDeps(store *fakeStore) builtin.Deps {
	return builtin.Deps{
		Store: store,
		Config: &config.Config{
			Scheduler: config.SchedulerConfig{RetentionDays: 30},
		},
	}
}

func register(t *testing.T, store *fakeStore) *jobs.Registry {
	t.Helper()
	r := jobs.NewRegistry(nil)
	if err := builtin.Register(r, newDeps(store)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return r
}

func TestSQLMaintenanceJob(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r := register(t, store)

	runnable, err := r.Resolve("sql_maintenance")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if _, err := runnable.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !store.maintained {
		t.Error("RunSQLMaintenance was not invoked")
	}
}

func TestCleanupRunsJob(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pruned: 5}
	r := register(t, store)

	runnable, err := r.Resolve("cleanup_runs")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	result, err := runnable.Run(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(result, "5") {
		t.Errorf("result %q does not report the pruned count", result)
	}

	// Default retention is 30 days.
	wantCutoff := time.Now().UTC().AddDate(0, 0, -30)
	if diff := store.pruneCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", store.pruneCutoff, wantCutoff)
	}
}

func TestCleanupRunsJobRetentionOverride(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r := register(t, store)

	runnable, err := r.Resolve("cleanup_runs")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	// JSON numbers arrive as float64.
	if _, err := runnable.Run(context.Background(), map[string]any{"retention_days": float64(7)}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	wantCutoff := time.Now().UTC().AddDate(0, 0, -7)
	if diff := store.pruneCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", store.pruneCutoff, wantCutoff)
	}

	if _, err := runnable.Run(context.Background(), map[string]any{"retention_days": "soon"}); err == nil {
		t.Error("non-numeric retention_days was accepted")
	}
	if _, err := runnable.Run(context.Background(), map[string]any{"retention_days": float64(0)}); err == nil {
		t.Error("zero retention_days was accepted")
	}
}

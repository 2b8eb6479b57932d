package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"botjobs/internal/database"
)

func newTestStore(t *testing.T, botID int64) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB returned error: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, botID, nil)
}

func sampleJob(name string) *database.ScheduledJob {
	return &database.ScheduledJob{
		Name:       name,
		Identifier: "cleanup",
		Schedule:   "@daily",
		Params:     `{"days": 7}`,
		Enabled:    true,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	job := sampleJob("nightly")
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	if job.ID == 0 {
		t.Error("CreateJob did not backfill the definition ID")
	}

	got, err := store.GetJobByName(ctx, "nightly")
	if err != nil {
		t.Fatalf("GetJobByName returned error: %v", err)
	}
	if got == nil {
		t.Fatal("GetJobByName returned nil for an existing job")
	}
	if got.Identifier != "cleanup" || got.Params != `{"days": 7}` || !got.Enabled {
		t.Errorf("stored job = %+v, fields do not round trip", got)
	}
	if got.TargetChats != "[]" {
		t.Errorf("TargetChats = %q, want default empty array", got.TargetChats)
	}

	byID, err := store.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID returned error: %v", err)
	}
	if byID == nil || byID.Name != "nightly" {
		t.Errorf("GetJobByID = %+v, want the same job", byID)
	}

	missing, err := store.GetJobByName(ctx, "ghost")
	if err != nil || missing != nil {
		t.Errorf("GetJobByName of missing job = %v, %v; want nil, nil", missing, err)
	}
}

func TestCreateJobDuplicateName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	if err := store.CreateJob(ctx, sampleJob("nightly")); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	err := store.CreateJob(ctx, sampleJob("nightly"))
	if !errors.Is(err, database.ErrJobExists) {
		t.Errorf("duplicate CreateJob error = %v, want ErrJobExists", err)
	}
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		job  *database.ScheduledJob
	}{
		{"nil job", nil},
		{"empty name", &database.ScheduledJob{Identifier: "x", Schedule: "@daily"}},
		{"empty identifier", &database.ScheduledJob{Name: "x", Schedule: "@daily"}},
		{"empty schedule", &database.ScheduledJob{Name: "x", Identifier: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.CreateJob(ctx, tt.job); err == nil {
				t.Error("invalid job was accepted")
			}
		})
	}
}

func TestBotScoping(t *testing.T) {
	t.Parallel()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB returned error: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	storeA := database.NewStore(db, 1, nil)
	storeB := database.NewStore(db, 2, nil)
	ctx := context.Background()

	if err := storeA.CreateJob(ctx, sampleJob("nightly")); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}

	// The same name is free for another bot, and invisible across bots.
	if err := storeB.CreateJob(ctx, sampleJob("nightly")); err != nil {
		t.Fatalf("CreateJob for second bot returned error: %v", err)
	}
	got, err := storeB.GetJobByName(ctx, "nightly")
	if err != nil {
		t.Fatalf("GetJobByName returned error: %v", err)
	}
	if got.BotID != 2 {
		t.Errorf("job BotID = %d, want 2", got.BotID)
	}

	if err := storeB.DeleteJob(ctx, "nightly"); err != nil {
		t.Fatalf("DeleteJob returned error: %v", err)
	}
	stillThere, err := storeA.GetJobByName(ctx, "nightly")
	if err != nil || stillThere == nil {
		t.Errorf("first bot's job disappeared after second bot's delete: %v, %v", stillThere, err)
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := store.CreateJob(ctx, sampleJob(name)); err != nil {
			t.Fatalf("CreateJob(%q) returned error: %v", name, err)
		}
	}
	if err := store.SetJobEnabled(ctx, "mid", false); err != nil {
		t.Fatalf("SetJobEnabled returned error: %v", err)
	}

	all, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListJobs = %d entries, want 3", len(all))
	}
	if all[0].Name != "alpha" || all[2].Name != "zeta" {
		t.Errorf("ListJobs not ordered by name: %v, %v", all[0].Name, all[2].Name)
	}

	enabled, err := store.ListEnabledJobs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledJobs returned error: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("ListEnabledJobs = %d entries, want 2", len(enabled))
	}
	for _, job := range enabled {
		if job.Name == "mid" {
			t.Error("disabled job listed as enabled")
		}
	}
}

func TestSetJobEnabledAndDeleteMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	if err := store.SetJobEnabled(ctx, "ghost", true); !errors.Is(err, database.ErrJobNotFound) {
		t.Errorf("SetJobEnabled of missing job error = %v, want ErrJobNotFound", err)
	}
	if err := store.DeleteJob(ctx, "ghost"); !errors.Is(err, database.ErrJobNotFound) {
		t.Errorf("DeleteJob of missing job error = %v, want ErrJobNotFound", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	job := sampleJob("nightly")
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}

	run := &database.JobRun{
		ID:         "run-1",
		JobID:      job.ID,
		Identifier: job.Identifier,
		Status:     database.RunStatusQueued,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun returned error: %v", err)
	}

	started := time.Now().UTC()
	if err := store.MarkRunRunning(ctx, "run-1", started); err != nil {
		t.Fatalf("MarkRunRunning returned error: %v", err)
	}
	if err := store.TouchJobLastRun(ctx, job.ID, started); err != nil {
		t.Fatalf("TouchJobLastRun returned error: %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", database.RunStatusSucceeded, "all good", ""); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	runs, err := store.ListRecentRuns(ctx, job.ID, 10)
	if err != nil {
		t.Fatalf("ListRecentRuns returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRecentRuns = %d entries, want 1", len(runs))
	}
	got := runs[0]
	if got.Status != database.RunStatusSucceeded {
		t.Errorf("run status = %q, want %q", got.Status, database.RunStatusSucceeded)
	}
	if !got.Result.Valid || got.Result.String != "all good" {
		t.Errorf("run result = %+v, want %q", got.Result, "all good")
	}
	if !got.StartedAt.Valid || !got.FinishedAt.Valid {
		t.Errorf("run timestamps not recorded: %+v", got)
	}

	touched, err := store.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID returned error: %v", err)
	}
	if !touched.LastRunAt.Valid {
		t.Error("job last_run_at was not recorded")
	}
}

func TestFinishRunRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	if err := store.FinishRun(context.Background(), "run-1", database.RunStatusRunning, "", ""); err == nil {
		t.Error("non-terminal status was accepted")
	}
}

func TestDeleteJobCascadesRuns(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	job := sampleJob("nightly")
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	if err := store.CreateRun(ctx, &database.JobRun{
		ID: "run-1", JobID: job.ID, Identifier: job.Identifier,
	}); err != nil {
		t.Fatalf("CreateRun returned error: %v", err)
	}

	if err := store.DeleteJob(ctx, "nightly"); err != nil {
		t.Fatalf("DeleteJob returned error: %v", err)
	}

	runs, err := store.ListRecentRuns(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListRecentRuns returned error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs survived job deletion: %v", runs)
	}
}

func TestPruneRuns(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	ctx := context.Background()

	job := sampleJob("nightly")
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}

	for _, id := range []string{"old-done", "old-pending", "fresh"} {
		if err := store.CreateRun(ctx, &database.JobRun{
			ID: id, JobID: job.ID, Identifier: job.Identifier,
		}); err != nil {
			t.Fatalf("CreateRun(%q) returned error: %v", id, err)
		}
	}
	if err := store.FinishRun(ctx, "old-done", database.RunStatusFailed, "", "boom"); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}
	if err := store.FinishRun(ctx, "fresh", database.RunStatusSucceeded, "ok", ""); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	// Cutoff in the future: terminal runs go, the queued one stays.
	pruned, err := store.PruneRuns(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns returned error: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned %d runs, want 2", pruned)
	}

	runs, err := store.ListRecentRuns(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListRecentRuns returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "old-pending" {
		t.Errorf("remaining runs = %v, want only the queued run", runs)
	}
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, 1)
	if err := store.RunSQLMaintenance(context.Background()); err != nil {
		t.Errorf("RunSQLMaintenance returned error: %v", err)
	}
}

package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"botjobs/internal/workflow"
)

func stage(name string, fn workflow.StageFunc) workflow.Stage {
	return workflow.Stage{Name: name, Run: fn}
}

func appendStage(name string) workflow.Stage {
	return stage(name, func(_ context.Context, state workflow.State) (workflow.State, error) {
		order, _ := state["order"].([]string)
		state["order"] = append(order, name)
		return state, nil
	})
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	t.Parallel()

	p, err := workflow.New("test", nil, appendStage("load"), appendStage("tally"), appendStage("format"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	state, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got, _ := state["order"].([]string)
	want := "load,tally,format"
	if strings.Join(got, ",") != want {
		t.Errorf("stage order = %q, want %q", strings.Join(got, ","), want)
	}
}

func TestPipelineValidationIsBatch(t *testing.T) {
	t.Parallel()

	_, err := workflow.New("", nil,
		workflow.Stage{Name: "", Run: nil},
		appendStage("dup"),
		appendStage("dup"),
	)
	if err == nil {
		t.Fatal("invalid pipeline was accepted")
	}

	// Every problem must be reported, not just the first.
	for _, want := range []string{"name cannot be empty", "empty name", "duplicated"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestPipelineWrapsStageFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p, err := workflow.New("test", nil,
		appendStage("ok"),
		stage("explode", func(context.Context, workflow.State) (workflow.State, error) {
			return nil, boom
		}),
		appendStage("unreached"),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	state, err := p.Run(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), `stage "explode"`) {
		t.Errorf("error %q does not name the failing stage", err)
	}

	got, _ := state["order"].([]string)
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("stages run before failure = %v, want only %q", got, "ok")
	}
}

func TestPipelineInterruptionPassesThroughUnwrapped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stageErr error
	}{
		{"cancellation", context.Canceled},
		{"deadline", context.DeadlineExceeded},
		{"wrapped cancellation", fmt.Errorf("fetch: %w", context.Canceled)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := workflow.New("test", nil,
				stage("interrupted", func(context.Context, workflow.State) (workflow.State, error) {
					return nil, tt.stageErr
				}),
			)
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}

			_, err = p.Run(context.Background(), nil)
			if !errors.Is(err, tt.stageErr) {
				t.Fatalf("Run error = %v, want %v", err, tt.stageErr)
			}
			if strings.Contains(err.Error(), "stage") {
				t.Errorf("interruption was wrapped with stage context: %q", err)
			}
		})
	}
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	ran := false
	p, err := workflow.New("test", nil,
		stage("canceller", func(context.Context, workflow.State) (workflow.State, error) {
			cancel()
			return nil, nil
		}),
		stage("unreached", func(context.Context, workflow.State) (workflow.State, error) {
			ran = true
			return nil, nil
		}),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = p.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("stage after cancellation still ran")
	}
}

// Package workflow implements fixed workflows: predetermined, ordered
// sequences of named processing stages. Fixed pipelines are preferred over
// open-ended agent loops because their behavior is predictable: the stage
// list is declared up front and runs in order, every time.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State is the value threaded through a pipeline. Each stage receives the
// state produced by the previous one.
type State map[string]any

// StageFunc is the body of a single processing stage.
type StageFunc func(ctx context.Context, state State) (State, error)

// Stage is one named step in a fixed workflow.
type Stage struct {
	Name string
	Run  StageFunc
}

// Pipeline runs a fixed sequence of stages in declaration order.
type Pipeline struct {
	name   string
	stages []Stage
	logger *slog.Logger
}

// New validates the stage list and returns a pipeline. Validation is
// batch-style: every problem with the stage definitions is collected and
// reported together, not just the first one found.
func New(name string, logger *slog.Logger, stages ...Stage) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	if name == "" {
		errs = append(errs, fmt.Errorf("pipeline name cannot be empty"))
	}
	if len(stages) == 0 {
		errs = append(errs, fmt.Errorf("pipeline must have at least one stage"))
	}

	seen := make(map[string]bool, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			errs = append(errs, fmt.Errorf("stage %d has an empty name", i))
			continue
		}
		if st.Run == nil {
			errs = append(errs, fmt.Errorf("stage %q has a nil func", st.Name))
		}
		if seen[st.Name] {
			errs = append(errs, fmt.Errorf("stage name %q is duplicated", st.Name))
		}
		seen[st.Name] = true
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Pipeline{
		name:   name,
		stages: stages,
		logger: logger.With("component", "workflow", "pipeline", name),
	}, nil
}

// Run executes the stages in order, threading the state value through.
//
// An interruption is never intercepted: when the context is cancelled, or a
// stage returns an error wrapping context.Canceled or
// context.DeadlineExceeded, Run stops and hands that error to the caller
// unmodified, with no wrapping or substitution.
// Other stage failures are wrapped with the stage name.
func (p *Pipeline) Run(ctx context.Context, initial State) (State, error) {
	state := initial
	if state == nil {
		state = State{}
	}

	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			p.logger.WarnContext(ctx, "Pipeline interrupted before stage", "stage", st.Name)
			return state, err
		}

		p.logger.DebugContext(ctx, "Running stage", "stage", st.Name)
		startTime := time.Now()

		next, err := st.Run(ctx, state)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.logger.WarnContext(ctx, "Pipeline interrupted in stage",
					"stage", st.Name, "duration", time.Since(startTime))
				return state, err
			}
			p.logger.ErrorContext(ctx, "Stage failed",
				"stage", st.Name, "duration", time.Since(startTime), "error", err)
			return state, fmt.Errorf("stage %q: %w", st.Name, err)
		}

		if next != nil {
			state = next
		}
		p.logger.DebugContext(ctx, "Stage completed", "stage", st.Name, "duration", time.Since(startTime))
	}

	return state, nil
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string {
	return p.name
}

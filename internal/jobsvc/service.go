// Package jobsvc implements the job definition service shared by the
// Telegram admin commands and the CLI: it validates definitions, persists
// them, and keeps the dispatcher in sync with the store.
package jobsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"botjobs/internal/database"
	"botjobs/internal/jobs"
	"botjobs/internal/scheduler"
)

// ErrValidation wraps all definition validation failures. Callers can
// errors.Is against it to distinguish bad input from infrastructure errors.
var ErrValidation = errors.New("invalid job definition")

// ErrNotSchedulable is returned when an end user tries to schedule a use
// case that declares itself non-schedulable.
var ErrNotSchedulable = errors.New("use case may not be scheduled by users")

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Dispatcher is the slice of the scheduler the service needs. Nil when the
// service runs without a live dispatcher (CLI maintenance mode).
type Dispatcher interface {
	Resync(ctx context.Context) error
	RunNow(ctx context.Context, def *database.ScheduledJob) error
}

// Service validates and persists job definitions.
type Service struct {
	logger        *slog.Logger
	store         database.Store
	registry      *jobs.Registry
	dispatcher    Dispatcher
	resyncTimeout time.Duration
}

// New creates a Service. dispatcher may be nil; mutations then skip the
// resync step. resyncTimeout bounds the dispatcher resync after each
// mutation; zero means no bound.
func New(logger *slog.Logger, store database.Store, registry *jobs.Registry, dispatcher Dispatcher, resyncTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:        logger.With("component", "jobsvc"),
		store:         store,
		registry:      registry,
		dispatcher:    dispatcher,
		resyncTimeout: resyncTimeout,
	}
}

// AddRequest describes a job definition to create.
type AddRequest struct {
	Name       string
	Identifier string
	Schedule   string
	Params     string
	ChatIDs    []int64

	// AllowUnschedulable bypasses the user-schedulability check. Set only
	// on the operator CLI path, never for end-user surfaces.
	AllowUnschedulable bool
}

// Add validates req in one batch and persists the definition. All
// validation problems are reported together, wrapped in ErrValidation.
func (s *Service) Add(ctx context.Context, req AddRequest) (*database.ScheduledJob, error) {
	var issues []error

	if !nameRe.MatchString(req.Name) {
		issues = append(issues, fmt.Errorf("name %q must match %s", req.Name, nameRe))
	}

	runnable, err := s.registry.Resolve(req.Identifier)
	if err != nil {
		issues = append(issues, err)
	} else if !runnable.Schedulable && !req.AllowUnschedulable {
		issues = append(issues, fmt.Errorf("%w: %q", ErrNotSchedulable, req.Identifier))
	}

	if err := scheduler.ValidateSchedule(req.Schedule); err != nil {
		issues = append(issues, err)
	}

	if _, err := jobs.DecodeParams(req.Params); err != nil {
		issues = append(issues, err)
	}

	if len(issues) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, errors.Join(issues...))
	}

	def := &database.ScheduledJob{
		Name:       req.Name,
		Identifier: req.Identifier,
		Schedule:   req.Schedule,
		Params:     req.Params,
		Enabled:    true,
	}
	if err := def.SetChatIDs(req.ChatIDs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.store.CreateJob(ctx, def); err != nil {
		return nil, err
	}

	s.resync(ctx)
	s.logger.InfoContext(ctx, "Job definition added",
		"job", def.Name, "identifier", def.Identifier, "schedule", def.Schedule)
	return def, nil
}

// Remove deletes a job definition and its run history.
func (s *Service) Remove(ctx context.Context, name string) error {
	if err := s.store.DeleteJob(ctx, name); err != nil {
		return err
	}
	s.resync(ctx)
	s.logger.InfoContext(ctx, "Job definition removed", "job", name)
	return nil
}

// SetEnabled flips a definition's enabled flag.
func (s *Service) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if err := s.store.SetJobEnabled(ctx, name, enabled); err != nil {
		return err
	}
	s.resync(ctx)
	s.logger.InfoContext(ctx, "Job definition toggled", "job", name, "enabled", enabled)
	return nil
}

// List returns every job definition for the bot.
func (s *Service) List(ctx context.Context) ([]database.ScheduledJob, error) {
	return s.store.ListJobs(ctx)
}

// Runs returns the recent run history of the named job, or of all jobs when
// name is empty.
func (s *Service) Runs(ctx context.Context, name string, limit int) ([]database.JobRun, error) {
	var jobID uint
	if name != "" {
		def, err := s.store.GetJobByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, fmt.Errorf("%w: %q", database.ErrJobNotFound, name)
		}
		jobID = def.ID
	}
	return s.store.ListRecentRuns(ctx, jobID, limit)
}

// RunNow dispatches the named job immediately.
func (s *Service) RunNow(ctx context.Context, name string) error {
	def, err := s.store.GetJobByName(ctx, name)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: %q", database.ErrJobNotFound, name)
	}
	if s.dispatcher == nil {
		return fmt.Errorf("no dispatcher available to run job %q", name)
	}
	return s.dispatcher.RunNow(ctx, def)
}

func (s *Service) resync(ctx context.Context) {
	if s.dispatcher == nil {
		return
	}
	if s.resyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resyncTimeout)
		defer cancel()
	}
	if err := s.dispatcher.Resync(ctx); err != nil {
		// The store is already updated; the dispatcher catches up on the
		// next restart at worst.
		s.logger.ErrorContext(ctx, "Failed to resync dispatcher after mutation", "error", err)
	}
}

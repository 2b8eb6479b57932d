// Package jobs implements the job registry for botjobs: the mapping from a
// persisted job identifier to an executable unit, the use-case contract for
// class-based jobs, and the dependency injector that constructs them from a
// pool of singleton services.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UseCasePrefix marks identifiers that address a class-based use case by
// qualified path, e.g. "usecase:report.DailyDigest". Identifiers without the
// prefix address a plain registered function by short name.
const UseCasePrefix = "usecase:"

// Sentinel errors callers branch on.
var (
	// ErrUnknownJob is returned when an identifier does not resolve to a
	// registered function or use case.
	ErrUnknownJob = errors.New("unknown job identifier")

	// ErrBadIdentifier is returned for syntactically invalid identifiers.
	ErrBadIdentifier = errors.New("invalid job identifier")
)

// JobFunc is the signature of a plain function job. The context provided by
// the runner must be respected for cancellation; the returned string is the
// result text delivered to the job's target chats (empty means nothing to
// deliver).
type JobFunc func(ctx context.Context, params map[string]any) (string, error)

// Runnable is a resolved executable unit, ready to be invoked by the runner.
type Runnable struct {
	// Identifier is the canonical identifier the unit was resolved from.
	Identifier string

	// Schedulable reports whether end users may configure and schedule
	// this unit. Plain function jobs are always operator-registered and
	// therefore schedulable; use cases declare it themselves.
	Schedulable bool

	run JobFunc
}

// Run invokes the executable unit.
func (r Runnable) Run(ctx context.Context, params map[string]any) (string, error) {
	return r.run(ctx, params)
}

// Registry maps job identifiers to executable units. Plain functions are
// registered under a short name; use cases are registered under a qualified
// path together with a constructor whose parameters the injector satisfies
// from the service pool.
//
// Registration happens once at startup before the scheduler starts, so the
// registry does no locking.
type Registry struct {
	funcs    map[string]JobFunc
	usecases map[string]useCaseEntry
	pool     *ServicePool
}

type useCaseEntry struct {
	ctor any
}

// NewRegistry creates an empty registry backed by the given service pool.
func NewRegistry(pool *ServicePool) *Registry {
	if pool == nil {
		pool = NewServicePool()
	}
	return &Registry{
		funcs:    make(map[string]JobFunc),
		usecases: make(map[string]useCaseEntry),
		pool:     pool,
	}
}

// Pool returns the service pool backing use-case construction.
func (r *Registry) Pool() *ServicePool {
	return r.pool
}

// RegisterFunc registers a plain function job under name. The name must not
// contain the use-case prefix separator.
func (r *Registry) RegisterFunc(name string, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrBadIdentifier)
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("%w: plain job name %q must not contain ':'", ErrBadIdentifier, name)
	}
	if fn == nil {
		return fmt.Errorf("job %q: nil function", name)
	}
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("job %q is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// RegisterUseCase registers a use-case constructor under its qualified path
// (e.g. "report.DailyDigest"). The constructor must be a func whose
// parameters can be satisfied from the service pool and which returns a
// UseCase, optionally with a trailing error. Constructor shape is validated
// eagerly so misregistrations surface at startup, not at dispatch time.
func (r *Registry) RegisterUseCase(path string, ctor any) error {
	if path == "" || strings.Contains(path, ":") {
		return fmt.Errorf("%w: use case path %q", ErrBadIdentifier, path)
	}
	if _, exists := r.usecases[path]; exists {
		return fmt.Errorf("use case %q is already registered", path)
	}
	if err := r.pool.CheckConstructor(ctor); err != nil {
		return fmt.Errorf("use case %q: %w", path, err)
	}
	r.usecases[path] = useCaseEntry{ctor: ctor}
	return nil
}

// Resolve parses identifier and returns the executable unit it addresses.
// Use cases are constructed on every resolution so each run gets a fresh
// instance wired to the current singletons.
func (r *Registry) Resolve(identifier string) (Runnable, error) {
	if identifier == "" {
		return Runnable{}, fmt.Errorf("%w: empty identifier", ErrBadIdentifier)
	}

	if path, ok := strings.CutPrefix(identifier, UseCasePrefix); ok {
		if path == "" {
			return Runnable{}, fmt.Errorf("%w: %q has an empty use case path", ErrBadIdentifier, identifier)
		}
		entry, exists := r.usecases[path]
		if !exists {
			return Runnable{}, fmt.Errorf("%w: %q", ErrUnknownJob, identifier)
		}

		uc, err := r.pool.Construct(entry.ctor)
		if err != nil {
			return Runnable{}, fmt.Errorf("failed to construct use case %q: %w", path, err)
		}

		schedulable := true
		if us, ok := uc.(UserSchedulable); ok {
			schedulable = us.Schedulable()
		}

		return Runnable{
			Identifier:  identifier,
			Schedulable: schedulable,
			run:         uc.Do,
		}, nil
	}

	if strings.Contains(identifier, ":") {
		return Runnable{}, fmt.Errorf("%w: unknown prefix in %q", ErrBadIdentifier, identifier)
	}

	fn, exists := r.funcs[identifier]
	if !exists {
		return Runnable{}, fmt.Errorf("%w: %q", ErrUnknownJob, identifier)
	}

	return Runnable{
		Identifier:  identifier,
		Schedulable: true,
		run:         fn,
	}, nil
}

// Identifiers returns every registered identifier in canonical form, plain
// function names first. Used by the admin listing commands.
func (r *Registry) Identifiers() []string {
	ids := make([]string, 0, len(r.funcs)+len(r.usecases))
	for name := range r.funcs {
		ids = append(ids, name)
	}
	for path := range r.usecases {
		ids = append(ids, UseCasePrefix+path)
	}
	return ids
}

package jobs

import (
	"errors"
	"fmt"
	"reflect"
)

// errorType is the reflected error interface, used to recognize trailing
// error returns on constructors.
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// useCaseType is the reflected UseCase interface.
var useCaseType = reflect.TypeOf((*UseCase)(nil)).Elem()

// ServicePool is the fixed set of singleton services available to use-case
// constructors. Services are registered once at startup under a name; the
// injector satisfies each constructor parameter with the single pool entry
// whose type fits it. The name is used for diagnostics and duplicate
// detection; Go does not expose parameter names at runtime, so matching is
// by assignable type.
type ServicePool struct {
	services []service
	byName   map[string]int
}

type service struct {
	name  string
	value reflect.Value
}

// NewServicePool creates an empty service pool.
func NewServicePool() *ServicePool {
	return &ServicePool{byName: make(map[string]int)}
}

// Register adds a singleton service to the pool under name. Nil services
// and duplicate names are rejected.
func (p *ServicePool) Register(name string, svc any) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if svc == nil {
		return fmt.Errorf("service %q is nil", name)
	}
	if _, exists := p.byName[name]; exists {
		return fmt.Errorf("service %q is already registered", name)
	}

	v := reflect.ValueOf(svc)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return fmt.Errorf("service %q is a nil pointer", name)
	}

	p.byName[name] = len(p.services)
	p.services = append(p.services, service{name: name, value: v})
	return nil
}

// MustRegister is Register that panics on error, for use in startup wiring
// where a failure is a programming bug.
func (p *ServicePool) MustRegister(name string, svc any) {
	if err := p.Register(name, svc); err != nil {
		panic(fmt.Sprintf("service pool: %v", err))
	}
}

// CheckConstructor validates the shape of ctor and that every parameter can
// be satisfied from the pool, without invoking it. All problems are
// collected and reported together rather than failing on the first.
func (p *ServicePool) CheckConstructor(ctor any) error {
	_, err := p.resolveArgs(ctor)
	return err
}

// Construct invokes ctor with arguments resolved from the pool and returns
// the constructed use case. Constructors may return (UseCase) or
// (UseCase, error).
func (p *ServicePool) Construct(ctor any) (UseCase, error) {
	args, err := p.resolveArgs(ctor)
	if err != nil {
		return nil, err
	}

	results := reflect.ValueOf(ctor).Call(args)

	if len(results) == 2 {
		if errVal := results[1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}

	out := results[0]
	if out.Kind() == reflect.Ptr && out.IsNil() {
		return nil, fmt.Errorf("constructor returned a nil use case")
	}

	uc, ok := out.Interface().(UseCase)
	if !ok {
		// Unreachable once resolveArgs accepted the constructor, but the
		// type assertion keeps the compiler honest about interface values.
		return nil, fmt.Errorf("constructor result does not implement UseCase")
	}
	return uc, nil
}

// resolveArgs validates the constructor shape and resolves one pool entry
// per parameter. Problems across all parameters are joined into one error.
func (p *ServicePool) resolveArgs(ctor any) ([]reflect.Value, error) {
	if ctor == nil {
		return nil, fmt.Errorf("constructor is nil")
	}

	t := reflect.TypeOf(ctor)
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a func, got %s", t.Kind())
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("constructor must not be variadic")
	}

	switch t.NumOut() {
	case 1:
		if !t.Out(0).Implements(useCaseType) {
			return nil, fmt.Errorf("constructor must return a UseCase, returns %s", t.Out(0))
		}
	case 2:
		if !t.Out(0).Implements(useCaseType) {
			return nil, fmt.Errorf("constructor must return a UseCase, returns %s", t.Out(0))
		}
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("constructor's second return must be error, is %s", t.Out(1))
		}
	default:
		return nil, fmt.Errorf("constructor must return (UseCase) or (UseCase, error)")
	}

	args := make([]reflect.Value, t.NumIn())
	var errs []error
	for i := 0; i < t.NumIn(); i++ {
		paramType := t.In(i)

		var matches []service
		for _, svc := range p.services {
			if svc.value.Type().AssignableTo(paramType) {
				matches = append(matches, svc)
			}
		}

		switch len(matches) {
		case 1:
			args[i] = matches[0].value
		case 0:
			errs = append(errs, fmt.Errorf("parameter %d (%s): no registered service satisfies it", i, paramType))
		default:
			names := make([]string, len(matches))
			for j, m := range matches {
				names[j] = m.name
			}
			errs = append(errs, fmt.Errorf("parameter %d (%s): ambiguous, satisfied by services %v", i, paramType, names))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return args, nil
}

package ioc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-ioc/registry"
)

// tagOptions represents parsed options from an inject tag.
type tagOptions struct {
	skip     bool // Don't inject this field
	optional bool // Leave the field empty if nothing provides it
}

// parseInjectTag parses an inject struct tag and returns options.
// Supported formats:
//   - `inject:""` - basic injection
//   - `inject:"optional"` - optional injection
//   - `inject:"-"` - skip the field
func parseInjectTag(tag string) tagOptions {
	opts := tagOptions{}

	if tag == "-" {
		opts.skip = true
		return opts
	}

	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == "optional" {
			opts.optional = true
		}
	}

	return opts
}

// injectableFields classifies the inject-tagged fields of struct type t.
// Dependencies carry the field index in Field.
func (r *Resolver) injectableFields(t reflect.Type) ([]registry.Dependency, error) {
	var deps []registry.Dependency

	for _, cached := range r.reflectionCache.getFieldInfo(t) {
		if !cached.isInjectable {
			continue
		}
		opts := parseInjectTag(cached.tag)
		if opts.skip {
			continue
		}

		dep, err := classify(cached.typ)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", cached.name, err)
		}
		dep.Field = cached.index
		dep.Optional = opts.optional && dep.Arity == registry.ArityOne
		deps = append(deps, dep)
	}

	return deps, nil
}

// fieldPlan synthesizes a constructor for a pointer-to-struct type that
// declares none: the struct is allocated with reflect.New and its
// inject-tagged fields are filled from the positional arguments.
func (r *Resolver) fieldPlan(t reflect.Type) (*plan, error) {
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("no constructors and %v is not a pointer to struct", t)
	}

	deps, err := r.injectableFields(t)
	if err != nil {
		return nil, err
	}

	return &plan{
		deps:  deps,
		arity: registry.ArityOne,
		invoke: func(args []reflect.Value) ([]any, error) {
			instance := reflect.New(t.Elem())
			setFields(instance.Elem(), deps, args)
			return []any{instance.Interface()}, nil
		},
	}, nil
}

func setFields(structValue reflect.Value, deps []registry.Dependency, args []reflect.Value) {
	for i, dep := range deps {
		if args[i].IsValid() {
			structValue.Field(dep.Field).Set(args[i])
		}
	}
}

// Inject fills the inject-tagged fields of an existing struct from the
// resolver, the same way constructor-less components are built.
//
// Supported tag options:
//   - `inject:""` - required
//   - `inject:"optional"` - left nil if nothing provides it
//   - `inject:"-"` - skipped
//
// Example:
//
//	type Handler struct {
//	    Greeter  Greeter   `inject:""`
//	    Plugins  []Plugin  `inject:""`
//	    Tracer   Tracer    `inject:"optional"`
//	}
//
//	h := &Handler{}
//	err := resolver.Inject(h)
func (r *Resolver) Inject(target any) error {
	if target == nil {
		return fmt.Errorf("cannot inject into nil")
	}

	value := reflect.ValueOf(target)
	if value.Kind() != reflect.Ptr || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("Inject requires a non-nil pointer to struct, got %T", target)
	}

	deps, err := r.injectableFields(value.Type())
	if err != nil {
		return err
	}

	r.ensureDiscovered()
	if r.closed.Load() {
		return ErrClosed
	}

	capabilities := make([]reflect.Type, len(deps))
	for i, dep := range deps {
		capabilities[i] = dep.Capability
	}
	r.ensureKnown(capabilities...)

	r.mu.Lock()
	args, err := r.argumentsLocked(value.Type().String(), deps)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	setFields(value.Elem(), deps, args)
	return nil
}

// argumentsLocked resolves deps into positional arguments. A missing
// optional dependency yields an invalid Value, which leaves the zero value
// in place. Callers must hold r.mu.
func (r *Resolver) argumentsLocked(dependent string, deps []registry.Dependency) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(deps))

	for i, dep := range deps {
		switch dep.Arity {
		case registry.ArityArray, registry.AritySequence:
			instances, err := r.resolveAllLocked(dep.Target)
			if err != nil {
				return nil, dependencyFailed(dependent, dep.Target, err)
			}
			build := sliceOf
			if dep.Arity == registry.AritySequence {
				build = seqOf
			}
			v, err := build(dep.Type, instances)
			if err != nil {
				return nil, dependencyFailed(dependent, dep.Target, err)
			}
			args[i] = v

		default:
			instance, err := r.resolveLocked(dep.Target)
			if err != nil {
				var notFound *NotFoundError
				if dep.Optional && errors.As(err, &notFound) && notFound.Capability == dep.Target {
					args[i] = reflect.Zero(dep.Type)
					continue
				}
				return nil, dependencyFailed(dependent, dep.Target, err)
			}
			v, err := valueOf(dep.Type, instance)
			if err != nil {
				return nil, dependencyFailed(dependent, dep.Target, err)
			}
			args[i] = v
		}
	}

	return args, nil
}

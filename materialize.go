package ioc

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-ioc/registry"
)

// materializeLocked builds reg's instances if it is not yet initialized.
// Callers must hold r.mu.
func (r *Resolver) materializeLocked(reg *registry.Registration) error {
	if reg.Initialized() {
		return nil
	}

	for i, b := range r.building {
		if b == reg {
			path := make([]string, 0, len(r.building)-i+1)
			for _, link := range r.building[i:] {
				path = append(path, link.Name)
			}
			return &CircularDependencyError{Path: append(path, reg.Name)}
		}
	}

	if r.adoptExisting(reg) {
		r.logger.Debug("instance shared", zap.String("registration", reg.Name))
		return nil
	}

	r.building = append(r.building, reg)
	defer func() { r.building = r.building[:len(r.building)-1] }()

	args, err := r.argumentsLocked(reg.Name, reg.Dependencies)
	if err != nil {
		r.metrics.constructed(reg.Mode, err)
		return err
	}

	instances, err := reg.Invoke(args)
	if err == nil {
		err = initialize(instances)
	}
	if err != nil {
		err = &ConstructionError{Registration: reg.Name, Cause: err}
		r.metrics.constructed(reg.Mode, err)
		return err
	}

	reg.Add(instances...)
	r.created = append(r.created, instances...)
	r.propagate(reg, instances)
	reg.MarkInitialized()
	r.metrics.constructed(reg.Mode, nil)

	r.logger.Debug("materialized",
		zap.String("registration", reg.Name),
		zap.Stringer("mode", reg.Mode),
		zap.Int("instances", len(instances)),
	)
	return nil
}

// adoptExisting shares instances of reg's concrete type already built by
// another registration, so a concrete type yields one instance however many
// capabilities it is filed under. Prebound instances win.
func (r *Resolver) adoptExisting(reg *registry.Registration) bool {
	if reg.Type == nil {
		return false
	}

	var found []any
	for _, other := range r.registry.ByType(reg.Type) {
		if other == reg || !other.Initialized() {
			continue
		}
		matching := ofType(other.Instances(), reg.Type)
		if len(matching) == 0 {
			continue
		}
		if other.Mode == registry.ModePreboundInstance {
			found = matching
			break
		}
		if found == nil {
			found = matching
		}
	}

	if found == nil {
		return false
	}
	reg.Adopt(found)
	return true
}

// propagate links each new instance to its concrete type and hands it to
// every other unbuilt registration declared for that type.
func (r *Resolver) propagate(reg *registry.Registration, instances []any) {
	byType := make(map[reflect.Type][]any)
	var order []reflect.Type
	for _, instance := range instances {
		t := reflect.TypeOf(instance)
		if _, seen := byType[t]; !seen {
			order = append(order, t)
		}
		byType[t] = append(byType[t], instance)
	}

	for _, t := range order {
		r.registry.Link(t, reg)
		for _, other := range r.registry.ByType(t) {
			if other == reg || other.Type != t || other.Initialized() || r.isBuilding(other) {
				continue
			}
			other.Adopt(byType[t])
			r.logger.Debug("instance propagated",
				zap.String("from", reg.Name),
				zap.String("to", other.Name),
			)
		}
	}
}

func (r *Resolver) isBuilding(reg *registry.Registration) bool {
	for _, b := range r.building {
		if b == reg {
			return true
		}
	}
	return false
}

func ofType(instances []any, t reflect.Type) []any {
	var out []any
	for _, instance := range instances {
		if reflect.TypeOf(instance) == t {
			out = append(out, instance)
		}
	}
	return out
}

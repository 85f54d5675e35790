package registry

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Key identifies a capability. Two capabilities are equal iff their keys are.
type Key string

// KeyOf returns the key for a capability type.
// Named types use their full package path so that equally named interfaces
// from different packages never collide.
func KeyOf(t reflect.Type) Key {
	if t == nil {
		return ""
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return Key(t.PkgPath() + "." + t.Name())
	}
	return Key(t.String())
}

// String returns the key as a string.
func (k Key) String() string {
	return string(k)
}

// Dependency describes one constructor or factory parameter, or one injected
// struct field.
type Dependency struct {
	// Target is the capability the dependency is satisfied from.
	Target Key

	// Capability is the interface type behind Target.
	Capability reflect.Type

	// Type is the parameter type as declared: the capability itself, a slice
	// of it or an iter.Seq of it.
	Type reflect.Type

	// Arity is fixed at registration time.
	Arity Arity

	// Optional dependencies resolve to the zero value when nothing provides
	// them. Only injected fields can be optional.
	Optional bool

	// Field is the struct field index for injected fields, -1 for parameters.
	Field int
}

// Invoker calls a bound constructor or factory with positional arguments and
// returns the produced instances.
type Invoker func(args []reflect.Value) ([]any, error)

// Registration binds a concrete type, factory or prebound instance to one or
// more capabilities. A registration filed under several capabilities is the
// same object in each bucket.
type Registration struct {
	// Name is the concrete type name or the factory function name.
	Name string

	// Type is the concrete type. It is nil for factories, whose produced
	// types are only known after invocation.
	Type reflect.Type

	Mode         Mode
	Arity        Arity
	Dependencies []Dependency
	Invoke       Invoker

	mu          sync.RWMutex
	caps        []Key
	instances   []any
	initialized atomic.Bool
}

// NewPrebound returns an initialized registration holding instance.
func NewPrebound(instance any) *Registration {
	t := reflect.TypeOf(instance)
	reg := &Registration{
		Name:      t.String(),
		Type:      t,
		Mode:      ModePreboundInstance,
		instances: []any{instance},
	}
	reg.initialized.Store(true)
	return reg
}

// Capabilities returns the capabilities the registration is filed under.
func (r *Registration) Capabilities() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Key, len(r.caps))
	copy(out, r.caps)
	return out
}

// Initialized reports whether the instance list is final.
func (r *Registration) Initialized() bool {
	return r.initialized.Load()
}

// Instances returns a copy of the instance list.
func (r *Registration) Instances() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]any, len(r.instances))
	copy(out, r.instances)
	return out
}

// First returns the first instance, if any.
func (r *Registration) First() (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.instances) == 0 {
		return nil, false
	}
	return r.instances[0], true
}

// Add appends instances. It has no effect once the registration is
// initialized.
func (r *Registration) Add(instances ...any) {
	if r.Initialized() {
		return
	}
	r.mu.Lock()
	r.instances = append(r.instances, instances...)
	r.mu.Unlock()
}

// MarkInitialized finalizes the instance list, even when it is empty.
func (r *Registration) MarkInitialized() {
	r.initialized.Store(true)
}

// Adopt takes over instances built elsewhere and finalizes the registration.
func (r *Registration) Adopt(instances []any) {
	r.Add(instances...)
	r.MarkInitialized()
}

// sameIdentity reports whether two registrations describe the same component.
// Concrete types compare by type, factories by name.
func (r *Registration) sameIdentity(other *Registration) bool {
	if r == other {
		return true
	}
	if r.Type != nil || other.Type != nil {
		return r.Type == other.Type
	}
	return r.Name == other.Name
}

func (r *Registration) addCapability(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.caps {
		if k == key {
			return
		}
	}
	r.caps = append(r.caps, key)
}

// Package registry provides thread-safe storage of component registrations,
// keyed by capability and indexed by concrete type.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry maps capabilities to the ordered registrations that satisfy them.
// Insertion order is discovery order and is significant: single resolution
// always uses the first registration of a capability.
type Registry struct {
	mu       sync.RWMutex
	buckets  map[Key][]*Registration
	byType   map[reflect.Type][]*Registration
	order    []*Registration
	known    map[*Registration]struct{}
	rejected map[Key]error
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		buckets:  make(map[Key][]*Registration),
		byType:   make(map[reflect.Type][]*Registration),
		known:    make(map[*Registration]struct{}),
		rejected: make(map[Key]error),
	}
}

// Register files a registration under the given capabilities and returns the
// capabilities it was actually filed under. A capability that already holds
// a registration with the same identity (concrete type, or factory name) is
// skipped silently, so repeated discovery never duplicates entries.
//
// Registering an already known registration again files it under any new
// capabilities.
//
// This method is goroutine-safe.
func (r *Registry) Register(reg *Registration, caps ...Key) ([]Key, error) {
	if reg == nil {
		return nil, fmt.Errorf("registration cannot be nil")
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("registration %s has no capabilities", reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var filed []Key
	for _, key := range caps {
		if key == "" || r.holds(key, reg) {
			continue
		}
		r.buckets[key] = append(r.buckets[key], reg)
		reg.addCapability(key)
		filed = append(filed, key)
	}

	if len(filed) > 0 {
		if _, ok := r.known[reg]; !ok {
			r.known[reg] = struct{}{}
			r.order = append(r.order, reg)
		}
		if reg.Type != nil {
			r.linkLocked(reg.Type, reg)
		}
	}

	return filed, nil
}

func (r *Registry) holds(key Key, reg *Registration) bool {
	for _, existing := range r.buckets[key] {
		if existing.sameIdentity(reg) {
			return true
		}
	}
	return false
}

// Get returns the registrations filed under key in discovery order.
// Returns nil if none exist.
//
// This method is goroutine-safe.
func (r *Registry) Get(key Key) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.buckets[key]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]*Registration, len(bucket))
	copy(out, bucket)
	return out
}

// First returns the first registration filed under key.
func (r *Registry) First(key Key) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.buckets[key]
	if len(bucket) == 0 {
		return nil, false
	}
	return bucket[0], true
}

// Has checks if any registration is filed under key.
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.buckets[key]) > 0
}

// Keys returns every capability with at least one registration, sorted.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// All returns every registration once, in discovery order.
func (r *Registry) All() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// ByType returns the registrations linked to a concrete type: those declared
// for it and those that produced an instance of it.
func (r *Registry) ByType(t reflect.Type) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.byType[t]
	out := make([]*Registration, len(regs))
	copy(out, regs)
	return out
}

// Link indexes reg under concrete type t.
func (r *Registry) Link(t reflect.Type, reg *Registration) {
	if t == nil || reg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.linkLocked(t, reg)
}

func (r *Registry) linkLocked(t reflect.Type, reg *Registration) {
	for _, existing := range r.byType[t] {
		if existing == reg {
			return
		}
	}
	r.byType[t] = append(r.byType[t], reg)
}

// Reject records why a candidate for key was refused at discovery.
// Only the first rejection per capability is kept.
func (r *Registry) Reject(key Key, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rejected[key]; !exists {
		r.rejected[key] = err
	}
}

// Rejection returns the recorded rejection for key, if any.
func (r *Registry) Rejection(key Key) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rejected[key]
}

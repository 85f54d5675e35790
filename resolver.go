package ioc

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-ioc/feed"
	"github.com/toutaio/toutago-ioc/registry"
)

// Resolver discovers components from its sources and resolves them by
// capability. It is safe for concurrent use.
type Resolver struct {
	id              uuid.UUID
	registry        *registry.Registry
	reflectionCache *reflectionCache
	logger          *zap.Logger
	onError         func(error)

	sources          []feed.Source
	include, exclude []string
	overrides        []any

	metricsRegisterer prometheus.Registerer
	metricsNamespace  string
	metrics           *metrics

	discoverOnce sync.Once

	// discoverMu guards the fields below and serializes discovery passes.
	discoverMu sync.Mutex
	known      map[registry.Key]reflect.Type
	knownOrder []reflect.Type
	markerless []*pendingComponent
	loaded     map[string]struct{}

	// mu serializes materialization.
	mu       sync.Mutex
	building []*registry.Registration
	created  []any

	closed atomic.Bool
}

// pendingComponent is a markerless registration that is re-filed whenever a
// later pass learns a capability its type implements.
type pendingComponent struct {
	reg      *registry.Registration
	declared []reflect.Type
}

// New creates a resolver. Discovery of the configured sources runs once, on
// the first call that needs the registry.
//
// Example:
//
//	resolver := ioc.New(
//	    ioc.WithSource(catalog),
//	    ioc.WithLogger(logger),
//	)
//	greeter, err := ioc.Resolve[Greeter](resolver)
func New(options ...Option) *Resolver {
	r := &Resolver{
		id:               uuid.New(),
		registry:         registry.New(),
		reflectionCache:  newReflectionCache(),
		logger:           zap.NewNop(),
		metricsNamespace: defaultMetricsNamespace,
		known:            make(map[registry.Key]reflect.Type),
		loaded:           make(map[string]struct{}),
	}

	// Apply options
	for _, opt := range options {
		if err := opt(r); err != nil {
			panic(fmt.Sprintf("failed to apply option: %v", err))
		}
	}

	r.logger = r.logger.With(zap.String("resolver", r.id.String()))

	if r.metricsRegisterer != nil {
		m, err := newMetrics(r.metricsRegisterer, r.metricsNamespace, r.id.String())
		if err != nil {
			panic(fmt.Sprintf("failed to register metrics: %v", err))
		}
		r.metrics = m
	}

	return r
}

// ID returns the resolver's unique identifier, also attached to its logs and
// metrics.
func (r *Resolver) ID() string {
	return r.id.String()
}

// Resolve returns the first instance of the first registration filed under
// the capability. The token should be an interface pointer like
// (*Logger)(nil) or a reflect.Type. A capability no module names is learned
// on first request, filing every wired component that implements it.
//
// Returns a NotFoundError if nothing provides the capability, or if its first
// registration produced no instances.
func (r *Resolver) Resolve(token any) (any, error) {
	t, err := capabilityOf(token)
	if err != nil {
		return nil, err
	}
	r.ensureDiscovered()
	r.ensureKnown(t)
	return r.ResolveKey(registry.KeyOf(t))
}

// ResolveKey is Resolve for a capability key. A key carries no type, so
// only capabilities already known to discovery can be found this way.
func (r *Resolver) ResolveKey(key registry.Key) (any, error) {
	instance, err := r.resolve(key)
	r.metrics.resolved(opResolve, err)
	if err != nil {
		r.logger.Debug("resolve failed", zap.Stringer("capability", key), zap.Error(err))
	}
	return instance, err
}

func (r *Resolver) resolve(key registry.Key) (any, error) {
	r.ensureDiscovered()
	if r.closed.Load() {
		return nil, ErrClosed
	}

	// Fast path: the first registration is already built
	if reg, ok := r.registry.First(key); ok && reg.Initialized() {
		if instance, ok := reg.First(); ok {
			return instance, nil
		}
		return nil, &NotFoundError{Capability: key, Registration: reg.Name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(key)
}

// ResolveAll returns the instances of every registration filed under the
// capability, in discovery order. A capability nothing provides yields an
// empty slice and no error.
func (r *Resolver) ResolveAll(token any) ([]any, error) {
	t, err := capabilityOf(token)
	if err != nil {
		return nil, err
	}
	r.ensureDiscovered()
	r.ensureKnown(t)
	return r.ResolveAllKey(registry.KeyOf(t))
}

// ResolveAllKey is ResolveAll for a capability key.
func (r *Resolver) ResolveAllKey(key registry.Key) ([]any, error) {
	instances, err := r.resolveAll(key)
	r.metrics.resolved(opResolveAll, err)
	if err != nil {
		r.logger.Debug("resolve all failed", zap.Stringer("capability", key), zap.Error(err))
	}
	return instances, err
}

func (r *Resolver) resolveAll(key registry.Key) ([]any, error) {
	r.ensureDiscovered()
	if r.closed.Load() {
		return nil, ErrClosed
	}

	regs := r.registry.Get(key)
	if allInitialized(regs) {
		return collect(regs), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveAllLocked(key)
}

// resolveLocked is Resolve without discovery or locking. Callers must hold
// r.mu.
func (r *Resolver) resolveLocked(key registry.Key) (any, error) {
	reg, ok := r.registry.First(key)
	if !ok {
		if rejection := r.registry.Rejection(key); rejection != nil {
			return nil, rejection
		}
		return nil, &NotFoundError{Capability: key}
	}

	if err := r.materializeLocked(reg); err != nil {
		return nil, err
	}

	instance, ok := reg.First()
	if !ok {
		return nil, &NotFoundError{Capability: key, Registration: reg.Name}
	}
	return instance, nil
}

// resolveAllLocked is ResolveAll without discovery or locking. Callers must
// hold r.mu.
func (r *Resolver) resolveAllLocked(key registry.Key) ([]any, error) {
	regs := r.registry.Get(key)
	for _, reg := range regs {
		if err := r.materializeLocked(reg); err != nil {
			return nil, err
		}
	}
	return collect(regs), nil
}

func allInitialized(regs []*registry.Registration) bool {
	for _, reg := range regs {
		if !reg.Initialized() {
			return false
		}
	}
	return true
}

func collect(regs []*registry.Registration) []any {
	instances := []any{}
	for _, reg := range regs {
		instances = append(instances, reg.Instances()...)
	}
	return instances
}

// RegisterOverride pre-binds an already constructed instance under every
// known capability its type implements. Resolving any of them returns the
// instance without invoking the type's constructor.
//
// Overriding a type that has already been materialized fails, since the
// built instance may already be shared.
func (r *Resolver) RegisterOverride(instance any) error {
	r.ensureDiscovered()
	if r.closed.Load() {
		return ErrClosed
	}
	return r.registerOverride(instance)
}

func (r *Resolver) registerOverride(instance any) error {
	if instance == nil {
		return &InvalidOverrideError{Reason: "instance cannot be nil"}
	}
	t := reflect.TypeOf(instance)

	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	linked := r.registry.ByType(t)
	for _, existing := range linked {
		if existing.Mode != registry.ModePreboundInstance {
			continue
		}
		if first, ok := existing.First(); ok && sameInstance(first, instance) {
			return nil
		}
	}
	for _, existing := range linked {
		if existing.Type != t || !existing.Initialized() || len(existing.Instances()) == 0 {
			continue
		}
		if existing.Mode == registry.ModePreboundInstance {
			return &InvalidOverrideError{Reason: fmt.Sprintf("%v is already prebound", t)}
		}
		return &InvalidOverrideError{Reason: fmt.Sprintf("%v has already been materialized", t)}
	}

	caps := r.implementedLocked(t, nil)
	if len(caps) == 0 {
		return &InvalidOverrideError{Reason: fmt.Sprintf("%v implements no known capability", t)}
	}

	reg := registry.NewPrebound(instance)
	filed, err := r.registry.Register(reg, caps...)
	if err != nil {
		return err
	}
	r.registry.Link(t, reg)
	r.metrics.setRegistrations(r.registry.Len())

	r.logger.Debug("override registered",
		zap.String("type", reg.Name),
		zap.Strings("capabilities", keyStrings(filed)),
	)
	return nil
}

// sameInstance compares without panicking on uncomparable dynamic types.
func sameInstance(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// ComponentInfo describes one registration for diagnostics.
type ComponentInfo struct {
	// Name is the concrete type name or the factory function name.
	Name string

	// Type is nil for static factories.
	Type reflect.Type

	Capabilities []registry.Key
	Mode         registry.Mode
	Materialized bool
}

// Registered lists every registration in discovery order.
func (r *Resolver) Registered() []ComponentInfo {
	r.ensureDiscovered()

	regs := r.registry.All()
	out := make([]ComponentInfo, len(regs))
	for i, reg := range regs {
		out[i] = ComponentInfo{
			Name:         reg.Name,
			Type:         reg.Type,
			Capabilities: reg.Capabilities(),
			Mode:         reg.Mode,
			Materialized: reg.Initialized(),
		}
	}
	return out
}

// capabilityOf turns a token into a capability type.
func capabilityOf(token any) (reflect.Type, error) {
	t := feed.TypeOf(token)
	if t == nil {
		return nil, fmt.Errorf("cannot resolve nil type")
	}
	if !isCapability(t) {
		return nil, fmt.Errorf("%v is not a capability: expected a non-empty interface", t)
	}
	return t, nil
}

// Resolve resolves capability T.
//
// Example:
//
//	greeter, err := ioc.Resolve[Greeter](resolver)
func Resolve[T any](r *Resolver) (T, error) {
	var zero T
	instance, err := r.Resolve(feed.Capability[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %T does not implement %v", instance, feed.Capability[T]())
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](r *Resolver) T {
	instance, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return instance
}

// ResolveAll resolves every instance of capability T, in discovery order.
func ResolveAll[T any](r *Resolver) ([]T, error) {
	instances, err := r.ResolveAll(feed.Capability[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(instances))
	for _, instance := range instances {
		typed, ok := instance.(T)
		if !ok {
			return nil, fmt.Errorf("resolved %T does not implement %v", instance, feed.Capability[T]())
		}
		out = append(out, typed)
	}
	return out, nil
}

// errorOutcome labels an error for metrics.
func errorOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	default:
		return outcomeError
	}
}

func keyStrings(keys []registry.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

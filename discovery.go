package ioc

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-ioc/feed"
	"github.com/toutaio/toutago-ioc/registry"
)

// Discovery failure units, used as the metrics label and log field.
const (
	unitSource    = "source"
	unitModule    = "module"
	unitComponent = "component"
	unitInstaller = "installer"
	unitOverride  = "override"
)

// ensureDiscovered runs the initial discovery pass exactly once.
func (r *Resolver) ensureDiscovered() {
	r.discoverOnce.Do(func() {
		var entries []feed.Entry
		for _, src := range r.sources {
			found, err := sourceEntries(src)
			if err != nil {
				r.report(unitSource, &DiscoveryError{Cause: err})
				continue
			}
			entries = append(entries, found...)
		}

		r.discover(entries)

		for _, instance := range r.overrides {
			if err := r.registerOverride(instance); err != nil {
				r.report(unitOverride, err)
			}
		}
	})
}

// LoadModules runs an additional discovery pass over entries. Entries whose
// name was already loaded are skipped, and registrations already present are
// never duplicated, so repeating a call is harmless. Markerless components
// from earlier passes are re-filed under capabilities this pass makes known.
func (r *Resolver) LoadModules(entries ...feed.Entry) error {
	r.ensureDiscovered()
	if r.closed.Load() {
		return ErrClosed
	}
	r.discover(entries)
	return nil
}

func sourceEntries(src feed.Source) (entries []feed.Entry, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return src.Entries()
}

// unit is one module after loading and running its installers.
type unit struct {
	name       string
	components []feed.Component
	factories  []feed.Factory
}

// discover performs one pass: load modules, learn every capability the pass
// mentions, then register. Each failure is reported and only its unit is
// skipped.
func (r *Resolver) discover(entries []feed.Entry) {
	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	var units []*unit
	for _, entry := range entries {
		if !feed.Matches(entry.Name, r.include, r.exclude) {
			r.logger.Debug("module filtered out", zap.String("module", entry.Name))
			continue
		}
		if _, done := r.loaded[entry.Name]; done && entry.Name != "" {
			continue
		}

		mod, err := loadEntry(entry)
		if err != nil {
			r.report(unitModule, &DiscoveryError{Module: entry.Name, Cause: err})
			continue
		}
		if entry.Name != "" {
			r.loaded[entry.Name] = struct{}{}
		}

		name := mod.Name
		if name == "" {
			name = entry.Name
		}
		u := &unit{
			name:       name,
			components: append([]feed.Component(nil), mod.Components...),
			factories:  append([]feed.Factory(nil), mod.Factories...),
		}
		r.runInstallers(u, mod.Installers)
		units = append(units, u)

		for _, t := range mod.Capabilities {
			r.learn(t)
		}
	}

	for _, u := range units {
		for _, c := range u.components {
			r.learnComponent(c)
		}
		for _, f := range u.factories {
			r.learnFactory(f.Func)
		}
	}

	for _, u := range units {
		for _, c := range u.components {
			r.registerComponent(u.name, c)
		}
		for _, f := range u.factories {
			r.registerFactory(u.name, u.name, f)
		}
	}

	r.refileLocked()
	r.metrics.setRegistrations(r.registry.Len())

	r.logger.Info("discovery pass complete",
		zap.Int("modules", len(units)),
		zap.Int("registrations", r.registry.Len()),
		zap.Int("capabilities", len(r.known)),
	)
}

func loadEntry(entry feed.Entry) (mod feed.Module, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if entry.Load == nil {
		return feed.Module{}, errors.New("entry has no loader")
	}
	return entry.Load()
}

// report logs a discovery failure and hands it to the error handler.
func (r *Resolver) report(unit string, err error) {
	r.logger.Warn("discovery failed", zap.String("unit", unit), zap.Error(err))
	r.metrics.discoveryFailed(unit)
	if r.onError != nil {
		r.onError(err)
	}
}

func (r *Resolver) learn(t reflect.Type) {
	if !isCapability(t) {
		return
	}
	key := registry.KeyOf(t)
	if _, ok := r.known[key]; ok {
		return
	}
	r.known[key] = t
	r.knownOrder = append(r.knownOrder, t)
}

// learnTargets learns the dependency targets of a function's parameters.
func (r *Resolver) learnTargets(fn any) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return
	}
	for i := 0; i < t.NumIn(); i++ {
		if dep, err := classify(t.In(i)); err == nil {
			r.learn(dep.Capability)
		}
	}
}

func (r *Resolver) learnComponent(c feed.Component) {
	defer r.recoverLearning(c.Name())

	for _, m := range c.Markers {
		if m.Kind == feed.MarkerWireAs {
			r.learn(m.Capability)
		}
	}
	for _, t := range c.Capabilities {
		r.learn(t)
	}
	for _, ctor := range c.Constructors {
		r.learnTargets(ctor)
	}
	for _, fn := range c.Factories {
		r.learnFactory(fn)
	}
	if len(c.Constructors) == 0 && c.Type != nil {
		for _, f := range r.reflectionCache.getFieldInfo(c.Type) {
			if !f.isInjectable || parseInjectTag(f.tag).skip {
				continue
			}
			if dep, err := classify(f.typ); err == nil {
				r.learn(dep.Capability)
			}
		}
	}
}

func (r *Resolver) learnFactory(fn any) {
	defer r.recoverLearning(feed.FuncName(fn))

	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func || t.NumOut() == 0 {
		return
	}
	if capability, _, err := factoryResult(t.Out(0)); err == nil {
		r.learn(capability)
	}
	r.learnTargets(fn)
}

// recoverLearning logs a panic raised while learning from malformed input.
// The unit itself is reported when it is registered.
func (r *Resolver) recoverLearning(name string) {
	if rec := recover(); rec != nil {
		r.logger.Debug("capability learning failed",
			zap.String("component", name),
			zap.Any("panic", rec),
		)
	}
}

// ensureKnown learns capabilities first named by a request rather than by a
// module, and re-files pending markerless components under them.
func (r *Resolver) ensureKnown(capabilities ...reflect.Type) {
	var missing []reflect.Type
	for _, t := range capabilities {
		if t != nil && !r.registry.Has(registry.KeyOf(t)) {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return
	}

	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	learned := false
	for _, t := range missing {
		if _, ok := r.known[registry.KeyOf(t)]; !ok && isCapability(t) {
			r.learn(t)
			learned = true
		}
	}
	if !learned {
		return
	}
	r.refileLocked()
	r.metrics.setRegistrations(r.registry.Len())
}

// implementedLocked returns the keys of every known capability t implements,
// in the order they were learned, followed by declared capabilities not
// among them. Callers must hold r.discoverMu.
func (r *Resolver) implementedLocked(t reflect.Type, declared []reflect.Type) []registry.Key {
	var keys []registry.Key
	seen := make(map[registry.Key]struct{})
	add := func(capability reflect.Type) {
		key := registry.KeyOf(capability)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	for _, capability := range r.knownOrder {
		if r.reflectionCache.implementsCapability(t, capability) {
			add(capability)
		}
	}
	for _, capability := range declared {
		add(capability)
	}
	return keys
}

// registerComponent files one component. Panics are recovered so a single
// malformed type never aborts the pass.
func (r *Resolver) registerComponent(module string, c feed.Component) {
	defer func() {
		if rec := recover(); rec != nil {
			r.report(unitComponent, &DiscoveryError{
				Module:    module,
				Component: c.Name(),
				Cause:     fmt.Errorf("panic: %v", rec),
			})
		}
	}()

	if c.Type == nil {
		r.report(unitComponent, &DiscoveryError{Module: module, Cause: errors.New("component has no type")})
		return
	}

	var explicit []reflect.Type
	wire, wirer := len(c.Markers) == 0, false
	for _, m := range c.Markers {
		switch m.Kind {
		case feed.MarkerWire:
			wire = true
		case feed.MarkerWireAs:
			explicit = append(explicit, m.Capability)
		case feed.MarkerWirer:
			wirer = true
		}
	}

	if wirer {
		for _, fn := range c.Factories {
			r.registerFactory(module, c.Name(), feed.Func(fn))
		}
		if !wire && len(explicit) == 0 {
			return
		}
	}

	declared := append(append([]reflect.Type(nil), explicit...), c.Capabilities...)
	for _, capability := range declared {
		if err := r.checkImplements(c.Type, capability); err != nil {
			r.report(unitComponent, &DiscoveryError{Module: module, Component: c.Name(), Cause: err})
			return
		}
	}

	var caps []registry.Key
	if wire {
		caps = r.implementedLocked(c.Type, declared)
	} else {
		caps = r.implementedLocked(nil, declared)
	}

	p, err := r.selectConstructor(c)
	if err != nil {
		for _, key := range caps {
			r.registry.Reject(key, err)
		}
		r.report(unitComponent, &DiscoveryError{Module: module, Component: c.Name(), Cause: err})
		return
	}

	reg := &registry.Registration{
		Name:         c.Name(),
		Type:         c.Type,
		Mode:         registry.ModeConstructor,
		Arity:        p.arity,
		Dependencies: p.deps,
		Invoke:       p.invoke,
	}

	if len(caps) == 0 {
		r.logger.Warn("component implements no known capability yet",
			zap.String("module", module),
			zap.String("type", c.Name()),
		)
		if wire {
			r.markerless = append(r.markerless, &pendingComponent{reg: reg, declared: declared})
		}
		return
	}

	filed, err := r.registry.Register(reg, caps...)
	if err != nil {
		r.report(unitComponent, &DiscoveryError{Module: module, Component: c.Name(), Cause: err})
		return
	}
	if len(filed) == 0 {
		return
	}
	if wire {
		r.markerless = append(r.markerless, &pendingComponent{reg: reg, declared: declared})
	}

	r.logger.Debug("component registered",
		zap.String("module", module),
		zap.String("type", c.Name()),
		zap.Strings("capabilities", keyStrings(filed)),
		zap.Int("dependencies", len(p.deps)),
	)
}

func (r *Resolver) checkImplements(t, capability reflect.Type) error {
	if !isCapability(capability) {
		return fmt.Errorf("%v is not a capability", capability)
	}
	if !r.reflectionCache.implementsCapability(t, capability) {
		return fmt.Errorf("%v does not implement %v", t, capability)
	}
	return nil
}

// registerFactory files one static factory under the capability it returns.
func (r *Resolver) registerFactory(module, owner string, f feed.Factory) {
	name := f.Name
	if name == "" {
		name = feed.FuncName(f.Func)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.report(unitComponent, &DiscoveryError{
				Module:    module,
				Component: name,
				Cause:     fmt.Errorf("panic: %v", rec),
			})
		}
	}()

	p, err := factoryPlan(f.Func)
	if err != nil {
		cause := err
		if errors.Is(err, errFactoryParams) {
			cause = &NoUsableConstructorError{Component: name, Reasons: []string{err.Error()}}
			r.registry.Reject(registry.KeyOf(p.capability), cause)
		}
		r.report(unitComponent, &DiscoveryError{Module: module, Component: name, Cause: cause})
		return
	}

	reg := &registry.Registration{
		Name:         name,
		Mode:         registry.ModeStaticFactory,
		Arity:        p.arity,
		Dependencies: p.deps,
		Invoke:       p.invoke,
	}

	filed, err := r.registry.Register(reg, registry.KeyOf(p.capability))
	if err != nil {
		r.report(unitComponent, &DiscoveryError{Module: module, Component: name, Cause: err})
		return
	}
	if len(filed) > 0 {
		r.logger.Debug("factory registered",
			zap.String("module", module),
			zap.String("owner", owner),
			zap.String("factory", name),
			zap.Stringer("capability", filed[0]),
			zap.Stringer("arity", p.arity),
		)
	}
}

// refileLocked files markerless components under capabilities learned
// after they were first seen.
func (r *Resolver) refileLocked() {
	for _, pending := range r.markerless {
		caps := r.implementedLocked(pending.reg.Type, pending.declared)
		if len(caps) == 0 {
			continue
		}
		filed, err := r.registry.Register(pending.reg, caps...)
		if err != nil {
			r.report(unitComponent, &DiscoveryError{Component: pending.reg.Name, Cause: err})
			continue
		}
		if len(filed) > 0 {
			r.logger.Debug("component re-filed",
				zap.String("type", pending.reg.Name),
				zap.Strings("capabilities", keyStrings(filed)),
			)
		}
	}
}

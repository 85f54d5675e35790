package ioc

import (
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toutaio/toutago-ioc/feed"
	"github.com/toutaio/toutago-ioc/registry"
)

var errBoom = errors.New("boom")

func TestNew(t *testing.T) {
	r := New()
	require.NotNil(t, r)
	assert.NotNil(t, r.registry)
	assert.Len(t, r.ID(), 36)
	assert.NotEqual(t, r.ID(), New().ID())
}

func TestNew_OptionErrorPanics(t *testing.T) {
	assert.Panics(t, func() { New(WithLogger(nil)) })
	assert.Panics(t, func() { New(WithSource(nil)) })
}

func TestResolve_IdentitySharing(t *testing.T) {
	c := &counter{}
	r, errs := newTestResolver(feed.Module{
		Name:         "greeting",
		Capabilities: feed.Capabilities((*Greeter)(nil), (*Namer)(nil)),
		Components: []feed.Component{
			feed.Type[*englishGreeter](feed.Wire()).WithConstructors(countingGreeter(c)),
		},
	})

	g, err := r.Resolve((*Greeter)(nil))
	require.NoError(t, err)
	n, err := r.Resolve((*Namer)(nil))
	require.NoError(t, err)
	assert.Same(t, g, n)

	allG, err := r.ResolveAll((*Greeter)(nil))
	require.NoError(t, err)
	allN, err := r.ResolveAll((*Namer)(nil))
	require.NoError(t, err)
	require.Len(t, allG, 1)
	require.Len(t, allN, 1)
	assert.Same(t, g, allG[0])
	assert.Same(t, g, allN[0])

	assert.Equal(t, 1, c.load())
	assert.Empty(t, *errs)
}

func TestResolve_IdentitySharingAcrossRegistrations(t *testing.T) {
	tests := []struct {
		name  string
		first any
	}{
		{"greeter first", (*Greeter)(nil)},
		{"namer first", (*Namer)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &counter{}
			ctor := countingGreeter(c)
			r, _ := newTestResolver(module("greeting",
				feed.Type[*englishGreeter](feed.WireAs((*Greeter)(nil))).WithConstructors(ctor),
				feed.Type[*englishGreeter](feed.WireAs((*Namer)(nil))).WithConstructors(ctor),
			))

			first, err := r.Resolve(tt.first)
			require.NoError(t, err)

			g, err := r.Resolve((*Greeter)(nil))
			require.NoError(t, err)
			n, err := r.Resolve((*Namer)(nil))
			require.NoError(t, err)

			assert.Same(t, first, g)
			assert.Same(t, g, n)
			assert.Equal(t, 1, c.load())
		})
	}
}

func TestResolveAll_Idempotent(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name:      "plugins",
		Factories: []feed.Factory{feed.Func(threePlugins)},
	})

	first, err := r.ResolveAll((*Plugin)(nil))
	require.NoError(t, err)
	second, err := r.ResolveAll((*Plugin)(nil))
	require.NoError(t, err)

	require.Len(t, first, 3)
	require.Len(t, second, 3)
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestResolve_MultiBindingOrder(t *testing.T) {
	r, errs := newTestResolver(feed.Module{
		Name:         "plugins",
		Capabilities: feed.Capabilities((*Plugin)(nil)),
		Components: []feed.Component{
			feed.Type[*alphaPlugin]().WithConstructors(newAlphaPlugin),
			feed.Type[*betaPlugin]().WithConstructors(newBetaPlugin),
		},
	})

	plugins, err := ResolveAll[Plugin](r)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "alpha", plugins[0].Run())
	assert.Equal(t, "beta", plugins[1].Run())

	first, err := Resolve[Plugin](r)
	require.NoError(t, err)
	assert.Same(t, plugins[0], first)
	assert.Empty(t, *errs)
}

func TestResolve_MissingCapability(t *testing.T) {
	r := New()

	_, err := r.Resolve((*Store)(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, registry.KeyOf(feed.Capability[Store]()), notFound.Capability)

	all, err := r.ResolveAll((*Store)(nil))
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestResolve_InvalidToken(t *testing.T) {
	r := New()

	_, err := r.Resolve(nil)
	assert.Error(t, err)

	_, err = r.Resolve((*systemClock)(nil))
	assert.Error(t, err)

	_, err = r.ResolveAll((*error)(nil))
	assert.Error(t, err)

	_, err = r.Resolve(feed.Capability[Clock]())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterOverride_Bypass(t *testing.T) {
	c := &counter{}
	ctor := func() *systemClock {
		c.inc()
		return &systemClock{now: 1}
	}
	r, _ := newTestResolver(module("clock",
		feed.Type[*systemClock](feed.WireAs((*Clock)(nil))).WithConstructors(ctor),
	))

	fake := &systemClock{now: 42}
	require.NoError(t, r.RegisterOverride(fake))

	got, err := Resolve[Clock](r)
	require.NoError(t, err)
	assert.Same(t, fake, got)
	assert.Equal(t, 42, got.Now())

	all, err := ResolveAll[Clock](r)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Same(t, fake, all[0])

	assert.Equal(t, 0, c.load())

	// Repeating the same override is harmless
	assert.NoError(t, r.RegisterOverride(fake))
}

func TestRegisterOverride_AfterMaterialization(t *testing.T) {
	r, _ := newTestResolver(module("clock",
		feed.Type[*systemClock](feed.WireAs((*Clock)(nil))).
			WithConstructors(func() *systemClock { return &systemClock{now: 1} }),
	))

	_, err := r.Resolve((*Clock)(nil))
	require.NoError(t, err)

	err = r.RegisterOverride(&systemClock{now: 2})
	var invalid *InvalidOverrideError
	assert.ErrorAs(t, err, &invalid)
}

func TestRegisterOverride_AlreadyPrebound(t *testing.T) {
	r := New(WithModules(feed.Module{
		Name:         "caps",
		Capabilities: feed.Capabilities((*Clock)(nil)),
	}))

	require.NoError(t, r.RegisterOverride(&systemClock{now: 1}))

	err := r.RegisterOverride(&systemClock{now: 2})
	var invalid *InvalidOverrideError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "already prebound")
	assert.NotContains(t, invalid.Reason, "materialized")

	got, err := Resolve[Clock](r)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Now())
}

func TestRegisterOverride_Invalid(t *testing.T) {
	r := New(WithModules(feed.Module{
		Name:         "caps",
		Capabilities: feed.Capabilities((*Clock)(nil)),
	}))

	var invalid *InvalidOverrideError
	assert.ErrorAs(t, r.RegisterOverride(nil), &invalid)
	assert.ErrorAs(t, r.RegisterOverride(&memoryStore{}), &invalid)
}

func TestWithOverrides(t *testing.T) {
	fake := &systemClock{now: 7}
	var errs []error
	r := New(
		WithModules(feed.Module{
			Name:         "caps",
			Capabilities: feed.Capabilities((*Clock)(nil)),
		}),
		WithOverrides(fake, &memoryStore{}),
		WithErrorHandler(func(err error) { errs = append(errs, err) }),
	)

	got := MustResolve[Clock](r)
	assert.Same(t, fake, got)

	// memoryStore implements no known capability
	require.Len(t, errs, 1)
	var invalid *InvalidOverrideError
	assert.ErrorAs(t, errs[0], &invalid)
}

func TestResolve_StaticFactoryFanOut(t *testing.T) {
	r, errs := newTestResolver(feed.Module{
		Name:      "plugins",
		Factories: []feed.Factory{feed.Func(threePlugins)},
	})

	all, err := ResolveAll[Plugin](r)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Run())
	assert.Equal(t, "two", all[1].Run())
	assert.Equal(t, "three", all[2].Run())

	first, err := Resolve[Plugin](r)
	require.NoError(t, err)
	assert.Same(t, all[0], first)
	assert.Empty(t, *errs)
}

func TestResolve_SliceFactorySkipsNil(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name: "plugins",
		Factories: []feed.Factory{feed.Func(func() []Plugin {
			return []Plugin{&namedPlugin{name: "a"}, nil, &namedPlugin{name: "b"}}
		})},
	})

	all, err := ResolveAll[Plugin](r)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Run())
	assert.Equal(t, "b", all[1].Run())
}

func TestResolve_EmptyFactory(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name:      "plugins",
		Factories: []feed.Factory{feed.Func(func() []Plugin { return nil })},
	})

	_, err := r.Resolve((*Plugin)(nil))
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.NotEmpty(t, notFound.Registration)

	all, err := r.ResolveAll((*Plugin)(nil))
	require.NoError(t, err)
	assert.Empty(t, all)

	infos := r.Registered()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Materialized)
}

func TestResolve_FactoryWithDependencies(t *testing.T) {
	r, errs := newTestResolver(feed.Module{
		Name: "data",
		Components: []feed.Component{
			feed.Type[*memoryStore]().WithConstructors(newMemoryStore),
		},
		Factories: []feed.Factory{feed.Func(func(store Store) Repo { return newStoreRepo(store) })},
	})

	repo, err := Resolve[Repo](r)
	require.NoError(t, err)
	assert.Equal(t, "value:x", repo.Find("x"))
	assert.Empty(t, *errs)
}

func TestResolve_FactoryError(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name:      "plugins",
		Factories: []feed.Factory{feed.Func(func() (Plugin, error) { return nil, errBoom })},
	})

	_, err := r.Resolve((*Plugin)(nil))
	var construction *ConstructionError
	require.ErrorAs(t, err, &construction)
	assert.ErrorIs(t, err, errBoom)
}

func TestResolve_DependencyChain(t *testing.T) {
	r, _ := newTestResolver(module("app",
		feed.Type[*repoService](feed.WireAs((*Service)(nil))).WithConstructors(newRepoService),
		feed.Type[*storeRepo](feed.WireAs((*Repo)(nil))).WithConstructors(newStoreRepo),
	))

	_, err := r.Resolve((*Service)(nil))
	require.Error(t, err)

	var depErr *DependencyResolutionError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "*ioc.repoService", depErr.Dependent)
	assert.Equal(t, []registry.Key{
		registry.KeyOf(feed.Capability[Repo]()),
		registry.KeyOf(feed.Capability[Store]()),
	}, depErr.Chain)
	assert.Equal(t, registry.KeyOf(feed.Capability[Store]()), depErr.Capability())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_DependencyGraph(t *testing.T) {
	r, errs := newTestResolver(module("app",
		feed.Type[*repoService](feed.WireAs((*Service)(nil))).WithConstructors(newRepoService),
		feed.Type[*storeRepo](feed.WireAs((*Repo)(nil))).WithConstructors(newStoreRepo),
		feed.Type[*memoryStore](feed.Wire()).WithConstructors(newMemoryStore),
	))

	svc, err := Resolve[Service](r)
	require.NoError(t, err)
	assert.Equal(t, "value:1", svc.Serve())
	assert.Empty(t, *errs)
}

type cycA struct{ n Namer }

func (a *cycA) Greet() string { return "a" }

type cycB struct{ g Greeter }

func (b *cycB) Name() string { return "b" }

func TestResolve_CircularDependency(t *testing.T) {
	r, _ := newTestResolver(module("cycle",
		feed.Type[*cycA](feed.WireAs((*Greeter)(nil))).
			WithConstructors(func(n Namer) *cycA { return &cycA{n: n} }),
		feed.Type[*cycB](feed.WireAs((*Namer)(nil))).
			WithConstructors(func(g Greeter) *cycB { return &cycB{g: g} }),
	))

	_, err := r.Resolve((*Greeter)(nil))
	require.Error(t, err)

	var circular *CircularDependencyError
	require.ErrorAs(t, err, &circular)
	assert.Equal(t, []string{"*ioc.cycA", "*ioc.cycB", "*ioc.cycA"}, circular.Path)

	// Nothing is left half built
	for _, info := range r.Registered() {
		assert.False(t, info.Materialized, info.Name)
	}
}

func TestResolve_SliceAndSequenceParameters(t *testing.T) {
	plugins := []feed.Component{
		feed.Type[*alphaPlugin](feed.WireAs((*Plugin)(nil))).WithConstructors(newAlphaPlugin),
		feed.Type[*betaPlugin](feed.WireAs((*Plugin)(nil))).WithConstructors(newBetaPlugin),
	}

	tests := []struct {
		name string
		host feed.Component
	}{
		{"slice", feed.Type[*pluginHost](feed.WireAs((*Service)(nil))).WithConstructors(newPluginHost)},
		{"sequence", feed.Type[*seqHost](feed.WireAs((*Service)(nil))).WithConstructors(newSeqHost)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, errs := newTestResolver(module("plugins", append(plugins, tt.host)...))

			svc, err := Resolve[Service](r)
			require.NoError(t, err)
			assert.Equal(t, "alphabeta", svc.Serve())
			assert.Empty(t, *errs)
		})
	}
}

func TestResolve_EmptyMultiBinding(t *testing.T) {
	r, _ := newTestResolver(module("host",
		feed.Type[*pluginHost](feed.WireAs((*Service)(nil))).WithConstructors(newPluginHost),
	))

	svc, err := Resolve[Service](r)
	require.NoError(t, err)
	assert.Equal(t, "", svc.Serve())
}

func TestResolve_ConstructorError(t *testing.T) {
	r, _ := newTestResolver(module("clock",
		feed.Type[*systemClock](feed.WireAs((*Clock)(nil))).
			WithConstructors(func() (*systemClock, error) { return nil, errBoom }),
	))

	_, err := r.Resolve((*Clock)(nil))
	var construction *ConstructionError
	require.ErrorAs(t, err, &construction)
	assert.Equal(t, "*ioc.systemClock", construction.Registration)
	assert.ErrorIs(t, err, errBoom)
}

func TestResolve_ConstructorPanic(t *testing.T) {
	r, _ := newTestResolver(module("clock",
		feed.Type[*systemClock](feed.WireAs((*Clock)(nil))).
			WithConstructors(func() *systemClock { panic("kaboom") }),
	))

	_, err := r.Resolve((*Clock)(nil))
	var construction *ConstructionError
	require.ErrorAs(t, err, &construction)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestResolve_SequenceFactoryPanic(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name: "plugins",
		Factories: []feed.Factory{feed.Func(func() iter.Seq[Plugin] {
			return func(yield func(Plugin) bool) { panic("kaboom in sequence") }
		})},
	})

	var all []any
	var err error
	require.NotPanics(t, func() { all, err = r.ResolveAll((*Plugin)(nil)) })
	assert.Nil(t, all)

	var construction *ConstructionError
	require.ErrorAs(t, err, &construction)
	assert.Contains(t, err.Error(), "kaboom in sequence")

	require.NotPanics(t, func() { _, err = r.Resolve((*Plugin)(nil)) })
	assert.ErrorAs(t, err, &construction)
}

func TestResolve_ConcurrentConstructsOnce(t *testing.T) {
	c := &counter{}
	r, _ := newTestResolver(feed.Module{
		Name:         "greeting",
		Capabilities: feed.Capabilities((*Greeter)(nil), (*Namer)(nil)),
		Components: []feed.Component{
			feed.Type[*englishGreeter]().WithConstructors(countingGreeter(c)),
		},
	})

	const workers = 50
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := any((*Greeter)(nil))
			if i%2 == 1 {
				token = (*Namer)(nil)
			}
			instance, err := r.Resolve(token)
			assert.NoError(t, err)
			results[i] = instance
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, c.load())
	for _, instance := range results {
		assert.Same(t, results[0], instance)
	}
}

func TestRegistered(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name:         "mixed",
		Capabilities: feed.Capabilities((*Greeter)(nil), (*Namer)(nil)),
		Components: []feed.Component{
			feed.Type[*englishGreeter]().WithConstructors(countingGreeter(&counter{})),
		},
		Factories: []feed.Factory{feed.Func(threePlugins)},
	})

	infos := r.Registered()
	require.Len(t, infos, 2)

	assert.Equal(t, "*ioc.englishGreeter", infos[0].Name)
	assert.Equal(t, registry.ModeConstructor, infos[0].Mode)
	assert.Equal(t, []registry.Key{
		registry.KeyOf(feed.Capability[Greeter]()),
		registry.KeyOf(feed.Capability[Namer]()),
	}, infos[0].Capabilities)
	assert.False(t, infos[0].Materialized)

	assert.Equal(t, "github.com/toutaio/toutago-ioc.threePlugins", infos[1].Name)
	assert.Nil(t, infos[1].Type)
	assert.Equal(t, registry.ModeStaticFactory, infos[1].Mode)
	assert.Equal(t, []registry.Key{registry.KeyOf(feed.Capability[Plugin]())}, infos[1].Capabilities)

	_, err := r.Resolve((*Namer)(nil))
	require.NoError(t, err)
	assert.True(t, r.Registered()[0].Materialized)
	assert.False(t, r.Registered()[1].Materialized)
}

func TestGenericHelpers(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name:         "greeting",
		Capabilities: feed.Capabilities((*Greeter)(nil)),
		Components: []feed.Component{
			feed.Type[*englishGreeter]().WithConstructors(countingGreeter(&counter{})),
		},
	})

	g, err := Resolve[Greeter](r)
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())

	all, err := ResolveAll[Greeter](r)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := ResolveAll[Store](r)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Panics(t, func() { MustResolve[Store](r) })
	assert.NotPanics(t, func() { MustResolve[Greeter](r) })
}

func TestResolveKey(t *testing.T) {
	r, _ := newTestResolver(feed.Module{
		Name:      "plugins",
		Factories: []feed.Factory{feed.Func(threePlugins)},
	})

	key := registry.KeyOf(feed.Capability[Plugin]())
	first, err := r.ResolveKey(key)
	require.NoError(t, err)
	all, err := r.ResolveAllKey(key)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Same(t, all[0], first)
}

package ioc

import (
	"errors"
	"iter"
	"sync/atomic"

	"github.com/toutaio/toutago-ioc/feed"
)

// Test capabilities
type Greeter interface {
	Greet() string
}

type Namer interface {
	Name() string
}

type Plugin interface {
	Run() string
}

type Clock interface {
	Now() int
}

type Store interface {
	Get(key string) string
}

type Repo interface {
	Find(id string) string
}

type Service interface {
	Serve() string
}

// englishGreeter implements Greeter and Namer.
type englishGreeter struct{ _ int }

func (g *englishGreeter) Greet() string { return "hello" }
func (g *englishGreeter) Name() string { return "english" }

// counter counts constructor invocations.
type counter struct{ n atomic.Int32 }

func (c *counter) inc() { c.n.Add(1) }
func (c *counter) load() int { return int(c.n.Load()) }

func countingGreeter(c *counter) func() *englishGreeter {
	return func() *englishGreeter {
		c.inc()
		return &englishGreeter{}
	}
}

type namedPlugin struct{ name string }

func (p *namedPlugin) Run() string { return p.name }

type alphaPlugin struct{ _ int }

func (p *alphaPlugin) Run() string { return "alpha" }

func newAlphaPlugin() *alphaPlugin { return &alphaPlugin{} }

type betaPlugin struct{ _ int }

func (p *betaPlugin) Run() string { return "beta" }

func newBetaPlugin() *betaPlugin { return &betaPlugin{} }

type systemClock struct{ now int }

func (c *systemClock) Now() int { return c.now }

type memoryStore struct{ _ int }

func (s *memoryStore) Get(key string) string { return "value:" + key }

func newMemoryStore() *memoryStore { return &memoryStore{} }

type storeRepo struct{ store Store }

func (r *storeRepo) Find(id string) string { return r.store.Get(id) }

func newStoreRepo(store Store) *storeRepo { return &storeRepo{store: store} }

type repoService struct{ repo Repo }

func (s *repoService) Serve() string { return s.repo.Find("1") }

func newRepoService(repo Repo) *repoService { return &repoService{repo: repo} }

// pluginHost receives every Plugin as a slice.
type pluginHost struct{ plugins []Plugin }

func (h *pluginHost) Serve() string {
	out := ""
	for _, p := range h.plugins {
		out += p.Run()
	}
	return out
}

func newPluginHost(plugins []Plugin) *pluginHost { return &pluginHost{plugins: plugins} }

// seqHost receives every Plugin as a sequence.
type seqHost struct{ plugins iter.Seq[Plugin] }

func (h *seqHost) Serve() string {
	out := ""
	for p := range h.plugins {
		out += p.Run()
	}
	return out
}

func newSeqHost(plugins iter.Seq[Plugin]) *seqHost { return &seqHost{plugins: plugins} }

// threePlugins is a sequence factory yielding three plugins.
func threePlugins() iter.Seq[Plugin] {
	return func(yield func(Plugin) bool) {
		for _, name := range []string{"one", "two", "three"} {
			if !yield(&namedPlugin{name: name}) {
				return
			}
		}
	}
}

// lifecycle records Initialize and Dispose calls.
type lifecycle struct {
	name    string
	log     *[]string
	initErr error
}

func (l *lifecycle) Run() string { return l.name }

func (l *lifecycle) Initialize() error {
	*l.log = append(*l.log, "init:"+l.name)
	return l.initErr
}

func (l *lifecycle) Dispose() error {
	*l.log = append(*l.log, "dispose:"+l.name)
	if l.name == "bad" {
		return errors.New("dispose failed")
	}
	return nil
}

// module builds a single test module.
func module(name string, components ...feed.Component) feed.Module {
	return feed.Module{Name: name, Components: components}
}

// newTestResolver builds a resolver over mods with recorded discovery errors.
func newTestResolver(mods ...feed.Module) (*Resolver, *[]error) {
	var errs []error
	r := New(
		WithModules(mods...),
		WithErrorHandler(func(err error) { errs = append(errs, err) }),
	)
	return r, &errs
}

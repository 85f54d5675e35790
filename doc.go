// Package ioc provides a discovery-driven component resolver for Go.
//
// Instead of binding interfaces to implementations one by one, a host hands
// the resolver a feed of modules. Each module lists concrete types with
// declarative markers, and the resolver works out which capabilities
// (interfaces) each type satisfies, builds the dependency graph among them
// and constructs instances lazily on first use.
//
// # Features
//
//   - Capability discovery from markers (Wire, WireAs, Wirer)
//   - Constructor injection with automatic constructor selection
//   - Field injection for types without constructors
//   - Multi-binding through []T and iter.Seq[T] parameters
//   - Static factories producing one, a slice or a sequence of instances
//   - One instance per concrete type, shared across all its capabilities
//   - Pre-bound overrides for tests and hosts
//   - Discovery that reports bad modules and keeps going
//   - Thread-safe resolution with at-most-once construction
//   - zap logging and Prometheus metrics
//
// # Quick Start
//
// Describe components in a module and resolve by capability:
//
//	catalog := feed.NewCatalog().Add(feed.Module{
//	    Name: "app.greeting",
//	    Components: []feed.Component{
//	        feed.Type[*EnglishGreeter](feed.WireAs((*Greeter)(nil))).
//	            WithConstructors(NewEnglishGreeter),
//	    },
//	})
//
//	resolver := ioc.New(ioc.WithSource(catalog))
//	defer resolver.Close()
//
//	greeter, err := ioc.Resolve[Greeter](resolver)
//
// # Markers
//
// WireAs files a type under one explicit capability. Wire, or no marker at
// all, files it under every known capability it implements: those declared by
// modules and markers, and those appearing as dependencies or factory
// results anywhere in the pass. Wirer registers the component's static
// factories instead of the component itself.
//
// # Multi-binding
//
// A parameter of type []Plugin or iter.Seq[Plugin] receives every instance
// filed under Plugin, in discovery order:
//
//	func NewHost(plugins []Plugin) *Host
//
// Resolve returns the first registration's first instance; ResolveAll
// returns all of them, and an empty slice when nothing provides the
// capability.
//
// # Overrides
//
// Pre-bind an instance to bypass construction entirely:
//
//	resolver.RegisterOverride(&FakeClock{})
//	clock := ioc.MustResolve[Clock](resolver) // the fake
//
// # Error Handling
//
// Discovery never fails as a whole. Each failed module, component or
// installer is logged and passed to the WithErrorHandler callback. Resolution
// errors are returned to the caller as NotFoundError,
// DependencyResolutionError, NoUsableConstructorError,
// CircularDependencyError or ConstructionError.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Constructors, factories and
// Initialize hooks run while the resolver holds its construction lock and
// must not call back into the resolver.
package ioc

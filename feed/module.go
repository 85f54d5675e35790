// Package feed describes the candidate components handed to a resolver:
// modules of concrete types with their markers, constructors and static
// factories, and the sources that enumerate those modules.
//
// How a feed is produced is up to the host. Modules are usually declared by
// the packages that own the types and collected into a Catalog:
//
//	catalog := feed.NewCatalog().
//	    Add(feed.Module{
//	        Name:         "acme.plugins",
//	        Capabilities: feed.Capabilities((*Plugin)(nil)),
//	        Components: []feed.Component{
//	            feed.Type[*Upper](feed.Wire()).WithConstructors(NewUpper),
//	        },
//	    })
package feed

import (
	"fmt"
	"reflect"
	"runtime"
)

// Component is one discovered concrete type and its attached markers.
type Component struct {
	// Type is the concrete type, typically a pointer to struct.
	Type reflect.Type

	// Capabilities lists interfaces the type is known to implement, in
	// addition to those the resolver finds among known capabilities.
	Capabilities []reflect.Type

	Markers []Marker

	// Constructors are candidate functions returning Type, optionally
	// followed by an error. With none, the type is built with reflect.New
	// and its inject-tagged fields are filled.
	Constructors []any

	// Factories are the static factory functions of a MarkerWirer component.
	Factories []any
}

// Type declares a component for concrete type T.
func Type[T any](markers ...Marker) Component {
	return Component{
		Type:    reflect.TypeOf((*T)(nil)).Elem(),
		Markers: markers,
	}
}

// WithConstructors returns a copy of c with constructors appended.
func (c Component) WithConstructors(ctors ...any) Component {
	c.Constructors = append(append([]any(nil), c.Constructors...), ctors...)
	return c
}

// WithFactories returns a copy of c with static factories appended.
func (c Component) WithFactories(fns ...any) Component {
	c.Factories = append(append([]any(nil), c.Factories...), fns...)
	return c
}

// Implementing returns a copy of c that declares the given capabilities.
func (c Component) Implementing(tokens ...any) Component {
	c.Capabilities = append(append([]reflect.Type(nil), c.Capabilities...), Capabilities(tokens...)...)
	return c
}

// Name returns the component's type name.
func (c Component) Name() string {
	if c.Type == nil {
		return "<nil>"
	}
	return c.Type.String()
}

// Factory is a static factory function registered under the capability it
// returns: I, []I or iter.Seq[I], optionally followed by an error.
type Factory struct {
	Name string
	Func any
}

// Func declares a factory named after the function itself.
func Func(fn any) Factory {
	return Factory{Name: FuncName(fn), Func: fn}
}

// FuncName returns the fully qualified name of a function value.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return v.Type().String()
}

// Registrar accepts programmatic registrations from an Installer.
type Registrar interface {
	Component(c Component) error
	Factory(f Factory) error
}

// Installer registers components programmatically during discovery.
type Installer interface {
	Install(r Registrar) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(r Registrar) error

// Install calls f(r).
func (f InstallerFunc) Install(r Registrar) error {
	return f(r)
}

// Module is one unit of discovery. A failure anywhere in a module affects
// only that module's offending part.
type Module struct {
	Name string

	// Capabilities are the interfaces the module exports for others to
	// depend on or implement.
	Capabilities []reflect.Type

	Components []Component
	Factories  []Factory
	Installers []Installer
}

// Capabilities converts interface tokens like (*Logger)(nil) to types.
func Capabilities(tokens ...any) []reflect.Type {
	types := make([]reflect.Type, 0, len(tokens))
	for _, token := range tokens {
		if t := TypeOf(token); t != nil {
			types = append(types, t)
		}
	}
	return types
}

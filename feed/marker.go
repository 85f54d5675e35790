package feed

import (
	"fmt"
	"reflect"
)

// MarkerKind selects how a component is registered.
type MarkerKind int

const (
	// MarkerWire registers the component under every known capability it
	// implements.
	MarkerWire MarkerKind = iota

	// MarkerWireAs registers the component under one explicit capability.
	MarkerWireAs

	// MarkerWirer registers the component's static factory functions instead
	// of the component itself.
	MarkerWirer
)

// String returns the string representation of the marker kind.
func (k MarkerKind) String() string {
	switch k {
	case MarkerWire:
		return "wire"
	case MarkerWireAs:
		return "wire-as"
	case MarkerWirer:
		return "wirer"
	default:
		return "unknown"
	}
}

// Marker is a declarative registration marker attached to a component.
type Marker struct {
	Kind MarkerKind

	// Capability is set for MarkerWireAs only.
	Capability reflect.Type
}

// Wire marks a component for registration under every capability it
// implements.
func Wire() Marker {
	return Marker{Kind: MarkerWire}
}

// WireAs marks a component for registration under a single capability.
// The token should be an interface pointer like (*Logger)(nil).
func WireAs(token any) Marker {
	return Marker{Kind: MarkerWireAs, Capability: TypeOf(token)}
}

// Wirer marks a component whose static factories should be registered.
func Wirer() Marker {
	return Marker{Kind: MarkerWirer}
}

func (m Marker) String() string {
	if m.Kind == MarkerWireAs && m.Capability != nil {
		return fmt.Sprintf("%s(%v)", m.Kind, m.Capability)
	}
	return m.Kind.String()
}

// TypeOf extracts a reflect.Type from a type token. Interface pointers like
// (*Logger)(nil) yield the interface type; anything else yields its own type.
func TypeOf(token any) reflect.Type {
	if token == nil {
		return nil
	}
	t, ok := token.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(token)
	}
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem()
	}
	return t
}

// Capability returns the interface type I.
func Capability[I any]() reflect.Type {
	return reflect.TypeOf((*I)(nil)).Elem()
}

package registry

// Mode describes how a registration produces its instances.
type Mode int

const (
	// ModeConstructor invokes a constructor (or a synthesized field-injecting
	// constructor) that yields exactly one instance.
	ModeConstructor Mode = iota

	// ModeStaticFactory invokes a static factory function. A factory
	// returning a slice or sequence may yield zero or more instances.
	ModeStaticFactory

	// ModePreboundInstance holds an instance supplied by the host. It is
	// initialized at registration time and never constructed.
	ModePreboundInstance
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeConstructor:
		return "constructor"
	case ModeStaticFactory:
		return "factory"
	case ModePreboundInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Arity describes how many instances of a capability a dependency wants,
// or how many a factory produces.
type Arity int

const (
	// ArityOne is a single instance, resolved from the first registration.
	ArityOne Arity = iota

	// ArityArray is a slice holding every instance of the capability.
	ArityArray

	// AritySequence is an iter.Seq over every instance of the capability.
	AritySequence
)

// String returns the string representation of the arity.
func (a Arity) String() string {
	switch a {
	case ArityOne:
		return "one"
	case ArityArray:
		return "array"
	case AritySequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Multiple reports whether the arity covers every instance of a capability.
func (a Arity) Multiple() bool {
	return a == ArityArray || a == AritySequence
}

package ioc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/toutaio/toutago-ioc/registry"
)

var (
	// ErrNotFound matches every NotFoundError via errors.Is.
	ErrNotFound = errors.New("capability not found")

	// ErrClosed is returned by resolution after Close.
	ErrClosed = errors.New("resolver is closed")
)

// NotFoundError is returned when no registration provides a capability, or
// when the first registration of a capability produced no instances.
type NotFoundError struct {
	Capability registry.Key

	// Registration is set when a registration existed but produced nothing.
	Registration string
}

func (e *NotFoundError) Error() string {
	if e.Registration != "" {
		return fmt.Sprintf("capability %s not found: %s produced no instances", e.Capability, e.Registration)
	}
	return fmt.Sprintf("capability %s not found. Is a component wired for it?", e.Capability)
}

// Is reports ErrNotFound as a match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DependencyResolutionError is returned when a dependency of a component
// could not be resolved. Chain lists the capabilities from the dependency of
// Dependent down to the one that failed.
type DependencyResolutionError struct {
	Dependent string
	Chain     []registry.Key
	Cause     error
}

func (e *DependencyResolutionError) Error() string {
	chain := make([]string, len(e.Chain))
	for i, k := range e.Chain {
		chain[i] = string(k)
	}
	return fmt.Sprintf("cannot resolve dependencies of %s: %s: %v", e.Dependent, strings.Join(chain, " -> "), e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *DependencyResolutionError) Unwrap() error {
	return e.Cause
}

// Capability returns the capability that could not be resolved.
func (e *DependencyResolutionError) Capability() registry.Key {
	if len(e.Chain) == 0 {
		return ""
	}
	return e.Chain[len(e.Chain)-1]
}

// dependencyFailed builds a DependencyResolutionError, folding nested
// failures into one chain.
func dependencyFailed(dependent string, target registry.Key, cause error) error {
	var inner *DependencyResolutionError
	if errors.As(cause, &inner) {
		chain := append([]registry.Key{target}, inner.Chain...)
		return &DependencyResolutionError{Dependent: dependent, Chain: chain, Cause: inner.Cause}
	}
	return &DependencyResolutionError{Dependent: dependent, Chain: []registry.Key{target}, Cause: cause}
}

// NoUsableConstructorError is returned when a component has no constructor
// whose parameters are all capabilities, slices of capabilities or
// sequences of capabilities.
type NoUsableConstructorError struct {
	Component string
	Reasons   []string
}

func (e *NoUsableConstructorError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("no usable constructor for %s", e.Component)
	}
	return fmt.Sprintf("no usable constructor for %s: %s", e.Component, strings.Join(e.Reasons, "; "))
}

// DiscoveryError reports a module or component that failed during
// discovery. It is handed to the error handler and never aborts discovery.
type DiscoveryError struct {
	Module    string
	Component string
	Cause     error
}

func (e *DiscoveryError) Error() string {
	var b strings.Builder
	b.WriteString("discovery failed")
	if e.Module != "" {
		fmt.Fprintf(&b, " for module %q", e.Module)
	}
	if e.Component != "" {
		fmt.Fprintf(&b, " at %s", e.Component)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// CircularDependencyError indicates a circular dependency was detected.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "circular dependency detected"
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// ConstructionError is returned when a constructor, factory or Initialize
// hook fails.
type ConstructionError struct {
	Registration string
	Cause        error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct %s: %v", e.Registration, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ConstructionError) Unwrap() error {
	return e.Cause
}

// InvalidOverrideError is returned when an instance cannot be prebound.
type InvalidOverrideError struct {
	Reason string
}

func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid override: %s", e.Reason)
}

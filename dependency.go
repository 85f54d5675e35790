package ioc

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-ioc/registry"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	boolType  = reflect.TypeOf(true)
)

// classify describes a constructor/factory parameter or injected field:
//   - iter.Seq[T] → sequence of T
//   - []T         → array of T
//   - T           → one T
//
// T must be a capability, i.e. a non-empty interface type.
func classify(t reflect.Type) (registry.Dependency, error) {
	dep := registry.Dependency{Type: t, Arity: registry.ArityOne, Field: -1}

	capability := t
	if elem, ok := seqElem(t); ok {
		dep.Arity = registry.AritySequence
		capability = elem
	} else if t.Kind() == reflect.Slice {
		dep.Arity = registry.ArityArray
		capability = t.Elem()
	}

	if !isCapability(capability) {
		return dep, fmt.Errorf("%v is not a capability, a slice of one or a sequence of one", t)
	}

	dep.Capability = capability
	dep.Target = registry.KeyOf(capability)
	return dep, nil
}

// classifyAll classifies parameters in order. The result corresponds 1:1
// with the parameters.
func classifyAll(params []reflect.Type) ([]registry.Dependency, error) {
	deps := make([]registry.Dependency, len(params))
	for i, p := range params {
		dep, err := classify(p)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		deps[i] = dep
	}
	return deps, nil
}

// isCapability reports whether t can identify a capability.
func isCapability(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Interface {
		return false
	}
	return t.NumMethod() > 0 && t != errorType
}

// seqElem reports whether t has the shape of iter.Seq[E] and returns E.
func seqElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 || t.IsVariadic() {
		return nil, false
	}
	yield := t.In(0)
	if yield.Kind() != reflect.Func || yield.NumIn() != 1 || yield.NumOut() != 1 || yield.Out(0) != boolType {
		return nil, false
	}
	return yield.In(0), true
}

// valueOf converts an instance to a value of the capability type t.
func valueOf(t reflect.Type, instance any) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	if instance == nil {
		return v, nil
	}
	iv := reflect.ValueOf(instance)
	if !iv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("instance of %v does not implement %v", iv.Type(), t)
	}
	v.Set(iv)
	return v, nil
}

func valuesOf(t reflect.Type, instances []any) ([]reflect.Value, error) {
	values := make([]reflect.Value, len(instances))
	for i, inst := range instances {
		v, err := valueOf(t, inst)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// sliceOf builds a value of slice type t holding instances.
func sliceOf(t reflect.Type, instances []any) (reflect.Value, error) {
	values, err := valuesOf(t.Elem(), instances)
	if err != nil {
		return reflect.Value{}, err
	}
	s := reflect.MakeSlice(t, 0, len(values))
	return reflect.Append(s, values...), nil
}

// seqOf builds a value of sequence type t yielding instances in order.
func seqOf(t reflect.Type, instances []any) (reflect.Value, error) {
	elem, _ := seqElem(t)
	values, err := valuesOf(elem, instances)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		yield := args[0]
		for _, v := range values {
			if !yield.Call([]reflect.Value{v})[0].Bool() {
				break
			}
		}
		return nil
	}), nil
}

// drainSeq collects every element yielded by a sequence value.
func drainSeq(seq reflect.Value) []any {
	var out []any
	if seq.IsNil() {
		return out
	}
	yieldType := seq.Type().In(0)
	yield := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
		out = append(out, args[0].Interface())
		return []reflect.Value{reflect.ValueOf(true)}
	})
	seq.Call([]reflect.Value{yield})
	return out
}

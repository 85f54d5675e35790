package ioc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-ioc/feed"
	"github.com/toutaio/toutago-ioc/registry"
)

// funcInfo holds metadata about a constructor or factory function.
type funcInfo struct {
	fn           reflect.Value
	fnType       reflect.Type
	paramTypes   []reflect.Type
	returnType   reflect.Type
	returnsError bool
}

// plan is a bound way to produce instances: dependency descriptors plus the
// closure that consumes them positionally.
type plan struct {
	deps       []registry.Dependency
	arity      registry.Arity
	capability reflect.Type // factories only
	invoke     registry.Invoker
}

// parseFunc analyzes a function and extracts metadata.
// Supported signatures:
//   - func(Dep1, Dep2, ...) R
//   - func(Dep1, Dep2, ...) (R, error)
func parseFunc(fn any) (*funcInfo, error) {
	if fn == nil {
		return nil, fmt.Errorf("function cannot be nil")
	}

	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %v", fnType)
	}
	if fnValue.IsNil() {
		return nil, fmt.Errorf("function cannot be nil")
	}

	numOut := fnType.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("function must return (R) or (R, error), got %d return values", numOut)
	}

	returnsError := false
	if numOut == 2 {
		if fnType.Out(1) != errorType {
			return nil, fmt.Errorf("second return value must be error, got %v", fnType.Out(1))
		}
		returnsError = true
	}

	paramTypes := make([]reflect.Type, fnType.NumIn())
	for i := range paramTypes {
		paramTypes[i] = fnType.In(i)
	}

	return &funcInfo{
		fn:           fnValue,
		fnType:       fnType,
		paramTypes:   paramTypes,
		returnType:   fnType.Out(0),
		returnsError: returnsError,
	}, nil
}

// call invokes the function and splits off the trailing error.
func (info *funcInfo) call(args []reflect.Value) (result reflect.Value, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	var results []reflect.Value
	if info.fnType.IsVariadic() {
		results = info.fn.CallSlice(args)
	} else {
		results = info.fn.Call(args)
	}

	if info.returnsError && !results[1].IsNil() {
		return reflect.Value{}, results[1].Interface().(error)
	}
	return results[0], nil
}

// constructorPlan validates a constructor for concrete type t.
func constructorPlan(ctor any, t reflect.Type) (*plan, error) {
	info, err := parseFunc(ctor)
	if err != nil {
		return nil, err
	}
	if info.returnType != t {
		return nil, fmt.Errorf("returns %v, want %v", info.returnType, t)
	}
	deps, err := classifyAll(info.paramTypes)
	if err != nil {
		return nil, err
	}

	return &plan{
		deps:  deps,
		arity: registry.ArityOne,
		invoke: func(args []reflect.Value) ([]any, error) {
			v, err := info.call(args)
			if err != nil {
				return nil, err
			}
			if isNil(v) {
				return nil, fmt.Errorf("constructor returned nil %v", t)
			}
			return []any{v.Interface()}, nil
		},
	}, nil
}

// selectConstructor picks the constructor whose parameters are all
// capabilities (or slices/sequences of them), preferring the one with the
// most parameters; the first wins a tie. Components without constructors
// are built by field injection.
func (r *Resolver) selectConstructor(c feed.Component) (*plan, error) {
	if len(c.Constructors) == 0 {
		p, err := r.fieldPlan(c.Type)
		if err != nil {
			return nil, &NoUsableConstructorError{Component: c.Name(), Reasons: []string{err.Error()}}
		}
		return p, nil
	}

	var best *plan
	var reasons []string
	for i, ctor := range c.Constructors {
		p, err := constructorPlan(ctor, c.Type)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("constructor %d (%s): %v", i, feed.FuncName(ctor), err))
			continue
		}
		if best == nil || len(p.deps) > len(best.deps) {
			best = p
		}
	}
	if best == nil {
		return nil, &NoUsableConstructorError{Component: c.Name(), Reasons: reasons}
	}
	return best, nil
}

// factoryResult classifies a factory's return type: I, []I or iter.Seq[I].
func factoryResult(t reflect.Type) (reflect.Type, registry.Arity, error) {
	capability, arity := t, registry.ArityOne
	if elem, ok := seqElem(t); ok {
		capability, arity = elem, registry.AritySequence
	} else if t.Kind() == reflect.Slice {
		capability, arity = t.Elem(), registry.ArityArray
	}
	if !isCapability(capability) {
		return nil, arity, fmt.Errorf("factory must return a capability, a slice of one or a sequence of one, got %v", t)
	}
	return capability, arity, nil
}

// errFactoryParams marks a factory whose result is valid but whose
// parameters are not; the capability is still known.
var errFactoryParams = errors.New("unusable factory parameters")

// factoryPlan validates a static factory function.
func factoryPlan(fn any) (*plan, error) {
	info, err := parseFunc(fn)
	if err != nil {
		return nil, err
	}
	capability, arity, err := factoryResult(info.returnType)
	if err != nil {
		return nil, err
	}

	p := &plan{arity: arity, capability: capability}
	deps, err := classifyAll(info.paramTypes)
	if err != nil {
		return p, fmt.Errorf("%w: %v", errFactoryParams, err)
	}
	p.deps = deps

	p.invoke = func(args []reflect.Value) (instances []any, err error) {
		v, err := info.call(args)
		if err != nil {
			return nil, err
		}

		// Sequences run their body here, after call has returned
		defer func() {
			if rec := recover(); rec != nil {
				instances, err = nil, fmt.Errorf("panic: %v", rec)
			}
		}()
		return fanOut(v, arity)
	}
	return p, nil
}

// fanOut expands a factory result into instances. Nil elements are dropped.
func fanOut(v reflect.Value, arity registry.Arity) ([]any, error) {
	switch arity {
	case registry.ArityArray:
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if e := v.Index(i); !isNil(e) {
				out = append(out, e.Interface())
			}
		}
		return out, nil
	case registry.AritySequence:
		var out []any
		for _, inst := range drainSeq(v) {
			if inst != nil {
				out = append(out, inst)
			}
		}
		return out, nil
	default:
		if isNil(v) {
			return nil, fmt.Errorf("factory returned nil %v", v.Type())
		}
		return []any{v.Interface()}, nil
	}
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

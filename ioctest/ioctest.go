// Package ioctest provides helpers for testing code built on ioc: a resolver
// wired to the test's logger with recorded discovery errors, and direct
// construction of a component from fakes.
package ioctest

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	ioc "github.com/toutaio/toutago-ioc"
)

// Recorder collects errors passed to an error handler.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

// Handle records err. Use it as an ioc error handler.
func (r *Recorder) Handle(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Errors returns the recorded errors in order.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Len returns the number of recorded errors.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// Harness is a resolver under test.
type Harness struct {
	*ioc.Resolver

	// Errors holds every discovery failure.
	Errors *Recorder
}

// New builds a resolver that logs through t and records discovery errors.
// Options are applied after the defaults. The resolver is closed when the
// test ends.
func New(t testing.TB, opts ...ioc.Option) *Harness {
	t.Helper()

	recorder := &Recorder{}
	options := append([]ioc.Option{
		ioc.WithLogger(zaptest.NewLogger(t)),
		ioc.WithErrorHandler(recorder.Handle),
	}, opts...)

	h := &Harness{Resolver: ioc.New(options...), Errors: recorder}
	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("close resolver: %v", err)
		}
	})
	return h
}

// RequireNoErrors fails the test if discovery reported anything.
func (h *Harness) RequireNoErrors(t testing.TB) {
	t.Helper()
	h.Registered() // forces discovery
	require.Empty(t, h.Errors.Errors(), "discovery errors")
}

// Construct calls ctor with arguments taken from deps: each interface
// parameter gets the first dep implementing it, each []I or iter.Seq[I]
// parameter gets every dep implementing I in order, and anything else gets
// its zero value. The constructor must return T, optionally followed by an
// error, which fails the test.
//
// Example:
//
//	host := ioctest.Construct[*Host](t, NewHost, &fakePlugin{}, &fakeClock{})
func Construct[T any](t testing.TB, ctor any, deps ...any) T {
	t.Helper()

	fn := reflect.ValueOf(ctor)
	require.Equal(t, reflect.Func, fn.Kind(), "constructor must be a function")

	fnType := fn.Type()
	want := reflect.TypeOf((*T)(nil)).Elem()
	require.True(t, fnType.NumOut() >= 1 && fnType.Out(0).AssignableTo(want),
		"constructor must return %v", want)

	args := make([]reflect.Value, fnType.NumIn())
	for i := range args {
		args[i] = argument(fnType.In(i), deps)
	}

	var results []reflect.Value
	if fnType.IsVariadic() {
		results = fn.CallSlice(args)
	} else {
		results = fn.Call(args)
	}

	if len(results) == 2 {
		if err, _ := results[1].Interface().(error); err != nil {
			require.NoError(t, err, "constructor failed")
		}
	}
	out, _ := results[0].Interface().(T)
	return out
}

func argument(param reflect.Type, deps []any) reflect.Value {
	switch {
	case param.Kind() == reflect.Interface:
		for _, dep := range deps {
			if dep != nil && reflect.TypeOf(dep).Implements(param) {
				v := reflect.New(param).Elem()
				v.Set(reflect.ValueOf(dep))
				return v
			}
		}

	case param.Kind() == reflect.Slice && param.Elem().Kind() == reflect.Interface:
		s := reflect.MakeSlice(param, 0, len(deps))
		for _, dep := range matching(param.Elem(), deps) {
			s = reflect.Append(s, dep)
		}
		return s

	case isSeq(param):
		values := matching(param.In(0).In(0), deps)
		return reflect.MakeFunc(param, func(args []reflect.Value) []reflect.Value {
			for _, v := range values {
				if !args[0].Call([]reflect.Value{v})[0].Bool() {
					break
				}
			}
			return nil
		})
	}

	return reflect.Zero(param)
}

func matching(capability reflect.Type, deps []any) []reflect.Value {
	var out []reflect.Value
	if capability.Kind() != reflect.Interface {
		return out
	}
	for _, dep := range deps {
		if dep != nil && reflect.TypeOf(dep).Implements(capability) {
			v := reflect.New(capability).Elem()
			v.Set(reflect.ValueOf(dep))
			out = append(out, v)
		}
	}
	return out
}

// isSeq reports whether t has the shape of iter.Seq[E].
func isSeq(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func && yield.NumIn() == 1 &&
		yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool
}

package marshal

import (
	"reflect"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/host"
)

// encodeFunc wraps a native func value so the host can invoke it. The
// zero func encodes as no value, which is how callback slots report
// "unset" after being cleared.
func encodeFunc(m *Mapper, t decl.TypeRef, rv reflect.Value) (host.Value, error) {
	if rv.IsNil() {
		return host.Nil, nil
	}
	return host.Func(&nativeCallable{m: m, t: t, fn: rv}), nil
}

// nativeCallable is the host-facing face of a native func: it decodes
// host arguments, calls the func, and encodes the result.
type nativeCallable struct {
	m  *Mapper
	t  decl.TypeRef
	fn reflect.Value
}

func (nc *nativeCallable) Invoke(args ...host.Value) (host.Value, error) {
	ft := nc.fn.Type()
	if len(args) != len(nc.t.Params) {
		return host.Nil, marshalErrf("callback expects %d arguments, got %d", len(nc.t.Params), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		p := reflect.New(ft.In(i)).Elem()
		if err := nc.m.Decode(nc.t.Params[i], a, p); err != nil {
			return host.Nil, err
		}
		in[i] = p
	}
	out := nc.fn.Call(in)
	if nc.t.ErrResult {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			return host.Nil, last.Interface().(error)
		}
	}
	if nc.t.Result == nil {
		return host.Nil, nil
	}
	return nc.m.Encode(*nc.t.Result, out[0])
}

// decodeFunc stores a host callable into a native func slot. No value
// clears the slot: feature detection then reports it unset and calls
// through the zero func are the caller's responsibility to guard,
// exactly as with any nil Go func.
func decodeFunc(m *Mapper, t decl.TypeRef, v host.Value, dst reflect.Value) error {
	switch v.Kind() {
	case host.KindNil:
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	case host.KindFunc:
		dst.Set(makeHostFuncAdapter(m, t, dst.Type(), v.Func()))
		return nil
	default:
		return marshalErrf("expected callable or no value, got %s", v.Kind())
	}
}

// makeHostFuncAdapter builds a native func that marshals its arguments
// out to a host callable and the result back in. Failures inside the
// host, and failures marshaling its result, surface per the callback
// error rules: through an error return when the func declares one,
// otherwise as a fault that unwinds the surrounding boundary call.
func makeHostFuncAdapter(m *Mapper, t decl.TypeRef, ft reflect.Type, c host.Callable) reflect.Value {
	return reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		args := make([]host.Value, len(in))
		for i, rv := range in {
			a, err := m.Encode(t.Params[i], rv)
			if err != nil {
				return callbackResults(t, ft, err)
			}
			args[i] = a
		}

		res, err := c.Invoke(args...)
		if err != nil {
			return callbackResults(t, ft, err)
		}

		nOut := ft.NumOut()
		if t.ErrResult {
			nOut--
		}
		out := make([]reflect.Value, 0, ft.NumOut())
		if t.Result != nil {
			rv := reflect.New(ft.Out(0)).Elem()
			if derr := m.Decode(*t.Result, res, rv); derr != nil {
				// A result the native side cannot take is a marshaling
				// failure of the outer call, not a host-side error.
				RaiseCallback(derr)
			}
			out = append(out, rv)
		}
		for len(out) < nOut {
			out = append(out, reflect.Zero(ft.Out(len(out))))
		}
		if t.ErrResult {
			out = append(out, reflect.Zero(ft.Out(ft.NumOut()-1)))
		}
		return out
	})
}

// callbackResults routes a host-side callback failure: into the func's
// declared error return when it has one, otherwise through the frame as
// a fault.
func callbackResults(t decl.TypeRef, ft reflect.Type, err error) []reflect.Value {
	if !t.ErrResult {
		RaiseCallback(err)
	}
	n := ft.NumOut()
	out := make([]reflect.Value, n)
	for i := 0; i < n-1; i++ {
		out[i] = reflect.Zero(ft.Out(i))
	}
	out[n-1] = reflect.ValueOf(err).Convert(ft.Out(n - 1))
	return out
}

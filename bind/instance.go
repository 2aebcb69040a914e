package bind

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/refract-io/refract/handle"
	"github.com/refract-io/refract/host"
	"github.com/refract-io/refract/marshal"
)

// Instance is one live native value held for the host: a registry id,
// the pointer to the native struct, and the share backing it when the
// value arrived through a shared handle.
//
// Release is explicit and idempotent. A released instance stays
// reachable as a Go value but every boundary operation on it fails.
type Instance struct {
	id       uint64
	class    *BoundClass
	ptr      reflect.Value // *T
	share    handle.SharedHandle
	released atomic.Bool
	lastUsed atomic.Int64 // unix nanos, drives TTL sweeps
}

// ID returns the registry id.
func (i *Instance) ID() uint64 { return i.id }

// Class returns the binding this instance belongs to.
func (i *Instance) Class() *BoundClass { return i.class }

// Value returns the host representation of this instance.
func (i *Instance) Value() host.Value { return host.Object(i) }

// Native returns the underlying *T. Embedding code only; the host
// never sees it.
func (i *Instance) Native() any { return i.ptr.Interface() }

// Released reports whether Release ran.
func (i *Instance) Released() bool { return i.released.Load() }

func (i *Instance) touch() { i.lastUsed.Store(time.Now().UnixNano()) }

func (i *Instance) guard(op string) error {
	if i.released.Load() {
		return &marshal.MarshalError{Symbol: op, Detail: fmt.Sprintf("use of released %s instance", i.class.Name())}
	}
	i.touch()
	return nil
}

// Get reads a bound property.
func (i *Instance) Get(name string) (host.Value, error) {
	if err := i.guard(name); err != nil {
		return host.Nil, err
	}
	f, ok := i.class.props[name]
	if !ok {
		return host.Nil, i.unknownProperty(name)
	}
	v, err := i.class.reg.mapper.Encode(f.Type, i.ptr.Elem().FieldByName(f.GoName))
	if err != nil {
		return host.Nil, symbolize(err, name)
	}
	return v, nil
}

// Set writes a bound property. Read-only properties reject the write;
// the failed attempt leaves the field untouched.
func (i *Instance) Set(name string, v host.Value) error {
	if err := i.guard(name); err != nil {
		return err
	}
	f, ok := i.class.props[name]
	if !ok {
		return i.unknownProperty(name)
	}
	if f.ReadOnly {
		return &marshal.MarshalError{Symbol: name, Detail: fmt.Sprintf("property %s of %s is read-only", name, i.class.Name())}
	}
	if err := i.class.reg.mapper.Decode(f.Type, v, i.ptr.Elem().FieldByName(f.GoName)); err != nil {
		return symbolize(err, name)
	}
	return nil
}

// Call invokes a bound instance method by symbol.
func (i *Instance) Call(symbol string, args ...host.Value) (host.Value, error) {
	if err := i.guard(symbol); err != nil {
		return host.Nil, err
	}
	md, ok := i.class.methods[symbol]
	if !ok {
		if _, isStatic := i.class.statics[symbol]; isStatic {
			return i.class.CallStatic(symbol, args...)
		}
		return host.Nil, &marshal.MarshalError{Symbol: symbol, Detail: fmt.Sprintf("class %s has no method %q", i.class.Name(), symbol)}
	}
	fn := i.ptr.MethodByName(md.GoName)
	if !fn.IsValid() {
		return host.Nil, &marshal.MarshalError{Symbol: symbol, Detail: fmt.Sprintf("method %s is not callable on %s", md.GoName, i.class.Name())}
	}
	return i.class.call(md, fn, args)
}

// Has reports whether symbol is bound on this instance's class.
func (i *Instance) Has(symbol string) bool { return i.class.Has(symbol) }

// Release drops the instance from the registry and gives up its share
// reference, if any. Safe to call more than once; only the first call
// acts.
func (i *Instance) Release() {
	if !i.released.CompareAndSwap(false, true) {
		return
	}
	if i.share != nil {
		i.share.Release()
	}
	i.class.reg.remove(i.id)
}

func (i *Instance) unknownProperty(name string) error {
	return &marshal.MarshalError{Symbol: name, Detail: fmt.Sprintf("class %s has no property %q", i.class.Name(), name)}
}

// String renders a short diagnostic form.
func (i *Instance) String() string {
	return fmt.Sprintf("%s#%d", i.class.Name(), i.id)
}

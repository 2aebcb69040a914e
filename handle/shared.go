// Package handle provides the shared-ownership smart handle used at the
// native boundary. A Shared[T] carries an explicit reference count so
// that native resources crossing into a garbage-collected host runtime
// are released exactly once, when the last reference goes away, no
// matter which goroutine (including a collector's finalizer goroutine)
// drops it.
//
// Exclusive ownership needs no wrapper: a plain *T slot is an exclusive
// handle, with nil as the absent value.
package handle

import (
	"reflect"
	"sync/atomic"
)

// SharedHandle is the untyped view of a Shared[T], used by the
// extraction and marshaling layers, which work with reflected types.
type SharedHandle interface {
	// PointeeType returns the concrete T.
	PointeeType() reflect.Type
	// IsNil reports whether the handle holds no value.
	IsNil() bool
	// Raw returns the held *T as any, or nil.
	Raw() any
	// Retain returns a new reference to the same share, incrementing
	// the count. The concrete type of the result is the same Shared[T].
	Retain() SharedHandle
	// Release drops one reference. The drop hook runs exactly once,
	// when the count reaches zero.
	Release()
	// Count returns the current reference count. Zero for empty
	// handles.
	Count() int64
}

var ifaceType = reflect.TypeOf((*SharedHandle)(nil)).Elem()

// IsSharedType reports whether t is a Shared[T] instantiation.
func IsSharedType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.Implements(ifaceType)
}

// PointeeOf returns the pointee type of a Shared[T] instantiation.
// It panics if t is not one; check IsSharedType first.
func PointeeOf(t reflect.Type) reflect.Type {
	return reflect.Zero(t).Interface().(SharedHandle).PointeeType()
}

type state struct {
	refs int64
	drop func()
}

// Shared is a reference-counted handle to a T. The zero value is the
// empty handle. Copies share one count; Acquire adds a reference and
// Release drops one. Both are safe for concurrent use from any
// goroutine.
type Shared[T any] struct {
	ptr *T
	st  *state
}

// NewShared wraps p with an initial count of one. The optional drop
// hook runs exactly once, when the count reaches zero. A nil p yields
// the empty handle and drop never runs.
func NewShared[T any](p *T, drop func(*T)) Shared[T] {
	if p == nil {
		return Shared[T]{}
	}
	st := &state{refs: 1}
	if drop != nil {
		st.drop = func() { drop(p) }
	}
	return Shared[T]{ptr: p, st: st}
}

// Reset replaces the handle in place with a fresh share of p, count
// one, no drop hook. Any previous contents are abandoned, not
// released; release the old handle first if it held a reference.
// The method is addressable-receiver so the marshaling layer can build
// shares through reflection.
func (s *Shared[T]) Reset(p *T) {
	if p == nil {
		*s = Shared[T]{}
		return
	}
	*s = Shared[T]{ptr: p, st: &state{refs: 1}}
}

// Get returns the held pointer, or nil for the empty handle.
func (s Shared[T]) Get() *T { return s.ptr }

// IsNil reports whether the handle holds no value.
func (s Shared[T]) IsNil() bool { return s.ptr == nil }

// Acquire returns a new reference to the same share, incrementing the
// count. Acquiring the empty handle returns the empty handle.
// Acquiring a share whose count already reached zero is a bug in the
// caller and panics.
func (s Shared[T]) Acquire() Shared[T] {
	if s.ptr == nil {
		return Shared[T]{}
	}
	for {
		n := atomic.LoadInt64(&s.st.refs)
		if n <= 0 {
			panic("handle: acquire after final release")
		}
		if atomic.CompareAndSwapInt64(&s.st.refs, n, n+1) {
			return s
		}
	}
}

// Release drops one reference. When the count reaches zero the drop
// hook runs, exactly once. Releasing the empty handle is a no-op;
// releasing more times than acquired panics.
func (s Shared[T]) Release() {
	if s.ptr == nil {
		return
	}
	n := atomic.AddInt64(&s.st.refs, -1)
	switch {
	case n == 0:
		if s.st.drop != nil {
			s.st.drop()
		}
	case n < 0:
		panic("handle: release after final release")
	}
}

// Count returns the current reference count, zero for empty handles.
func (s Shared[T]) Count() int64 {
	if s.st == nil {
		return 0
	}
	return atomic.LoadInt64(&s.st.refs)
}

// PointeeType implements SharedHandle.
func (s Shared[T]) PointeeType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Raw implements SharedHandle.
func (s Shared[T]) Raw() any {
	if s.ptr == nil {
		return nil
	}
	return s.ptr
}

// Retain implements SharedHandle.
func (s Shared[T]) Retain() SharedHandle {
	return s.Acquire()
}

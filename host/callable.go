package host

// Callable is a host-runtime function value. Function-typed native
// slots accept any Callable; the engine wraps it in a native-callable
// adapter that re-enters the host when native code invokes it.
//
// Invoke is synchronous. A returned error is the host-side failure
// channel: raised through a native frame it surfaces at the original
// call site unchanged.
type Callable interface {
	Invoke(args ...Value) (Value, error)
}

// CallableFunc adapts a plain function to the Callable interface.
type CallableFunc func(args ...Value) (Value, error)

// Invoke calls f.
func (f CallableFunc) Invoke(args ...Value) (Value, error) {
	return f(args...)
}

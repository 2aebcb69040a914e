package marshal

import "fmt"

// MarshalError reports a host value that does not fit the expected
// TypeRef at call time: wrong arity, incompatible kind, out-of-range
// number. It is recoverable; no binding state is corrupted.
type MarshalError struct {
	Symbol string // bound symbol or property name, when known
	Detail string
}

func (e *MarshalError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("marshal: %s: %s", e.Symbol, e.Detail)
	}
	return "marshal: " + e.Detail
}

func marshalErrf(format string, args ...any) *MarshalError {
	return &MarshalError{Detail: fmt.Sprintf(format, args...)}
}

// NativeError is a fault raised inside a native method body, translated
// one-to-one into a host error. Msg preserves the original panic or
// error text verbatim; Error prefixes the bound symbol so the failure
// stays attributable to its native call.
type NativeError struct {
	Symbol string
	Msg    string
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("native: %s: %s", e.Symbol, e.Msg)
}

// CallbackError is a host-side error raised inside a Function callback
// invoked from native code. It propagates through the native frame and
// unwraps to the original host error at the call site.
type CallbackError struct {
	Symbol string
	Err    error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback: %s: %v", e.Symbol, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// callbackFault carries a host error through native call frames as a
// typed panic. Deferred cleanup in the unwound frames still runs; the
// boundary recover in Frame.CallNative converts the fault back into an
// error.
type callbackFault struct {
	err error
}

// RaiseCallback aborts the current native frame with a host-side error.
// Callback adapters call it when the host callable fails; native code
// never does.
func RaiseCallback(err error) {
	panic(&callbackFault{err: err})
}

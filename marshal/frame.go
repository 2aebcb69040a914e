package marshal

import (
	"fmt"
	"reflect"
)

// State is one phase of a boundary call.
type State uint8

const (
	StateIdle State = iota
	StateArgsMarshaled
	StateNativeExecuting
	StateResultMarshaled
	StateNativeFaulted
	StateErrorTranslated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateArgsMarshaled:
		return "ArgsMarshaled"
	case StateNativeExecuting:
		return "NativeExecuting"
	case StateResultMarshaled:
		return "ResultMarshaled"
	case StateNativeFaulted:
		return "NativeFaulted"
	case StateErrorTranslated:
		return "ErrorTranslated"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// legal successor states; anything else is an engine bug.
var transitions = map[State][]State{
	StateIdle:            {StateArgsMarshaled},
	StateArgsMarshaled:   {StateNativeExecuting},
	StateNativeExecuting: {StateResultMarshaled, StateNativeFaulted},
	StateResultMarshaled: {StateIdle},
	StateNativeFaulted:   {StateErrorTranslated},
	StateErrorTranslated: {StateIdle},
}

// Frame tracks one boundary call through the state machine
//
//	Idle → ArgsMarshaled → NativeExecuting → ResultMarshaled → Idle
//	                       NativeExecuting → NativeFaulted → ErrorTranslated → Idle
//
// Frames are per call and never reused concurrently. The recorded
// trace exists for diagnostics and tests.
type Frame struct {
	symbol string
	state  State
	trace  []State
}

// NewFrame starts an Idle frame for the given bound symbol.
func NewFrame(symbol string) *Frame {
	return &Frame{symbol: symbol, trace: []State{StateIdle}}
}

// Symbol returns the bound symbol this frame is executing.
func (f *Frame) Symbol() string { return f.symbol }

// State returns the current state.
func (f *Frame) State() State { return f.state }

// Trace returns the states visited so far, in order.
func (f *Frame) Trace() []State { return f.trace }

// Advance moves the frame to next. Illegal transitions panic: they can
// only come from the engine itself, never from host input.
func (f *Frame) Advance(next State) {
	for _, ok := range transitions[f.state] {
		if next == ok {
			f.state = next
			f.trace = append(f.trace, next)
			return
		}
	}
	panic(fmt.Sprintf("marshal: illegal frame transition %s → %s", f.state, next))
}

// CallNative invokes fn with args under NativeExecuting and classifies
// any fault: a recovered panic becomes a NativeError carrying the panic
// message verbatim, a callback fault resurfaces as the original host
// error, and when returnsError is set a non-nil trailing error result
// takes the same fault path. Deferred cleanup inside the native body
// runs even when a callback fault unwinds the frame.
//
// On success the trailing error result, if declared, is stripped from
// the returned values. On fault the frame is driven through
// NativeFaulted → ErrorTranslated → Idle and the translated error is
// returned.
func (f *Frame) CallNative(fn reflect.Value, args []reflect.Value, returnsError bool) ([]reflect.Value, error) {
	f.Advance(StateNativeExecuting)

	var out []reflect.Value
	var fault error
	func() {
		defer func() {
			if r := recover(); r != nil {
				fault = f.classify(r)
			}
		}()
		out = fn.Call(args)
	}()

	if fault == nil && returnsError {
		last := out[len(out)-1]
		if !last.IsNil() {
			fault = &NativeError{Symbol: f.symbol, Msg: last.Interface().(error).Error()}
		}
		out = out[:len(out)-1]
	}

	if fault != nil {
		f.Advance(StateNativeFaulted)
		f.Advance(StateErrorTranslated)
		f.Advance(StateIdle)
		return nil, fault
	}
	return out, nil
}

// classify converts a recovered panic value into the host error
// taxonomy.
func (f *Frame) classify(r any) error {
	switch x := r.(type) {
	case *callbackFault:
		if me, ok := x.err.(*MarshalError); ok {
			// A callback argument or result that did not fit its
			// TypeRef is a marshaling failure, not a host exception.
			if me.Symbol == "" {
				me.Symbol = f.symbol
			}
			return me
		}
		return &CallbackError{Symbol: f.symbol, Err: x.err}
	default:
		return &NativeError{Symbol: f.symbol, Msg: panicMessage(r)}
	}
}

func panicMessage(r any) string {
	switch x := r.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

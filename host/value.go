// Package host defines the neutral value representation exchanged with
// the dynamic host runtime. Embedders convert their own values to and
// from host.Value at the edge; the marshaling engine never sees a
// concrete scripting runtime.
//
// Value is a compact tagged union. Accessors assume the tag has been
// checked with Kind; reading through the wrong accessor returns the
// zero payload rather than panicking.
package host

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindList
	KindMap
	KindObject
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	case KindFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Value is one host-runtime value. The zero Value is Nil, the single
// uniform "no value" marker: absent smart handles, cleared callbacks,
// and void results all surface as Nil, never as per-type sentinels.
type Value struct {
	kind Kind
	num  uint64 // bool, int, and float payloads
	str  string // text payload
	ref  any    // *List, *Map, Callable, or the bound-object payload
}

// Nil is the "no value" marker.
var Nil = Value{}

// Bool boxes a boolean.
func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// Int boxes an integer.
func Int(i int64) Value {
	return Value{kind: KindInt, num: uint64(i)}
}

// Float boxes a floating-point number.
func Float(f float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(f)}
}

// Text boxes a string. The bytes pass through unchanged.
func Text(s string) Value {
	return Value{kind: KindText, str: s}
}

// ListOf boxes the given items in a fresh List.
func ListOf(items ...Value) Value {
	return FromList(&List{Items: items})
}

// FromList boxes an existing List.
func FromList(l *List) Value {
	return Value{kind: KindList, ref: l}
}

// FromMap boxes an existing Map.
func FromMap(m *Map) Value {
	return Value{kind: KindMap, ref: m}
}

// Object boxes an opaque bound-instance payload. The payload's concrete
// type belongs to whoever materialized the instance; the engine only
// carries it.
func Object(payload any) Value {
	return Value{kind: KindObject, ref: payload}
}

// Func boxes a host callable.
func Func(c Callable) Value {
	return Value{kind: KindFunc, ref: c}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether the value is the "no value" marker.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the boolean payload. Valid only when Kind is KindBool.
func (v Value) Bool() bool { return v.num != 0 }

// Int returns the integer payload. Valid only when Kind is KindInt.
func (v Value) Int() int64 { return int64(v.num) }

// Float returns the float payload. Valid only when Kind is KindFloat.
func (v Value) Float() float64 { return math.Float64frombits(v.num) }

// Text returns the string payload. Valid only when Kind is KindText.
func (v Value) Text() string { return v.str }

// List returns the list payload, or nil for any other kind.
func (v Value) List() *List {
	l, _ := v.ref.(*List)
	return l
}

// Map returns the map payload, or nil for any other kind.
func (v Value) Map() *Map {
	m, _ := v.ref.(*Map)
	return m
}

// Object returns the bound-instance payload, or nil for any other kind.
func (v Value) Object() any {
	if v.kind != KindObject {
		return nil
	}
	return v.ref
}

// Func returns the callable payload, or nil for any other kind.
func (v Value) Func() Callable {
	c, _ := v.ref.(Callable)
	return c
}

// String renders the value for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.str)
	case KindList:
		l := v.List()
		if l == nil {
			return "[]"
		}
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range l.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(item.String())
		}
		b.WriteByte(']')
		return b.String()
	case KindMap:
		return fmt.Sprintf("map(%d)", v.Map().Len())
	case KindObject:
		return fmt.Sprintf("object(%T)", v.ref)
	case KindFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Equal reports deep equality. Lists compare item by item, maps entry
// by entry; objects and funcs compare by payload identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool, KindInt, KindFloat:
		return a.num == b.num
	case KindText:
		return a.str == b.str
	case KindList:
		la, lb := a.List(), b.List()
		if len(la.Items) != len(lb.Items) {
			return false
		}
		for i := range la.Items {
			if !Equal(la.Items[i], lb.Items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		ma, mb := a.Map(), b.Map()
		if ma.Len() != mb.Len() {
			return false
		}
		for k, va := range ma.entries {
			vb, ok := mb.entries[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	default:
		return a.ref == b.ref
	}
}

// List is an ordered, mutable host sequence.
type List struct {
	Items []Value
}

// Len returns the item count.
func (l *List) Len() int { return len(l.Items) }

// Map is a string-keyed host mapping, used by the legacy map-valued
// representation of nested objects.
type Map struct {
	entries map[string]Value
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{entries: make(map[string]Value)}
}

// Get returns the value stored under key, or Nil.
func (m *Map) Get(key string) Value {
	return m.entries[key]
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Set stores v under key.
func (m *Map) Set(key string, v Value) {
	if m.entries == nil {
		m.entries = make(map[string]Value)
	}
	m.entries[key] = v
}

// Len returns the entry count.
func (m *Map) Len() int { return len(m.entries) }

// Keys returns the keys in unspecified order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

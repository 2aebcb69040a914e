// Package decl defines the declaration model that drives binding
// generation: classes, fields, constructors, methods, and the TypeRef
// variants classifying every value that crosses the native boundary.
//
// Declarations are produced once (by the extract package) and consumed
// read-only by everything downstream. The model is wire-friendly: a Set
// round-trips through canonical CBOR (wire.go). Runtime-only reflect
// handles are excluded from encoding, so wire-decoded declarations can
// be inspected and fed to code generation but cannot back live bindings.
package decl

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind classifies a TypeRef.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindText
	KindSeq
	KindHandle
	KindClass
	KindFunc
)

// String returns a short lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindSeq:
		return "seq"
	case KindHandle:
		return "handle"
	case KindClass:
		return "class"
	case KindFunc:
		return "func"
	default:
		return "invalid"
	}
}

// IsPrimitive reports whether the kind is a by-value scalar.
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindBool, KindInt, KindUint, KindFloat:
		return true
	}
	return false
}

// Ownership distinguishes how a smart handle relates to its pointee.
type Ownership uint8

const (
	// Exclusive handles have a single owner at a time (*T slots).
	Exclusive Ownership = iota
	// Shared handles carry a boundary reference count (handle.Shared[T]).
	Shared
)

func (o Ownership) String() string {
	if o == Shared {
		return "shared"
	}
	return "own"
}

// GrowableLen marks a sequence whose length is not fixed (slices).
const GrowableLen = -1

// SeqOf returns a growable sequence reference over elem.
func SeqOf(elem TypeRef) TypeRef {
	return TypeRef{Kind: KindSeq, Elem: &elem, FixedLen: GrowableLen}
}

// ArrayOf returns a fixed-length sequence reference over elem.
func ArrayOf(n int, elem TypeRef) TypeRef {
	return TypeRef{Kind: KindSeq, Elem: &elem, FixedLen: n}
}

// TypeRef describes one native type as seen from the boundary. Exactly
// one interpretation applies, selected by Kind:
//
//	KindBool..KindFloat  primitive value; GoType may be a named type (enums)
//	KindText             string, byte-preserving
//	KindSeq              Elem element type; FixedLen >= 0 for arrays,
//	                     GrowableLen for slices
//	KindHandle           Owner plus the Class name the handle points at
//	KindClass            Class name, copied by value across the boundary
//	KindFunc             Params/Result signature of a function value
type TypeRef struct {
	Kind     Kind      `cbor:"1,keyasint"`
	Elem     *TypeRef  `cbor:"2,keyasint,omitempty"`
	FixedLen int       `cbor:"3,keyasint,omitempty"`
	Owner    Ownership `cbor:"4,keyasint,omitempty"`
	Class    string    `cbor:"5,keyasint,omitempty"`
	Params   []TypeRef `cbor:"6,keyasint,omitempty"`
	Result   *TypeRef  `cbor:"7,keyasint,omitempty"`
	// ErrResult marks a function whose final native result is an error.
	ErrResult bool `cbor:"8,keyasint,omitempty"`

	// GoType is the reflected native type behind this reference.
	// Runtime only; nil on wire-decoded declarations.
	GoType reflect.Type `cbor:"-"`
}

// String renders the reference in the stable form used by signatures:
// "int", "text", "seq[float]", "arr[3;float]", "own[Data]", "shared[Data]",
// "Vec3", "func(float):text", "func(int)!".
func (t TypeRef) String() string {
	switch t.Kind {
	case KindSeq:
		if t.Elem == nil {
			return "seq[?]"
		}
		if t.FixedLen >= 0 {
			return fmt.Sprintf("arr[%d;%s]", t.FixedLen, t.Elem)
		}
		return fmt.Sprintf("seq[%s]", t.Elem)
	case KindHandle:
		return fmt.Sprintf("%s[%s]", t.Owner, t.Class)
	case KindClass:
		return t.Class
	case KindFunc:
		var b strings.Builder
		b.WriteString("func(")
		for i := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.Params[i].String())
		}
		b.WriteByte(')')
		if t.Result != nil {
			b.WriteByte(':')
			b.WriteString(t.Result.String())
		}
		if t.ErrResult {
			b.WriteByte('!')
		}
		return b.String()
	default:
		return t.Kind.String()
	}
}

// ParamDecl is one positional parameter of a constructor, method, or
// function type. Index is the ordinal used for mangling and dispatch.
type ParamDecl struct {
	Type  TypeRef `cbor:"1,keyasint"`
	Index int     `cbor:"2,keyasint"`
}

// FieldDecl is a bound property backed by a native struct field.
type FieldDecl struct {
	GoName   string  `cbor:"1,keyasint"`
	Name     string  `cbor:"2,keyasint"` // bound property name, snake_case
	Type     TypeRef `cbor:"3,keyasint"`
	ReadOnly bool    `cbor:"4,keyasint,omitempty"`
}

// CtorDecl is one registered constructor. Constructors form a single
// dispatch group resolved at call time by arity and argument kind, in
// registration order, so they carry no mangled symbol.
type CtorDecl struct {
	GoName       string      `cbor:"1,keyasint"` // diagnostic name of the registered function
	Params       []ParamDecl `cbor:"2,keyasint,omitempty"`
	ReturnsPtr   bool        `cbor:"3,keyasint,omitempty"`
	ReturnsError bool        `cbor:"4,keyasint,omitempty"`

	// Fn is the registered constructor function. Runtime only.
	Fn reflect.Value `cbor:"-"`
}

// Arity returns the declared parameter count.
func (c *CtorDecl) Arity() int { return len(c.Params) }

// MethodDecl is one bindable member function, instance or static.
//
// BaseName is the host-facing name before overload resolution; Symbol is
// the unique bound symbol assigned by the mangle package (equal to
// BaseName for non-overloaded members).
type MethodDecl struct {
	GoName   string      `cbor:"1,keyasint"`
	BaseName string      `cbor:"2,keyasint"`
	Symbol   string      `cbor:"3,keyasint"`
	Params   []ParamDecl `cbor:"4,keyasint,omitempty"`
	Result   *TypeRef    `cbor:"5,keyasint,omitempty"` // nil for void
	IsStatic bool        `cbor:"6,keyasint,omitempty"`
	// IsConst records a value-receiver method. Nothing externally
	// visible depends on it.
	IsConst bool `cbor:"7,keyasint,omitempty"`
	// IsVariadic marks arities above two, which dispatch through the
	// generic per-arity binding path instead of a fixed-arity slot.
	IsVariadic   bool `cbor:"8,keyasint,omitempty"`
	ReturnsError bool `cbor:"9,keyasint,omitempty"`

	// Fn is set for statics only; instance methods are resolved from
	// the class GoType by GoName. Runtime only.
	Fn reflect.Value `cbor:"-"`
}

// Arity returns the declared parameter count.
func (m *MethodDecl) Arity() int { return len(m.Params) }

// SkippedMember records a declaration that was reported and excluded
// rather than bound (unsupported type, mangling collision, name clash).
type SkippedMember struct {
	Name   string `cbor:"1,keyasint"`
	Reason string `cbor:"2,keyasint"`
}

// ClassDecl is the full reflected surface of one native class.
//
// Identity is QualifiedName (the fully-qualified native name, including
// expanded generic type arguments); Name is the sanitized host-facing
// name. A ClassDecl is immutable once extraction returns it.
type ClassDecl struct {
	Name          string       `cbor:"1,keyasint"`
	QualifiedName string       `cbor:"2,keyasint"`
	Doc           string       `cbor:"3,keyasint,omitempty"`
	Fields        []FieldDecl  `cbor:"4,keyasint,omitempty"`
	Ctors         []CtorDecl   `cbor:"5,keyasint,omitempty"`
	Methods       []MethodDecl `cbor:"6,keyasint,omitempty"`
	// Nested lists the names of class declarations referenced through
	// field, parameter, and result types, in discovery order.
	Nested  []string        `cbor:"7,keyasint,omitempty"`
	Skipped []SkippedMember `cbor:"8,keyasint,omitempty"`
	// Package is the Go import path of the declaring package. Code
	// generation uses it to qualify references; empty for main-package
	// and test-local types.
	Package string `cbor:"9,keyasint,omitempty"`

	// GoType is the reflected struct type. Runtime only.
	GoType reflect.Type `cbor:"-"`
}

// GoTypeName returns the bare Go type name, including any generic type
// arguments, without the package qualifier.
func (c *ClassDecl) GoTypeName() string {
	if c.Package == "" {
		return c.QualifiedName
	}
	return strings.TrimPrefix(c.QualifiedName, c.Package+".")
}

// AddNested records a referenced class name, once.
func (c *ClassDecl) AddNested(name string) {
	for _, n := range c.Nested {
		if n == name {
			return
		}
	}
	c.Nested = append(c.Nested, name)
}

// FieldByName returns the field bound under name, or nil.
func (c *ClassDecl) FieldByName(name string) *FieldDecl {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// MethodBySymbol returns the method bound under symbol, or nil.
func (c *ClassDecl) MethodBySymbol(symbol string) *MethodDecl {
	for i := range c.Methods {
		if c.Methods[i].Symbol == symbol {
			return &c.Methods[i]
		}
	}
	return nil
}

// Set is one extraction run's worth of declarations, in dependency
// order: every class appears after the classes it references.
type Set struct {
	Decls []*ClassDecl `cbor:"1,keyasint"`
}

// Lookup returns the declaration bound under name, or nil.
func (s *Set) Lookup(name string) *ClassDecl {
	for _, d := range s.Decls {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Names returns the declared class names in set order.
func (s *Set) Names() []string {
	names := make([]string, len(s.Decls))
	for i, d := range s.Decls {
		names[i] = d.Name
	}
	return names
}

// Package bind emits callable bindings from class declarations: a
// constructor dispatch group, property accessors, and symbol-keyed
// method tables over a shared instance registry.
package bind

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/host"
	"github.com/refract-io/refract/marshal"
)

// BoundClass is the emitted binding for one class declaration. The
// host reaches natives exclusively through it: constructors via New,
// statics via CallStatic, everything else through the instances it
// creates.
type BoundClass struct {
	decl    *decl.ClassDecl
	reg     *Registry
	props   map[string]*decl.FieldDecl
	methods map[string]*decl.MethodDecl
	statics map[string]*decl.MethodDecl
}

func newBoundClass(reg *Registry, cd *decl.ClassDecl) (*BoundClass, error) {
	if cd.Name == "" {
		return nil, fmt.Errorf("bind: class with empty name")
	}
	if cd.GoType == nil || cd.GoType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("bind: class %s has no runtime struct type; wire-decoded declarations are inspect-only", cd.Name)
	}

	bc := &BoundClass{
		decl:    cd,
		reg:     reg,
		props:   make(map[string]*decl.FieldDecl, len(cd.Fields)),
		methods: make(map[string]*decl.MethodDecl),
		statics: make(map[string]*decl.MethodDecl),
	}
	for i := range cd.Fields {
		bc.props[cd.Fields[i].Name] = &cd.Fields[i]
	}
	for i := range cd.Methods {
		md := &cd.Methods[i]
		if md.Symbol == "" {
			// Mangling collision; recorded in Skipped, never bound.
			continue
		}
		if md.IsStatic {
			bc.statics[md.Symbol] = md
		} else {
			bc.methods[md.Symbol] = md
		}
	}
	return bc, nil
}

// Name returns the bound class name.
func (bc *BoundClass) Name() string { return bc.decl.Name }

// Decl returns the declaration this binding was emitted from.
func (bc *BoundClass) Decl() *decl.ClassDecl { return bc.decl }

// Has reports whether symbol is bound on this class as a property, a
// method, or a static.
func (bc *BoundClass) Has(symbol string) bool {
	if _, ok := bc.props[symbol]; ok {
		return true
	}
	if _, ok := bc.methods[symbol]; ok {
		return true
	}
	_, ok := bc.statics[symbol]
	return ok
}

// HasProperty reports whether name is a bound property.
func (bc *BoundClass) HasProperty(name string) bool {
	_, ok := bc.props[name]
	return ok
}

// HasMethod reports whether symbol is a bound instance method.
func (bc *BoundClass) HasMethod(symbol string) bool {
	_, ok := bc.methods[symbol]
	return ok
}

// Symbols returns every bound symbol, properties included, sorted.
func (bc *BoundClass) Symbols() []string {
	out := make([]string, 0, len(bc.props)+len(bc.methods)+len(bc.statics))
	for s := range bc.props {
		out = append(out, s)
	}
	for s := range bc.methods {
		out = append(out, s)
	}
	for s := range bc.statics {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Describe renders a one-class summary for diagnostics and the
// inspect command.
func (bc *BoundClass) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %s", bc.decl.Name)
	if bc.decl.QualifiedName != "" && bc.decl.QualifiedName != bc.decl.Name {
		fmt.Fprintf(&b, " (%s)", bc.decl.QualifiedName)
	}
	b.WriteByte('\n')
	for i := range bc.decl.Fields {
		f := &bc.decl.Fields[i]
		fmt.Fprintf(&b, "  property %-20s %s", f.Name, f.Type)
		if f.ReadOnly {
			b.WriteString(" readonly")
		}
		b.WriteByte('\n')
	}
	for i := range bc.decl.Ctors {
		fmt.Fprintf(&b, "  constructor/%d\n", bc.decl.Ctors[i].Arity())
	}
	for _, sym := range bc.Symbols() {
		md, ok := bc.methods[sym]
		if !ok {
			if md, ok = bc.statics[sym]; !ok {
				continue
			}
		}
		kind := "method"
		if md.IsStatic {
			kind = "static"
		}
		fmt.Fprintf(&b, "  %-8s %s/%d", kind, sym, md.Arity())
		if md.Result != nil {
			fmt.Fprintf(&b, " : %s", *md.Result)
		}
		b.WriteByte('\n')
	}
	for _, sk := range bc.decl.Skipped {
		fmt.Fprintf(&b, "  skipped  %s (%s)\n", sk.Name, sk.Reason)
	}
	return b.String()
}

// New runs constructor dispatch over args: arity first, then the first
// registered constructor whose parameters accept the argument kinds.
// The instance it returns is live in the registry until released.
func (bc *BoundClass) New(args ...host.Value) (*Instance, error) {
	if len(bc.decl.Ctors) == 0 {
		return nil, &marshal.MarshalError{Symbol: bc.decl.Name, Detail: "no constructors registered"}
	}
	ct := bc.selectCtor(args)
	if ct == nil {
		if !bc.hasCtorArity(len(args)) {
			return nil, &marshal.MarshalError{Symbol: bc.decl.Name, Detail: "incorrect number of arguments"}
		}
		return nil, &marshal.MarshalError{
			Symbol: bc.decl.Name,
			Detail: fmt.Sprintf("no constructor accepts (%s)", kindsOf(args)),
		}
	}

	ft := ct.Fn.Type()
	in := make([]reflect.Value, len(args))
	for i := range args {
		p := reflect.New(ft.In(i)).Elem()
		if err := bc.reg.mapper.Decode(ct.Params[i].Type, args[i], p); err != nil {
			return nil, symbolize(err, bc.decl.Name)
		}
		in[i] = p
	}

	fr := marshal.NewFrame(bc.decl.Name)
	fr.Advance(marshal.StateArgsMarshaled)
	out, err := fr.CallNative(ct.Fn, in, ct.ReturnsError)
	if err != nil {
		return nil, err
	}

	var ptr reflect.Value
	if ct.ReturnsPtr {
		ptr = out[0]
		if ptr.IsNil() {
			fr.Advance(marshal.StateNativeFaulted)
			fr.Advance(marshal.StateErrorTranslated)
			fr.Advance(marshal.StateIdle)
			return nil, &marshal.NativeError{Symbol: bc.decl.Name, Msg: "constructor returned no instance"}
		}
	} else {
		ptr = reflect.New(bc.decl.GoType)
		ptr.Elem().Set(out[0])
	}
	fr.Advance(marshal.StateResultMarshaled)
	fr.Advance(marshal.StateIdle)

	log.Debugf("new %s/%d", bc.decl.Name, len(args))
	return bc.reg.adopt(bc, ptr, nil), nil
}

func (bc *BoundClass) selectCtor(args []host.Value) *decl.CtorDecl {
	for i := range bc.decl.Ctors {
		ct := &bc.decl.Ctors[i]
		if ct.Arity() != len(args) {
			continue
		}
		ok := true
		for j := range args {
			if !marshal.Compatible(ct.Params[j].Type, args[j]) {
				ok = false
				break
			}
		}
		if ok {
			return ct
		}
	}
	return nil
}

func (bc *BoundClass) hasCtorArity(n int) bool {
	for i := range bc.decl.Ctors {
		if bc.decl.Ctors[i].Arity() == n {
			return true
		}
	}
	return false
}

// CallStatic invokes a static by its bound symbol.
func (bc *BoundClass) CallStatic(symbol string, args ...host.Value) (host.Value, error) {
	md, ok := bc.statics[symbol]
	if !ok {
		return host.Nil, &marshal.MarshalError{Symbol: symbol, Detail: fmt.Sprintf("class %s has no static %q", bc.decl.Name, symbol)}
	}
	return bc.call(md, md.Fn, args)
}

// call is the shared dispatch core for instance methods and statics:
// decode arguments, run the native under a frame, encode the result.
func (bc *BoundClass) call(md *decl.MethodDecl, fn reflect.Value, args []host.Value) (host.Value, error) {
	if len(args) != md.Arity() {
		return host.Nil, &marshal.MarshalError{
			Symbol: md.Symbol,
			Detail: fmt.Sprintf("%s expects %d arguments, got %d", md.BaseName, md.Arity(), len(args)),
		}
	}

	// Arities up to two fill a fixed slot buffer; wider calls take the
	// allocating path.
	var fast [2]reflect.Value
	in := fast[:0]
	if len(args) > len(fast) {
		in = make([]reflect.Value, 0, len(args))
	}

	ft := fn.Type()
	for i := range args {
		p := reflect.New(ft.In(i)).Elem()
		if err := bc.reg.mapper.Decode(md.Params[i].Type, args[i], p); err != nil {
			return host.Nil, symbolize(err, md.Symbol)
		}
		in = append(in, p)
	}

	fr := marshal.NewFrame(md.Symbol)
	fr.Advance(marshal.StateArgsMarshaled)
	out, err := fr.CallNative(fn, in, md.ReturnsError)
	if err != nil {
		return host.Nil, err
	}

	res := host.Nil
	if md.Result != nil {
		res, err = bc.reg.mapper.Encode(*md.Result, out[0])
		if err != nil {
			fr.Advance(marshal.StateNativeFaulted)
			fr.Advance(marshal.StateErrorTranslated)
			fr.Advance(marshal.StateIdle)
			return host.Nil, symbolize(err, md.Symbol)
		}
	}
	fr.Advance(marshal.StateResultMarshaled)
	fr.Advance(marshal.StateIdle)
	return res, nil
}

// symbolize stamps the bound symbol onto marshal errors that were
// raised below the dispatch layer.
func symbolize(err error, symbol string) error {
	if me, ok := err.(*marshal.MarshalError); ok && me.Symbol == "" {
		me.Symbol = symbol
	}
	return err
}

func kindsOf(args []host.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Kind().String()
	}
	return strings.Join(parts, ", ")
}

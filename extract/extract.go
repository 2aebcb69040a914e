// Package extract builds class declarations from native types.
//
// The reflect-mode extractor walks registered struct types at runtime:
// exported fields become properties, exported methods become bindable
// members, and every struct type reached through a field, parameter, or
// result is discovered transitively. Members whose types cannot cross
// the boundary are skipped and reported, never silently dropped.
//
// Source mode (see source.go) produces the same declarations from
// package sources without executing them, for inspection and code
// generation.
package extract

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/handle"
	"github.com/refract-io/refract/mangle"
)

var log = commonlog.GetLogger("refract.extract")

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Option adjusts extraction of a single class.
type Option func(*options)

type options struct {
	name     string
	doc      string
	ctors    []any
	statics  map[string]any
	readOnly map[string]bool
}

func newOptions(opts []Option) *options {
	o := &options{
		statics:  make(map[string]any),
		readOnly: make(map[string]bool),
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WithName overrides the sanitized class name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDoc attaches documentation text to the declaration.
func WithDoc(text string) Option {
	return func(o *options) { o.doc = text }
}

// WithConstructors registers constructor functions. Each must return
// the class type, by value or pointer, optionally with a trailing
// error. Dispatch tries them in this order.
func WithConstructors(fns ...any) Option {
	return func(o *options) { o.ctors = append(o.ctors, fns...) }
}

// WithStatic registers a class-level function under a Go-style name.
// The name takes part in overload resolution exactly like a method
// name.
func WithStatic(name string, fn any) Option {
	return func(o *options) { o.statics[name] = fn }
}

// WithReadOnly marks bound property names as read-only.
func WithReadOnly(names ...string) Option {
	return func(o *options) {
		for _, n := range names {
			o.readOnly[n] = true
		}
	}
}

// Extractor accumulates declarations across Extract calls, one shared
// namespace. Not safe for concurrent use; extraction happens during
// setup.
type Extractor struct {
	byName map[string]*decl.ClassDecl
	byType map[reflect.Type]*decl.ClassDecl
	order  []*decl.ClassDecl // completion order = dependency order
	errs   []*decl.DeclarationError
	walk   []*decl.ClassDecl // classes whose members are being walked
}

// NewExtractor builds an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		byName: make(map[string]*decl.ClassDecl),
		byType: make(map[reflect.Type]*decl.ClassDecl),
	}
}

// Extract declares the struct type of sample. A pointer sample is
// dereferenced. Re-extracting an already known type returns the
// existing declaration, so transitively discovered classes can be
// refined with constructors later.
func (e *Extractor) Extract(sample any, opts ...Option) (*decl.ClassDecl, error) {
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil, fmt.Errorf("extract: nil sample")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return e.extractType(t, newOptions(opts))
}

// Class declares T on e. The usual way to register a class:
//
//	cd, err := extract.Class[Rectangle](e,
//		extract.WithConstructors(NewRectangle, NewRectangleSized))
func Class[T any](e *Extractor, opts ...Option) (*decl.ClassDecl, error) {
	return e.extractType(reflect.TypeFor[T](), newOptions(opts))
}

// Set returns every declaration extracted so far, referenced classes
// before the classes referencing them.
func (e *Extractor) Set() *decl.Set {
	return &decl.Set{Decls: append([]*decl.ClassDecl(nil), e.order...)}
}

// Errors returns the declaration errors reported so far, ordered by
// class then member.
func (e *Extractor) Errors() []*decl.DeclarationError {
	out := make([]*decl.DeclarationError, len(e.errs))
	copy(out, e.errs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (e *Extractor) report(cd *decl.ClassDecl, member, reason string) {
	cd.Skipped = append(cd.Skipped, decl.SkippedMember{Name: member, Reason: reason})
	e.errs = append(e.errs, &decl.DeclarationError{Class: cd.Name, Member: member, Reason: reason})
	log.Warningf("%s.%s skipped: %s", cd.Name, member, reason)
}

func (e *Extractor) extractType(t reflect.Type, o *options) (*decl.ClassDecl, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("extract: %s is not a struct type", t)
	}
	if handle.IsSharedType(t) {
		return nil, fmt.Errorf("extract: %s is a handle, not a class", t)
	}
	if prior, ok := e.byType[t]; ok {
		return e.refine(prior, o)
	}

	name := o.name
	if name == "" {
		if t.Name() == "" {
			return nil, fmt.Errorf("extract: unnamed struct types cannot be bound")
		}
		name = decl.SanitizeTypeName(t.Name())
	}
	if prior, ok := e.byName[name]; ok {
		return nil, &decl.DeclarationError{
			Class:  name,
			Reason: fmt.Sprintf("name already declared for %s", prior.QualifiedName),
		}
	}

	cd := &decl.ClassDecl{
		Name:          name,
		QualifiedName: qualifiedName(t),
		Package:       t.PkgPath(),
		Doc:           o.doc,
		GoType:        t,
	}
	// Registered before the member walk so self-referential types
	// resolve to this declaration instead of recursing.
	e.byName[name] = cd
	e.byType[t] = cd

	e.walk = append(e.walk, cd)
	e.extractFields(cd, t, o)
	e.extractMethods(cd, t)
	e.extractStatics(cd, o)
	e.extractCtors(cd, t, o)
	e.walk = e.walk[:len(e.walk)-1]

	resolveSymbols(cd, func(member, reason string) { e.report(cd, member, reason) })
	e.order = append(e.order, cd)

	log.Debugf("extracted %s: %d fields, %d ctors, %d methods",
		cd.Name, len(cd.Fields), len(cd.Ctors), len(cd.Methods))
	return cd, nil
}

// refine merges constructor, static, and read-only options into a
// declaration discovered earlier without them.
func (e *Extractor) refine(cd *decl.ClassDecl, o *options) (*decl.ClassDecl, error) {
	if o.name != "" && o.name != cd.Name {
		return nil, &decl.DeclarationError{
			Class:  o.name,
			Reason: fmt.Sprintf("type already declared as %s", cd.Name),
		}
	}
	if o.doc != "" {
		cd.Doc = o.doc
	}
	for name := range o.readOnly {
		if f := cd.FieldByName(name); f != nil {
			f.ReadOnly = true
		}
	}
	e.walk = append(e.walk, cd)
	if len(o.statics) > 0 {
		e.extractStatics(cd, o)
		resolveSymbols(cd, func(member, reason string) { e.report(cd, member, reason) })
	}
	if len(o.ctors) > 0 {
		e.extractCtors(cd, cd.GoType, o)
	}
	e.walk = e.walk[:len(e.walk)-1]
	return cd, nil
}

// --- fields ---

func (e *Extractor) extractFields(cd *decl.ClassDecl, t reflect.Type, o *options) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous {
			e.report(cd, sf.Name, "embedded fields are not bound; promoted methods are")
			continue
		}

		name, readonly, skip := parseTag(sf.Tag.Get("refract"))
		if skip {
			continue
		}
		if name == "" {
			name = decl.SnakeCase(sf.Name)
		}

		tr, err := e.typeRefOf(sf.Type)
		if err != nil {
			e.report(cd, sf.Name, err.Error())
			continue
		}
		cd.Fields = append(cd.Fields, decl.FieldDecl{
			GoName:   sf.Name,
			Name:     name,
			Type:     tr,
			ReadOnly: readonly || o.readOnly[name],
		})
	}
}

// parseTag splits a `refract:"name,readonly"` struct tag.
func parseTag(tag string) (name string, readonly, skip bool) {
	if tag == "-" {
		return "", false, true
	}
	name, rest, _ := strings.Cut(tag, ",")
	for rest != "" {
		var opt string
		opt, rest, _ = strings.Cut(rest, ",")
		if opt == "readonly" {
			readonly = true
		}
	}
	return name, readonly, false
}

// --- methods ---

func (e *Extractor) extractMethods(cd *decl.ClassDecl, t reflect.Type) {
	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if !m.IsExported() {
			continue
		}
		md, err := e.methodDecl(m.Name, m.Type, 1, false)
		if err != nil {
			e.report(cd, m.Name, err.Error())
			continue
		}
		// A value receiver means the method cannot mutate the
		// instance.
		if _, onValue := t.MethodByName(m.Name); onValue {
			md.IsConst = true
		}
		cd.Methods = append(cd.Methods, *md)
	}
}

func (e *Extractor) extractStatics(cd *decl.ClassDecl, o *options) {
	names := make([]string, 0, len(o.statics))
	for name := range o.statics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn := o.statics[name]
		fv := reflect.ValueOf(fn)
		if !fv.IsValid() || fv.Kind() != reflect.Func {
			e.report(cd, name, "static is not a function")
			continue
		}
		md, err := e.methodDecl(name, fv.Type(), 0, true)
		if err != nil {
			e.report(cd, name, err.Error())
			continue
		}
		md.Fn = fv
		cd.Methods = append(cd.Methods, *md)
	}
}

// methodDecl builds the declaration for one member function. argOffset
// skips the receiver for instance methods.
func (e *Extractor) methodDecl(goName string, ft reflect.Type, argOffset int, static bool) (*decl.MethodDecl, error) {
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic parameters cannot cross the boundary")
	}

	arity := ft.NumIn() - argOffset
	md := &decl.MethodDecl{
		GoName:     goName,
		BaseName:   decl.BaseName(goName),
		IsStatic:   static,
		IsVariadic: arity > 2,
	}
	for i := 0; i < arity; i++ {
		tr, err := e.typeRefOf(ft.In(i + argOffset))
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i, err)
		}
		md.Params = append(md.Params, decl.ParamDecl{Type: tr, Index: i})
	}

	outs := ft.NumOut()
	if outs > 0 && ft.Out(outs-1) == errType {
		md.ReturnsError = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		tr, err := e.typeRefOf(ft.Out(0))
		if err != nil {
			return nil, fmt.Errorf("result: %v", err)
		}
		md.Result = &tr
	default:
		return nil, fmt.Errorf("more than one non-error result")
	}
	return md, nil
}

// --- constructors ---

func (e *Extractor) extractCtors(cd *decl.ClassDecl, t reflect.Type, o *options) {
	for _, fn := range o.ctors {
		fv := reflect.ValueOf(fn)
		name := ctorName(fv)
		if !fv.IsValid() || fv.Kind() != reflect.Func {
			e.report(cd, name, "constructor is not a function")
			continue
		}
		ct, err := e.ctorDecl(t, fv)
		if err != nil {
			e.report(cd, name, err.Error())
			continue
		}
		cd.Ctors = append(cd.Ctors, *ct)
	}
}

func (e *Extractor) ctorDecl(t reflect.Type, fv reflect.Value) (*decl.CtorDecl, error) {
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic parameters cannot cross the boundary")
	}

	outs := ft.NumOut()
	returnsErr := outs > 0 && ft.Out(outs-1) == errType
	if returnsErr {
		outs--
	}
	if outs != 1 {
		return nil, fmt.Errorf("constructor must return exactly one %s", t.Name())
	}
	rt := ft.Out(0)
	returnsPtr := rt.Kind() == reflect.Pointer
	if returnsPtr {
		rt = rt.Elem()
	}
	if rt != t {
		return nil, fmt.Errorf("constructor returns %s, not %s", ft.Out(0), t.Name())
	}

	ct := &decl.CtorDecl{
		GoName:       ctorName(fv),
		ReturnsPtr:   returnsPtr,
		ReturnsError: returnsErr,
		Fn:           fv,
	}
	for i := 0; i < ft.NumIn(); i++ {
		tr, err := e.typeRefOf(ft.In(i))
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i, err)
		}
		ct.Params = append(ct.Params, decl.ParamDecl{Type: tr, Index: i})
	}
	return ct, nil
}

func ctorName(fv reflect.Value) string {
	if !fv.IsValid() {
		return "constructor"
	}
	full := runtimeFuncName(fv)
	if full == "" {
		return "constructor"
	}
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		full = full[i+1:]
	}
	return full
}

// --- type references ---

// typeRefOf maps one native type onto the boundary type system.
// Struct, pointer-to-struct, and shared-handle types enqueue their
// class for discovery.
func (e *Extractor) typeRefOf(t reflect.Type) (decl.TypeRef, error) {
	switch t.Kind() {
	case reflect.Bool:
		return decl.TypeRef{Kind: decl.KindBool, GoType: t}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decl.TypeRef{Kind: decl.KindInt, GoType: t}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decl.TypeRef{Kind: decl.KindUint, GoType: t}, nil
	case reflect.Float32, reflect.Float64:
		return decl.TypeRef{Kind: decl.KindFloat, GoType: t}, nil
	case reflect.String:
		return decl.TypeRef{Kind: decl.KindText, GoType: t}, nil

	case reflect.Slice:
		elem, err := e.typeRefOf(t.Elem())
		if err != nil {
			return decl.TypeRef{}, err
		}
		tr := decl.SeqOf(elem)
		tr.GoType = t
		return tr, nil
	case reflect.Array:
		elem, err := e.typeRefOf(t.Elem())
		if err != nil {
			return decl.TypeRef{}, err
		}
		tr := decl.ArrayOf(t.Len(), elem)
		tr.GoType = t
		return tr, nil

	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return decl.TypeRef{}, fmt.Errorf("pointer to %s is not bindable", t.Elem().Kind())
		}
		cd, err := e.discover(t.Elem())
		if err != nil {
			return decl.TypeRef{}, err
		}
		return decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Exclusive, Class: cd.Name, GoType: t}, nil

	case reflect.Struct:
		if handle.IsSharedType(t) {
			pointee := handle.PointeeOf(t)
			if pointee.Kind() != reflect.Struct {
				return decl.TypeRef{}, fmt.Errorf("shared handle to %s is not bindable", pointee.Kind())
			}
			cd, err := e.discover(pointee)
			if err != nil {
				return decl.TypeRef{}, err
			}
			return decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Shared, Class: cd.Name, GoType: t}, nil
		}
		cd, err := e.discover(t)
		if err != nil {
			return decl.TypeRef{}, err
		}
		return decl.TypeRef{Kind: decl.KindClass, Class: cd.Name, GoType: t}, nil

	case reflect.Func:
		return e.funcRefOf(t)

	default:
		return decl.TypeRef{}, fmt.Errorf("%s types cannot cross the boundary", t.Kind())
	}
}

func (e *Extractor) funcRefOf(t reflect.Type) (decl.TypeRef, error) {
	if t.IsVariadic() {
		return decl.TypeRef{}, fmt.Errorf("variadic function values are not bindable")
	}
	tr := decl.TypeRef{Kind: decl.KindFunc, GoType: t}
	for i := 0; i < t.NumIn(); i++ {
		p, err := e.typeRefOf(t.In(i))
		if err != nil {
			return decl.TypeRef{}, fmt.Errorf("callback parameter %d: %v", i, err)
		}
		tr.Params = append(tr.Params, p)
	}
	outs := t.NumOut()
	if outs > 0 && t.Out(outs-1) == errType {
		tr.ErrResult = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		r, err := e.typeRefOf(t.Out(0))
		if err != nil {
			return decl.TypeRef{}, fmt.Errorf("callback result: %v", err)
		}
		tr.Result = &r
	default:
		return decl.TypeRef{}, fmt.Errorf("callback with more than one non-error result")
	}
	return tr, nil
}

// discover extracts a struct type reached through a member, with
// default options, and records the reference on the class whose walk
// found it.
func (e *Extractor) discover(t reflect.Type) (*decl.ClassDecl, error) {
	cd, ok := e.byType[t]
	if !ok {
		var err error
		cd, err = e.extractType(t, newOptions(nil))
		if err != nil {
			return nil, err
		}
	}
	if n := len(e.walk); n > 0 && e.walk[n-1] != cd {
		e.walk[n-1].AddNested(cd.Name)
	}
	return cd, nil
}

// resolveSymbols runs overload resolution on cd, drops methods that
// lost their symbol to a mangling collision, and drops methods whose
// bound symbol collides with a property name. The property wins; every
// dropped member is reported once.
func resolveSymbols(cd *decl.ClassDecl, report func(member, reason string)) {
	for _, de := range mangle.Apply(cd) {
		report(de.Member, de.Reason)
	}
	kept := cd.Methods[:0]
	for i := range cd.Methods {
		if cd.Methods[i].Symbol != "" {
			kept = append(kept, cd.Methods[i])
		}
	}
	cd.Methods = kept

	props := make(map[string]bool, len(cd.Fields))
	for i := range cd.Fields {
		props[cd.Fields[i].Name] = true
	}
	kept = cd.Methods[:0]
	for i := range cd.Methods {
		md := &cd.Methods[i]
		if props[md.Symbol] {
			report(md.GoName, fmt.Sprintf("symbol %q collides with a property", md.Symbol))
			continue
		}
		kept = append(kept, *md)
	}
	cd.Methods = kept
}

func qualifiedName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

func runtimeFuncName(fv reflect.Value) string {
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(fv.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

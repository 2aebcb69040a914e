package extract

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/refract-io/refract/decl"
)

// sharedHandlePath identifies handle.Shared instantiations in type
// information, where no reflect.Type is available to compare against.
const sharedHandlePath = "github.com/refract-io/refract/handle"

// PackageOption adjusts source-mode extraction.
type PackageOption func(*pkgOptions)

type pkgOptions struct {
	classes map[string]bool
}

// WithClasses restricts the entry classes to the named Go types.
// Classes referenced by an entry class are still discovered.
func WithClasses(names ...string) PackageOption {
	return func(o *pkgOptions) {
		if o.classes == nil {
			o.classes = make(map[string]bool, len(names))
		}
		for _, n := range names {
			o.classes[n] = true
		}
	}
}

// Package loads the Go package named by pattern and extracts the same
// declarations reflect-mode extraction would produce at runtime,
// without executing any of it. Every exported struct type becomes an
// entry class; package functions attach to their class by name,
// New<Type>* as constructors and <Type><Name> as statics, in source
// name order. The declarations carry no runtime types, so they serve
// inspection, signature tracking, and code generation rather than
// binding.
func Package(pattern string, opts ...PackageOption) (*decl.Set, []*decl.DeclarationError, error) {
	o := &pkgOptions{}
	for _, fn := range opts {
		fn(o)
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, nil, fmt.Errorf("no packages found for %s", pattern)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, nil, fmt.Errorf("package errors: %v", pkg.Errors)
	}
	if pkg.Types == nil {
		return nil, nil, fmt.Errorf("type information not available for %s", pattern)
	}

	s := &sourceExtractor{
		pkg:    pkg.Types,
		docs:   collectDocs(pkg),
		byName: make(map[string]*decl.ClassDecl),
		byKey:  make(map[string]*decl.ClassDecl),
	}

	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		if o.classes != nil && !o.classes[name] {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		if _, ok := named.Underlying().(*types.Struct); !ok {
			continue
		}
		// Generic types are bound per instantiation, at the field or
		// parameter that names the type arguments.
		if named.TypeParams().Len() > 0 {
			continue
		}
		if _, err := s.class(named); err != nil {
			return nil, nil, err
		}
	}

	s.attachFuncs(scope)

	for _, cd := range s.order {
		resolveSymbols(cd, func(member, reason string) { s.report(cd, member, reason) })
	}
	log.Debugf("extracted %d classes from %s", len(s.order), pkg.Types.Path())

	set := &decl.Set{Decls: append([]*decl.ClassDecl(nil), s.order...)}
	return set, s.errs, nil
}

// sourceExtractor mirrors Extractor over go/types, keyed by qualified
// type name instead of reflect.Type.
type sourceExtractor struct {
	pkg    *types.Package
	docs   map[string]string
	byName map[string]*decl.ClassDecl
	byKey  map[string]*decl.ClassDecl
	order  []*decl.ClassDecl
	errs   []*decl.DeclarationError
	walk   []*decl.ClassDecl
}

func (s *sourceExtractor) report(cd *decl.ClassDecl, member, reason string) {
	cd.Skipped = append(cd.Skipped, decl.SkippedMember{Name: member, Reason: reason})
	s.errs = append(s.errs, &decl.DeclarationError{Class: cd.Name, Member: member, Reason: reason})
	log.Warningf("%s.%s skipped: %s", cd.Name, member, reason)
}

func (s *sourceExtractor) class(named *types.Named) (*decl.ClassDecl, error) {
	key := s.key(named)
	if cd, ok := s.byKey[key]; ok {
		return cd, nil
	}
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return nil, fmt.Errorf("extract: %s is not a struct type", key)
	}

	name := decl.SanitizeTypeName(instName(named))
	if prior, ok := s.byName[name]; ok {
		return nil, &decl.DeclarationError{
			Class:  name,
			Reason: fmt.Sprintf("name already declared for %s", prior.QualifiedName),
		}
	}

	cd := &decl.ClassDecl{
		Name:          name,
		QualifiedName: key,
	}
	if p := named.Obj().Pkg(); p != nil {
		cd.Package = p.Path()
		if p == s.pkg {
			cd.Doc = s.docs[named.Obj().Name()]
		}
	}
	// Registered before the member walk so self-referential types
	// resolve to this declaration instead of recursing.
	s.byKey[key] = cd
	s.byName[name] = cd

	s.walk = append(s.walk, cd)
	s.fields(cd, st)
	s.methods(cd, named)
	s.walk = s.walk[:len(s.walk)-1]

	s.order = append(s.order, cd)
	return cd, nil
}

func (s *sourceExtractor) fields(cd *decl.ClassDecl, st *types.Struct) {
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Exported() {
			continue
		}
		if f.Anonymous() {
			s.report(cd, f.Name(), "embedded fields are not bound; promoted methods are")
			continue
		}
		name, readonly, skip := parseTag(reflect.StructTag(st.Tag(i)).Get("refract"))
		if skip {
			continue
		}
		if name == "" {
			name = decl.SnakeCase(f.Name())
		}
		tr, err := s.typeRef(f.Type())
		if err != nil {
			s.report(cd, f.Name(), err.Error())
			continue
		}
		cd.Fields = append(cd.Fields, decl.FieldDecl{
			GoName:   f.Name(),
			Name:     name,
			Type:     tr,
			ReadOnly: readonly,
		})
	}
}

func (s *sourceExtractor) methods(cd *decl.ClassDecl, named *types.Named) {
	mset := types.NewMethodSet(types.NewPointer(named))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		fn, ok := sel.Obj().(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		// The pointer method set includes promoted methods, the same
		// surface runtime extraction walks.
		sig := fn.Type().(*types.Signature)
		md, err := s.methodDecl(fn.Name(), sig, false)
		if err != nil {
			s.report(cd, fn.Name(), err.Error())
			continue
		}
		if recv := sig.Recv(); recv != nil {
			if _, ptr := recv.Type().(*types.Pointer); !ptr {
				md.IsConst = true
			}
		}
		cd.Methods = append(cd.Methods, *md)
	}
}

func (s *sourceExtractor) methodDecl(goName string, sig *types.Signature, static bool) (*decl.MethodDecl, error) {
	if sig.Variadic() {
		return nil, fmt.Errorf("variadic parameters cannot cross the boundary")
	}
	params := sig.Params()
	md := &decl.MethodDecl{
		GoName:     goName,
		BaseName:   decl.BaseName(goName),
		IsStatic:   static,
		IsVariadic: params.Len() > 2,
	}
	for i := 0; i < params.Len(); i++ {
		tr, err := s.typeRef(params.At(i).Type())
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i, err)
		}
		md.Params = append(md.Params, decl.ParamDecl{Type: tr, Index: i})
	}

	results := sig.Results()
	outs := results.Len()
	if outs > 0 && isErrorType(results.At(outs-1).Type()) {
		md.ReturnsError = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		tr, err := s.typeRef(results.At(0).Type())
		if err != nil {
			return nil, fmt.Errorf("result: %v", err)
		}
		md.Result = &tr
	default:
		return nil, fmt.Errorf("more than one non-error result")
	}
	return md, nil
}

// attachFuncs walks the package-level functions and attaches them to
// the classes extracted from this package: New<Type>* functions become
// constructors, <Type><Name> functions become statics registered under
// <Name>. Functions matching no class are ignored.
func (s *sourceExtractor) attachFuncs(scope *types.Scope) {
	// Longest type name first, so NewRectangleEx attaches to
	// RectangleEx rather than Rectangle.
	classes := make([]*decl.ClassDecl, 0, len(s.order))
	for _, cd := range s.order {
		if cd.Package == s.pkg.Path() && !strings.Contains(cd.QualifiedName, "[") {
			classes = append(classes, cd)
		}
	}
	sort.Slice(classes, func(i, j int) bool {
		return len(classes[i].GoTypeName()) > len(classes[j].GoTypeName())
	})

	for _, name := range scope.Names() {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.TypeParams().Len() > 0 {
			continue
		}
		if rest, ok := strings.CutPrefix(name, "New"); ok {
			if cd := matchClass(classes, rest); cd != nil {
				s.attachCtor(cd, fn, sig)
				continue
			}
		}
		for _, cd := range classes {
			if rest, ok := strings.CutPrefix(name, cd.GoTypeName()); ok && rest != "" {
				s.attachStatic(cd, rest, fn, sig)
				break
			}
		}
	}
}

func matchClass(classes []*decl.ClassDecl, rest string) *decl.ClassDecl {
	for _, cd := range classes {
		if strings.HasPrefix(rest, cd.GoTypeName()) {
			return cd
		}
	}
	return nil
}

func (s *sourceExtractor) attachCtor(cd *decl.ClassDecl, fn *types.Func, sig *types.Signature) {
	if sig.Variadic() {
		s.report(cd, fn.Name(), "variadic parameters cannot cross the boundary")
		return
	}
	results := sig.Results()
	outs := results.Len()
	returnsErr := outs > 0 && isErrorType(results.At(outs-1).Type())
	if returnsErr {
		outs--
	}
	if outs != 1 {
		s.report(cd, fn.Name(), fmt.Sprintf("constructor must return exactly one %s", cd.GoTypeName()))
		return
	}
	rt := results.At(0).Type()
	returnsPtr := false
	if p, ok := types.Unalias(rt).(*types.Pointer); ok {
		returnsPtr = true
		rt = p.Elem()
	}
	if s.keyOf(rt) != cd.QualifiedName {
		s.report(cd, fn.Name(), fmt.Sprintf("constructor returns %s, not %s", results.At(0).Type(), cd.GoTypeName()))
		return
	}

	ct := decl.CtorDecl{
		GoName:       fn.Name(),
		ReturnsPtr:   returnsPtr,
		ReturnsError: returnsErr,
	}
	s.walk = append(s.walk, cd)
	defer func() { s.walk = s.walk[:len(s.walk)-1] }()
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		tr, err := s.typeRef(params.At(i).Type())
		if err != nil {
			s.report(cd, fn.Name(), fmt.Sprintf("parameter %d: %v", i, err))
			return
		}
		ct.Params = append(ct.Params, decl.ParamDecl{Type: tr, Index: i})
	}
	cd.Ctors = append(cd.Ctors, ct)
}

// attachStatic registers fn as a static of cd under the registration
// name rest, keeping the full function name for code generation.
func (s *sourceExtractor) attachStatic(cd *decl.ClassDecl, rest string, fn *types.Func, sig *types.Signature) {
	s.walk = append(s.walk, cd)
	md, err := s.methodDecl(rest, sig, true)
	s.walk = s.walk[:len(s.walk)-1]
	if err != nil {
		s.report(cd, fn.Name(), err.Error())
		return
	}
	md.GoName = fn.Name()
	cd.Methods = append(cd.Methods, *md)
}

// --- type references ---

func (s *sourceExtractor) typeRef(t types.Type) (decl.TypeRef, error) {
	switch u := t.(type) {
	case *types.Alias:
		return s.typeRef(types.Unalias(t))

	case *types.Basic:
		return basicRef(u)

	case *types.Slice:
		elem, err := s.typeRef(u.Elem())
		if err != nil {
			return decl.TypeRef{}, err
		}
		return decl.SeqOf(elem), nil

	case *types.Array:
		elem, err := s.typeRef(u.Elem())
		if err != nil {
			return decl.TypeRef{}, err
		}
		return decl.ArrayOf(int(u.Len()), elem), nil

	case *types.Pointer:
		named, ok := types.Unalias(u.Elem()).(*types.Named)
		if !ok {
			return decl.TypeRef{}, fmt.Errorf("pointer to %s is not bindable", u.Elem())
		}
		if _, ok := named.Underlying().(*types.Struct); !ok {
			return decl.TypeRef{}, fmt.Errorf("pointer to %s is not bindable", u.Elem())
		}
		cd, err := s.discover(named)
		if err != nil {
			return decl.TypeRef{}, err
		}
		return decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Exclusive, Class: cd.Name}, nil

	case *types.Signature:
		return s.funcRef(u)

	case *types.Named:
		if pointee, ok := sharedPointee(u); ok {
			named, ok := types.Unalias(pointee).(*types.Named)
			if !ok {
				return decl.TypeRef{}, fmt.Errorf("shared handle to %s is not bindable", pointee)
			}
			if _, ok := named.Underlying().(*types.Struct); !ok {
				return decl.TypeRef{}, fmt.Errorf("shared handle to %s is not bindable", pointee)
			}
			cd, err := s.discover(named)
			if err != nil {
				return decl.TypeRef{}, err
			}
			return decl.TypeRef{Kind: decl.KindHandle, Owner: decl.Shared, Class: cd.Name}, nil
		}
		if _, ok := u.Underlying().(*types.Struct); ok {
			cd, err := s.discover(u)
			if err != nil {
				return decl.TypeRef{}, err
			}
			return decl.TypeRef{Kind: decl.KindClass, Class: cd.Name}, nil
		}
		// Named basics, slices, and function types map like their
		// underlying type, the same as reflect mode.
		return s.typeRef(u.Underlying())

	default:
		return decl.TypeRef{}, fmt.Errorf("%s types cannot cross the boundary", t)
	}
}

func (s *sourceExtractor) funcRef(sig *types.Signature) (decl.TypeRef, error) {
	if sig.Variadic() {
		return decl.TypeRef{}, fmt.Errorf("variadic function values are not bindable")
	}
	tr := decl.TypeRef{Kind: decl.KindFunc}
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p, err := s.typeRef(params.At(i).Type())
		if err != nil {
			return decl.TypeRef{}, fmt.Errorf("callback parameter %d: %v", i, err)
		}
		tr.Params = append(tr.Params, p)
	}
	results := sig.Results()
	outs := results.Len()
	if outs > 0 && isErrorType(results.At(outs-1).Type()) {
		tr.ErrResult = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		r, err := s.typeRef(results.At(0).Type())
		if err != nil {
			return decl.TypeRef{}, fmt.Errorf("callback result: %v", err)
		}
		tr.Result = &r
	default:
		return decl.TypeRef{}, fmt.Errorf("callback with more than one non-error result")
	}
	return tr, nil
}

func basicRef(b *types.Basic) (decl.TypeRef, error) {
	switch b.Kind() {
	case types.Bool:
		return decl.TypeRef{Kind: decl.KindBool}, nil
	case types.Int, types.Int8, types.Int16, types.Int32, types.Int64:
		return decl.TypeRef{Kind: decl.KindInt}, nil
	case types.Uint, types.Uint8, types.Uint16, types.Uint32, types.Uint64:
		return decl.TypeRef{Kind: decl.KindUint}, nil
	case types.Float32, types.Float64:
		return decl.TypeRef{Kind: decl.KindFloat}, nil
	case types.String:
		return decl.TypeRef{Kind: decl.KindText}, nil
	}
	return decl.TypeRef{}, fmt.Errorf("%s types cannot cross the boundary", b)
}

// discover extracts a struct type reached through a member and records
// the reference on the class whose walk found it.
func (s *sourceExtractor) discover(n *types.Named) (*decl.ClassDecl, error) {
	cd, ok := s.byKey[s.key(n)]
	if !ok {
		var err error
		cd, err = s.class(n)
		if err != nil {
			return nil, err
		}
	}
	if m := len(s.walk); m > 0 && s.walk[m-1] != cd {
		s.walk[m-1].AddNested(cd.Name)
	}
	return cd, nil
}

// key returns the qualified name for a named type, the shape reflect
// mode derives from PkgPath and Name.
func (s *sourceExtractor) key(n *types.Named) string {
	name := instName(n)
	if p := n.Obj().Pkg(); p != nil {
		return p.Path() + "." + name
	}
	return name
}

func (s *sourceExtractor) keyOf(t types.Type) string {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return ""
	}
	return s.key(n)
}

// instName renders the bare type name with any generic type arguments,
// qualified by import path like reflect.Type.Name reports them.
func instName(n *types.Named) string {
	name := n.Obj().Name()
	args := n.TypeArgs()
	if args == nil || args.Len() == 0 {
		return name
	}
	parts := make([]string, args.Len())
	for i := 0; i < args.Len(); i++ {
		parts[i] = types.TypeString(args.At(i), pathQualifier)
	}
	return name + "[" + strings.Join(parts, ",") + "]"
}

func pathQualifier(p *types.Package) string { return p.Path() }

// sharedPointee matches handle.Shared[T] instantiations and returns T.
func sharedPointee(n *types.Named) (types.Type, bool) {
	obj := n.Obj()
	if obj.Name() != "Shared" || obj.Pkg() == nil || obj.Pkg().Path() != sharedHandlePath {
		return nil, false
	}
	args := n.TypeArgs()
	if args == nil || args.Len() != 1 {
		return nil, false
	}
	return args.At(0), true
}

func isErrorType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Name() == "error" && obj.Pkg() == nil
}

// collectDocs maps declared type names to their doc comments.
func collectDocs(pkg *packages.Package) map[string]string {
	docs := make(map[string]string)
	for _, f := range pkg.Syntax {
		for _, d := range f.Decls {
			gd, ok := d.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				if doc != nil {
					docs[ts.Name.Name] = strings.TrimSpace(doc.Text())
				}
			}
		}
	}
	return docs
}

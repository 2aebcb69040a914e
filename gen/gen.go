// Package gen renders Go registration glue for extracted class
// declarations. The generated file re-declares every class at package
// init, so importing it is enough to expose the surface through Decls,
// and NewRegistry binds the whole set in one call. RegisterClasses
// stays callable for programs that manage their own extractor.
package gen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/refract-io/refract/decl"
)

const (
	declPath    = "github.com/refract-io/refract/decl"
	extractPath = "github.com/refract-io/refract/extract"
	bindPath    = "github.com/refract-io/refract/bind"
	marshalPath = "github.com/refract-io/refract/marshal"
)

// Options configure one generated file.
type Options struct {
	// Package is the package clause of the generated file. Empty
	// selects "refractgen".
	Package string

	// LegacyMapValues bakes the legacy map representation for
	// class-valued properties into the emitted NewRegistry.
	LegacyMapValues bool
}

// File renders registration glue for every class in set. Classes whose
// type arguments cannot be written as a Go type expression are left
// out; the extractor rediscovers them through the classes that
// reference them.
func File(set *decl.Set, opts Options) ([]byte, error) {
	pkg := opts.Package
	if pkg == "" {
		pkg = "refractgen"
	}

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by refract. DO NOT EDIT.")

	var stmts []jen.Code
	for _, cd := range set.Decls {
		stmt, ok := classStmt(cd)
		if !ok {
			continue
		}
		stmts = append(stmts, stmt)
	}
	stmts = append(stmts, jen.Return(jen.Nil()))

	f.Comment("extractor holds the declarations registered at package init.")
	f.Var().Id("extractor").Op("=").Qual(extractPath, "NewExtractor").Call()
	f.Line()

	f.Func().Id("init").Params().Block(
		jen.If(
			jen.Err().Op(":=").Id("RegisterClasses").Call(jen.Id("extractor")),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Panic(jen.Err())),
	)
	f.Line()

	f.Comment("Decls returns the declaration set extracted at package init.")
	f.Func().Id("Decls").
		Params().
		Op("*").Qual(declPath, "Set").
		Block(jen.Return(jen.Id("extractor").Dot("Set").Call()))
	f.Line()

	f.Comment("RegisterClasses declares every generated class on e, referenced")
	f.Comment("classes first.")
	f.Func().Id("RegisterClasses").
		Params(jen.Id("e").Op("*").Qual(extractPath, "Extractor")).
		Error().
		Block(stmts...)
	f.Line()

	f.Comment("NewRegistry binds the init-extracted classes into a fresh")
	f.Comment("registry.")
	f.Func().Id("NewRegistry").
		Params().
		Params(jen.Op("*").Qual(bindPath, "Registry"), jen.Error()).
		Block(registryStmts(opts)...)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering glue: %w", err)
	}
	return buf.Bytes(), nil
}

// classStmt builds the guarded extract.Class call for one declaration.
func classStmt(cd *decl.ClassDecl) (jen.Code, bool) {
	typ, ok := classType(cd)
	if !ok {
		return nil, false
	}

	args := []jen.Code{jen.Id("e")}
	if cd.Name != decl.SanitizeTypeName(cd.GoTypeName()) {
		args = append(args, jen.Qual(extractPath, "WithName").Call(jen.Lit(cd.Name)))
	}
	if cd.Doc != "" {
		args = append(args, jen.Qual(extractPath, "WithDoc").Call(jen.Lit(cd.Doc)))
	}
	if len(cd.Ctors) > 0 {
		ctors := make([]jen.Code, 0, len(cd.Ctors))
		for _, ct := range cd.Ctors {
			ctors = append(ctors, jen.Qual(cd.Package, ct.GoName))
		}
		args = append(args, jen.Qual(extractPath, "WithConstructors").Call(ctors...))
	}
	for _, name := range staticNames(cd) {
		args = append(args, jen.Qual(extractPath, "WithStatic").Call(
			jen.Lit(name.short),
			jen.Qual(cd.Package, name.goName),
		))
	}

	call := jen.Qual(extractPath, "Class").Index(typ).Call(args...)
	stmt := jen.If(
		jen.List(jen.Id("_"), jen.Err()).Op(":=").Add(call),
		jen.Err().Op("!=").Nil(),
	).Block(jen.Return(jen.Err()))
	return stmt, true
}

// classType writes the Go type expression for a declaration, including
// generic type arguments.
func classType(cd *decl.ClassDecl) (jen.Code, bool) {
	if cd.Package == "" {
		return nil, false
	}
	name := cd.GoTypeName()
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return jen.Qual(cd.Package, name), true
	}
	if !strings.HasSuffix(name, "]") {
		return nil, false
	}

	var targs []jen.Code
	for _, arg := range splitTypeArgs(name[open+1 : len(name)-1]) {
		expr, ok := typeArgExpr(arg)
		if !ok {
			return nil, false
		}
		targs = append(targs, expr)
	}
	return jen.Qual(cd.Package, name[:open]).Index(targs...), true
}

// typeArgExpr renders one type argument. Only plain identifiers and
// package-qualified names are expressible; anything else makes the
// class rediscoverable only.
func typeArgExpr(arg string) (jen.Code, bool) {
	if isIdent(arg) {
		return jen.Id(arg), true
	}
	dot := strings.LastIndexByte(arg, '.')
	if dot <= strings.LastIndexByte(arg, '/') {
		return nil, false
	}
	path, name := arg[:dot], arg[dot+1:]
	if path == "" || !isIdent(name) {
		return nil, false
	}
	return jen.Qual(path, name), true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return false
		}
	}
	return true
}

// splitTypeArgs splits a bracketed argument list at top-level commas.
func splitTypeArgs(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

type staticName struct {
	short  string
	goName string
}

// staticNames lists the static methods of a class with their
// registration names, sorted for stable output. The registration name
// drops the class-name prefix that package-level statics carry.
func staticNames(cd *decl.ClassDecl) []staticName {
	typeName := cd.GoTypeName()
	var out []staticName
	for i := range cd.Methods {
		md := &cd.Methods[i]
		if !md.IsStatic {
			continue
		}
		short := strings.TrimPrefix(md.GoName, typeName)
		if short == "" {
			short = md.GoName
		}
		out = append(out, staticName{short: short, goName: md.GoName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].short < out[j].short })
	return out
}

// registryStmts builds the NewRegistry body.
func registryStmts(opts Options) []jen.Code {
	marshalOpts := jen.Qual(marshalPath, "Options").Values()
	if opts.LegacyMapValues {
		marshalOpts = jen.Qual(marshalPath, "Options").Values(jen.Dict{
			jen.Id("LegacyMapValues"): jen.True(),
		})
	}

	return []jen.Code{
		jen.Id("r").Op(":=").Qual(bindPath, "NewRegistry").Call(marshalOpts),
		jen.If(
			jen.Err().Op(":=").Id("r").Dot("RegisterAll").Call(jen.Id("extractor").Dot("Set").Call()),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Id("r"), jen.Nil()),
	}
}

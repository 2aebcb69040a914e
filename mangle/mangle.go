// Package mangle resolves overloaded members into unique bound symbols.
//
// Members sharing a base name form an overload group. A group of one
// binds under the base name unchanged; larger groups get deterministic
// symbols built from short per-parameter type tags, so every member is
// addressable by name even from host runtimes with no overloading of
// their own. Constructors never pass through here: they form a single
// call-time dispatch group resolved by arity and argument kind.
package mangle

import (
	"fmt"
	"strings"

	"github.com/refract-io/refract/decl"
)

// Tag returns the short stable tag used for one parameter position of a
// mangled symbol.
func Tag(t decl.TypeRef) string {
	switch t.Kind {
	case decl.KindBool:
		return "bool"
	case decl.KindInt:
		return "int"
	case decl.KindUint:
		return "uint"
	case decl.KindFloat:
		return "float"
	case decl.KindText:
		return "string"
	case decl.KindSeq:
		return "seq"
	case decl.KindHandle:
		return "ptr"
	case decl.KindClass:
		return decl.SnakeCase(t.Class)
	case decl.KindFunc:
		return "func"
	default:
		return "invalid"
	}
}

// Symbol builds the mangled bound symbol for a member of an overload
// group: the base name followed by one tag per parameter, in order.
// A niladic member appends nothing and keeps the bare base name; a
// second niladic member in the same group is a collision like any other
// duplicate tag sequence.
func Symbol(base string, params []decl.ParamDecl) string {
	if len(params) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	for i := range params {
		b.WriteByte('_')
		b.WriteString(Tag(params[i].Type))
	}
	return b.String()
}

// Apply assigns bound symbols to every method of a class declaration,
// in place, and reports members it had to reject.
//
// Rejections are mangling collisions: two group members whose parameter
// tags are identical. The first declaration keeps the symbol; later
// duplicates are returned as DeclarationErrors and their Symbol is left
// empty, which downstream binding treats as "excluded". Instance and
// static members share one namespace of base names.
func Apply(c *decl.ClassDecl) []*decl.DeclarationError {
	groups := make(map[string][]int)
	for i := range c.Methods {
		m := &c.Methods[i]
		groups[m.BaseName] = append(groups[m.BaseName], i)
	}

	var rejected []*decl.DeclarationError
	for base, members := range groups {
		if len(members) == 1 {
			c.Methods[members[0]].Symbol = base
			continue
		}
		seen := make(map[string]string, len(members)) // symbol → GoName of first claimant
		for _, idx := range members {
			m := &c.Methods[idx]
			sym := Symbol(base, m.Params)
			if first, dup := seen[sym]; dup {
				m.Symbol = ""
				rejected = append(rejected, &decl.DeclarationError{
					Class:  c.Name,
					Member: m.GoName,
					Reason: fmt.Sprintf("overload signature %q already bound by %s", sym, first),
				})
				continue
			}
			seen[sym] = m.GoName
			m.Symbol = sym
		}
	}
	return rejected
}

package decl

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signature renders a stable one-line description of a class surface.
// It covers everything that affects the bound API: names, symbols,
// parameter and result types, mutability, and staticness. Two runs over
// an unchanged declaration produce identical text, so the hash of the
// signature doubles as a change detector between generation runs.
func Signature(c *ClassDecl) string {
	var b strings.Builder
	b.WriteString("class ")
	b.WriteString(c.QualifiedName)
	b.WriteByte('{')
	for i := range c.Fields {
		f := &c.Fields[i]
		b.WriteString("f:")
		b.WriteString(f.Name)
		if f.ReadOnly {
			b.WriteByte('!')
		}
		b.WriteByte(':')
		b.WriteString(f.Type.String())
		b.WriteByte(';')
	}
	for i := range c.Ctors {
		ct := &c.Ctors[i]
		b.WriteString("c:(")
		writeParams(&b, ct.Params)
		b.WriteByte(')')
		if ct.ReturnsError {
			b.WriteByte('!')
		}
		b.WriteByte(';')
	}
	for i := range c.Methods {
		m := &c.Methods[i]
		if m.IsStatic {
			b.WriteString("s:")
		} else {
			b.WriteString("m:")
		}
		b.WriteString(m.Symbol)
		b.WriteByte('(')
		writeParams(&b, m.Params)
		b.WriteByte(')')
		if m.Result != nil {
			b.WriteByte(':')
			b.WriteString(m.Result.String())
		}
		if m.ReturnsError {
			b.WriteByte('!')
		}
		b.WriteByte(';')
	}
	b.WriteByte('}')
	return b.String()
}

// Hash returns the hex-encoded SHA-256 of the class signature.
func Hash(c *ClassDecl) string {
	sum := sha256.Sum256([]byte(Signature(c)))
	return hex.EncodeToString(sum[:])
}

func writeParams(b *strings.Builder, params []ParamDecl) {
	for i := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(params[i].Type.String())
	}
}

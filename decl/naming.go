package decl

import (
	"strings"
	"unicode"
)

// SnakeCase converts a Go PascalCase identifier to the boundary's
// snake_case convention.
// e.g., "Area" → "area", "HasDataCallback" → "has_data_callback",
// "URLPath" → "url_path".
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitOverloadName splits a Go method name on the overload-group marker
// "__". Methods named like "Print__Int" and "Print__Text" share the base
// name "print"; the part after the marker only keeps the Go names
// distinct and never reaches the host. The second result is false when
// the name carries no marker or the marker leaves an empty base.
func SplitOverloadName(goName string) (base string, ok bool) {
	i := strings.Index(goName, "__")
	if i <= 0 {
		return "", false
	}
	return SnakeCase(goName[:i]), true
}

// BaseName returns the host-facing base name for a Go member name,
// honoring the overload-group marker.
func BaseName(goName string) string {
	if base, ok := SplitOverloadName(goName); ok {
		return base
	}
	return SnakeCase(goName)
}

// SanitizeTypeName flattens a reflected type name, which for generic
// instantiations includes bracketed and possibly package-qualified type
// arguments, into a plain identifier.
// e.g., "Container[int]" → "ContainerInt",
// "Pair[shapes.Key,float64]" → "PairKeyFloat64".
func SanitizeTypeName(name string) string {
	var segs []string
	var seg strings.Builder
	flush := func() {
		if seg.Len() > 0 {
			segs = append(segs, seg.String())
			seg.Reset()
		}
	}
	for _, r := range name {
		switch {
		case r == '[' || r == ']' || r == ',' || r == ' ' || r == '*':
			flush()
		case r == '.' || r == '/':
			// Drop the package qualifier accumulated so far.
			seg.Reset()
		default:
			seg.WriteRune(r)
		}
	}
	flush()
	for i, s := range segs {
		r := []rune(s)
		r[0] = unicode.ToUpper(r[0])
		segs[i] = string(r)
	}
	return strings.Join(segs, "")
}

package extract

import (
	"testing"

	"github.com/refract-io/refract/decl"
)

const shapesPath = "github.com/refract-io/refract/internal/shapes"

// loadShapes extracts the fixture package once per test that needs the
// full surface. Loading goes through the build system, so failures
// abort rather than cascade.
func loadShapes(t *testing.T, opts ...PackageOption) *decl.Set {
	t.Helper()
	set, derrs, err := Package(shapesPath, opts...)
	if err != nil {
		t.Fatalf("source extraction failed: %v", err)
	}
	if len(derrs) != 0 {
		t.Fatalf("declaration errors: %v", derrs)
	}
	return set
}

func TestPackageExtractionSurface(t *testing.T) {
	set := loadShapes(t)

	for _, want := range []string{
		"Address", "Catalog", "ContainerFloat64", "ContainerInt64",
		"Mentor", "Printer", "Rectangle", "Student", "Transcript",
		"University", "Vec3",
	} {
		if set.Lookup(want) == nil {
			t.Errorf("missing class %s (have %v)", want, set.Names())
		}
	}

	r := set.Lookup("Rectangle")
	if r == nil {
		t.Fatal("Rectangle not extracted")
	}
	if r.Package != shapesPath {
		t.Errorf("Package = %q", r.Package)
	}
	if r.QualifiedName != shapesPath+".Rectangle" {
		t.Errorf("QualifiedName = %q", r.QualifiedName)
	}
	if r.Doc != "Rectangle is an axis-aligned rectangle." {
		t.Errorf("Doc = %q", r.Doc)
	}
	if r.GoType != nil {
		t.Error("source mode must not carry runtime types")
	}

	wantFields := []string{"width", "height", "name"}
	if len(r.Fields) != len(wantFields) {
		t.Fatalf("got %d fields, want %d", len(r.Fields), len(wantFields))
	}
	for i, want := range wantFields {
		if r.Fields[i].Name != want {
			t.Errorf("field %d = %q, want %q", i, r.Fields[i].Name, want)
		}
	}
	for _, sym := range []string{"area", "perimeter", "scale"} {
		if r.MethodBySymbol(sym) == nil {
			t.Errorf("method %q not bound", sym)
		}
	}
}

func TestPackageConstructorAttachment(t *testing.T) {
	set := loadShapes(t)
	r := set.Lookup("Rectangle")
	if r == nil {
		t.Fatal("Rectangle not extracted")
	}

	// Attachment follows source name order.
	want := []struct {
		goName string
		arity  int
	}{
		{"NewRectangle", 0},
		{"NewRectangleNamed", 3},
		{"NewRectangleSized", 2},
	}
	if len(r.Ctors) != len(want) {
		t.Fatalf("got %d ctors, want %d", len(r.Ctors), len(want))
	}
	for i, w := range want {
		if r.Ctors[i].GoName != w.goName || r.Ctors[i].Arity() != w.arity {
			t.Errorf("ctor %d = %s/%d, want %s/%d",
				i, r.Ctors[i].GoName, r.Ctors[i].Arity(), w.goName, w.arity)
		}
	}

	s := set.Lookup("Student")
	if s == nil || len(s.Ctors) != 1 || s.Ctors[0].GoName != "NewStudent" || s.Ctors[0].Arity() != 2 {
		t.Errorf("Student ctors = %+v, want NewStudent/2", s.Ctors)
	}
}

func TestPackageStaticAttachment(t *testing.T) {
	set := loadShapes(t)
	v := set.Lookup("Vec3")
	if v == nil {
		t.Fatal("Vec3 not extracted")
	}

	zero := v.MethodBySymbol("zero")
	if zero == nil || !zero.IsStatic || zero.GoName != "Vec3Zero" {
		t.Fatalf("zero static = %+v", zero)
	}
	lerp := v.MethodBySymbol("lerp")
	if lerp == nil || !lerp.IsStatic || lerp.GoName != "Vec3Lerp" {
		t.Fatalf("lerp static = %+v", lerp)
	}
	if !lerp.IsVariadic {
		t.Error("three-argument static should take the generic dispatch path")
	}

	if md := v.MethodBySymbol("length"); md == nil || !md.IsConst {
		t.Error("value-receiver method should be const")
	}
	if md := v.MethodBySymbol("dot"); md == nil || md.IsConst {
		t.Error("pointer-receiver method should not be const")
	}
}

func TestPackageOverloadSymbols(t *testing.T) {
	set := loadShapes(t)
	p := set.Lookup("Printer")
	if p == nil {
		t.Fatal("Printer not extracted")
	}
	want := map[string]string{
		"print_int":    "Print__Int",
		"print_float":  "Print__Float",
		"print_string": "Print__Text",
	}
	for sym, goName := range want {
		md := p.MethodBySymbol(sym)
		if md == nil {
			t.Errorf("symbol %q not bound", sym)
			continue
		}
		if md.GoName != goName {
			t.Errorf("symbol %q bound to %s, want %s", sym, md.GoName, goName)
		}
	}
}

func TestPackageReferenceDiscovery(t *testing.T) {
	set := loadShapes(t)
	s := set.Lookup("Student")
	if s == nil {
		t.Fatal("Student not extracted")
	}

	checks := []struct {
		field string
		kind  decl.Kind
		class string
		owner decl.Ownership
	}{
		{"school", decl.KindClass, "University", 0},
		{"advisor", decl.KindHandle, "Mentor", decl.Exclusive},
		{"record", decl.KindHandle, "Transcript", decl.Shared},
	}
	for _, c := range checks {
		f := s.FieldByName(c.field)
		if f == nil || f.Type.Kind != c.kind || f.Type.Class != c.class || f.Type.Owner != c.owner {
			t.Errorf("%s = %+v, want %v of %s", c.field, f, c.kind, c.class)
		}
	}
	awards := s.FieldByName("awards")
	if awards == nil || awards.Type.Kind != decl.KindSeq || awards.Type.Elem.Kind != decl.KindText {
		t.Errorf("awards = %+v, want a sequence of text", awards)
	}
	hook := s.FieldByName("on_enroll")
	if hook == nil || hook.Type.Kind != decl.KindFunc ||
		len(hook.Type.Params) != 1 || hook.Type.Params[0].Kind != decl.KindText || hook.Type.Result != nil {
		t.Errorf("on_enroll = %+v, want func(text)", hook)
	}

	wantNested := []string{"University", "Mentor", "Transcript"}
	if len(s.Nested) != len(wantNested) {
		t.Fatalf("Nested = %v, want %v", s.Nested, wantNested)
	}
	for i, want := range wantNested {
		if s.Nested[i] != want {
			t.Errorf("Nested[%d] = %q, want %q", i, s.Nested[i], want)
		}
	}

	// Referenced classes complete before the classes referencing them.
	index := make(map[string]int)
	for i, name := range set.Names() {
		index[name] = i
	}
	for _, pair := range [][2]string{
		{"Address", "University"},
		{"University", "Student"},
		{"ContainerInt64", "Catalog"},
	} {
		if index[pair[0]] >= index[pair[1]] {
			t.Errorf("%s should precede %s in %v", pair[0], pair[1], set.Names())
		}
	}
}

func TestPackageGenericInstantiations(t *testing.T) {
	set := loadShapes(t)

	ints := set.Lookup("ContainerInt64")
	if ints == nil {
		t.Fatal("ContainerInt64 not extracted")
	}
	if ints.QualifiedName != shapesPath+".Container[int64]" {
		t.Errorf("QualifiedName = %q", ints.QualifiedName)
	}
	items := ints.FieldByName("items")
	if items == nil || items.Type.Kind != decl.KindSeq || items.Type.Elem.Kind != decl.KindInt {
		t.Errorf("items = %+v, want a sequence of int", items)
	}
	if ints.MethodBySymbol("count") == nil {
		t.Error("instantiated method not bound")
	}
	if ints.Doc != "Container holds an ordered collection of one element type." {
		t.Errorf("Doc = %q", ints.Doc)
	}

	floats := set.Lookup("ContainerFloat64")
	if floats == nil {
		t.Fatal("ContainerFloat64 not extracted")
	}
	if f := floats.FieldByName("items"); f == nil || f.Type.Elem.Kind != decl.KindFloat {
		t.Errorf("items = %+v, want a sequence of float", f)
	}

	c := set.Lookup("Catalog")
	if c == nil || len(c.Nested) != 2 {
		t.Fatalf("Catalog nested = %+v", c)
	}
}

func TestPackageClassFilter(t *testing.T) {
	set := loadShapes(t, WithClasses("Vec3"))
	if len(set.Decls) != 1 || set.Decls[0].Name != "Vec3" {
		t.Errorf("decls = %v, want Vec3 only", set.Names())
	}
	// Statics still attach to a filtered entry.
	if set.Decls[0].MethodBySymbol("zero") == nil {
		t.Error("static lost under the class filter")
	}
}

func TestPackageLoadFailure(t *testing.T) {
	_, _, err := Package("github.com/refract-io/refract/internal/notthere")
	if err == nil {
		t.Fatal("loading a nonexistent package should fail")
	}
}

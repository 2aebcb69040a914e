package bind

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/refract-io/refract/extract"
	"github.com/refract-io/refract/handle"
	"github.com/refract-io/refract/marshal"
)

// ---------------------------------------------------------------------------
// Fixture Classes
// ---------------------------------------------------------------------------

type rectangle struct {
	Width  float64
	Height float64
	Name   string
}

func newRectangle() rectangle {
	return rectangle{Name: "unnamed"}
}

func newRectangleSized(w, h float64) rectangle {
	return rectangle{Width: w, Height: h, Name: "rectangle"}
}

func newRectangleNamed(w, h float64, name string) rectangle {
	return rectangle{Width: w, Height: h, Name: name}
}

func (r rectangle) Area() float64      { return r.Width * r.Height }
func (r rectangle) Perimeter() float64 { return 2 * (r.Width + r.Height) }
func (r *rectangle) Scale(f float64) {
	r.Width *= f
	r.Height *= f
}

type printer struct {
	Last string
}

func newPrinter() *printer { return &printer{} }

func (p *printer) Print__Int(n int64) string {
	p.Last = fmt.Sprintf("int: %d", n)
	return p.Last
}

func (p *printer) Print__Float(f float64) string {
	p.Last = fmt.Sprintf("float: %g", f)
	return p.Last
}

func (p *printer) Print__Text(s string) string {
	p.Last = fmt.Sprintf("string: %s", s)
	return p.Last
}

func (p *printer) GetLast() string { return p.Last }

type calculator struct {
	Memory float64
}

func newCalculator() calculator { return calculator{} }

func (c *calculator) Divide(a, b int64) int64 { return a / b }

func (c *calculator) CheckedDivide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *calculator) Validate(x float64) {
	if math.IsNaN(x) {
		panic("not a number")
	}
	c.Memory = x
}

type emitter struct {
	OnEvent func(string)
	Sent    int64
}

func newEmitter() emitter { return emitter{} }

func (e *emitter) Emit(msg string) {
	if e.OnEvent == nil {
		return
	}
	e.OnEvent(msg)
	e.Sent++
}

func (e *emitter) HasListener() bool { return e.OnEvent != nil }

type processor struct {
	Transform func(int64) int64
}

func newProcessor() processor { return processor{} }

func (p *processor) Run(values []int64) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		if p.Transform != nil {
			v = p.Transform(v)
		}
		out[i] = v
	}
	return out
}

type payload struct {
	Value int64
}

type manager struct {
	Current *payload
}

func newManager() manager { return manager{} }

func (m *manager) Produce(v int64) *payload { return &payload{Value: v} }
func (m *manager) Adopt(p *payload)         { m.Current = p }
func (m *manager) HasCurrent() bool         { return m.Current != nil }
func (m *manager) CurrentValue() int64 {
	if m.Current == nil {
		return -1
	}
	return m.Current.Value
}

type sharedBox struct {
	Ref handle.Shared[payload]
}

func newSharedBox() sharedBox { return sharedBox{} }

func (b *sharedBox) Seed(v int64) {
	b.Ref = handle.NewShared(&payload{Value: v}, nil)
}

func (b *sharedBox) Drop() {
	if !b.Ref.IsNil() {
		b.Ref.Release()
		b.Ref = handle.Shared[payload]{}
	}
}

func (b *sharedBox) RefCount() int64 { return b.Ref.Count() }
func (b *sharedBox) RefValue() int64 {
	if b.Ref.IsNil() {
		return -1
	}
	return b.Ref.Get().Value
}

type vec3 struct {
	X float64
	Y float64
	Z float64
}

func newVec3() vec3 { return vec3{} }

func newVec3Components(x, y, z float64) vec3 { return vec3{X: x, Y: y, Z: z} }

func (v vec3) Dot(o vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v vec3) Add(o vec3) vec3 { return vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

func vec3Zero() vec3 { return vec3{} }

func vec3Lerp(a, b vec3, t float64) vec3 {
	return vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

type addr struct {
	Street string
	City   string
}

type contact struct {
	Name string
	Home addr
}

func newContact(name, street, city string) contact {
	return contact{Name: name, Home: addr{Street: street, City: city}}
}

type series struct {
	Values []float64
}

func newSeries() series { return series{} }

func (s *series) Sum() float64 {
	var total float64
	for _, v := range s.Values {
		total += v
	}
	return total
}

// ---------------------------------------------------------------------------
// Registry Setup
// ---------------------------------------------------------------------------

func testRegistry(t *testing.T, opts marshal.Options) *Registry {
	t.Helper()

	e := extract.NewExtractor()
	if _, err := extract.Class[rectangle](e,
		extract.WithConstructors(newRectangle, newRectangleSized, newRectangleNamed)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[printer](e, extract.WithConstructors(newPrinter)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[calculator](e, extract.WithConstructors(newCalculator)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[emitter](e,
		extract.WithConstructors(newEmitter),
		extract.WithReadOnly("sent"),
	); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[processor](e, extract.WithConstructors(newProcessor)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[manager](e, extract.WithConstructors(newManager)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[sharedBox](e, extract.WithConstructors(newSharedBox)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[vec3](e,
		extract.WithConstructors(newVec3, newVec3Components),
		extract.WithStatic("Zero", vec3Zero),
		extract.WithStatic("Lerp", vec3Lerp)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[contact](e, extract.WithConstructors(newContact)); err != nil {
		t.Fatal(err)
	}
	if _, err := extract.Class[series](e, extract.WithConstructors(newSeries)); err != nil {
		t.Fatal(err)
	}
	if errs := e.Errors(); len(errs) != 0 {
		t.Fatalf("fixture extraction reported: %v", errs)
	}

	r := NewRegistry(opts)
	if err := r.RegisterAll(e.Set()); err != nil {
		t.Fatal(err)
	}
	return r
}

func mustClass(t *testing.T, r *Registry, name string) *BoundClass {
	t.Helper()
	bc, ok := r.Lookup(name)
	if !ok {
		t.Fatalf("class %s not registered", name)
	}
	return bc
}

// Package shapes is a small geometry and printing surface used to
// exercise source extraction and binding generation end to end.
package shapes

import (
	"fmt"
	"math"
)

// Rectangle is an axis-aligned rectangle.
type Rectangle struct {
	Width  float64
	Height float64
	Name   string
}

// NewRectangle returns a unit square.
func NewRectangle() Rectangle {
	return Rectangle{Width: 1, Height: 1}
}

// NewRectangleSized returns a rectangle with the given dimensions.
func NewRectangleSized(width, height float64) Rectangle {
	return Rectangle{Width: width, Height: height}
}

// NewRectangleNamed returns a named rectangle with the given dimensions.
func NewRectangleNamed(width, height float64, name string) Rectangle {
	return Rectangle{Width: width, Height: height, Name: name}
}

func (r *Rectangle) Area() float64 { return r.Width * r.Height }

func (r *Rectangle) Perimeter() float64 { return 2 * (r.Width + r.Height) }

// Scale multiplies both dimensions by f.
func (r *Rectangle) Scale(f float64) {
	r.Width *= f
	r.Height *= f
}

// Printer formats values and remembers the last formatted text.
type Printer struct {
	Last string
}

// NewPrinter returns an empty printer.
func NewPrinter() Printer { return Printer{} }

// Print__Int formats an integer.
func (p *Printer) Print__Int(v int64) string {
	p.Last = fmt.Sprintf("int: %d", v)
	return p.Last
}

// Print__Float formats a float.
func (p *Printer) Print__Float(v float64) string {
	p.Last = fmt.Sprintf("float: %g", v)
	return p.Last
}

// Print__Text formats a string.
func (p *Printer) Print__Text(v string) string {
	p.Last = fmt.Sprintf("text: %s", v)
	return p.Last
}

// Vec3 is a three-component vector.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// NewVec3 returns the zero vector.
func NewVec3() Vec3 { return Vec3{} }

// NewVec3Components returns a vector with the given components.
func NewVec3Components(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v *Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v *Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Vec3Zero returns the zero vector.
func Vec3Zero() Vec3 { return Vec3{} }

// Vec3Lerp interpolates between a and b by t.
func Vec3Lerp(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Container holds an ordered collection of one element type.
type Container[T any] struct {
	Items []T
	Label string
}

// Count returns the number of items held.
func (c *Container[T]) Count() int { return len(c.Items) }

// Catalog groups typed containers under one roof.
type Catalog struct {
	Ints   Container[int64]
	Floats Container[float64]
}

// NewCatalog returns an empty catalog.
func NewCatalog() Catalog { return Catalog{} }

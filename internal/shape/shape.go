// Package shape is a small family of variants held through the Shape
// interface, used by the tools and tests of this module.
package shape

import (
	"errors"
	"fmt"
	"math"

	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
	"github.com/tangledbytes/go-polymorphic/pkg/polymorphic"
)

var (
	// ErrUnknownKind is returned by Build for an unsupported kind.
	ErrUnknownKind = errors.New("shape: unknown kind")
	// ErrInvalidSize is returned by Build for a non-positive size.
	ErrInvalidSize = errors.New("shape: size must be positive")
)

type Shape interface {
	Name() string
	Area() float64
	Scale(f float64)
}

type Circle struct {
	Radius float64
}

func (c *Circle) Name() string    { return "circle" }
func (c *Circle) Area() float64   { return math.Pi * c.Radius * c.Radius }
func (c *Circle) Scale(f float64) { c.Radius *= f }

type Square struct {
	Side float64
}

func (s *Square) Name() string    { return "square" }
func (s *Square) Area() float64   { return s.Side * s.Side }
func (s *Square) Scale(f float64) { s.Side *= f }

type Point struct {
	X, Y float64
}

// Polygon is a simple polygon given by its vertices in order.
type Polygon struct {
	Points []Point
}

func (p *Polygon) Name() string { return fmt.Sprintf("polygon(%d)", len(p.Points)) }

// Area uses the shoelace formula.
func (p *Polygon) Area() float64 {
	var sum float64
	for i, a := range p.Points {
		b := p.Points[(i+1)%len(p.Points)]
		sum += a.X*b.Y - b.X*a.Y
	}

	return math.Abs(sum) / 2
}

func (p *Polygon) Scale(f float64) {
	for i := range p.Points {
		p.Points[i].X *= f
		p.Points[i].Y *= f
	}
}

// Kinds lists the kinds understood by Build.
var Kinds = []string{"circle", "square", "triangle", "hexagon"}

// Build constructs the named kind in place with the given size: the radius
// of a circle, or the side of the others.
func Build[A allocator.Allocator[A]](alloc A, kind string, size float64) (polymorphic.Polymorphic[Shape, A], error) {
	valid := func() error {
		if size <= 0 || math.IsNaN(size) {
			return fmt.Errorf("%w: %v", ErrInvalidSize, size)
		}
		return nil
	}

	switch kind {
	case "circle":
		return polymorphic.Make[Shape](alloc, func(c *Circle) error {
			c.Radius = size
			return valid()
		})
	case "square":
		return polymorphic.Make[Shape](alloc, func(s *Square) error {
			s.Side = size
			return valid()
		})
	case "triangle":
		return polymorphic.Make[Shape](alloc, func(p *Polygon) error {
			p.Points = regular(3, size)
			return valid()
		})
	case "hexagon":
		return polymorphic.Make[Shape](alloc, func(p *Polygon) error {
			p.Points = regular(6, size)
			return valid()
		})
	}

	return polymorphic.Polymorphic[Shape, A]{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// regular returns the vertices of a regular n-gon with the given side.
func regular(n int, side float64) []Point {
	r := side / (2 * math.Sin(math.Pi/float64(n)))
	pts := make([]Point, n)
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = Point{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
	}

	return pts
}

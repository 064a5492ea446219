package shape

import (
	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
	"github.com/tangledbytes/go-polymorphic/pkg/polymorphic"
)

// Drawing is a plain value carrying a polymorphic outline. Copies made with
// Clone are fully independent of the original.
type Drawing[A allocator.Allocator[A]] struct {
	Title   string
	Layer   int
	Outline polymorphic.Polymorphic[Shape, A]
}

func (d *Drawing[A]) Clone() (Drawing[A], error) {
	outline, err := d.Outline.Clone()
	if err != nil {
		return Drawing[A]{}, err
	}

	return Drawing[A]{
		Title:   d.Title,
		Layer:   d.Layer,
		Outline: outline,
	}, nil
}

// Assign overwrites d with a copy of other. On error d is unchanged.
func (d *Drawing[A]) Assign(other *Drawing[A]) error {
	if err := d.Outline.CopyAssign(&other.Outline); err != nil {
		return err
	}

	d.Title = other.Title
	d.Layer = other.Layer
	return nil
}

func (d *Drawing[A]) Area() float64 {
	return d.Outline.Get().Area()
}

func (d *Drawing[A]) Destroy() {
	d.Outline.Destroy()
}

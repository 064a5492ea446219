package allocator

import "unsafe"

// Typed creates and deletes single values of T.
type Typed[T any] interface {
	Create() (*T, error)
	Delete(*T)
}

// Rebound is an allocator scoped to the layout of T. It is obtained from any
// Allocator through Rebind and shares its underlying memory source.
type Rebound[T any, A Allocator[A]] struct {
	alloc  A
	layout Layout
}

// Rebind derives from a an allocator for values of T.
func Rebind[T any, A Allocator[A]](a A) Rebound[T, A] {
	return Rebound[T, A]{
		alloc:  a,
		layout: LayoutOf[T](),
	}
}

func (r Rebound[T, A]) Create() (*T, error) {
	p, err := r.alloc.Allocate(r.layout)
	if err != nil {
		return nil, err
	}

	return (*T)(p), nil
}

func (r Rebound[T, A]) Delete(t *T) {
	r.alloc.Deallocate(unsafe.Pointer(t), r.layout)
}

func (r Rebound[T, A]) Layout() Layout {
	return r.layout
}

// Enforce that Rebound implements Typed
var _ Typed[int] = Rebound[int, Native]{}

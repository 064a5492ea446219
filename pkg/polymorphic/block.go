package polymorphic

import (
	"fmt"
	"unsafe"

	clone "github.com/huandu/go-clone/generic"

	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
)

// Cloner is implemented by payloads that copy themselves. A non-nil error
// aborts the copy.
type Cloner[U any] interface {
	Clone() (U, error)
}

// Destroyer is implemented by payloads that must release something before
// their storage is returned to the allocator.
type Destroyer interface {
	Destroy()
}

type (
	destroyFn[T any, A allocator.Allocator[A]] func(b *block[T, A], alloc A)
	cloneFn[T any, A allocator.Allocator[A]]   func(b *block[T, A], alloc A) (*block[T, A], error)
)

// vtable is everything a block can do without knowing its payload type.
type vtable[T any, A allocator.Allocator[A]] struct {
	destroy destroyFn[T, A]
	clone   cloneFn[T, A]
}

// block is the type-erased head of every control block. p always points
// into the block's own allocation.
type block[T any, A allocator.Allocator[A]] struct {
	p  *T
	vt *vtable[T, A]
}

func (b *block[T, A]) destroy(alloc A) {
	b.vt.destroy(b, alloc)
}

func (b *block[T, A]) clone(alloc A) (*block[T, A], error) {
	return b.vt.clone(b, alloc)
}

// direct stores the payload inline, right after the head. The head must stay
// the first field so a *block can be turned back into a *direct.
type direct[T any, U any, A allocator.Allocator[A]] struct {
	block[T, A]
	u    U
	view T
}

func (d *direct[T, U, A]) bind() {
	if p, ok := any(&d.u).(*T); ok {
		d.p = p
		return
	}

	d.view = any(&d.u).(T)
	d.p = &d.view
}

func asDirect[T any, U any, A allocator.Allocator[A]](b *block[T, A]) *direct[T, U, A] {
	return (*direct[T, U, A])(unsafe.Pointer(b))
}

func newVtable[T any, U any, A allocator.Allocator[A]]() *vtable[T, A] {
	return &vtable[T, A]{
		destroy: func(b *block[T, A], alloc A) {
			d := asDirect[T, U](b)
			if x, ok := any(&d.u).(Destroyer); ok {
				x.Destroy()
			}

			allocator.Rebind[direct[T, U, A]](alloc).Delete(d)
		},
		clone: func(b *block[T, A], alloc A) (*block[T, A], error) {
			src := asDirect[T, U](b)
			return build[T, U](alloc, src.vt, func(u *U) error {
				return copyInto(u, &src.u)
			})
		},
	}
}

// build allocates a control block for U, runs construct on its payload and
// binds it to vt. The allocation is released on every failure, including a
// panicking constructor.
func build[T any, U any, A allocator.Allocator[A]](alloc A, vt *vtable[T, A], construct func(*U) error) (*block[T, A], error) {
	typed := allocator.Rebind[direct[T, U, A]](alloc)
	d, err := typed.Create()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAllocation, typed.Layout(), err)
	}

	built := false
	defer func() {
		if !built {
			typed.Delete(d)
		}
	}()

	if construct != nil {
		if err := construct(&d.u); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
		}
	}

	d.vt = vt
	d.bind()
	built = true

	return &d.block, nil
}

func copyInto[U any](dst, src *U) error {
	if c, ok := any(src).(Cloner[U]); ok {
		v, err := c.Clone()
		if err != nil {
			return err
		}

		*dst = v
		return nil
	}

	*dst = clone.Clone(*src)
	return nil
}

// isVariant reports whether a U can be held by a Polymorphic declared as T.
func isVariant[T any, U any]() bool {
	if _, ok := any((*U)(nil)).(*T); ok {
		return true
	}

	_, ok := any((*U)(nil)).(T)
	return ok
}

package polymorphic

import (
	"fmt"
	"reflect"

	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
	"github.com/tangledbytes/go-polymorphic/pkg/assert"
)

// Polymorphic owns at most one control block holding a variant of T, and the
// allocator that block was obtained from. The zero value is valueless.
type Polymorphic[T any, A allocator.Allocator[A]] struct {
	cb    *block[T, A]
	alloc A
}

// New builds a box holding the zero value of T.
func New[T any, A allocator.Allocator[A]](alloc A) (Polymorphic[T, A], error) {
	return Make[T, T](alloc, nil)
}

// Make builds a box holding a U, constructed in place by construct. A nil
// construct leaves the zero U. If construct fails or panics, the storage is
// released before Make returns.
func Make[T any, U any, A allocator.Allocator[A]](alloc A, construct func(*U) error) (Polymorphic[T, A], error) {
	if !isVariant[T, U]() {
		return Polymorphic[T, A]{}, fmt.Errorf("%w: %s is not %s", ErrNotVariant, reflect.TypeOf((*U)(nil)).Elem(), reflect.TypeOf((*T)(nil)).Elem())
	}

	cb, err := build[T, U](alloc, newVtable[T, U, A](), construct)
	if err != nil {
		return Polymorphic[T, A]{}, err
	}

	return Polymorphic[T, A]{
		cb:    cb,
		alloc: alloc,
	}, nil
}

// Of builds a box holding a copy of u, made the same way Clone copies a
// payload. The box shares nothing with the caller's u.
func Of[T any, U any, A allocator.Allocator[A]](alloc A, u U) (Polymorphic[T, A], error) {
	return Make[T](alloc, func(dst *U) error {
		return copyInto(dst, &u)
	})
}

// NewNative is New with Go's own memory management.
func NewNative[T any]() (Polymorphic[T, allocator.Native], error) {
	return New[T](allocator.Native{})
}

// MakeNative is Make with Go's own memory management.
func MakeNative[T any, U any](construct func(*U) error) (Polymorphic[T, allocator.Native], error) {
	return Make[T](allocator.Native{}, construct)
}

// OfNative is Of with Go's own memory management.
func OfNative[T any, U any](u U) (Polymorphic[T, allocator.Native], error) {
	return Of[T](allocator.Native{}, u)
}

// Clone returns a deep copy of p, built with the allocator p's allocator
// selects for copies.
func (p *Polymorphic[T, A]) Clone() (Polymorphic[T, A], error) {
	return p.CloneWith(allocator.SelectOnCopy(p.alloc))
}

// CloneWith returns a deep copy of p built with alloc.
func (p *Polymorphic[T, A]) CloneWith(alloc A) (Polymorphic[T, A], error) {
	assert.Assert(p.cb != nil, "clone of a valueless polymorphic")

	cb, err := p.cb.clone(alloc)
	if err != nil {
		return Polymorphic[T, A]{}, err
	}

	return Polymorphic[T, A]{
		cb:    cb,
		alloc: alloc,
	}, nil
}

// Move hands p's payload to the returned box and leaves p valueless.
func (p *Polymorphic[T, A]) Move() Polymorphic[T, A] {
	assert.Assert(p.cb != nil, "move of a valueless polymorphic")

	q := Polymorphic[T, A]{
		cb:    p.cb,
		alloc: p.alloc,
	}
	p.cb = nil

	return q
}

// MoveWith hands p's payload to a box using alloc and leaves p valueless.
// When alloc cannot release p's storage the payload is cloned into alloc
// instead; if that fails p is left untouched.
func (p *Polymorphic[T, A]) MoveWith(alloc A) (Polymorphic[T, A], error) {
	assert.Assert(p.cb != nil, "move of a valueless polymorphic")

	if allocator.Interchangeable(alloc, p.alloc) {
		q := Polymorphic[T, A]{
			cb:    p.cb,
			alloc: alloc,
		}
		p.cb = nil

		return q, nil
	}

	q, err := p.CloneWith(alloc)
	if err != nil {
		return Polymorphic[T, A]{}, err
	}
	p.Destroy()

	return q, nil
}

// CopyAssign replaces p's payload with a deep copy of other's. The copy is
// built before anything is released, so on error p is unchanged.
func (p *Polymorphic[T, A]) CopyAssign(other *Polymorphic[T, A]) error {
	assert.Assert(other.cb != nil, "copy-assign from a valueless polymorphic")
	if p == other {
		return nil
	}

	alloc := p.alloc
	if p.alloc.Traits().PropagateOnCopyAssign {
		alloc = other.alloc
	}

	tmp, err := other.CloneWith(alloc)
	if err != nil {
		return err
	}

	p.cb, tmp.cb = tmp.cb, p.cb
	p.alloc, tmp.alloc = tmp.alloc, p.alloc
	tmp.Destroy()

	return nil
}

// MoveAssign releases p's payload and takes over other's, leaving other
// valueless. The storage itself changes hands when the allocator propagates
// or the two allocators are interchangeable; otherwise the payload is cloned
// into p's allocator. If that clone fails p is left valueless and other is
// untouched.
func (p *Polymorphic[T, A]) MoveAssign(other *Polymorphic[T, A]) error {
	assert.Assert(other.cb != nil, "move-assign from a valueless polymorphic")
	if p == other {
		return nil
	}

	p.Destroy()

	if p.alloc.Traits().PropagateOnMoveAssign {
		p.alloc = other.alloc
		p.cb, other.cb = other.cb, nil
		return nil
	}

	if allocator.Interchangeable(p.alloc, other.alloc) {
		p.cb, other.cb = other.cb, nil
		return nil
	}

	cb, err := other.cb.clone(p.alloc)
	if err != nil {
		return err
	}
	p.cb = cb
	other.Destroy()

	return nil
}

// Swap exchanges the payloads of p and other, and their allocators when the
// allocator propagates on swap. Otherwise the two allocators must be
// interchangeable; this is not checked.
func (p *Polymorphic[T, A]) Swap(other *Polymorphic[T, A]) {
	assert.Assert(p.cb != nil, "swap of a valueless polymorphic")
	assert.Assert(other.cb != nil, "swap with a valueless polymorphic")

	p.cb, other.cb = other.cb, p.cb
	if p.alloc.Traits().PropagateOnSwap {
		p.alloc, other.alloc = other.alloc, p.alloc
	}
}

// Swap exchanges the payloads of a and b. See Polymorphic.Swap.
func Swap[T any, A allocator.Allocator[A]](a, b *Polymorphic[T, A]) {
	a.Swap(b)
}

// Get returns the payload as T.
func (p *Polymorphic[T, A]) Get() T {
	assert.Assert(p.cb != nil, "access to a valueless polymorphic")
	return *p.cb.p
}

// Ptr returns a pointer to the payload's T view. It points into the box's
// own storage and is valid until the payload is destroyed or moved out.
func (p *Polymorphic[T, A]) Ptr() *T {
	assert.Assert(p.cb != nil, "access to a valueless polymorphic")
	return p.cb.p
}

// Valueless reports whether p holds no payload.
func (p *Polymorphic[T, A]) Valueless() bool {
	return p.cb == nil
}

// Allocator returns a copy of p's allocator.
func (p *Polymorphic[T, A]) Allocator() A {
	return p.alloc
}

// Destroy releases p's payload and its storage. It is a no-op on a valueless
// box, so a moved-from box may be destroyed safely.
func (p *Polymorphic[T, A]) Destroy() {
	if p.cb != nil {
		p.cb.destroy(p.alloc)
		p.cb = nil
	}
}

// Package allocator describes where a container's backing storage comes from.
//
// An Allocator hands out typed Go memory for a Layout. Because the memory is
// typed, anything placed in it stays visible to the garbage collector; an
// allocator only decides which slot is used and when a slot may be reused.
package allocator

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Layout describes a single value the allocator must provide room for.
type Layout struct {
	Type  reflect.Type
	Size  uintptr
	Align uintptr
}

// LayoutOf returns the layout of a single T.
func LayoutOf[T any]() Layout {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return Layout{
		Type:  t,
		Size:  t.Size(),
		Align: uintptr(t.Align()),
	}
}

func (l Layout) String() string {
	return fmt.Sprintf("%s(size=%d,align=%d)", l.Type, l.Size, l.Align)
}

// Traits are the propagation options of an allocator type. Every instance of
// a given allocator type must report the same Traits.
type Traits struct {
	// PropagateOnCopyAssign replaces the destination's allocator with the
	// source's during copy-assignment.
	PropagateOnCopyAssign bool
	// PropagateOnMoveAssign replaces the destination's allocator with the
	// source's during move-assignment and allows direct ownership transfer.
	PropagateOnMoveAssign bool
	// PropagateOnSwap exchanges allocators during swap.
	PropagateOnSwap bool
	// AlwaysEqual treats every instance of the type as interchangeable.
	AlwaysEqual bool
}

// Allocator is a value-copyable handle to a source of memory. A is the
// implementing type itself, so that equality is typed:
//
//	type Mine struct{ ... }
//	func (m Mine) Equal(o Mine) bool { ... }
//
// Allocate returns zeroed memory able to hold one value of l.Type.
// Deallocate must be called with the same layout; it zeroes the slot before
// making it available again.
type Allocator[A any] interface {
	Allocate(l Layout) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, l Layout)
	Equal(other A) bool
	Traits() Traits
}

// CopySelector is implemented by allocators that choose a different
// allocator for a container built as a copy of another one.
type CopySelector[A any] interface {
	SelectOnCopy() A
}

// SelectOnCopy returns the allocator a copy of a container using a should be
// built with.
func SelectOnCopy[A Allocator[A]](a A) A {
	if s, ok := any(a).(CopySelector[A]); ok {
		return s.SelectOnCopy()
	}

	return a
}

// Interchangeable reports whether memory obtained from a can be released
// through b.
func Interchangeable[A Allocator[A]](a, b A) bool {
	return a.Traits().AlwaysEqual || a.Equal(b)
}

func zero(p unsafe.Pointer, l Layout) {
	reflect.NewAt(l.Type, p).Elem().SetZero()
}

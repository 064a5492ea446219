package allocator

import (
	"reflect"
	"unsafe"
)

// Native uses Go's built-in memory management. All instances are
// interchangeable and nothing propagates.
type Native struct{}

func (Native) Allocate(l Layout) (unsafe.Pointer, error) {
	return reflect.New(l.Type).UnsafePointer(), nil
}

func (Native) Deallocate(p unsafe.Pointer, l Layout) {
	// Drop what the slot references; the collector reclaims the slot itself.
	zero(p, l)
}

func (Native) Equal(Native) bool {
	return true
}

func (Native) Traits() Traits {
	return Traits{AlwaysEqual: true}
}

// Enforce that Native implements Allocator
var _ Allocator[Native] = Native{}

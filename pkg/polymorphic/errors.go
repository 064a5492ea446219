package polymorphic

import "errors"

var (
	// ErrAllocation is returned when the allocator cannot provide storage
	// for a payload.
	ErrAllocation = errors.New("polymorphic: allocation failed")
	// ErrConstruction is returned when a payload's constructor or Clone
	// method fails. The storage obtained for it has been released.
	ErrConstruction = errors.New("polymorphic: construction failed")
	// ErrNotVariant is returned when the payload type is neither the
	// declared type nor implements it through its pointer.
	ErrNotVariant = errors.New("polymorphic: not a variant of the declared type")
)

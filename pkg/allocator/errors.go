package allocator

import "errors"

var (
	// ErrExhausted is returned when a pool's byte limit would be exceeded.
	ErrExhausted = errors.New("allocator: pool exhausted")
	// ErrClosed is returned when allocating from a closed pool.
	ErrClosed = errors.New("allocator: pool closed")
	// ErrNoPool is returned by a PoolAllocator that is not bound to a pool.
	ErrNoPool = errors.New("allocator: no pool")
	// ErrLeaked is reported by Pool.Close for every slot still in use.
	ErrLeaked = errors.New("allocator: slot leaked")
)

package allocator

import "unsafe"

// Stats are the counters kept by a Counting allocator.
type Stats struct {
	Allocations   uint64
	Deallocations uint64
	Failures      uint64
	Bytes         uintptr
}

// Live is the number of allocations not yet released.
func (s Stats) Live() int64 {
	return int64(s.Allocations) - int64(s.Deallocations)
}

// Counting decorates an allocator with counters. Copies of a Counting
// allocator share their counters. The counters are not synchronized. The zero
// value delegates to the zero inner allocator and counts nothing.
type Counting[A Allocator[A]] struct {
	inner A
	stats *Stats
}

func NewCounting[A Allocator[A]](inner A) Counting[A] {
	return Counting[A]{
		inner: inner,
		stats: &Stats{},
	}
}

func (c Counting[A]) Allocate(l Layout) (unsafe.Pointer, error) {
	p, err := c.inner.Allocate(l)
	if c.stats == nil {
		return p, err
	}
	if err != nil {
		c.stats.Failures++
		return nil, err
	}

	c.stats.Allocations++
	c.stats.Bytes += l.Size
	return p, nil
}

func (c Counting[A]) Deallocate(p unsafe.Pointer, l Layout) {
	c.inner.Deallocate(p, l)
	if c.stats == nil {
		return
	}
	c.stats.Deallocations++
	c.stats.Bytes -= l.Size
}

func (c Counting[A]) Equal(other Counting[A]) bool {
	return c.inner.Equal(other.inner)
}

func (c Counting[A]) Traits() Traits {
	return c.inner.Traits()
}

func (c Counting[A]) SelectOnCopy() Counting[A] {
	return Counting[A]{
		inner: SelectOnCopy(c.inner),
		stats: c.stats,
	}
}

// Stats returns a snapshot of the counters.
func (c Counting[A]) Stats() Stats {
	if c.stats == nil {
		return Stats{}
	}
	return *c.stats
}

func (c Counting[A]) Inner() A {
	return c.inner
}

// Enforce that Counting implements Allocator and CopySelector
var (
	_ Allocator[Counting[Native]]    = Counting[Native]{}
	_ CopySelector[Counting[Native]] = Counting[Native]{}
)

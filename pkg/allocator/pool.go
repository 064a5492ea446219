package allocator

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/tangledbytes/go-polymorphic/pkg/assert"
)

const defaultChunkSize = 64

// Pool is a memory resource that carves fixed-layout slots out of typed
// slabs. Slots are recycled per layout. A Pool is safe for use by several
// allocators at once.
type Pool struct {
	mu *sync.Mutex

	chunkSize int
	limit     uintptr
	log       logrus.FieldLogger

	classes map[reflect.Type]*class
	inUse   uintptr
	closed  bool

	allocations   uint64
	deallocations uint64
}

// PoolStats is a snapshot of a pool's bookkeeping.
type PoolStats struct {
	Live          int
	InUse         uintptr
	Slabs         int
	Allocations   uint64
	Deallocations uint64
}

type class struct {
	layout Layout
	free   []unsafe.Pointer
	live   map[unsafe.Pointer]struct{}
	slabs  []reflect.Value
}

// Option configures a Pool.
type Option func(*Pool)

// WithChunkSize sets how many slots a slab holds.
func WithChunkSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithLimit caps the bytes in use at any time. Zero means unlimited.
func WithLimit(bytes uintptr) Option {
	return func(p *Pool) {
		p.limit = bytes
	}
}

// WithLogger sets the logger used for slab growth and leak reports.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

func NewPool(opts ...Option) *Pool {
	p := &Pool{
		mu:        &sync.Mutex{},
		chunkSize: defaultChunkSize,
		log:       logrus.StandardLogger(),
		classes:   make(map[reflect.Type]*class),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Pool) allocate(l Layout) (unsafe.Pointer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if p.limit > 0 && p.inUse+l.Size > p.limit {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d in use", ErrExhausted, l, l.Size, p.inUse, p.limit)
	}

	// Zero-sized values all share one address; there is nothing to track.
	if l.Size == 0 {
		p.allocations++
		return reflect.New(l.Type).UnsafePointer(), nil
	}

	c := p.class(l)
	if len(c.free) == 0 {
		p.grow(c)
	}

	slot := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.live[slot] = struct{}{}

	p.inUse += l.Size
	p.allocations++

	return slot, nil
}

func (p *Pool) deallocate(slot unsafe.Pointer, l Layout) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deallocations++
	if l.Size == 0 {
		return
	}

	c, ok := p.classes[l.Type]
	assert.Assert(ok, "pool: release of %s which was never allocated", l)
	if !ok {
		return
	}

	_, ok = c.live[slot]
	assert.Assert(ok, "pool: release of %s slot %p which is not in use", l, slot)
	if !ok {
		return
	}

	zero(slot, l)
	delete(c.live, slot)
	c.free = append(c.free, slot)
	p.inUse -= l.Size
}

func (p *Pool) class(l Layout) *class {
	c, ok := p.classes[l.Type]
	if !ok {
		c = &class{
			layout: l,
			live:   make(map[unsafe.Pointer]struct{}),
		}
		p.classes[l.Type] = c
	}

	return c
}

func (p *Pool) grow(c *class) {
	slab := reflect.New(reflect.ArrayOf(p.chunkSize, c.layout.Type))
	c.slabs = append(c.slabs, slab)

	base := slab.UnsafePointer()
	stride := c.layout.Type.Size()
	// Push in reverse so slots are handed out in address order.
	for i := p.chunkSize - 1; i >= 0; i-- {
		c.free = append(c.free, unsafe.Add(base, uintptr(i)*stride))
	}

	p.log.WithFields(logrus.Fields{
		"type":  c.layout.Type.String(),
		"slots": p.chunkSize,
		"slabs": len(c.slabs),
	}).Debug("pool grew")
}

// Stats returns a snapshot of the pool's bookkeeping.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{
		InUse:         p.inUse,
		Allocations:   p.allocations,
		Deallocations: p.deallocations,
	}
	for _, c := range p.classes {
		s.Live += len(c.live)
		s.Slabs += len(c.slabs)
	}

	return s
}

// Owns reports whether slot is a live allocation of this pool.
func (p *Pool) Owns(slot unsafe.Pointer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.classes {
		if _, ok := c.live[slot]; ok {
			return true
		}
	}

	return false
}

// Close stops the pool from handing out memory and reports every slot that
// is still in use, one ErrLeaked per slot.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	var result *multierror.Error
	for _, c := range p.classes {
		for slot := range c.live {
			result = multierror.Append(result, fmt.Errorf("%w: %s at %p", ErrLeaked, c.layout, slot))
		}
	}

	if result != nil {
		p.log.WithField("leaked", result.Len()).Warn("pool closed with live slots")
	}

	return result.ErrorOrNil()
}

// Policy supplies the propagation traits of a PoolAllocator.
type Policy interface {
	Traits() Traits
}

// Sticky allocators never propagate; containers keep the allocator they were
// built with and compare allocators before transferring ownership.
type Sticky struct{}

func (Sticky) Traits() Traits {
	return Traits{}
}

// Propagating allocators follow the payload on copy-assignment,
// move-assignment and swap.
type Propagating struct{}

func (Propagating) Traits() Traits {
	return Traits{
		PropagateOnCopyAssign: true,
		PropagateOnMoveAssign: true,
		PropagateOnSwap:       true,
	}
}

// Shared allocators are always equal. Only use it when every allocator of
// the type draws from the same pool.
type Shared struct{}

func (Shared) Traits() Traits {
	return Traits{AlwaysEqual: true}
}

// PoolAllocator is a value handle on a Pool. Two handles are equal when they
// refer to the same pool. P fixes the propagation traits for the type.
type PoolAllocator[P Policy] struct {
	pool *Pool
}

// On returns an allocator drawing from pool with policy P.
func On[P Policy](pool *Pool) PoolAllocator[P] {
	return PoolAllocator[P]{pool: pool}
}

func (a PoolAllocator[P]) Allocate(l Layout) (unsafe.Pointer, error) {
	if a.pool == nil {
		return nil, ErrNoPool
	}

	return a.pool.allocate(l)
}

func (a PoolAllocator[P]) Deallocate(slot unsafe.Pointer, l Layout) {
	assert.Assert(a.pool != nil, "pool allocator: release of %s without a pool", l)
	a.pool.deallocate(slot, l)
}

func (a PoolAllocator[P]) Equal(other PoolAllocator[P]) bool {
	return a.pool == other.pool
}

func (a PoolAllocator[P]) Traits() Traits {
	var p P
	return p.Traits()
}

func (a PoolAllocator[P]) Pool() *Pool {
	return a.pool
}

// Enforce that PoolAllocator implements Allocator
var _ Allocator[PoolAllocator[Sticky]] = PoolAllocator[Sticky]{}

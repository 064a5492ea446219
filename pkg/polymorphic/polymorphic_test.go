package polymorphic

import (
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
)

type shape interface {
	Area() float64
	Scale(f float64)
}

type circle struct {
	R float64
}

func (c *circle) Area() float64   { return math.Pi * c.R * c.R }
func (c *circle) Scale(f float64) { c.R *= f }

// strip is a row of unit-height bars.
type strip struct {
	Widths []float64
}

func (s *strip) Area() float64 {
	var a float64
	for _, w := range s.Widths {
		a += w
	}
	return a
}

func (s *strip) Scale(f float64) {
	for i := range s.Widths {
		s.Widths[i] *= f
	}
}

var errCopy = errors.New("copy refused")

type fragile struct {
	N    int
	fail *bool
}

func (f *fragile) Area() float64   { return float64(f.N) }
func (f *fragile) Scale(x float64) { f.N = int(float64(f.N) * x) }

func (f *fragile) Clone() (fragile, error) {
	if f.fail != nil && *f.fail {
		return fragile{}, errCopy
	}
	return *f, nil
}

type tracked struct {
	circle
	destroyed *int
}

func (t *tracked) Destroy() { *t.destroyed++ }

func (t *tracked) Clone() (tracked, error) { return *t, nil }

// rerouting allocates from home and places copies in away.
type rerouting struct {
	home, away *allocator.Pool
}

func (r rerouting) handle() allocator.PoolAllocator[allocator.Sticky] {
	return allocator.On[allocator.Sticky](r.home)
}

func (r rerouting) Allocate(l allocator.Layout) (unsafe.Pointer, error) {
	return r.handle().Allocate(l)
}

func (r rerouting) Deallocate(p unsafe.Pointer, l allocator.Layout) { r.handle().Deallocate(p, l) }
func (r rerouting) Equal(other rerouting) bool                      { return r.home == other.home }
func (r rerouting) Traits() allocator.Traits                        { return allocator.Traits{} }
func (r rerouting) SelectOnCopy() rerouting                         { return rerouting{home: r.away, away: r.home} }

// counted returns a counting allocator over a fresh pool. The pool must be
// empty when the test ends.
func counted[P allocator.Policy](t *testing.T, opts ...allocator.Option) allocator.Counting[allocator.PoolAllocator[P]] {
	t.Helper()

	pool := allocator.NewPool(opts...)
	t.Cleanup(func() {
		require.NoError(t, pool.Close(), "pool leaked")
	})

	return allocator.NewCounting(allocator.On[P](pool))
}

func addr[T any, A allocator.Allocator[A]](p *Polymorphic[T, A]) unsafe.Pointer {
	return unsafe.Pointer(p.cb)
}

func TestMake(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	c, err := Make[shape](alloc, func(c *circle) error {
		c.R = 2
		return nil
	})
	require.NoError(t, err)
	defer c.Destroy()

	require.False(t, c.Valueless())
	require.InDelta(t, 12.566, c.Get().Area(), 1e-3)
	require.Equal(t, uint64(1), alloc.Stats().Allocations)
	require.True(t, alloc.Inner().Pool().Owns(addr(&c)), "block must live in the allocator's storage")

	c.Get().Scale(2)
	require.InDelta(t, 4*12.566, c.Get().Area(), 1e-2, "Get must reach the stored payload, not a copy")
}

func TestMake_NotVariant(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	_, err := Make[shape, int](alloc, nil)
	require.ErrorIs(t, err, ErrNotVariant)

	_, err = Of[circle](alloc, strip{})
	require.ErrorIs(t, err, ErrNotVariant)

	require.Equal(t, allocator.Stats{}, alloc.Stats(), "nothing may be allocated for a rejected variant")
}

func TestNew(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	c, err := New[circle](alloc)
	require.NoError(t, err)
	defer c.Destroy()

	require.Equal(t, circle{}, c.Get())

	c.Ptr().R = 3
	require.Equal(t, circle{R: 3}, c.Get())
	require.Equal(t, unsafe.Pointer(c.Ptr()), unsafe.Pointer(&asDirect[circle, circle](c.cb).u), "the payload is its own view")
}

func TestMake_ConstructionFailure(t *testing.T) {
	alloc := counted[allocator.Sticky](t)
	boom := errors.New("boom")

	_, err := Make[shape](alloc, func(c *circle) error {
		c.R = 1
		return boom
	})
	require.ErrorIs(t, err, ErrConstruction)
	require.ErrorIs(t, err, boom)

	require.PanicsWithValue(t, "kaboom", func() {
		_, _ = Make[shape](alloc, func(c *circle) error {
			panic("kaboom")
		})
	})

	stats := alloc.Stats()
	require.Equal(t, uint64(2), stats.Allocations)
	require.Equal(t, int64(0), stats.Live(), "failed construction must release its storage")
}

func TestOf_CopiesPayload(t *testing.T) {
	alloc := counted[allocator.Sticky](t)
	widths := []float64{1, 2}

	a, err := Of[shape](alloc, strip{Widths: widths})
	require.NoError(t, err)
	defer a.Destroy()

	widths[0] = 100
	require.Equal(t, 3.0, a.Get().Area(), "box must not see the caller's slice")
	a.Get().Scale(2)
	require.Equal(t, []float64{100, 2}, widths)

	fail := true
	_, err = Of[shape](alloc, fragile{N: 1, fail: &fail})
	require.ErrorIs(t, err, ErrConstruction)
	require.ErrorIs(t, err, errCopy)
	require.Equal(t, int64(1), alloc.Stats().Live())
}

func TestMake_AllocationFailure(t *testing.T) {
	alloc := counted[allocator.Sticky](t, allocator.WithLimit(1))

	_, err := Of[shape](alloc, circle{R: 1})
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, allocator.ErrExhausted)
	require.Equal(t, uint64(1), alloc.Stats().Failures)
}

func TestClone(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	a, err := Of[shape](alloc, strip{Widths: []float64{1, 2, 3}})
	require.NoError(t, err)
	defer a.Destroy()

	b, err := a.Clone()
	require.NoError(t, err)
	defer b.Destroy()

	if diff := cmp.Diff(a.Get(), b.Get()); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}
	require.NotEqual(t, addr(&a), addr(&b))
	require.NotSame(t, a.Ptr(), b.Ptr())
	require.True(t, alloc.Equal(b.Allocator()))

	b.Get().Scale(10)
	require.Equal(t, 6.0, a.Get().Area(), "clone must not share the payload's slice")
	require.Equal(t, 60.0, b.Get().Area())

	// Both are destroyed independently.
	b.Destroy()
	require.Equal(t, int64(1), alloc.Stats().Live())
}

func TestClone_SelectsAllocator(t *testing.T) {
	home, away := allocator.NewPool(), allocator.NewPool()
	defer func() {
		require.NoError(t, home.Close())
		require.NoError(t, away.Close())
	}()
	alloc := rerouting{home: home, away: away}

	a, err := Of[shape](alloc, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()
	require.True(t, home.Owns(addr(&a)))

	b, err := a.Clone()
	require.NoError(t, err)
	defer b.Destroy()

	require.True(t, alloc.SelectOnCopy().Equal(b.Allocator()), "clone must use the selected allocator")
	require.False(t, alloc.Equal(b.Allocator()))
	require.True(t, away.Owns(addr(&b)))
	require.False(t, home.Owns(addr(&b)))

	c, err := a.CloneWith(alloc)
	require.NoError(t, err)
	defer c.Destroy()
	require.True(t, home.Owns(addr(&c)), "an explicit allocator skips selection")
}

func TestCloneWith(t *testing.T) {
	src := counted[allocator.Sticky](t)
	dst := counted[allocator.Sticky](t)

	a, err := Of[shape](src, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()

	b, err := a.CloneWith(dst)
	require.NoError(t, err)
	defer b.Destroy()

	require.True(t, dst.Equal(b.Allocator()))
	require.Equal(t, uint64(1), dst.Stats().Allocations)
	require.True(t, dst.Inner().Pool().Owns(addr(&b)))
}

func TestClone_Failure(t *testing.T) {
	alloc := counted[allocator.Sticky](t)
	fail := false

	a, err := Of[shape](alloc, fragile{N: 4, fail: &fail})
	require.NoError(t, err)
	defer a.Destroy()
	fail = true

	_, err = a.Clone()
	require.ErrorIs(t, err, ErrConstruction)
	require.ErrorIs(t, err, errCopy)
	require.Equal(t, int64(1), alloc.Stats().Live())
}

func TestMove(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	a, err := Of[shape](alloc, circle{R: 2})
	require.NoError(t, err)
	before := addr(&a)
	want := a.Get().Area()

	b := a.Move()
	require.True(t, a.Valueless())
	require.False(t, b.Valueless())
	require.Equal(t, before, addr(&b))
	require.Equal(t, want, b.Get().Area())

	a.Destroy()
	b.Destroy()
	b.Destroy()

	stats := alloc.Stats()
	require.Equal(t, uint64(1), stats.Allocations)
	require.Equal(t, uint64(1), stats.Deallocations, "moved-from box must not release again")
}

func TestMoveWith(t *testing.T) {
	pool := allocator.NewPool()
	defer func() { require.NoError(t, pool.Close()) }()

	tests := []struct {
		name     string
		dst      allocator.PoolAllocator[allocator.Sticky]
		transfer bool
	}{
		{
			name:     "same pool transfers",
			dst:      allocator.On[allocator.Sticky](pool),
			transfer: true,
		},
		{
			name:     "other pool clones",
			dst:      allocator.On[allocator.Sticky](allocator.NewPool()),
			transfer: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Of[shape](allocator.On[allocator.Sticky](pool), circle{R: 3})
			require.NoError(t, err)
			before := addr(&a)

			b, err := a.MoveWith(tt.dst)
			require.NoError(t, err)
			defer b.Destroy()

			require.True(t, a.Valueless())
			require.True(t, tt.dst.Equal(b.Allocator()))
			require.Equal(t, tt.transfer, before == addr(&b))
			require.InDelta(t, 9*math.Pi, b.Get().Area(), 1e-9)
		})
	}
}

func TestCopyAssign(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	a, err := Of[shape](alloc, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()
	b, err := Of[shape](alloc, strip{Widths: []float64{5}})
	require.NoError(t, err)
	defer b.Destroy()

	require.NoError(t, a.CopyAssign(&b))
	require.Equal(t, 5.0, a.Get().Area())
	require.NotEqual(t, addr(&a), addr(&b))
	require.Equal(t, int64(2), alloc.Stats().Live())

	require.NoError(t, a.CopyAssign(&a), "self-assignment")
	require.Equal(t, 5.0, a.Get().Area())
}

func TestCopyAssign_StrongGuarantee(t *testing.T) {
	alloc := counted[allocator.Sticky](t)
	fail := false

	a, err := Of[shape](alloc, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()
	b, err := Of[shape](alloc, fragile{N: 8, fail: &fail})
	require.NoError(t, err)
	defer b.Destroy()
	fail = true

	before := addr(&a)
	err = a.CopyAssign(&b)
	require.ErrorIs(t, err, ErrConstruction)

	require.False(t, a.Valueless())
	require.Equal(t, before, addr(&a))
	require.Equal(t, math.Pi, a.Get().Area())
	require.Equal(t, int64(2), alloc.Stats().Live())

	fail = false
	require.NoError(t, a.CopyAssign(&b))
	require.Equal(t, 8.0, a.Get().Area())
}

func TestCopyAssign_Propagation(t *testing.T) {
	t.Run("propagating adopts the source allocator", func(t *testing.T) {
		dst, src := counted[allocator.Propagating](t), counted[allocator.Propagating](t)

		a, err := Of[shape](dst, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()
		b, err := Of[shape](src, circle{R: 2})
		require.NoError(t, err)
		defer b.Destroy()

		require.NoError(t, a.CopyAssign(&b))
		require.True(t, src.Equal(a.Allocator()))
		require.True(t, src.Inner().Pool().Owns(addr(&a)))
		require.Equal(t, int64(0), dst.Stats().Live(), "old payload is released through its own allocator")
	})

	t.Run("sticky keeps its allocator", func(t *testing.T) {
		dst, src := counted[allocator.Sticky](t), counted[allocator.Sticky](t)

		a, err := Of[shape](dst, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()
		b, err := Of[shape](src, circle{R: 2})
		require.NoError(t, err)
		defer b.Destroy()

		require.NoError(t, a.CopyAssign(&b))
		require.True(t, dst.Equal(a.Allocator()))
		require.True(t, dst.Inner().Pool().Owns(addr(&a)))
		require.Equal(t, int64(1), dst.Stats().Live())
	})
}

func TestMoveAssign_UnequalSticky(t *testing.T) {
	dst, src := counted[allocator.Sticky](t), counted[allocator.Sticky](t)

	a, err := Of[shape](dst, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()
	b, err := Of[shape](src, strip{Widths: []float64{1, 1}})
	require.NoError(t, err)
	defer b.Destroy()
	before := addr(&b)

	require.NoError(t, a.MoveAssign(&b))
	require.True(t, b.Valueless())
	require.Equal(t, 2.0, a.Get().Area())
	require.NotEqual(t, before, addr(&a), "unequal allocators force a clone")
	require.True(t, dst.Equal(a.Allocator()))

	require.Equal(t, uint64(2), dst.Stats().Allocations)
	require.Equal(t, int64(1), dst.Stats().Live())
	require.Equal(t, int64(0), src.Stats().Live())
}

func TestMoveAssign_Transfers(t *testing.T) {
	t.Run("propagating", func(t *testing.T) {
		dst, src := counted[allocator.Propagating](t), counted[allocator.Propagating](t)

		a, err := Of[shape](dst, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()
		b, err := Of[shape](src, circle{R: 2})
		require.NoError(t, err)
		defer b.Destroy()
		before := addr(&b)

		require.NoError(t, a.MoveAssign(&b))
		require.Equal(t, before, addr(&a))
		require.True(t, src.Equal(a.Allocator()))
		require.Equal(t, uint64(1), src.Stats().Allocations, "no clone on transfer")
		require.Equal(t, uint64(1), dst.Stats().Deallocations)
	})

	t.Run("equal sticky", func(t *testing.T) {
		alloc := counted[allocator.Sticky](t)

		a, err := Of[shape](alloc, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()
		b, err := Of[shape](alloc, circle{R: 2})
		require.NoError(t, err)
		defer b.Destroy()
		before := addr(&b)

		require.NoError(t, a.MoveAssign(&b))
		require.Equal(t, before, addr(&a))
		require.True(t, b.Valueless())
		require.Equal(t, uint64(2), alloc.Stats().Allocations)
	})

	t.Run("self", func(t *testing.T) {
		alloc := counted[allocator.Sticky](t)

		a, err := Of[shape](alloc, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()

		require.NoError(t, a.MoveAssign(&a))
		require.False(t, a.Valueless())
	})
}

func TestMoveAssign_CloneFailure(t *testing.T) {
	dst, src := counted[allocator.Sticky](t), counted[allocator.Sticky](t)
	fail := false

	a, err := Of[shape](dst, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()
	b, err := Of[shape](src, fragile{N: 3, fail: &fail})
	require.NoError(t, err)
	defer b.Destroy()
	fail = true

	require.ErrorIs(t, a.MoveAssign(&b), errCopy)
	require.True(t, a.Valueless())
	require.False(t, b.Valueless())
	require.Equal(t, 3.0, b.Get().Area())
	require.Equal(t, int64(0), dst.Stats().Live())
}

func TestSwap(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	a, err := Of[shape](alloc, circle{R: 1})
	require.NoError(t, err)
	defer a.Destroy()
	b, err := Of[shape](alloc, strip{Widths: []float64{4}})
	require.NoError(t, err)
	defer b.Destroy()
	pa, pb := addr(&a), addr(&b)

	a.Swap(&b)
	require.Equal(t, 4.0, a.Get().Area())
	require.Equal(t, math.Pi, b.Get().Area())
	require.Equal(t, pb, addr(&a))

	Swap(&a, &b)
	require.Equal(t, math.Pi, a.Get().Area())
	require.Equal(t, 4.0, b.Get().Area())
	require.Equal(t, pa, addr(&a))
	require.Equal(t, pb, addr(&b))
}

func TestSwap_Allocators(t *testing.T) {
	t.Run("propagating", func(t *testing.T) {
		x, y := counted[allocator.Propagating](t), counted[allocator.Propagating](t)

		a, err := Of[shape](x, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()
		b, err := Of[shape](y, circle{R: 2})
		require.NoError(t, err)
		defer b.Destroy()

		Swap(&a, &b)
		require.True(t, y.Equal(a.Allocator()))
		require.True(t, x.Equal(b.Allocator()))
	})

	t.Run("sticky", func(t *testing.T) {
		x := counted[allocator.Sticky](t)

		a, err := Of[shape](x, circle{R: 1})
		require.NoError(t, err)
		defer a.Destroy()
		b, err := Of[shape](x, circle{R: 2})
		require.NoError(t, err)
		defer b.Destroy()

		Swap(&a, &b)
		assert.True(t, x.Equal(a.Allocator()))
		assert.True(t, x.Equal(b.Allocator()))
	})
}

func TestDestroyer(t *testing.T) {
	alloc := counted[allocator.Sticky](t)
	destroyed := 0

	a, err := Of[shape](alloc, tracked{circle: circle{R: 1}, destroyed: &destroyed})
	require.NoError(t, err)

	b, err := a.Clone()
	require.NoError(t, err)

	c := a.Move()
	a.Destroy()
	require.Equal(t, 0, destroyed)

	c.Destroy()
	require.Equal(t, 1, destroyed)
	b.Destroy()
	require.Equal(t, 2, destroyed)
}

func TestNative(t *testing.T) {
	a, err := OfNative[shape](circle{R: 2})
	require.NoError(t, err)
	defer a.Destroy()

	b, err := MakeNative[shape](func(s *strip) error {
		s.Widths = []float64{1}
		return nil
	})
	require.NoError(t, err)
	defer b.Destroy()

	// Native allocators are always equal, so move-assign transfers.
	before := addr(&b)
	require.NoError(t, a.MoveAssign(&b))
	require.Equal(t, before, addr(&a))

	z, err := NewNative[circle]()
	require.NoError(t, err)
	defer z.Destroy()
	require.Equal(t, circle{}, z.Get())
}

func TestZeroValue(t *testing.T) {
	pool := allocator.NewPool()
	defer func() { require.NoError(t, pool.Close()) }()

	var a Polymorphic[shape, allocator.PoolAllocator[allocator.Sticky]]
	require.True(t, a.Valueless())
	a.Destroy()

	b, err := Of[shape](allocator.On[allocator.Sticky](pool), circle{R: 1})
	require.NoError(t, err)
	defer b.Destroy()

	// A zero allocator has no pool to clone into.
	err = a.CopyAssign(&b)
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, allocator.ErrNoPool)
	require.True(t, a.Valueless())
}

func TestZeroValue_Counting(t *testing.T) {
	alloc := counted[allocator.Sticky](t)

	var a Polymorphic[shape, allocator.Counting[allocator.PoolAllocator[allocator.Sticky]]]
	require.True(t, a.Valueless())

	b, err := Of[shape](alloc, circle{R: 1})
	require.NoError(t, err)
	defer b.Destroy()

	err = a.CopyAssign(&b)
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, allocator.ErrNoPool)
	require.True(t, a.Valueless())

	// The zero allocator is not equal to b's, so move-assign has to clone.
	err = a.MoveAssign(&b)
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, allocator.ErrNoPool)
	require.True(t, a.Valueless())
	require.False(t, b.Valueless())
	require.Equal(t, int64(1), alloc.Stats().Live())
}

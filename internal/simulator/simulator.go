package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/tangledbytes/go-polymorphic/internal/array"
	"github.com/tangledbytes/go-polymorphic/internal/shape"
	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
	"github.com/tangledbytes/go-polymorphic/pkg/polymorphic"
)

// Simulator drives containers through random lifecycles and checks that
// every payload is released exactly once and never aliased.
type Simulator struct {
	rng  *rand.Rand
	seed uint64
	log  logrus.FieldLogger

	steps     int
	chunkSize int
	poolLimit uintptr
}

// Report summarizes a simulation.
type Report struct {
	Seed  uint64
	Steps int
	Ops   map[string]int
	// Failures counts allocation failures the pools were set up to cause.
	Failures int
}

type Option func(*Simulator)

// WithSteps fixes the number of steps per world instead of drawing it from
// the seed.
func WithSteps(n int) Option {
	return func(s *Simulator) {
		s.steps = n
	}
}

func WithChunkSize(n int) Option {
	return func(s *Simulator) {
		s.chunkSize = n
	}
}

// WithPoolLimit caps every pool at n bytes instead of the limit drawn from
// the seed.
func WithPoolLimit(n uintptr) Option {
	return func(s *Simulator) {
		s.poolLimit = n
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Simulator) {
		s.log = log
	}
}

func New(seed uint64, opts ...Option) *Simulator {
	rng := rand.New(rand.NewSource(int64(seed)))

	s := &Simulator{
		rng:       rng,
		seed:      seed,
		log:       logrus.StandardLogger(),
		chunkSize: 1 + rng.Intn(32),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.steps == 0 {
		s.steps = 1e3 + s.rng.Intn(1e4) // Ensure at least 1e3 steps
	}

	return s
}

// Simulate runs one world per allocator policy. It returns every invariant
// violation found, joined.
func (s *Simulator) Simulate() (Report, error) {
	log := s.log.WithField("seed", s.seed)
	log.WithFields(logrus.Fields{
		"steps":      s.steps,
		"chunk_size": s.chunkSize,
		"pool_limit": s.poolLimit,
	}).Info("Simulation starting")

	report := Report{
		Seed:  s.seed,
		Steps: s.steps,
		Ops:   make(map[string]int),
	}

	var result *multierror.Error
	result = multierror.Append(result, run(newWorld[allocator.Sticky](s, "sticky", 2), &report))
	result = multierror.Append(result, run(newWorld[allocator.Propagating](s, "propagating", 2), &report))
	result = multierror.Append(result, run(newWorld[allocator.Shared](s, "shared", 1), &report))

	log.WithFields(logrus.Fields{
		"ops":      report.Ops,
		"failures": report.Failures,
	}).Info("Simulation complete")

	return report, result.ErrorOrNil()
}

type entry[P allocator.Policy] struct {
	box   polymorphic.Polymorphic[shape.Shape, allocator.Counting[allocator.PoolAllocator[P]]]
	model float64
}

type world[P allocator.Policy] struct {
	name  string
	rng   *rand.Rand
	log   logrus.FieldLogger
	steps int
	step  int

	pools  []*allocator.Pool
	allocs []allocator.Counting[allocator.PoolAllocator[P]]
	bag    *array.Rand[*entry[P]]

	ops        map[string]int
	failures   int
	violations int
	errs       *multierror.Error
}

func newWorld[P allocator.Policy](s *Simulator, name string, pools int) *world[P] {
	w := &world[P]{
		name:  name,
		rng:   s.rng,
		log:   s.log.WithFields(logrus.Fields{"seed": s.seed, "world": name}),
		steps: s.steps,
		bag:   array.NewRand[*entry[P]](s.rng),
		ops:   make(map[string]int),
	}

	// Room for a few dozen blocks, so that allocation failures happen.
	limit := uintptr(0)
	if s.rng.Intn(2) == 0 {
		limit = uintptr(512 + s.rng.Intn(4096))
	}
	if s.poolLimit > 0 {
		limit = s.poolLimit
	}

	shared := allocator.NewPool(
		allocator.WithChunkSize(s.chunkSize),
		allocator.WithLimit(limit),
		allocator.WithLogger(w.log),
	)
	for i := 0; i < pools; i++ {
		pool := shared
		if i > 0 {
			pool = allocator.NewPool(
				allocator.WithChunkSize(s.chunkSize),
				allocator.WithLimit(limit),
				allocator.WithLogger(w.log),
			)
		}

		w.pools = append(w.pools, pool)
		w.allocs = append(w.allocs, allocator.NewCounting(allocator.On[P](pool)))
	}

	return w
}

func run[P allocator.Policy](w *world[P], report *Report) error {
	for w.step = 0; w.step < w.steps; w.step++ {
		w.tick()
		w.checkLive()

		if w.step%100 == 0 {
			w.checkModels()
		}
	}

	w.checkModels()
	w.teardown()

	for op, n := range w.ops {
		report.Ops[w.name+"/"+op] += n
	}
	report.Failures += w.failures

	w.log.WithFields(logrus.Fields{
		"failures":   w.failures,
		"violations": w.violations,
	}).Debug("world complete")

	return w.errs.ErrorOrNil()
}

func (w *world[P]) tick() {
	if w.bag.Len() < 2 {
		w.build()
		return
	}

	switch w.rng.Intn(10) {
	case 0, 1:
		w.build()
	case 2:
		w.clone()
	case 3:
		w.move()
	case 4:
		w.copyAssign()
	case 5:
		w.moveAssign()
	case 6:
		w.swap()
	case 7:
		w.scale()
	case 8:
		w.destroy()
	case 9:
		w.moveWith()
	}
}

func (w *world[P]) pickAlloc() allocator.Counting[allocator.PoolAllocator[P]] {
	return w.allocs[w.rng.Intn(len(w.allocs))]
}

func (w *world[P]) build() {
	w.ops["build"]++

	kind := shape.Kinds[w.rng.Intn(len(shape.Kinds))]
	size := 0.5 + w.rng.Float64()*4

	box, err := shape.Build(w.pickAlloc(), kind, size)
	if w.tolerate(err) {
		return
	}

	w.bag.Push(&entry[P]{box: box, model: box.Get().Area()})
}

func (w *world[P]) clone() {
	w.ops["clone"]++

	e, _ := w.bag.Pop()
	defer w.bag.Push(e)

	var (
		c   polymorphic.Polymorphic[shape.Shape, allocator.Counting[allocator.PoolAllocator[P]]]
		err error
	)
	if w.rng.Intn(2) == 0 {
		c, err = e.box.Clone()
	} else {
		c, err = e.box.CloneWith(w.pickAlloc())
	}
	if w.tolerate(err) {
		return
	}

	if c.Ptr() == e.box.Ptr() {
		w.fail("clone aliases its source")
	}

	w.bag.Push(&entry[P]{box: c, model: e.model})
}

func (w *world[P]) move() {
	w.ops["move"]++

	e, _ := w.bag.Pop()
	m := e.box.Move()
	if !e.box.Valueless() {
		w.fail("moved-from box still holds a payload")
	}

	// Destroying the husk must be a no-op; checkLive catches a double release.
	e.box.Destroy()
	w.bag.Push(&entry[P]{box: m, model: e.model})
}

func (w *world[P]) moveWith() {
	w.ops["move_with"]++

	e, _ := w.bag.Pop()
	m, err := e.box.MoveWith(w.pickAlloc())
	if w.tolerate(err) {
		if e.box.Valueless() {
			w.fail("failed move emptied its source")
			return
		}
		w.bag.Push(e)
		return
	}

	w.bag.Push(&entry[P]{box: m, model: e.model})
}

func (w *world[P]) copyAssign() {
	w.ops["copy_assign"]++

	a, b, _ := w.bag.Pop2()
	defer w.bag.Push(a)
	defer w.bag.Push(b)

	before := a.box.Ptr()
	err := a.box.CopyAssign(&b.box)
	if w.tolerate(err) {
		if a.box.Valueless() || a.box.Ptr() != before {
			w.fail("failed copy-assign changed its target")
		}
		return
	}

	if a.box.Ptr() == b.box.Ptr() {
		w.fail("copy-assign aliases its source")
	}
	a.model = b.model
}

func (w *world[P]) moveAssign() {
	w.ops["move_assign"]++

	a, b, _ := w.bag.Pop2()
	err := a.box.MoveAssign(&b.box)
	if w.tolerate(err) {
		// The target was released first; only the source survives.
		if !a.box.Valueless() || b.box.Valueless() {
			w.fail("failed move-assign left unexpected state")
		}
		w.bag.Push(b)
		return
	}

	if !b.box.Valueless() {
		w.fail("move-assigned source still holds a payload")
	}
	a.model = b.model
	w.bag.Push(a)
}

func (w *world[P]) swap() {
	a, b, _ := w.bag.Pop2()
	defer w.bag.Push(a)
	defer w.bag.Push(b)

	// Swapping between unequal, non-propagating allocators is not allowed.
	x, y := a.box.Allocator(), b.box.Allocator()
	if !x.Traits().PropagateOnSwap && !allocator.Interchangeable(x, y) {
		return
	}

	w.ops["swap"]++
	if w.rng.Intn(2) == 0 {
		a.box.Swap(&b.box)
	} else {
		polymorphic.Swap(&a.box, &b.box)
	}
	a.model, b.model = b.model, a.model
}

func (w *world[P]) scale() {
	w.ops["scale"]++

	e, _ := w.bag.Pop()
	defer w.bag.Push(e)

	f := 0.5 + w.rng.Float64()
	e.box.Get().Scale(f)
	e.model *= f * f
}

func (w *world[P]) destroy() {
	w.ops["destroy"]++

	e, _ := w.bag.Pop()
	e.box.Destroy()
	if !e.box.Valueless() {
		w.fail("destroyed box still holds a payload")
	}
}

// tolerate reports whether err is set. Allocation failures are expected when
// the pools are limited; anything else is recorded.
func (w *world[P]) tolerate(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, polymorphic.ErrAllocation) && errors.Is(err, allocator.ErrExhausted) {
		w.failures++
		return true
	}

	w.fail("unexpected error: %v", err)
	return true
}

func (w *world[P]) checkLive() {
	var live int64
	for _, a := range w.allocs {
		live += a.Stats().Live()
	}

	if live != int64(w.bag.Len()) {
		w.fail("%d live blocks for %d boxes", live, w.bag.Len())
	}
}

func (w *world[P]) checkModels() {
	w.bag.Each(func(e *entry[P]) {
		got := e.box.Get().Area()
		if math.Abs(got-e.model) > 1e-6*math.Max(1, e.model) {
			w.fail("%s area %v, want %v", e.box.Get().Name(), got, e.model)
		}
	})
}

func (w *world[P]) teardown() {
	w.bag.Drain(func(e *entry[P]) {
		e.box.Destroy()
	})

	for i, pool := range w.pools {
		if err := pool.Close(); err != nil {
			w.violations++
			w.errs = multierror.Append(w.errs, fmt.Errorf("%s world, pool %d: %w", w.name, i, err))
		}
	}
}

func (w *world[P]) fail(format string, args ...any) {
	err := fmt.Errorf("%s world, step %d: %s", w.name, w.step, fmt.Sprintf(format, args...))
	w.log.WithError(err).Warn("invariant violated")
	w.violations++
	w.errs = multierror.Append(w.errs, err)
}

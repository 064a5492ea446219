package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tangledbytes/go-polymorphic/internal/config"
	"github.com/tangledbytes/go-polymorphic/internal/shape"
	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
	"github.com/tangledbytes/go-polymorphic/pkg/polymorphic"
)

type traced = allocator.Traced[allocator.PoolAllocator[allocator.Sticky]]

type app struct {
	conf config.Config
	log  *logrus.Logger

	kind string
	size float64
}

func newRootCmd() *cobra.Command {
	a := &app{log: logrus.New()}

	root := &cobra.Command{
		Use:          "shapes",
		Short:        "Build shapes in polymorphic boxes and show what their storage does",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().Bool("debug", false, "log every allocation (overrides POLY_DEBUG)")

	root.AddCommand(
		a.command("area", "Print the area of a shape", a.area),
		a.command("copy", "Copy a shape and compare the two boxes", a.copy),
		a.command("move", "Move-assign a shape across pools", a.move),
	)

	return root
}

func (a *app) command(use, short string, run func(w io.Writer) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout())
		},
	}
	a.shapeFlags(cmd.Flags())

	return cmd
}

func (a *app) shapeFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.kind, "kind", "circle", "one of "+strings.Join(shape.Kinds, ", "))
	fs.Float64Var(&a.size, "size", 2, "radius of a circle, side of anything else")
}

func (a *app) setup(cmd *cobra.Command) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}

	if f := cmd.Flags().Lookup("debug"); f != nil && f.Changed {
		conf.Debug, _ = cmd.Flags().GetBool("debug")
	}

	a.conf = conf
	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetLevel(conf.LogLevel())

	return nil
}

func (a *app) newAllocator() (traced, *allocator.Pool) {
	pool := allocator.NewPool(a.conf.PoolOptions(a.log)...)
	return allocator.NewTraced(allocator.On[allocator.Sticky](pool), a.log), pool
}

func (a *app) build(alloc traced) (polymorphic.Polymorphic[shape.Shape, traced], error) {
	return shape.Build(alloc, a.kind, a.size)
}

func (a *app) area(w io.Writer) (err error) {
	alloc, pool := a.newAllocator()
	defer closePool(pool, &err)

	s, err := a.build(alloc)
	if err != nil {
		return err
	}
	defer s.Destroy()

	fmt.Fprintf(w, "%s area=%.3f\n", s.Get().Name(), s.Get().Area())
	return nil
}

func (a *app) copy(w io.Writer) (err error) {
	alloc, pool := a.newAllocator()
	defer closePool(pool, &err)

	s, err := a.build(alloc)
	if err != nil {
		return err
	}
	defer s.Destroy()

	c, err := s.Clone()
	if err != nil {
		return err
	}
	defer c.Destroy()

	fmt.Fprintf(w, "original %s area=%.3f at %p\n", s.Get().Name(), s.Get().Area(), s.Ptr())
	fmt.Fprintf(w, "copy     %s area=%.3f at %p\n", c.Get().Name(), c.Get().Area(), c.Ptr())
	fmt.Fprintf(w, "distinct storage: %t\n", s.Ptr() != c.Ptr())
	fmt.Fprintf(w, "live slots: %d\n", pool.Stats().Live)
	return nil
}

func (a *app) move(w io.Writer) (err error) {
	srcAlloc, src := a.newAllocator()
	defer closePool(src, &err)
	dstAlloc, dst := a.newAllocator()
	defer closePool(dst, &err)

	s, err := a.build(srcAlloc)
	if err != nil {
		return err
	}
	defer s.Destroy()

	t, err := polymorphic.Of[shape.Shape](dstAlloc, shape.Square{Side: 1})
	if err != nil {
		return err
	}
	defer t.Destroy()

	before := s.Ptr()
	if err := t.MoveAssign(&s); err != nil {
		return err
	}

	fmt.Fprintf(w, "target %s area=%.3f\n", t.Get().Name(), t.Get().Area())
	fmt.Fprintf(w, "source valueless: %t\n", s.Valueless())
	fmt.Fprintf(w, "storage transferred: %t\n", before == t.Ptr())
	fmt.Fprintf(w, "source pool live=%d, target pool live=%d\n", src.Stats().Live, dst.Stats().Live)
	return nil
}

func closePool(pool *allocator.Pool, err *error) {
	if cerr := pool.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

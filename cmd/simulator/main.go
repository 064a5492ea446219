package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tangledbytes/go-polymorphic/internal/config"
	"github.com/tangledbytes/go-polymorphic/internal/simulator"
)

func storeHeap() {
	f, err := os.Create("heap.pprof")
	if err != nil {
		panic(err)
	}

	if err := pprof.WriteHeapProfile(f); err != nil {
		panic(err)
	}

	if err := f.Close(); err != nil {
		panic(err)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: simulator <seed> [runs]")
		return
	}

	seed, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		fmt.Println("invalid seed")
		return
	}

	runs := 1
	if len(os.Args) > 2 {
		runs, err = strconv.Atoi(os.Args[2])
		if err != nil || runs < 1 {
			fmt.Println("invalid runs")
			return
		}
	}

	conf, err := config.Load()
	if err != nil {
		fmt.Println("invalid configuration:", err)
		os.Exit(1)
	}

	log := logrus.New()
	log.SetLevel(conf.LogLevel())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		for sig := range c {
			fmt.Println("captured", sig)
			storeHeap()
			os.Exit(1)
		}
	}()

	// Every simulation owns its pools; nothing is shared between goroutines.
	var g errgroup.Group
	g.SetLimit(max(conf.Parallel, 1))
	for i := 0; i < runs; i++ {
		s := seed + uint64(i)
		g.Go(func() error {
			opts := []simulator.Option{simulator.WithLogger(log)}
			if conf.ChunkSize > 0 {
				opts = append(opts, simulator.WithChunkSize(conf.ChunkSize))
			}
			if conf.PoolLimit > 0 {
				opts = append(opts, simulator.WithPoolLimit(uintptr(conf.PoolLimit)))
			}

			_, err := simulator.New(s, opts...).Simulate()
			if err != nil {
				return fmt.Errorf("seed %d: %w", s, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Simulation failed")
		os.Exit(1)
	}
}

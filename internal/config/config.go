// Package config loads the settings shared by the command line tools from
// POLY_* environment variables.
package config

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/tangledbytes/go-polymorphic/pkg/allocator"
)

const envPrefix = "POLY"

type Config struct {
	// Debug switches logging to debug level and traces every allocation.
	Debug bool `envconfig:"DEBUG" default:"false"`
	// ChunkSize is the number of slots in each pool slab. Zero leaves the
	// choice to the pool, or to the seed in the simulator.
	ChunkSize int `envconfig:"CHUNK_SIZE" default:"0"`
	// PoolLimit caps the bytes a pool hands out. Zero means unlimited, or
	// drawn from the seed in the simulator.
	PoolLimit uint64 `envconfig:"POOL_LIMIT" default:"0"`
	// Parallel is the number of simulations run at once.
	Parallel int `envconfig:"PARALLEL" default:"4"`
}

func Load() (Config, error) {
	var conf Config
	if err := envconfig.Process(envPrefix, &conf); err != nil {
		return Config{}, err
	}

	return conf, nil
}

func (c Config) LogLevel() logrus.Level {
	if c.Debug {
		return logrus.DebugLevel
	}

	return logrus.InfoLevel
}

// PoolOptions are the pool settings described by c.
func (c Config) PoolOptions(log logrus.FieldLogger) []allocator.Option {
	return []allocator.Option{
		allocator.WithChunkSize(c.ChunkSize),
		allocator.WithLimit(uintptr(c.PoolLimit)),
		allocator.WithLogger(log),
	}
}

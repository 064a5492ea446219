package simulator

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestSimulate(t *testing.T) {
	logger, _ := test.NewNullLogger()

	for _, seed := range []uint64{1, 2, 3, 42, 1337} {
		report, err := New(seed, WithSteps(2000), WithLogger(logger)).Simulate()
		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, seed, report.Seed)
		require.Equal(t, 2000, report.Steps)
		require.Positive(t, report.Ops["sticky/build"])
		require.Positive(t, report.Ops["propagating/move_assign"])
		require.Positive(t, report.Ops["shared/swap"])
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	logger, _ := test.NewNullLogger()

	a, err := New(7, WithChunkSize(3), WithLogger(logger)).Simulate()
	require.NoError(t, err)
	b, err := New(7, WithChunkSize(3), WithLogger(logger)).Simulate()
	require.NoError(t, err)

	require.Equal(t, a, b)
}

func TestSimulate_PoolLimit(t *testing.T) {
	logger, _ := test.NewNullLogger()

	// No block fits in a single byte, so every build fails and nothing else runs.
	report, err := New(11, WithSteps(200), WithPoolLimit(1), WithLogger(logger)).Simulate()
	require.NoError(t, err)
	require.Equal(t, 3*200, report.Failures)
	require.Equal(t, 200, report.Ops["sticky/build"])
	require.Zero(t, report.Ops["sticky/clone"])
}

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/platform"
)

func TestRunBenchmark(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bench.bin")
	data := make([]byte, 1<<20+123)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	results, err := RunBenchmark(context.Background(), path, BenchmarkConfig{
		BufferSize: 64 << 10,
		Depth:      4,
		Backend:    platform.BackendPread,
	})
	require.NoError(t, err)
	require.Len(t, results, len(Strategies()))

	for i, r := range results {
		assert.Equal(t, Strategies()[i], r.Strategy)
		assert.Equal(t, int64(len(data)), r.Bytes, r.Strategy.String())
		assert.Positive(t, r.BytesPerSec())
	}
}

func TestRunBenchmark_SelectedStrategies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bench.bin")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	results, err := RunBenchmark(context.Background(), path, BenchmarkConfig{
		Strategies: []Strategy{Pipelined},
		Backend:    platform.BackendPread,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Pipelined, results[0].Strategy)
	assert.Equal(t, int64(5), results[0].Bytes)
}

func TestRunBenchmark_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := RunBenchmark(context.Background(), filepath.Join(t.TempDir(), "nope"), BenchmarkConfig{})
	require.Error(t, err)
}

func TestRunBenchmark_Canceled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bench.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := RunBenchmark(ctx, path, BenchmarkConfig{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestFastestStrategy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SlidingWindow, FastestStrategy(nil))
	assert.Equal(t, SyncBatch, FastestStrategy([]BenchmarkResult{
		{Strategy: Unbatched, Bytes: 100, Elapsed: time.Second},
		{Strategy: SyncBatch, Bytes: 400, Elapsed: time.Second},
		{Strategy: Pipelined, Bytes: 300, Elapsed: time.Second},
	}))
}

func TestFormatBenchmark(t *testing.T) {
	t.Parallel()

	s := FormatBenchmark([]BenchmarkResult{
		{Strategy: Unbatched, Bytes: 2_100_000_000, Elapsed: time.Second},
		{Strategy: SlidingWindow, Bytes: 4_000_000_000, Elapsed: time.Second},
	})
	assert.Contains(t, s, "unbatched")
	assert.Contains(t, s, "2.1 GB/s")
	assert.Contains(t, s, "4.0 GB/s")
	assert.Contains(t, s, "fastest: window")
	assert.Empty(t, FormatBenchmark(nil))
}

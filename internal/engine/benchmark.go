package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bamsammich/ferry/internal/platform"
)

// BenchmarkConfig selects what RunBenchmark measures. Zero values pick the
// defaults; an empty Strategies list measures every strategy.
type BenchmarkConfig struct {
	Strategies []Strategy
	BufferSize int
	Depth      int
	Backend    platform.Backend
}

// BenchmarkResult is the throughput of one strategy over one file.
type BenchmarkResult struct {
	Strategy Strategy
	Bytes    int64
	Elapsed  time.Duration
}

// BytesPerSec returns the measured throughput.
func (r BenchmarkResult) BytesPerSec() float64 {
	elapsed := r.Elapsed
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	return float64(r.Bytes) / elapsed.Seconds()
}

// RunBenchmark copies the file at path into io.Discard once per strategy
// and reports how fast each one read it. The network is left out so the
// numbers compare read scheduling only. ctx is checked between strategies;
// a copy in progress runs to completion.
func RunBenchmark(ctx context.Context, path string, cfg BenchmarkConfig) ([]BenchmarkResult, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 4
	}
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = Strategies()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := make([]BenchmarkResult, 0, len(strategies))
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		totals, err := Copy(Job{
			Src:        f,
			Dst:        io.Discard,
			BufferSize: cfg.BufferSize,
			Depth:      cfg.Depth,
			Strategy:   s,
			Backend:    cfg.Backend,
		})
		if err != nil {
			return results, fmt.Errorf("%s: %w", s, err)
		}
		results = append(results, BenchmarkResult{
			Strategy: s,
			Bytes:    totals.Bytes(),
			Elapsed:  time.Since(start),
		})
	}
	return results, nil
}

// FastestStrategy returns the strategy with the highest throughput, or
// SlidingWindow when results is empty.
func FastestStrategy(results []BenchmarkResult) Strategy {
	best := SlidingWindow
	var bestBPS float64
	for _, r := range results {
		if bps := r.BytesPerSec(); bps > bestBPS {
			best, bestBPS = r.Strategy, bps
		}
	}
	return best
}

// FormatBenchmark formats benchmark results for display, one line per
// strategy.
func FormatBenchmark(results []BenchmarkResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%-10s %10s/s  %s\n", r.Strategy, formatBytes(r.BytesPerSec()), r.Elapsed.Round(time.Microsecond))
	}
	if len(results) > 0 {
		fmt.Fprintf(&b, "fastest: %s\n", FastestStrategy(results))
	}
	return b.String()
}

func formatBytes(b float64) string {
	switch {
	case b >= 1e9:
		return fmt.Sprintf("%.1f GB", b/1e9)
	case b >= 1e6:
		return fmt.Sprintf("%.0f MB", b/1e6)
	case b >= 1e3:
		return fmt.Sprintf("%.0f KB", b/1e3)
	default:
		return fmt.Sprintf("%.0f B", b)
	}
}

package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBWLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst capped to rate when rate < 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(1024)
		assert.Equal(t, 1024, lim.Burst())
	})

	t.Run("burst is 1MB when rate >= 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(10 * 1024 * 1024)
		assert.Equal(t, 1<<20, lim.Burst())
	})
}

func TestRateLimitedWriter(t *testing.T) {
	t.Parallel()

	t.Run("nil limiter passes writer through", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := NewLimitedWriter(context.Background(), &buf, nil)
		assert.Same(t, &buf, w)
	})

	t.Run("writes larger than burst are split", func(t *testing.T) {
		t.Parallel()
		// Burst is 1 MiB; a 3 MiB write must not fail WaitN.
		data := bytes.Repeat([]byte("x"), 3<<20)
		var buf bytes.Buffer
		w := NewLimitedWriter(context.Background(), &buf, NewBWLimiter(1<<30))

		n, err := w.Write(data)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.Equal(t, data, buf.Bytes())
	})

	t.Run("enforces rate limit", func(t *testing.T) {
		t.Parallel()
		// 10 KB at 5 KB/s should take ~1s after the initial burst.
		data := bytes.Repeat([]byte("a"), 10*1024)
		var buf bytes.Buffer
		w := NewLimitedWriter(context.Background(), &buf, NewBWLimiter(5*1024))

		start := time.Now()
		_, err := CopyIncremental(w, bytes.NewReader(data), 1024)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, len(data), buf.Len())
		assert.Greater(t, elapsed, 500*time.Millisecond,
			"rate limiter should slow writes to ~5KB/s")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var buf bytes.Buffer
		w := NewLimitedWriter(ctx, &buf, NewBWLimiter(1024))
		_, err := w.Write(make([]byte, 4096))
		assert.Error(t, err)
	})
}

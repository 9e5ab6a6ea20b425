package platform

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, size int) (*os.File, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, data
}

// testBackends returns the backends usable on this machine. io_uring is
// skipped when the ring cannot be created (old kernel, seccomp).
func testBackends(t *testing.T) []Backend {
	t.Helper()
	backends := []Backend{BackendPread}

	f, _ := writeTestFile(t, 1)
	r, err := NewAsyncReader(f, 1, BackendIOURing)
	if err == nil {
		require.NoError(t, r.Close())
		backends = append(backends, BackendIOURing)
	} else {
		t.Logf("io_uring unavailable: %v", err)
	}
	return backends
}

func TestAsyncReaderOutOfOrderAwait(t *testing.T) {
	for _, backend := range testBackends(t) {
		t.Run(backend.String(), func(t *testing.T) {
			const chunk = 4096
			f, data := writeTestFile(t, 4*chunk)

			r, err := NewAsyncReader(f, 4, backend)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, backend, r.Backend())

			bufs := make([][]byte, 4)
			for i := range bufs {
				bufs[i] = make([]byte, chunk)
				require.NoError(t, r.Submit(i, bufs[i], int64(i*chunk)))
			}
			require.NoError(t, r.Flush())

			// Await in reverse: completions must still land on their slots.
			for i := 3; i >= 0; i-- {
				n, err := r.Await(i)
				require.NoError(t, err)
				assert.Equal(t, chunk, n)
				assert.Equal(t, data[i*chunk:(i+1)*chunk], bufs[i])
			}
		})
	}
}

func TestAsyncReaderShortAndEmptyReads(t *testing.T) {
	for _, backend := range testBackends(t) {
		t.Run(backend.String(), func(t *testing.T) {
			f, data := writeTestFile(t, 100)

			r, err := NewAsyncReader(f, 2, backend)
			require.NoError(t, err)
			defer r.Close()

			short := make([]byte, 64)
			past := make([]byte, 64)
			require.NoError(t, r.Submit(0, short, 64))
			require.NoError(t, r.Submit(1, past, 128))
			require.NoError(t, r.Flush())

			n, err := r.Await(0)
			require.NoError(t, err)
			assert.Equal(t, 36, n)
			assert.Equal(t, data[64:], short[:n])

			n, err = r.Await(1)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestAsyncReaderSlotMisuse(t *testing.T) {
	f, _ := writeTestFile(t, 16)

	r, err := NewAsyncReader(f, 1, BackendPread)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 8)
	assert.Error(t, r.Submit(1, buf, 0))
	_, err = r.Await(0)
	assert.Error(t, err, "await without submit")

	require.NoError(t, r.Submit(0, buf, 0))
	assert.Error(t, r.Submit(0, buf, 8), "slot already in flight")
}

func TestAsyncReaderCloseDrainsInFlight(t *testing.T) {
	for _, backend := range testBackends(t) {
		t.Run(backend.String(), func(t *testing.T) {
			f, _ := writeTestFile(t, 1<<16)

			r, err := NewAsyncReader(f, 3, backend)
			require.NoError(t, err)
			for i := range 3 {
				require.NoError(t, r.Submit(i, make([]byte, 1024), int64(i*1024)))
			}
			require.NoError(t, r.Flush())
			assert.NoError(t, r.Close())
		})
	}
}

func TestNewAsyncReaderRejectsZeroDepth(t *testing.T) {
	f, _ := writeTestFile(t, 1)
	_, err := NewAsyncReader(f, 0, BackendAuto)
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
		err  bool
	}{
		{in: "", want: BackendAuto},
		{in: "auto", want: BackendAuto},
		{in: "io_uring", want: BackendIOURing},
		{in: "iouring", want: BackendIOURing},
		{in: "pread", want: BackendPread},
		{in: "aio", err: true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

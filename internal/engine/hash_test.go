package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHashFileContentAddressed(t *testing.T) {
	a, err := HashFile(writeTemp(t, "a", "payload"))
	require.NoError(t, err)
	b, err := HashFile(writeTemp(t, "b", "payload"))
	require.NoError(t, err)
	c, err := HashFile(writeTemp(t, "c", "payload!"))
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestHashFileEmpty(t *testing.T) {
	got, err := HashFile(writeTemp(t, "empty", ""))
	require.NoError(t, err)
	assert.Equal(t, NewDigest().Sum(), got)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDigestMatchesHashFile(t *testing.T) {
	path := writeTemp(t, "data", "streamed in two parts")

	d := NewDigest()
	for _, part := range []string{"streamed in ", "two parts"} {
		_, err := d.Write([]byte(part))
		require.NoError(t, err)
	}

	want, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, d.Sum())
}

func TestDigestTeeKeepsWriteSemantics(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 10_000)
	src := writeSource(t, data)
	want := NewDigest()
	_, err := want.Write(data)
	require.NoError(t, err)

	for _, strategy := range Strategies() {
		d := NewDigest()
		w := &trickleWriter{max: 7}
		totals, err := Copy(Job{Src: src, Dst: d.Tee(w), BufferSize: 512, Depth: 3, Strategy: strategy})
		require.NoError(t, err, strategy.String())
		assert.Equal(t, int64(len(data)), totals.Bytes(), strategy.String())
		assert.Equal(t, want.Sum(), d.Sum(), strategy.String())

		d = NewDigest()
		_, err = Copy(Job{Src: src, Dst: d.Tee(zeroWriter{}), BufferSize: 1024, Depth: 2, Strategy: strategy})
		require.ErrorIs(t, err, ErrWriteZero, strategy.String())
		assert.Equal(t, NewDigest().Sum(), d.Sum(), strategy.String())
	}
}

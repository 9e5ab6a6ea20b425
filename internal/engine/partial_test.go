package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupPartial(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "done")
	dropped := filepath.Join(dir, "partial")
	require.NoError(t, os.WriteFile(kept, []byte("ok"), 0o644))
	require.NoError(t, os.WriteFile(dropped, []byte("half"), 0o644))

	RegisterPartial(kept)
	RegisterPartial(dropped)
	DeregisterPartial(kept)

	assert.Equal(t, 1, CleanupPartial())
	assert.FileExists(t, kept)
	assert.NoFileExists(t, dropped)

	// Registry is empty after cleanup.
	assert.Equal(t, 0, CleanupPartial())
}

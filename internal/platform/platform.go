// Package platform holds the OS-facing pieces of a transfer: asynchronous
// positional readers, byte sources, and on-disk preallocation.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// CreatePreallocated creates (or truncates) path and reserves size bytes for
// it. The file is left at its full length; writers that deliver fewer bytes
// should truncate it afterwards.
func CreatePreallocated(path string, size int64, perm os.FileMode) error {
	if size < 0 {
		return fmt.Errorf("negative preallocation size %d", size)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if size > 0 {
		if err := preallocate(f, size); err != nil {
			f.Close()
			return fmt.Errorf("preallocate %s: %w", path, err)
		}
	}
	return f.Close()
}

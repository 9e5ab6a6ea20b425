//go:build !linux

package platform

import "os"

// preallocate extends the file to size; fallocate is Linux-only.
func preallocate(fd *os.File, size int64) error {
	return fd.Truncate(size)
}

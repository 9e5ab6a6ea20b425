//go:build !unix

package platform

import (
	"io"
	"os"
)

// mmapFile reads the whole file into memory where mmap is unavailable.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, err
	}
	return b, nil
}

func munmapFile([]byte) error { return nil }

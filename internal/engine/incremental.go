package engine

import (
	"errors"
	"fmt"
	"io"
)

// DefaultBufferSize is the chunk size used when callers don't pick one.
const DefaultBufferSize = 1 << 20 // 1 MiB

// CopyIncremental moves src to dst one buffer at a time. It is the
// synchronous path used for compression codecs and for streams without
// positional reads (stdin, mmap). A zero-length read ends the copy.
func CopyIncremental(dst io.Writer, src io.Reader, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)

	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			total += int64(w)
			if err != nil {
				return total, fmt.Errorf("write: %w", err)
			}
			if w != n {
				return total, io.ErrShortWrite
			}
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read: %w", readErr)
		}
		if n == 0 {
			return total, nil
		}
	}
}

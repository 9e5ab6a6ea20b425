package engine

import (
	"errors"
	"io"
)

// ErrWriteZero is returned when a destination accepts zero bytes without
// reporting an error, which on a socket means the peer stopped reading.
var ErrWriteZero = errors.New("write accepted zero bytes")

// writeAll writes p in full, looping over partial writes.
func writeAll(w io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, ErrWriteZero
		}
	}
	return written, nil
}

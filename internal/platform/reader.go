package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Backend selects how an AsyncReader performs its positional reads.
type Backend int

const (
	BackendAuto    Backend = iota
	BackendIOURing         // Linux io_uring
	BackendPread           // one goroutine per in-flight pread(2)
)

func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendIOURing:
		return "io_uring"
	case BackendPread:
		return "pread"
	default:
		return "unknown"
	}
}

// ParseBackend converts a config/flag value into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "auto":
		return BackendAuto, nil
	case "io_uring", "iouring":
		return BackendIOURing, nil
	case "pread":
		return BackendPread, nil
	default:
		return BackendAuto, fmt.Errorf("unknown read backend %q (use auto, io_uring or pread)", s)
	}
}

var errIOURingUnsupported = errors.New("io_uring not supported by this kernel")

// AsyncReader issues positional reads against one file and reports their
// completions. Reads are identified by a slot index in [0, depth); a slot
// carries at most one read at a time and its buffer belongs to the reader
// until Await returns for that slot.
type AsyncReader interface {
	// Submit queues a read of len(buf) bytes at off on the given slot.
	Submit(slot int, buf []byte, off int64) error
	// Flush hands every queued read to the kernel without waiting.
	Flush() error
	// Await blocks until the read on slot completes and returns the number
	// of bytes read. Zero means end of file.
	Await(slot int) (int, error)
	// Backend reports which implementation is in use.
	Backend() Backend
	// Close waits for reads still in flight and releases the reader.
	Close() error
}

// NewAsyncReader returns an AsyncReader able to keep depth reads in flight
// against f. BackendAuto tries io_uring first and falls back to pread when
// the ring cannot be created (old kernel, seccomp, non-Linux).
//
//nolint:ireturn // factory returns interface by design
func NewAsyncReader(f *os.File, depth int, backend Backend) (AsyncReader, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("read depth must be positive, got %d", depth)
	}

	switch backend {
	case BackendPread:
		return newPreadReader(f, depth), nil
	case BackendIOURing:
		r, err := newURingReader(f, depth)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		r, err := newURingReader(f, depth)
		if err == nil {
			return r, nil
		}
		slog.Debug("io_uring unavailable, using pread", "error", err)
		return newPreadReader(f, depth), nil
	}
}

package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// SourceKind is the closed set of byte sources a transfer can read from.
type SourceKind int

const (
	SourceFile  SourceKind = iota // regular file, positional reads
	SourceStdin                   // standard input, length unknown
	SourceMmap                    // regular file mapped into memory
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceStdin:
		return "stdin"
	case SourceMmap:
		return "mmap"
	default:
		return "unknown"
	}
}

// StdinPath is the source path that selects standard input.
const StdinPath = "-"

// Source is one opened byte source. Exactly one of file, mapped, or stdin
// backs it, selected by kind when the source is opened.
type Source struct {
	file   *os.File
	stdin  io.Reader
	mapped []byte
	name   string
	size   int64
	kind   SourceKind
}

// OpenSource opens path as the given kind. StdinPath always yields a
// SourceStdin regardless of kind.
func OpenSource(path string, kind SourceKind) (*Source, error) {
	if path == StdinPath || kind == SourceStdin {
		return &Source{kind: SourceStdin, stdin: os.Stdin, name: "<stdin>", size: -1}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	src := &Source{kind: kind, file: f, name: path, size: info.Size()}
	if kind != SourceMmap {
		return src, nil
	}

	// Empty files cannot be mapped; they read as an empty buffer.
	if info.Size() > 0 {
		mapped, err := mmapFile(f, info.Size())
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		src.mapped = mapped
	}
	return src, nil
}

// NewStreamSource wraps an arbitrary reader as a stdin-kind source. Used by
// tests and by callers that already hold a stream.
func NewStreamSource(name string, r io.Reader) *Source {
	return &Source{kind: SourceStdin, stdin: r, name: name, size: -1}
}

func (s *Source) Kind() SourceKind { return s.kind }
func (s *Source) Name() string     { return s.name }

// Size returns the source length in bytes, or -1 when unknown.
func (s *Source) Size() int64 { return s.size }

// File returns the underlying file for positional reads. Only SourceFile
// sources expose one.
func (s *Source) File() *os.File {
	if s.kind != SourceFile {
		return nil
	}
	return s.file
}

// Reader returns a sequential stream over the source.
func (s *Source) Reader() io.Reader {
	switch s.kind {
	case SourceStdin:
		return s.stdin
	case SourceMmap:
		return bytes.NewReader(s.mapped)
	default:
		return s.file
	}
}

func (s *Source) Close() error {
	var errs []error
	if s.mapped != nil {
		errs = append(errs, munmapFile(s.mapped))
		s.mapped = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	return errors.Join(errs...)
}

package proto

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionKind selects the codec applied to a ReceiveData payload.
type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionZstd
	CompressionGzip
	CompressionLz4
	CompressionSnappy
)

var compressionNames = [...]string{
	CompressionNone:   "none",
	CompressionZstd:   "zstd",
	CompressionGzip:   "gzip",
	CompressionLz4:    "lz4",
	CompressionSnappy: "snappy",
}

func (k CompressionKind) String() string {
	if k.valid() {
		return compressionNames[k]
	}
	return fmt.Sprintf("CompressionKind(%d)", k)
}

func (k CompressionKind) valid() bool {
	return int(k) < len(compressionNames)
}

// ParseCompression maps a codec name to its kind. The empty string is none.
func ParseCompression(s string) (CompressionKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CompressionNone, nil
	}
	for k, name := range compressionNames {
		if name == s {
			return CompressionKind(k), nil
		}
	}
	return CompressionNone, fmt.Errorf("unknown compression %q (want none, zstd, gzip, lz4 or snappy)", s)
}

// WrapEncoder returns a writer that compresses into w. Close flushes the
// codec's trailer but does not close w.
func WrapEncoder(kind CompressionKind, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return enc, nil
	case CompressionGzip:
		enc, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("gzip encoder: %w", err)
		}
		return enc, nil
	case CompressionLz4:
		return lz4.NewWriter(w), nil
	case CompressionSnappy:
		return snappy.NewBufferedWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown compression kind %d", kind)
	}
}

// WrapDecoder returns a reader that decompresses r. Close releases codec
// state but does not close r.
func WrapDecoder(kind CompressionKind, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return dec.IOReadCloser(), nil
	case CompressionGzip:
		dec, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip decoder: %w", err)
		}
		return dec, nil
	case CompressionLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression kind %d", kind)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

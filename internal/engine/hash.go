package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest accumulates a BLAKE3 hash of the bytes written to it. Both ends of
// a transfer tee the payload through one so their digests can be compared
// in the logs.
type Digest struct {
	h *blake3.Hasher
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{h: blake3.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Tee returns a writer that forwards to w and hashes exactly the bytes w
// accepted. Short and zero-length writes reach the caller unchanged.
func (d *Digest) Tee(w io.Writer) io.Writer {
	return teeWriter{w: w, d: d}
}

type teeWriter struct {
	w io.Writer
	d *Digest
}

func (t teeWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.d.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
	}
	return n, err
}

// Sum returns the hex-encoded digest of everything written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// HashFile returns the hex BLAKE3 digest of the file at path, in the same
// form Digest.Sum produces for a streamed copy of it.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d := NewDigest()
	if _, err := io.CopyBuffer(d, f, make([]byte, 64*1024)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return d.Sum(), nil
}

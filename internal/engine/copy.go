// Package engine moves bytes from a file or stream to a connected socket.
//
// The batched engine reads a regular file through an asynchronous
// positional reader and writes the chunks, in file order, to an io.Writer.
// Four scheduling strategies trade simplicity for read/write overlap; all of
// them produce byte-identical output for the same input.
package engine

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bamsammich/ferry/internal/platform"
)

// Limits on a single batched copy.
const (
	MaxDepth      = 1024
	MaxWindowSize = 1 << 30 // depth * buffer size
)

// Strategy selects how reads are scheduled against socket writes.
type Strategy int

const (
	// Unbatched reads one buffer, writes it, then reads the next.
	Unbatched Strategy = iota
	// SyncBatch issues depth reads, waits for all of them, writes them in
	// order, and only then issues the next batch.
	SyncBatch
	// Pipelined issues the next batch before writing the current one, so
	// read-ahead overlaps the socket write.
	Pipelined
	// SlidingWindow keeps depth reads in flight and refills each slot as
	// soon as its chunk has been written.
	SlidingWindow
)

var strategyNames = [...]string{
	Unbatched:     "unbatched",
	SyncBatch:     "batch",
	Pipelined:     "pipelined",
	SlidingWindow: "window",
}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

// ParseStrategy converts a config/flag value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if s == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown copy strategy %q (use unbatched, batch, pipelined or window)", s)
}

// Strategies lists every strategy, in order of increasing overlap.
func Strategies() []Strategy {
	return []Strategy{Unbatched, SyncBatch, Pipelined, SlidingWindow}
}

// Job describes one batched copy.
type Job struct {
	Src        *os.File
	Dst        io.Writer
	BufferSize int
	Depth      int // ignored by Unbatched
	Strategy   Strategy
	Backend    platform.Backend
}

// Totals is the byte accounting of a copy. Written never exceeds Read, and
// the two are equal when a copy succeeds.
type Totals struct {
	Read    uint64
	Written uint64
}

// Bytes returns the number of bytes delivered to the destination.
func (t Totals) Bytes() int64 {
	return int64(t.Written) //nolint:gosec // G115: bounded by file size
}

func (j Job) validate() error {
	switch {
	case j.Src == nil:
		return errors.New("copy job has no source file")
	case j.Dst == nil:
		return errors.New("copy job has no destination")
	case j.BufferSize <= 0:
		return fmt.Errorf("buffer size must be positive, got %d", j.BufferSize)
	case j.Strategy != Unbatched && (j.Depth <= 0 || j.Depth > MaxDepth):
		return fmt.Errorf("depth must be in [1, %d], got %d", MaxDepth, j.Depth)
	case j.Strategy < Unbatched || j.Strategy > SlidingWindow:
		return fmt.Errorf("unknown copy strategy %d", j.Strategy)
	}
	if int64(j.BufferSize)*int64(j.depth()) > MaxWindowSize {
		return fmt.Errorf("buffer size %d x depth %d exceeds %d bytes", j.BufferSize, j.depth(), MaxWindowSize)
	}
	return nil
}

func (j Job) depth() int {
	if j.Strategy == Unbatched {
		return 1
	}
	return j.Depth
}

// Copy reads job.Src from offset zero to end of file and writes every byte,
// in order, to job.Dst. It returns the byte accounting even on failure. The
// copy cannot be interrupted once started; it runs to EOF or the first I/O
// error.
func Copy(job Job) (Totals, error) {
	if err := job.validate(); err != nil {
		return Totals{}, err
	}

	depth := job.depth()
	reader, err := platform.NewAsyncReader(job.Src, depth, job.Backend)
	if err != nil {
		return Totals{}, fmt.Errorf("open reader: %w", err)
	}

	c := newCopier(reader, job.Dst, job.BufferSize, depth)
	var runErr error
	switch job.Strategy {
	case Unbatched:
		runErr = c.unbatched()
	case SyncBatch:
		runErr = c.syncBatch()
	case Pipelined:
		runErr = c.pipelined()
	case SlidingWindow:
		runErr = c.slidingWindow()
	}

	if closeErr := reader.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("close reader: %w", closeErr)
	}
	if runErr != nil {
		return c.totals, runErr
	}

	if c.totals.Read != c.totals.Written {
		panic(fmt.Sprintf("engine: %s copy read %d bytes but wrote %d",
			job.Strategy, c.totals.Read, c.totals.Written))
	}
	return c.totals, nil
}

// copier holds the state shared by all strategies: the reader, one buffer
// per slot carved from a single allocation, and the running totals.
type copier struct {
	r       platform.AsyncReader
	dst     io.Writer
	slots   [][]byte
	bufSize int
	depth   int
	totals  Totals
}

func newCopier(r platform.AsyncReader, dst io.Writer, bufSize, depth int) *copier {
	backing := make([]byte, bufSize*depth)
	slots := make([][]byte, depth)
	for i := range slots {
		slots[i] = backing[i*bufSize : (i+1)*bufSize : (i+1)*bufSize]
	}
	return &copier{r: r, dst: dst, slots: slots, bufSize: bufSize, depth: depth}
}

func (c *copier) submit(slot int, off int64) error {
	if err := c.r.Submit(slot, c.slots[slot], off); err != nil {
		return fmt.Errorf("submit read at %d: %w", off, err)
	}
	return nil
}

// submitBatch queues one read per slot at consecutive offsets starting at
// off and hands them to the kernel.
func (c *copier) submitBatch(off int64) error {
	for i := range c.depth {
		if err := c.submit(i, off+int64(i*c.bufSize)); err != nil {
			return err
		}
	}
	return c.r.Flush()
}

func (c *copier) await(slot int) (int, error) {
	n, err := c.r.Await(slot)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	c.totals.Read += uint64(n) //nolint:gosec // G115: n is non-negative
	return n, nil
}

func (c *copier) write(p []byte) error {
	n, err := writeAll(c.dst, p)
	c.totals.Written += uint64(n) //nolint:gosec // G115: n is non-negative
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

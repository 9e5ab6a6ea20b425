package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type readResult struct {
	n   int
	err error
}

// preadReader emulates a completion queue with goroutines: each submitted
// read runs (*os.File).ReadAt on its own goroutine and parks its result on
// the slot's channel.
type preadReader struct {
	file     *os.File
	results  []chan readResult
	inFlight []bool
}

func newPreadReader(f *os.File, depth int) *preadReader {
	results := make([]chan readResult, depth)
	for i := range results {
		results[i] = make(chan readResult, 1)
	}
	return &preadReader{
		file:     f,
		results:  results,
		inFlight: make([]bool, depth),
	}
}

func (p *preadReader) Backend() Backend { return BackendPread }

func (p *preadReader) Submit(slot int, buf []byte, off int64) error {
	if slot < 0 || slot >= len(p.results) {
		return fmt.Errorf("pread: slot %d out of range", slot)
	}
	if p.inFlight[slot] {
		return fmt.Errorf("pread: slot %d already in flight", slot)
	}
	p.inFlight[slot] = true

	ch := p.results[slot]
	go func() {
		n, err := p.file.ReadAt(buf, off)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		ch <- readResult{n: n, err: err}
	}()
	return nil
}

// Flush is a no-op: reads start as soon as they are submitted.
func (*preadReader) Flush() error { return nil }

func (p *preadReader) Await(slot int) (int, error) {
	if slot < 0 || slot >= len(p.results) {
		return 0, fmt.Errorf("pread: slot %d out of range", slot)
	}
	if !p.inFlight[slot] {
		return 0, fmt.Errorf("pread: slot %d has no read in flight", slot)
	}
	res := <-p.results[slot]
	p.inFlight[slot] = false
	if res.err != nil {
		return res.n, fmt.Errorf("pread: %w", res.err)
	}
	return res.n, nil
}

func (p *preadReader) Close() error {
	for i, busy := range p.inFlight {
		if busy {
			<-p.results[i]
			p.inFlight[i] = false
		}
	}
	return nil
}

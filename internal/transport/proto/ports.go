package proto

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

const (
	// DefaultPortStart and DefaultPortEnd bound the IANA dynamic range used
	// when a GetFreePort request leaves either end open.
	DefaultPortStart uint16 = 49152
	DefaultPortEnd   uint16 = 65535
)

// ErrNoFreePort is returned when every port in the requested range is taken.
var ErrNoFreePort = errors.New("no free port in range")

// PortAllocator finds an unused TCP port in [start, end]. Nil bounds select
// the allocator's defaults.
type PortAllocator interface {
	Allocate(start, end *uint16) (uint16, error)
}

// ProbeAllocator finds free ports by binding candidates on Host. It walks
// the range from a cursor that advances after each hit so consecutive
// requests get different ports.
type ProbeAllocator struct {
	Host       string // "" binds all interfaces
	Start, End uint16 // defaults when zero

	mu     sync.Mutex
	cursor uint32
}

// Allocate implements PortAllocator.
func (a *ProbeAllocator) Allocate(start, end *uint16) (uint16, error) {
	lo, hi := a.bounds(start, end)
	if lo == 0 || lo > hi {
		return 0, fmt.Errorf("invalid port range %d-%d", lo, hi)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	span := uint32(hi) - uint32(lo) + 1
	for i := range span {
		port := lo + uint16((a.cursor+i)%span) //nolint:gosec // G115: < span <= 65535
		if probePort(a.Host, port) {
			a.cursor += i + 1
			return port, nil
		}
	}
	return 0, fmt.Errorf("%d-%d: %w", lo, hi, ErrNoFreePort)
}

func (a *ProbeAllocator) bounds(start, end *uint16) (uint16, uint16) {
	lo, hi := a.Start, a.End
	if lo == 0 {
		lo = DefaultPortStart
	}
	if hi == 0 {
		hi = DefaultPortEnd
	}
	if start != nil {
		lo = *start
	}
	if end != nil {
		hi = *end
	}
	return lo, hi
}

func probePort(host string, port uint16) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

//go:build linux

package platform

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// io_uring constants.
const (
	ioringOpRead = 22

	ioringEnterGetevents = 1 << 0

	ioringOffSQEs   = 0x10000000
	ioringOffCQRing = 0x8000000
)

// io_uring_sqe — submission queue entry (64 bytes).
type ioUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIG       uint16
	personality uint16
	spliceFdIn  int32
	_pad2       [2]uint64
}

// io_uring_cqe — completion queue entry (16 bytes).
type ioUringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

// io_uring_params — setup parameters.
type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ioUringSQRingOffsets
	cqOff        ioUringCQRingOffsets
}

type ioUringSQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type ioUringCQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

const sqeSize = 64
const cqeSize = 16

// ring wraps the memory-mapped io_uring state.
type ring struct {
	fd        int
	sqEntries uint32
	cqEntries uint32

	// SQ ring pointers (into mmap'd memory).
	sqHead    *uint32
	sqTail    *uint32
	sqMask    *uint32
	sqArray   unsafe.Pointer
	sqes      unsafe.Pointer
	sqRingMem []byte

	// CQ ring pointers.
	cqHead    *uint32
	cqTail    *uint32
	cqMask    *uint32
	cqes      unsafe.Pointer
	cqRingMem []byte

	sqesMem []byte
}

// slotState tracks one in-flight read on the ring.
type slotState struct {
	buf      []byte
	res      int32
	inFlight bool
	done     bool
}

// uringReader is an AsyncReader that issues IORING_OP_READ requests against
// a single file. Each slot has at most one read in flight; the slot index is
// carried in the SQE user data so completions can be matched regardless of
// the order the kernel retires them.
type uringReader struct {
	r       *ring
	file    *os.File
	fd      int32
	slots   []slotState
	pending uint32 // SQEs queued but not yet passed to io_uring_enter
}

func newURingReader(f *os.File, depth int) (*uringReader, error) {
	if !kernelSupportsIOURing() {
		return nil, errIOURingUnsupported
	}
	r, err := setupRing(uint32(depth)) //nolint:gosec // G115: depth validated by caller
	if err != nil {
		return nil, err
	}
	if int(r.sqEntries) < depth {
		_ = r.close()
		return nil, fmt.Errorf("io_uring: ring has %d entries, need %d", r.sqEntries, depth)
	}
	return &uringReader{
		r:     r,
		file:  f,
		fd:    int32(f.Fd()), //nolint:gosec // G115: fd values are small non-negative integers
		slots: make([]slotState, depth),
	}, nil
}

func (u *uringReader) Backend() Backend { return BackendIOURing }

func (u *uringReader) Submit(slot int, buf []byte, off int64) error {
	if slot < 0 || slot >= len(u.slots) {
		return fmt.Errorf("io_uring: slot %d out of range", slot)
	}
	if len(buf) == 0 {
		return errors.New("io_uring: empty read buffer")
	}
	s := &u.slots[slot]
	if s.inFlight {
		return fmt.Errorf("io_uring: slot %d already in flight", slot)
	}

	u.r.prepRead(u.fd, buf, uint64(off), uint64(slot)) //nolint:gosec // G115: offsets are non-negative
	*s = slotState{buf: buf, inFlight: true}
	u.pending++
	return nil
}

func (u *uringReader) Flush() error {
	for u.pending > 0 {
		n, err := u.r.enter(u.pending, 0, 0)
		if err != nil {
			return err
		}
		u.pending -= n
	}
	return nil
}

func (u *uringReader) Await(slot int) (int, error) {
	if slot < 0 || slot >= len(u.slots) {
		return 0, fmt.Errorf("io_uring: slot %d out of range", slot)
	}
	s := &u.slots[slot]
	if !s.inFlight {
		return 0, fmt.Errorf("io_uring: slot %d has no read in flight", slot)
	}

	for !s.done {
		if err := u.waitOne(); err != nil {
			return 0, err
		}
	}

	res := s.res
	runtime.KeepAlive(s.buf)
	*s = slotState{}
	if res < 0 {
		return 0, fmt.Errorf("io_uring read: %w", syscall.Errno(-res))
	}
	return int(res), nil
}

// waitOne submits anything queued, blocks until at least one completion is
// available, and records every available completion against its slot.
func (u *uringReader) waitOne() error {
	toSubmit := u.pending
	n, err := u.r.enter(toSubmit, 1, ioringEnterGetevents)
	if err != nil {
		return err
	}
	u.pending -= n

	u.r.reap(func(userData uint64, res int32) {
		if userData < uint64(len(u.slots)) {
			s := &u.slots[userData]
			s.res = res
			s.done = true
		}
	})
	return nil
}

// Close drains reads still owned by the kernel before unmapping the ring.
func (u *uringReader) Close() error {
	if u.r == nil {
		return nil
	}
	_ = u.Flush()
	for i := range u.slots {
		if u.slots[i].inFlight {
			_, _ = u.Await(i)
		}
	}
	err := u.r.close()
	u.r = nil
	return err
}

// setupRing creates and maps an io_uring instance.
func setupRing(entries uint32) (*ring, error) {
	var params ioUringParams
	fd, _, errno := syscall.Syscall(
		unix.SYS_IO_URING_SETUP,
		uintptr(entries),
		uintptr(unsafe.Pointer(&params)),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &ring{
		fd:        int(fd),
		sqEntries: params.sqEntries,
		cqEntries: params.cqEntries,
	}

	if err := r.mmap(&params); err != nil {
		_ = syscall.Close(r.fd)
		return nil, err
	}

	return r, nil
}

func (r *ring) mmap(params *ioUringParams) error {
	// Map submission queue ring.
	sqRingSize := uintptr(params.sqOff.array) + uintptr(params.sqEntries)*4
	sqMem, err := syscall.Mmap(r.fd, 0, int(sqRingSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	r.sqRingMem = sqMem

	base := unsafe.Pointer(&sqMem[0])
	r.sqHead = (*uint32)(unsafe.Add(base, params.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(base, params.sqOff.tail))
	r.sqMask = (*uint32)(unsafe.Add(base, params.sqOff.ringMask))
	r.sqArray = unsafe.Add(base, params.sqOff.array)

	// Map SQEs.
	sqesMem, err := syscall.Mmap(r.fd, ioringOffSQEs, int(uintptr(params.sqEntries)*sqeSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		_ = syscall.Munmap(r.sqRingMem)
		return fmt.Errorf("mmap sqes: %w", err)
	}
	r.sqesMem = sqesMem
	r.sqes = unsafe.Pointer(&sqesMem[0])

	// Map completion queue ring.
	cqRingSize := uintptr(params.cqOff.cqes) + uintptr(params.cqEntries)*cqeSize
	cqMem, err := syscall.Mmap(r.fd, ioringOffCQRing, int(cqRingSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		_ = syscall.Munmap(r.sqesMem)
		_ = syscall.Munmap(r.sqRingMem)
		return fmt.Errorf("mmap cq ring: %w", err)
	}
	r.cqRingMem = cqMem

	cqBase := unsafe.Pointer(&cqMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, params.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, params.cqOff.tail))
	r.cqMask = (*uint32)(unsafe.Add(cqBase, params.cqOff.ringMask))
	r.cqes = unsafe.Add(cqBase, params.cqOff.cqes)

	return nil
}

func (r *ring) close() error {
	var firstErr error
	if r.cqRingMem != nil {
		if err := syscall.Munmap(r.cqRingMem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.sqesMem != nil {
		if err := syscall.Munmap(r.sqesMem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.sqRingMem != nil {
		if err := syscall.Munmap(r.sqRingMem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := syscall.Close(r.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// prepRead fills the next SQE slot with a read request and publishes it by
// advancing the SQ tail. The request is not handed to the kernel until enter.
func (r *ring) prepRead(fd int32, buf []byte, offset, userData uint64) {
	tail := atomic.LoadUint32(r.sqTail)
	idx := tail & *r.sqMask

	sqe := (*ioUringSQE)(unsafe.Add(r.sqes, uintptr(idx)*sqeSize))
	*sqe = ioUringSQE{}
	sqe.opcode = ioringOpRead
	sqe.fd = fd
	sqe.off = offset
	sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.len = uint32(len(buf)) //nolint:gosec // G115: buffer sizes are bounded by config
	sqe.userData = userData

	sqArr := (*uint32)(unsafe.Add(r.sqArray, uintptr(idx)*4))
	*sqArr = idx

	atomic.StoreUint32(r.sqTail, tail+1)
}

// enter calls io_uring_enter and returns how many SQEs the kernel consumed.
func (r *ring) enter(toSubmit, minComplete uint32, flags uint32) (uint32, error) {
	for {
		n, _, errno := syscall.Syscall6(
			unix.SYS_IO_URING_ENTER,
			uintptr(r.fd),
			uintptr(toSubmit),
			uintptr(minComplete),
			uintptr(flags),
			0, 0,
		)
		if errno == syscall.EINTR {
			continue
		}
		if errno != 0 {
			return 0, fmt.Errorf("io_uring_enter: %w", errno)
		}
		return uint32(n), nil //nolint:gosec // G115: bounded by toSubmit
	}
}

// reap hands every available CQE to fn and advances the CQ head.
func (r *ring) reap(fn func(userData uint64, res int32)) {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	for head != tail {
		cqe := (*ioUringCQE)(unsafe.Add(r.cqes, uintptr(head&*r.cqMask)*cqeSize))
		fn(cqe.userData, cqe.res)
		head++
	}
	atomic.StoreUint32(r.cqHead, head)
}

// kernelSupportsIOURing checks if the kernel version is >= 5.6.
func kernelSupportsIOURing() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}

	release := unix.ByteSliceToString(uname.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}

	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx > 0 {
		minorStr = minorStr[:idx]
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return false
	}

	return major > 5 || (major == 5 && minor >= 6)
}

// KernelSupportsIOURing is exported for testing.
func KernelSupportsIOURing() bool {
	return kernelSupportsIOURing()
}

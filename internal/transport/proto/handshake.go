package proto

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// HandshakeTimeout bounds the whole handshake when the connection
	// supports deadlines.
	HandshakeTimeout = 5 * time.Second

	// HandshakeRetryDelay is slept once before retrying a failed or partial
	// handshake read or write.
	HandshakeRetryDelay = 100 * time.Millisecond
)

var processStart = time.Now()

// Mix maps a 64-bit value to 32 bits. It is deterministic across processes
// and hosts so both peers compute the same answer.
func Mix(v uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h := xxhash.Sum64(b[:])
	return uint32(h ^ h>>32) //nolint:gosec // G115: intentional fold to 32 bits
}

// ProcessSeed derives a handshake seed from the pid and process start time.
//
//nolint:gosec // G115: bit mixing, overflow is intended
func ProcessSeed() uint64 {
	return uint64(os.Getpid())<<32 ^ uint64(processStart.UnixNano())
}

// ServerHandshake sends Mix(seed) to the client and expects
// Mix(Mix(seed)) back.
func ServerHandshake(conn io.ReadWriter, seed uint64, timeout time.Duration) error {
	b := handshakeBudget{timeout: timeout}
	defer b.arm(conn)()

	h := Mix(seed)
	expect := Mix(uint64(h))

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], h)
	if err := b.move(conn.Write, buf[:], conn); err != nil {
		return fmt.Errorf("handshake send: %w", err)
	}
	if err := b.move(conn.Read, buf[:], conn); err != nil {
		return fmt.Errorf("handshake receive: %w", err)
	}
	if got := binary.BigEndian.Uint32(buf[:]); got != expect {
		return fmt.Errorf("%w: got %08x, want %08x", ErrHandshakeMismatch, got, expect)
	}
	return nil
}

// ClientHandshake reads the server's challenge and answers with its mix.
func ClientHandshake(conn io.ReadWriter, timeout time.Duration) error {
	return clientHandshake(conn, handshakeBudget{timeout: timeout})
}

// ClientHandshakeUntil is ClientHandshake with every read, write and retry
// delay also bounded by until. A zero until adds no bound.
func ClientHandshakeUntil(conn io.ReadWriter, timeout time.Duration, until time.Time) error {
	return clientHandshake(conn, handshakeBudget{timeout: timeout, until: until})
}

func clientHandshake(conn io.ReadWriter, b handshakeBudget) error {
	defer b.arm(conn)()

	var buf [4]byte
	if err := b.move(conn.Read, buf[:], conn); err != nil {
		return fmt.Errorf("handshake receive: %w", err)
	}
	h := binary.BigEndian.Uint32(buf[:])
	binary.BigEndian.PutUint32(buf[:], Mix(uint64(h)))
	if err := b.move(conn.Write, buf[:], conn); err != nil {
		return fmt.Errorf("handshake send: %w", err)
	}
	return nil
}

// handshakeBudget bounds each handshake step by timeout and, when until is
// set, by an absolute deadline.
type handshakeBudget struct {
	timeout time.Duration
	until   time.Time
}

// move transfers all of buf with op. On a failure or a zero-progress call it
// sleeps HandshakeRetryDelay and tries the remainder once more, unless the
// delay would run past until.
func (b handshakeBudget) move(op func([]byte) (int, error), buf []byte, conn any) error {
	done, err := fullIO(op, buf)
	if err == nil {
		return nil
	}
	if !b.until.IsZero() && time.Until(b.until) <= HandshakeRetryDelay {
		return err
	}
	time.Sleep(HandshakeRetryDelay)
	b.arm(conn)
	if _, err := fullIO(op, buf[done:]); err != nil {
		return err
	}
	return nil
}

func fullIO(op func([]byte) (int, error), buf []byte) (int, error) {
	done := 0
	for done < len(buf) {
		n, err := op(buf[done:])
		done += n
		if err != nil {
			return done, err
		}
		if n == 0 {
			return done, io.ErrNoProgress
		}
	}
	return done, nil
}

// arm sets the earlier of now+timeout and until as conn's deadline, if conn
// supports one, and returns a function that clears it.
func (b handshakeBudget) arm(conn any) func() {
	dc, ok := conn.(interface{ SetDeadline(time.Time) error })
	if !ok || (b.timeout <= 0 && b.until.IsZero()) {
		return func() {}
	}
	deadline := b.until
	if b.timeout > 0 {
		if d := time.Now().Add(b.timeout); deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}
	_ = dc.SetDeadline(deadline) //nolint:errcheck // best-effort on closed conns
	return func() {
		_ = dc.SetDeadline(time.Time{}) //nolint:errcheck // best-effort on closed conns
	}
}


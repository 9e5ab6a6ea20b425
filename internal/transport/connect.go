package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/bamsammich/ferry/internal/transport/proto"
)

// Abort bounds a Poll connect loop. Exactly one field is set.
type Abort struct {
	Attempts int
	Timeout  time.Duration
}

// ConnectMode selects how Establish reacts to connect and handshake
// failures.
type ConnectMode struct {
	Abort    Abort
	Interval time.Duration
	Poll     bool
}

// OneShot connects and handshakes once; any failure is returned.
func OneShot() ConnectMode { return ConnectMode{} }

// PollAttempts retries every interval and gives up after n attempts.
func PollAttempts(interval time.Duration, n int) ConnectMode {
	return ConnectMode{Poll: true, Interval: interval, Abort: Abort{Attempts: n}}
}

// PollTimeout retries every interval and gives up once d has elapsed since
// the first attempt.
func PollTimeout(interval, d time.Duration) ConnectMode {
	return ConnectMode{Poll: true, Interval: interval, Abort: Abort{Timeout: d}}
}

func (m ConnectMode) String() string {
	switch {
	case !m.Poll:
		return "oneshot"
	case m.Abort.Attempts > 0:
		return fmt.Sprintf("poll(every %s, %d attempts)", m.Interval, m.Abort.Attempts)
	default:
		return fmt.Sprintf("poll(every %s, for %s)", m.Interval, m.Abort.Timeout)
	}
}

// Validate reports whether m is usable.
func (m ConnectMode) Validate() error {
	if !m.Poll {
		return nil
	}
	if m.Interval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", m.Interval)
	}
	hasAttempts, hasTimeout := m.Abort.Attempts > 0, m.Abort.Timeout > 0
	if hasAttempts == hasTimeout {
		return errors.New("poll mode needs exactly one of attempts or timeout")
	}
	return nil
}

// ParseConnectMode builds a ConnectMode from its config spelling:
// "oneshot" (or "") ignores the rest; "poll" needs interval plus exactly
// one of attempts or timeout.
func ParseConnectMode(mode string, interval time.Duration, attempts int, timeout time.Duration) (ConnectMode, error) {
	var m ConnectMode
	switch strings.ToLower(mode) {
	case "", "oneshot", "one-shot":
		return OneShot(), nil
	case "poll":
		m = ConnectMode{Poll: true, Interval: interval, Abort: Abort{Attempts: attempts, Timeout: timeout}}
	default:
		return m, fmt.Errorf("unknown connect mode %q (want oneshot or poll)", mode)
	}
	return m, m.Validate()
}

// Reason classifies a ConnectError.
type Reason int

const (
	// Refused: a one-shot connect attempt failed.
	Refused Reason = iota
	// Fatal: the OS error is not worth retrying (bad address, DNS, EACCES).
	Fatal
	// Exhausted: the poll abort condition was reached.
	Exhausted
	// HandshakeFailed: a one-shot handshake failed.
	HandshakeFailed
	// Canceled: the context ended first.
	Canceled
)

func (r Reason) String() string {
	switch r {
	case Refused:
		return "refused"
	case Fatal:
		return "fatal"
	case Exhausted:
		return "exhausted"
	case HandshakeFailed:
		return "handshake failed"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// ConnectError is returned by Establish. Err is the last underlying
// failure.
type ConnectError struct {
	Err      error
	Addr     string
	Attempts int
	Reason   Reason
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s after %d attempt(s): %v", e.Addr, e.Reason, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ContextDialer is satisfied by *net.Dialer.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// EstablishOptions tunes Establish. The zero value is usable.
type EstablishOptions struct {
	// Dialer defaults to a net.Dialer with keepalive.
	Dialer ContextDialer
	// HandshakeTimeout defaults to proto.HandshakeTimeout.
	HandshakeTimeout time.Duration
	// TrafficClass is applied to the socket when non-zero.
	TrafficClass int
}

// transientErrnos are connect failures that a peer still starting up can
// produce.
var transientErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.ENOTCONN,
	syscall.EPIPE,
	syscall.EINTR,
	syscall.ENOENT,
}

// IsTransient reports whether a connect failure may succeed on retry.
func IsTransient(err error) bool {
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Establish connects to addr and runs the client handshake, retrying as mode
// allows. The returned connection is ready for framed commands.
//
//nolint:gocognit,revive // cognitive-complexity: connect/handshake state machine
func Establish(ctx context.Context, addr string, mode ConnectMode, opts EstablishOptions) (net.Conn, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{KeepAlive: keepAlivePeriod}
	}
	hsTimeout := opts.HandshakeTimeout
	if hsTimeout == 0 {
		hsTimeout = proto.HandshakeTimeout
	}

	log := slog.With("remote", addr, "mode", mode.String())
	fail := func(reason Reason, attempts int, err error) error {
		return &ConnectError{Addr: addr, Attempts: attempts, Reason: reason, Err: err}
	}

	var deadline time.Time
	if mode.Poll && mode.Abort.Timeout > 0 {
		deadline = time.Now().Add(mode.Abort.Timeout)
	}

	for attempt := 1; ; attempt++ {
		conn, err := dialOnce(ctx, dialer, addr, deadline)
		switch {
		case err == nil:
			if err = handshake(conn, hsTimeout, deadline, opts.TrafficClass); err == nil {
				log.Debug("connected", "attempts", attempt)
				return conn, nil
			}
			conn.Close()
			if !mode.Poll {
				return nil, fail(HandshakeFailed, attempt, err)
			}
			log.Debug("handshake failed, retrying", "attempt", attempt, "error", err)
		case ctx.Err() != nil:
			return nil, fail(Canceled, attempt, ctx.Err())
		case !mode.Poll:
			return nil, fail(Refused, attempt, err)
		case !IsTransient(err):
			return nil, fail(Fatal, attempt, err)
		default:
			log.Debug("connect failed, retrying", "attempt", attempt, "error", err)
		}

		// Abort check, once per iteration.
		if mode.Abort.Attempts > 0 && attempt >= mode.Abort.Attempts {
			return nil, fail(Exhausted, attempt, err)
		}
		wait := mode.Interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, fail(Exhausted, attempt, err)
			}
			wait = min(wait, remaining)
		}

		select {
		case <-ctx.Done():
			return nil, fail(Canceled, attempt, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func dialOnce(ctx context.Context, dialer ContextDialer, addr string, deadline time.Time) (net.Conn, error) {
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func handshake(conn net.Conn, timeout time.Duration, deadline time.Time, trafficClass int) error {
	if err := SetTCPOptions(conn); err != nil {
		slog.Debug("set tcp options", "error", err)
	}
	if trafficClass != 0 {
		if err := SetTrafficClass(conn, trafficClass); err != nil {
			slog.Debug("set traffic class", "class", trafficClass, "error", err)
		}
	}
	return proto.ClientHandshakeUntil(conn, timeout, deadline)
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transport/proto"
)

// ErrSessionSpent is returned for commands on a session whose write side
// was closed by SendFile.
var ErrSessionSpent = errors.New("session write side already closed")

// ClientOptions configures Dial.
type ClientOptions struct {
	Establish EstablishOptions
	Mode      ConnectMode
}

// Session is one handshaken connection to a ferry daemon. A session carries
// any number of commands followed by at most one SendFile, which consumes
// its write side. Not safe for concurrent use.
type Session struct {
	conn   net.Conn
	frames *proto.FrameReader
	log    *slog.Logger
	addr   string
	spent  bool
}

// Dial establishes a session with the daemon at addr.
func Dial(ctx context.Context, addr string, opts ClientOptions) (*Session, error) {
	conn, err := Establish(ctx, addr, opts.Mode, opts.Establish)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, addr), nil
}

// NewSession wraps an already handshaken connection.
func NewSession(conn net.Conn, addr string) *Session {
	return &Session{
		conn:   conn,
		frames: proto.NewFrameReader(conn, 0),
		log:    slog.With("remote", addr, "session", uuid.NewString()),
		addr:   addr,
	}
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Do sends cmd and returns the daemon's Result. A failed Result is not an
// error here; use Result.Err.
func (s *Session) Do(cmd proto.Command) (proto.Result, error) {
	if s.spent {
		return proto.Result{}, ErrSessionSpent
	}
	if err := proto.WriteCommand(s.conn, cmd); err != nil {
		return proto.Result{}, err
	}
	r, err := s.frames.ReadResult()
	if err != nil {
		return proto.Result{}, fmt.Errorf("%s: %w", cmd.Tag(), err)
	}
	return r, nil
}

func (s *Session) exec(cmd proto.Command) error {
	r, err := s.Do(cmd)
	if err != nil {
		return err
	}
	return r.Err()
}

// FreePort asks the daemon for an unused port in [start, end]; nil bounds
// use the daemon's defaults.
func (s *Session) FreePort(start, end *uint16) (uint16, error) {
	if err := s.exec(proto.GetFreePort{Start: start, End: end}); err != nil {
		return 0, err
	}
	return s.frames.ReadPort()
}

// Prealloc reserves size bytes for name on the daemon.
func (s *Session) Prealloc(name string, size uint64) error {
	return s.exec(proto.Prealloc{Size: size, Filename: name})
}

// CheckDestination asks whether path can receive a transfer of mode.
func (s *Session) CheckDestination(mode proto.DestinationMode, path string) error {
	return s.exec(proto.IsDestinationValid{Mode: mode, Path: path})
}

// EndTransfer tells the daemon the sender is done.
func (s *Session) EndTransfer() error {
	return s.exec(proto.EndOfTransfer{})
}

// SendOptions tunes SendFile.
type SendOptions struct {
	// Limiter throttles socket writes when non-nil.
	Limiter *rate.Limiter
	// Stats receives byte and file counts when non-nil.
	Stats *stats.Collector
	// FileCount is the number of files in the whole transfer; the daemon
	// creates parent directories when it is above one. Zero means one.
	FileCount   uint32
	BufferSize  int
	Depth       int
	Strategy    engine.Strategy
	Backend     platform.Backend
	Compression proto.CompressionKind
}

// SendFile streams src to the daemon as name and returns the number of
// source bytes sent. Uncompressed regular files go through the batched
// engine; everything else is copied incrementally through the codec. The
// session's write side is closed afterwards.
func (s *Session) SendFile(ctx context.Context, src *platform.Source, name string, opts SendOptions) (int64, error) {
	if opts.FileCount == 0 {
		opts.FileCount = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = engine.DefaultBufferSize
	}
	if opts.Depth <= 0 {
		opts.Depth = 1
	}

	err := s.exec(proto.ReceiveData{
		FileCount:   opts.FileCount,
		Filename:    name,
		Compression: opts.Compression,
	})
	if err != nil {
		return 0, fmt.Errorf("receive %s: %w", name, err)
	}

	var w io.Writer = s.conn
	w = engine.NewLimitedWriter(ctx, w, opts.Limiter)
	if opts.Stats != nil {
		w = countingWriter{w: w, add: opts.Stats.AddBytesTransferred}
	}

	digest := engine.NewDigest()
	n, sendErr := s.send(src, w, digest, opts)
	s.spent = true
	if sendErr != nil {
		return n, fmt.Errorf("send %s: %w", name, sendErr)
	}
	if err := closeWrite(s.conn); err != nil {
		return n, fmt.Errorf("send %s: close write: %w", name, err)
	}

	r, err := s.frames.ReadResult()
	if err != nil {
		return n, fmt.Errorf("send %s: final result: %w", name, err)
	}
	if err := r.Err(); err != nil {
		return n, fmt.Errorf("send %s: %w", name, err)
	}

	if opts.Stats != nil {
		opts.Stats.AddFilesSent(1)
	}
	s.log.Info("sent", "file", name, "bytes", n, "source", src.Kind(),
		"compression", opts.Compression, "blake3", digest.Sum())
	return n, nil
}

func (s *Session) send(src *platform.Source, w io.Writer, digest *engine.Digest, opts SendOptions) (int64, error) {
	if f := src.File(); f != nil && opts.Compression == proto.CompressionNone {
		totals, err := engine.Copy(engine.Job{
			Src:        f,
			Dst:        digest.Tee(w),
			BufferSize: opts.BufferSize,
			Depth:      opts.Depth,
			Strategy:   opts.Strategy,
			Backend:    opts.Backend,
		})
		return totals.Bytes(), err
	}

	enc, err := proto.WrapEncoder(opts.Compression, w)
	if err != nil {
		return 0, err
	}
	n, err := engine.CopyIncremental(enc, io.TeeReader(src.Reader(), digest), opts.BufferSize)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	return n, err
}

type countingWriter struct {
	w   io.Writer
	add func(int64)
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.add(int64(n))
	return n, err
}

// closeWrite half-closes conn so the daemon sees end of data while the
// read side stays open for the final Result.
func closeWrite(conn net.Conn) error {
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return fmt.Errorf("connection type %T cannot half-close", conn)
}

package proto

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/platform"
)

// Handler runs the command loop for one client connection.
type Handler struct {
	conn   net.Conn
	frames *FrameReader
	d      *Daemon
	log    *slog.Logger
}

func newHandler(d *Daemon, conn net.Conn, log *slog.Logger) *Handler {
	return &Handler{
		conn:   conn,
		frames: NewFrameReader(conn, MaxCommandSize),
		d:      d,
		log:    log,
	}
}

// Serve reads commands until the client closes its side or a protocol
// error occurs. Failures of a single command are reported to the client
// and do not end the loop.
func (h *Handler) Serve() error {
	for {
		cmd, err := h.frames.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		h.d.cfg.Stats.AddCommands(1)
		h.log.Debug("command", "tag", cmd.Tag())

		if err := h.dispatch(cmd); err != nil {
			return err
		}
	}
}

// dispatch handles one command. The returned error is a connection-level
// failure; command failures are sent to the client as a Result.
func (h *Handler) dispatch(cmd Command) error {
	switch c := cmd.(type) {
	case GetFreePort:
		return h.handleGetFreePort(c)
	case Prealloc:
		return h.reply(h.handlePrealloc(c))
	case IsDestinationValid:
		return h.reply(h.handleIsDestinationValid(c))
	case ReceiveData:
		return h.handleReceiveData(c)
	case EndOfTransfer:
		if err := h.reply(nil); err != nil {
			return err
		}
		if h.d.cfg.ExitOnEnd {
			h.log.Info("end of transfer, shutting down")
			h.d.Stop()
		}
		return nil
	default:
		return h.reply(fmt.Errorf("unsupported command %s", cmd.Tag()))
	}
}

func (h *Handler) reply(err error) error {
	r := Ok()
	if err != nil {
		h.log.Warn("command failed", "error", err)
		r = Failure(err)
	}
	return WriteResult(h.conn, r)
}

func (h *Handler) handleGetFreePort(c GetFreePort) error {
	port, err := h.d.cfg.Ports.Allocate(c.Start, c.End)
	if err != nil {
		return h.reply(err)
	}
	if err := h.reply(nil); err != nil {
		return err
	}
	h.log.Debug("allocated port", "port", port)
	return WritePort(h.conn, port)
}

func (h *Handler) handlePrealloc(c Prealloc) error {
	path, err := ResolvePath(h.d.cfg.Root, c.Filename)
	if err != nil {
		return err
	}
	if c.Size > uint64(1<<63-1) {
		return fmt.Errorf("prealloc %s: size %d out of range", c.Filename, c.Size)
	}
	return platform.CreatePreallocated(path, int64(c.Size), 0o644) //nolint:gosec // G115: range checked above
}

func (h *Handler) handleIsDestinationValid(c IsDestinationValid) error {
	path, err := ResolvePath(h.d.cfg.Root, c.Path)
	if err != nil {
		return err
	}
	return ValidateDestination(c.Mode, path)
}

// handleReceiveData acknowledges the command, then treats everything the
// client writes until it half-closes as the file body.
func (h *Handler) handleReceiveData(c ReceiveData) error {
	f, path, err := h.openDestination(c)
	if err != nil {
		h.d.cfg.Stats.AddFilesFailed(1)
		return h.reply(err)
	}
	engine.RegisterPartial(path)
	defer engine.DeregisterPartial(path)

	if err := h.reply(nil); err != nil {
		f.Close()
		return err
	}

	n, digest, recvErr := h.receive(f, c.Compression)
	if recvErr == nil {
		recvErr = f.Truncate(n)
	}
	if cerr := f.Close(); recvErr == nil {
		recvErr = cerr
	}

	log := h.log.With("file", c.Filename, "bytes", n)
	if recvErr != nil {
		h.d.cfg.Stats.AddFilesFailed(1)
		log.Warn("receive failed", "error", recvErr)
		return WriteResult(h.conn, Failure(recvErr))
	}
	h.d.cfg.Stats.AddFilesReceived(1)
	log.Info("received", "compression", c.Compression, "blake3", digest)
	if j := h.d.cfg.Journal; j != nil {
		err := j.Record(engine.JournalEntry{
			Path:   path,
			Size:   n,
			Hash:   digest,
			Remote: h.conn.RemoteAddr().String(),
		})
		if err != nil {
			log.Warn("journal record failed", "error", err)
		}
	}
	return WriteResult(h.conn, Ok())
}

func (h *Handler) openDestination(c ReceiveData) (*os.File, string, error) {
	path, err := ResolvePath(h.d.cfg.Root, c.Filename)
	if err != nil {
		return nil, "", err
	}
	if !c.Compression.valid() {
		return nil, "", fmt.Errorf("unknown compression kind %d", c.Compression)
	}
	if c.FileCount > 1 {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, "", fmt.Errorf("create parent of %s: %w", c.Filename, err)
		}
	}
	// No O_TRUNC: a preceding Prealloc may have reserved the blocks.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func (h *Handler) receive(f *os.File, kind CompressionKind) (int64, string, error) {
	dec, err := WrapDecoder(kind, h.conn)
	if err != nil {
		return 0, "", err
	}
	defer dec.Close()

	digest := engine.NewDigest()
	dst := io.MultiWriter(f, digest, statsWriter{h.d.cfg.Stats.AddBytesTransferred})
	n, err := engine.CopyIncremental(dst, dec, h.d.cfg.BufferSize)
	if err != nil {
		return n, "", fmt.Errorf("receive: %w", err)
	}
	return n, digest.Sum(), nil
}

type statsWriter struct{ add func(int64) }

func (w statsWriter) Write(p []byte) (int, error) {
	w.add(int64(len(p)))
	return len(p), nil
}


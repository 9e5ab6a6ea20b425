package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxCommandSize is the largest command payload a 1-byte header can
	// describe. Commands are expected to stay at or under 127 bytes.
	MaxCommandSize = 255

	// MaxResultSize is the largest result payload a 2-byte header can
	// describe.
	MaxResultSize = 65535

	commandHeaderSize = 1
	resultHeaderSize  = 2
)

// EncodeCommand returns the framed encoding of cmd:
// [1-byte length][msgpack payload]. Payloads longer than MaxCommandSize are
// rejected, never truncated.
func EncodeCommand(cmd Command) ([]byte, error) {
	buf := make([]byte, commandHeaderSize, 64)
	buf, err := MarshalCommand(buf, cmd)
	if err != nil {
		return nil, err
	}
	n := len(buf) - commandHeaderSize
	if n > MaxCommandSize {
		return nil, fmt.Errorf("encode %s: %d bytes: %w", cmd.Tag(), n, ErrFrameTooLarge)
	}
	buf[0] = byte(n)
	return buf, nil
}

// WriteCommand frames cmd and writes it to w in a single Write call.
func WriteCommand(w io.Writer, cmd Command) error {
	buf, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// EncodeResult returns the framed encoding of r:
// [2-byte big-endian length][msgpack payload].
//
//nolint:gosec // G115: length bounded by MaxResultSize check
func EncodeResult(r Result) ([]byte, error) {
	buf := make([]byte, resultHeaderSize, resultHeaderSize+len(r.Message)+3)
	buf = MarshalResult(buf, r)
	n := len(buf) - resultHeaderSize
	if n > MaxResultSize {
		return nil, fmt.Errorf("encode result: %d bytes: %w", n, ErrFrameTooLarge)
	}
	binary.BigEndian.PutUint16(buf, uint16(n))
	return buf, nil
}

// WriteResult frames r and writes it to w in a single Write call.
func WriteResult(w io.Writer, r Result) error {
	buf, err := EncodeResult(r)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// DecodeCommand decodes a command payload (without its header). Trailing
// bytes are an error.
func DecodeCommand(body []byte) (Command, error) {
	cmd, rest, err := UnmarshalCommand(body)
	if err != nil {
		return nil, protocolError("decode command", errors.Join(ErrMalformed, err))
	}
	if len(rest) != 0 {
		return nil, protocolError("decode command",
			fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest)))
	}
	return cmd, nil
}

// DecodeResult decodes a result payload (without its header). Trailing
// bytes are an error.
func DecodeResult(body []byte) (Result, error) {
	r, rest, err := UnmarshalResult(body)
	if err != nil {
		return Result{}, protocolError("decode result", errors.Join(ErrMalformed, err))
	}
	if len(rest) != 0 {
		return Result{}, protocolError("decode result",
			fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest)))
	}
	return r, nil
}

// FrameReader reads frames from a stream into a fixed scratch buffer. A
// frame whose declared length exceeds the buffer is a protocol error.
// Not safe for concurrent use.
type FrameReader struct {
	r       io.Reader
	scratch []byte
}

// NewFrameReader returns a FrameReader with a scratch buffer of size bytes.
// size <= 0 selects MaxResultSize, enough for any frame.
func NewFrameReader(r io.Reader, size int) *FrameReader {
	if size <= 0 {
		size = MaxResultSize
	}
	return &FrameReader{r: r, scratch: make([]byte, size)}
}

// ReadCommand reads one command frame. A clean EOF before the header is
// returned as io.EOF.
func (fr *FrameReader) ReadCommand() (Command, error) {
	var hdr [commandHeaderSize]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return nil, err
	}
	body, err := fr.body("read command", int(hdr[0]))
	if err != nil {
		return nil, err
	}
	return DecodeCommand(body)
}

// ReadResult reads one result frame.
func (fr *FrameReader) ReadResult() (Result, error) {
	var hdr [resultHeaderSize]byte
	if n, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		if n > 0 {
			return Result{}, truncated("read result", err)
		}
		return Result{}, err
	}
	body, err := fr.body("read result", int(binary.BigEndian.Uint16(hdr[:])))
	if err != nil {
		return Result{}, err
	}
	return DecodeResult(body)
}

// ReadPort reads the raw 2-byte big-endian port that follows a successful
// GetFreePort result.
func (fr *FrameReader) ReadPort() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(fr.r, b[:]); err != nil {
		return 0, fmt.Errorf("read port: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (fr *FrameReader) body(op string, n int) ([]byte, error) {
	if n > len(fr.scratch) {
		return nil, protocolError(op,
			fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, len(fr.scratch)))
	}
	body := fr.scratch[:n]
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, truncated(op, err)
	}
	return body, nil
}

// truncated maps a stream that ends inside a frame to a ProtocolError.
// Other read failures pass through as I/O errors.
func truncated(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return protocolError(op, errors.Join(ErrMalformed, io.ErrUnexpectedEOF))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WritePort writes a port as 2 raw big-endian bytes.
func WritePort(w io.Writer, port uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], port)
	if _, err := w.Write(b[:]); err != nil {
		return fmt.Errorf("write port: %w", err)
	}
	return nil
}

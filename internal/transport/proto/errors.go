package proto

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTooLarge is returned when a frame does not fit its length
	// header on encode, or the receiver's scratch buffer on decode.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrMalformed is returned when a frame payload cannot be decoded.
	ErrMalformed = errors.New("malformed frame")

	// ErrHandshakeMismatch is returned by the server side of the handshake
	// when the peer answers with the wrong value.
	ErrHandshakeMismatch = errors.New("handshake mismatch")
)

// ProtocolError reports a framing or decoding failure. The connection it
// occurred on is no longer usable.
type ProtocolError struct {
	Op  string // "read command", "decode result", ...
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(op string, err error) error {
	return &ProtocolError{Op: op, Err: err}
}

// RemoteError is a failure reported by the peer in a Result frame.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

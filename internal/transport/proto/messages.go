package proto

import (
	"fmt"
	"unicode/utf8"

	"github.com/tinylib/msgp/msgp"
)

// CommandTag identifies a Command variant on the wire.
type CommandTag uint8

const (
	TagGetFreePort        CommandTag = 0
	TagPrealloc           CommandTag = 1
	TagReceiveData        CommandTag = 2
	TagEndOfTransfer      CommandTag = 3
	TagIsDestinationValid CommandTag = 4
)

var tagNames = [...]string{
	TagGetFreePort:        "GetFreePort",
	TagPrealloc:           "Prealloc",
	TagReceiveData:        "ReceiveData",
	TagEndOfTransfer:      "EndOfTransfer",
	TagIsDestinationValid: "IsDestinationValid",
}

func (t CommandTag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("CommandTag(%d)", t)
}

// Command is a client request. The set of variants is closed; each one is a
// struct in this package.
type Command interface {
	Tag() CommandTag
}

// GetFreePort asks the server for an unused TCP port, optionally within
// [Start, End].
type GetFreePort struct {
	Start *uint16
	End   *uint16
}

// Prealloc asks the server to create Filename with Size bytes reserved.
type Prealloc struct {
	Filename string
	Size     uint64
}

// ReceiveData announces that the rest of the connection's client-to-server
// stream is the contents of Filename, encoded with Compression.
type ReceiveData struct {
	Filename    string
	FileCount   uint32
	Compression CompressionKind
}

// EndOfTransfer tells the server the sender has nothing more to send.
type EndOfTransfer struct{}

// IsDestinationValid asks the server whether Path can receive a transfer
// of the given shape.
type IsDestinationValid struct {
	Path string
	Mode DestinationMode
}

func (GetFreePort) Tag() CommandTag        { return TagGetFreePort }
func (Prealloc) Tag() CommandTag           { return TagPrealloc }
func (ReceiveData) Tag() CommandTag        { return TagReceiveData }
func (EndOfTransfer) Tag() CommandTag      { return TagEndOfTransfer }
func (IsDestinationValid) Tag() CommandTag { return TagIsDestinationValid }

// DestinationMode describes how a destination path will be used.
type DestinationMode uint8

const (
	SingleFile DestinationMode = iota
	MultipleFiles
	RecursiveDirectory
)

func (m DestinationMode) String() string {
	switch m {
	case SingleFile:
		return "single-file"
	case MultipleFiles:
		return "multiple-files"
	case RecursiveDirectory:
		return "recursive-directory"
	default:
		return fmt.Sprintf("DestinationMode(%d)", m)
	}
}

// commandArity is the msgpack array length of each variant, tag included.
var commandArity = map[CommandTag]uint32{
	TagGetFreePort:        3,
	TagPrealloc:           3,
	TagReceiveData:        4,
	TagEndOfTransfer:      1,
	TagIsDestinationValid: 3,
}

// MarshalCommand appends the msgpack encoding of cmd to b. The encoding is
// an array whose first element is the tag and the rest the variant's
// fields; absent options are nil.
func MarshalCommand(b []byte, cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case GetFreePort:
		b = msgp.AppendArrayHeader(b, 3)
		b = msgp.AppendUint8(b, uint8(TagGetFreePort))
		b = appendOptionalPort(b, c.Start)
		b = appendOptionalPort(b, c.End)
	case Prealloc:
		b = msgp.AppendArrayHeader(b, 3)
		b = msgp.AppendUint8(b, uint8(TagPrealloc))
		b = msgp.AppendUint64(b, c.Size)
		b = msgp.AppendString(b, c.Filename)
	case ReceiveData:
		b = msgp.AppendArrayHeader(b, 4)
		b = msgp.AppendUint8(b, uint8(TagReceiveData))
		b = msgp.AppendUint32(b, c.FileCount)
		b = msgp.AppendString(b, c.Filename)
		if c.Compression == CompressionNone {
			b = msgp.AppendNil(b)
		} else {
			b = msgp.AppendUint8(b, uint8(c.Compression))
		}
	case EndOfTransfer:
		b = msgp.AppendArrayHeader(b, 1)
		b = msgp.AppendUint8(b, uint8(TagEndOfTransfer))
	case IsDestinationValid:
		b = msgp.AppendArrayHeader(b, 3)
		b = msgp.AppendUint8(b, uint8(TagIsDestinationValid))
		b = msgp.AppendUint8(b, uint8(c.Mode))
		b = msgp.AppendString(b, c.Path)
	default:
		return b, fmt.Errorf("marshal command: unsupported type %T", cmd)
	}
	return b, nil
}

func appendOptionalPort(b []byte, p *uint16) []byte {
	if p == nil {
		return msgp.AppendNil(b)
	}
	return msgp.AppendUint16(b, *p)
}

// UnmarshalCommand decodes one Command from b and returns the remaining
// bytes.
//
//nolint:gocyclo,revive // cyclomatic: one case per command variant
func UnmarshalCommand(b []byte) (Command, []byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if sz == 0 {
		return nil, b, fmt.Errorf("empty command array")
	}
	tag, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return nil, b, err
	}

	n, ok := commandArity[CommandTag(tag)]
	if !ok {
		return nil, b, fmt.Errorf("unknown command tag %d", tag)
	}
	if sz != n {
		return nil, b, fmt.Errorf("%s: expected %d fields, got %d", CommandTag(tag), n, sz)
	}

	switch CommandTag(tag) {
	case TagGetFreePort:
		var c GetFreePort
		if c.Start, b, err = readOptionalPort(b); err != nil {
			return nil, b, err
		}
		if c.End, b, err = readOptionalPort(b); err != nil {
			return nil, b, err
		}
		return c, b, nil

	case TagPrealloc:
		var c Prealloc
		if c.Size, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return nil, b, err
		}
		if c.Filename, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		return c, b, nil

	case TagReceiveData:
		var c ReceiveData
		if c.FileCount, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return nil, b, err
		}
		if c.Filename, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		if msgp.IsNil(b) {
			if b, err = msgp.ReadNilBytes(b); err != nil {
				return nil, b, err
			}
			return c, b, nil
		}
		var kind uint8
		if kind, b, err = msgp.ReadUint8Bytes(b); err != nil {
			return nil, b, err
		}
		c.Compression = CompressionKind(kind)
		if !c.Compression.valid() || c.Compression == CompressionNone {
			return nil, b, fmt.Errorf("unknown compression kind %d", kind)
		}
		return c, b, nil

	case TagEndOfTransfer:
		return EndOfTransfer{}, b, nil

	default: // TagIsDestinationValid
		var c IsDestinationValid
		var mode uint8
		if mode, b, err = msgp.ReadUint8Bytes(b); err != nil {
			return nil, b, err
		}
		c.Mode = DestinationMode(mode)
		if c.Mode > RecursiveDirectory {
			return nil, b, fmt.Errorf("unknown destination mode %d", mode)
		}
		if c.Path, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		return c, b, nil
	}
}

func readOptionalPort(b []byte) (*uint16, []byte, error) {
	if msgp.IsNil(b) {
		b, err := msgp.ReadNilBytes(b)
		return nil, b, err
	}
	p, b, err := msgp.ReadUint16Bytes(b)
	if err != nil {
		return nil, b, err
	}
	return &p, b, nil
}

// Result is the server's answer to a Command: Ok (the zero value) or an
// error message.
type Result struct {
	Message string
	Failed  bool
}

// MaxResultMessage is the longest error message that fits a Result frame
// (payload limit minus the msgpack str16 header).
const MaxResultMessage = MaxResultSize - 3

// Ok returns a successful Result.
func Ok() Result { return Result{} }

// Failure returns a failed Result carrying err's message, truncated to fit
// a frame.
func Failure(err error) Result {
	msg := err.Error()
	if len(msg) > MaxResultMessage {
		cut := MaxResultMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return Result{Failed: true, Message: msg}
}

// Err converts a failed Result into a *RemoteError.
func (r Result) Err() error {
	if !r.Failed {
		return nil
	}
	return &RemoteError{Message: r.Message}
}

// MarshalResult appends the msgpack encoding of r to b: nil for Ok, a
// string for an error.
func MarshalResult(b []byte, r Result) []byte {
	if !r.Failed {
		return msgp.AppendNil(b)
	}
	return msgp.AppendString(b, r.Message)
}

// UnmarshalResult decodes one Result from b and returns the remaining bytes.
func UnmarshalResult(b []byte) (Result, []byte, error) {
	if msgp.IsNil(b) {
		b, err := msgp.ReadNilBytes(b)
		return Result{}, b, err
	}
	msg, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return Result{}, b, err
	}
	return Result{Failed: true, Message: msg}, b, nil
}

package proto_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/transport/proto"
)

func u16(v uint16) *uint16 { return &v }

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  proto.Command
	}{
		{"free port no bounds", proto.GetFreePort{}},
		{"free port start only", proto.GetFreePort{Start: u16(50000)}},
		{"free port both bounds", proto.GetFreePort{Start: u16(1), End: u16(65535)}},
		{"prealloc", proto.Prealloc{Size: 1 << 40, Filename: "a/b.bin"}},
		{"prealloc empty", proto.Prealloc{}},
		{"receive plain", proto.ReceiveData{FileCount: 1, Filename: "x"}},
		{"receive zstd", proto.ReceiveData{FileCount: 3, Filename: "dir/x", Compression: proto.CompressionZstd}},
		{"receive snappy", proto.ReceiveData{Filename: "s", Compression: proto.CompressionSnappy}},
		{"end of transfer", proto.EndOfTransfer{}},
		{"destination single", proto.IsDestinationValid{Mode: proto.SingleFile, Path: "/tmp/out"}},
		{"destination recursive", proto.IsDestinationValid{Mode: proto.RecursiveDirectory, Path: "tree"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, proto.WriteCommand(&buf, tt.cmd))

			raw := buf.Bytes()
			assert.Equal(t, len(raw)-1, int(raw[0]), "header holds payload length")
			assert.LessOrEqual(t, len(raw)-1, 127)

			got, err := proto.NewFrameReader(&buf, 0).ReadCommand()
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, got)
			assert.Equal(t, tt.cmd.Tag(), got.Tag())
		})
	}
}

func TestEncodeCommandTooLarge(t *testing.T) {
	t.Parallel()

	_, err := proto.EncodeCommand(proto.Prealloc{Filename: strings.Repeat("n", 300)})
	require.ErrorIs(t, err, proto.ErrFrameTooLarge)

	b, err := proto.EncodeCommand(proto.Prealloc{Filename: strings.Repeat("n", 240)})
	require.NoError(t, err)
	assert.Equal(t, len(b)-1, int(b[0]))
	assert.Greater(t, len(b)-1, 127, "over the expected size but under the hard limit")
}

func TestResultRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result proto.Result
	}{
		{"ok", proto.Ok()},
		{"error", proto.Failure(errors.New("disk full"))},
		{"empty message", proto.Result{Failed: true}},
		{"long message", proto.Result{Failed: true, Message: strings.Repeat("e", 70000)[:proto.MaxResultMessage]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, proto.WriteResult(&buf, tt.result))

			raw := buf.Bytes()
			assert.Equal(t, len(raw)-2, int(binary.BigEndian.Uint16(raw)))

			got, err := proto.NewFrameReader(&buf, 0).ReadResult()
			require.NoError(t, err)
			assert.Equal(t, tt.result, got)
		})
	}
}

func TestOkResultIsNil(t *testing.T) {
	t.Parallel()

	b, err := proto.EncodeResult(proto.Ok())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0xc0}, b)
}

func TestFailureTruncates(t *testing.T) {
	t.Parallel()

	r := proto.Failure(errors.New(strings.Repeat("x", 100000)))
	assert.Len(t, r.Message, proto.MaxResultMessage)

	_, err := proto.EncodeResult(r)
	require.NoError(t, err)

	// "é" is two bytes; the leading "a" puts the limit mid-rune.
	r = proto.Failure(errors.New("a" + strings.Repeat("é", proto.MaxResultMessage)))
	assert.True(t, utf8.ValidString(r.Message))
	assert.Len(t, r.Message, proto.MaxResultMessage-1)

	_, err = proto.EncodeResult(proto.Result{Failed: true, Message: strings.Repeat("x", 70000)})
	require.ErrorIs(t, err, proto.ErrFrameTooLarge)
}

func TestResultErr(t *testing.T) {
	t.Parallel()

	require.NoError(t, proto.Ok().Err())

	err := proto.Failure(errors.New("nope")).Err()
	var remote *proto.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "nope", remote.Message)
}

func TestFrameReaderOversize(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, proto.WriteResult(&buf, proto.Failure(errors.New(strings.Repeat("m", 200)))))

	_, err := proto.NewFrameReader(&buf, 64).ReadResult()
	var perr *proto.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, proto.ErrFrameTooLarge)
}

func TestFrameReaderMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
	}{
		{"not an array", []byte{1, 0x05}},
		{"unknown tag", []byte{2, 0x91, 0x09}},
		{"wrong arity", []byte{2, 0x91, 0x01}},
		{"trailing bytes", []byte{3, 0x91, 0x03, 0xc0}},
		{"bad compression", []byte{6, 0x94, 0x02, 0x01, 0xa1, 'x', 0x09}},
		{"bad mode", []byte{5, 0x93, 0x04, 0x07, 0xa1, 'p'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := proto.NewFrameReader(bytes.NewReader(tt.raw), 0).ReadCommand()
			var perr *proto.ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.ErrorIs(t, err, proto.ErrMalformed)
		})
	}
}

func TestDecodeResultMalformed(t *testing.T) {
	t.Parallel()

	_, err := proto.DecodeResult([]byte{0x05})
	require.ErrorIs(t, err, proto.ErrMalformed)

	_, err = proto.DecodeResult([]byte{0xc0, 0xc0})
	require.ErrorIs(t, err, proto.ErrMalformed)
}

func TestFrameReaderEOF(t *testing.T) {
	t.Parallel()

	_, err := proto.NewFrameReader(bytes.NewReader(nil), 0).ReadCommand()
	require.ErrorIs(t, err, io.EOF)

	// Header promises more than the stream holds.
	_, err = proto.NewFrameReader(bytes.NewReader([]byte{4, 0x91}), 0).ReadCommand()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	var perr *proto.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "read command", perr.Op)
}

func TestFrameReaderTruncatedFrames(t *testing.T) {
	t.Parallel()

	var cmd bytes.Buffer
	require.NoError(t, proto.WriteCommand(&cmd, proto.Prealloc{Size: 1 << 20, Filename: "big.iso"}))
	cut := cmd.Bytes()[:cmd.Len()-2]
	_, err := proto.NewFrameReader(bytes.NewReader(cut), 0).ReadCommand()
	var perr *proto.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, err, proto.ErrMalformed)

	var res bytes.Buffer
	require.NoError(t, proto.WriteResult(&res, proto.Failure(errors.New("no space left"))))
	for _, n := range []int{1, res.Len() - 1} {
		_, err = proto.NewFrameReader(bytes.NewReader(res.Bytes()[:n]), 0).ReadResult()
		require.ErrorAs(t, err, &perr, "cut at %d", n)
		assert.Equal(t, "read result", perr.Op)
	}

	_, err = proto.NewFrameReader(bytes.NewReader(nil), 0).ReadResult()
	require.ErrorIs(t, err, io.EOF)
	assert.NotErrorAs(t, err, &perr)
}

func TestFrameReaderSequence(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, proto.WriteCommand(&buf, proto.GetFreePort{}))
	require.NoError(t, proto.WriteCommand(&buf, proto.EndOfTransfer{}))
	require.NoError(t, proto.WriteResult(&buf, proto.Ok()))
	require.NoError(t, proto.WritePort(&buf, 50123))

	fr := proto.NewFrameReader(&buf, 0)
	c1, err := fr.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, proto.GetFreePort{}, c1)
	c2, err := fr.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, proto.EndOfTransfer{}, c2)
	r, err := fr.ReadResult()
	require.NoError(t, err)
	assert.False(t, r.Failed)
	port, err := fr.ReadPort()
	require.NoError(t, err)
	assert.Equal(t, uint16(50123), port)
}

func TestTagString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ReceiveData", proto.TagReceiveData.String())
	assert.Equal(t, "CommandTag(9)", proto.CommandTag(9).String())
	assert.Equal(t, "multiple-files", proto.MultipleFiles.String())
}

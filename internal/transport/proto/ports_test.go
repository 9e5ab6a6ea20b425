package proto_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/transport/proto"
)

func listenLocal(t *testing.T) (net.Listener, uint16) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, uint16(l.Addr().(*net.TCPAddr).Port) //nolint:gosec // G115: ports fit uint16
}

func TestProbeAllocatorSkipsBusyPort(t *testing.T) {
	t.Parallel()

	_, busy := listenLocal(t)
	a := &proto.ProbeAllocator{Host: "127.0.0.1"}

	_, err := a.Allocate(&busy, &busy)
	require.ErrorIs(t, err, proto.ErrNoFreePort)
}

func TestProbeAllocatorDefaultsRange(t *testing.T) {
	t.Parallel()

	a := &proto.ProbeAllocator{Host: "127.0.0.1"}
	port, err := a.Allocate(nil, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, proto.DefaultPortStart)

	// The port is actually bindable.
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", itoa(port)))
	require.NoError(t, err)
	l.Close()
}

func TestProbeAllocatorAdvances(t *testing.T) {
	t.Parallel()

	a := &proto.ProbeAllocator{Host: "127.0.0.1", Start: 40000, End: 40999}
	first, err := a.Allocate(nil, nil)
	require.NoError(t, err)
	second, err := a.Allocate(nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, second, uint16(40000))
	assert.LessOrEqual(t, second, uint16(40999))
}

func TestProbeAllocatorInvalidRange(t *testing.T) {
	t.Parallel()

	a := &proto.ProbeAllocator{}
	lo, hi := uint16(60000), uint16(50000)
	_, err := a.Allocate(&lo, &hi)
	require.Error(t, err)

	zero := uint16(0)
	_, err = a.Allocate(&zero, &hi)
	require.Error(t, err)
}

package proto_test

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/transport/proto"
)

func TestMixDeterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, proto.Mix(42), proto.Mix(42))
	assert.NotEqual(t, proto.Mix(42), proto.Mix(43))
	assert.NotEqual(t, proto.Mix(0), proto.Mix(1))
}

func TestHandshakeSuccess(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var wg sync.WaitGroup
	var clientErr error
	wg.Go(func() {
		clientErr = proto.ClientHandshake(client, time.Second)
	})

	require.NoError(t, proto.ServerHandshake(server, 0xdeadbeef, time.Second))
	wg.Wait()
	require.NoError(t, clientErr)
}

func TestHandshakeWireValues(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	const seed = 7
	h := proto.Mix(seed)

	var wg sync.WaitGroup
	wg.Go(func() {
		var buf [4]byte
		_, err := io.ReadFull(client, buf[:])
		assert.NoError(t, err)
		assert.Equal(t, h, binary.BigEndian.Uint32(buf[:]))

		binary.BigEndian.PutUint32(buf[:], proto.Mix(uint64(h)))
		_, err = client.Write(buf[:])
		assert.NoError(t, err)
	})

	require.NoError(t, proto.ServerHandshake(server, seed, time.Second))
	wg.Wait()
}

func TestHandshakeMismatch(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var wg sync.WaitGroup
	wg.Go(func() {
		var buf [4]byte
		_, _ = io.ReadFull(client, buf[:])
		binary.BigEndian.PutUint32(buf[:], 0x01020304)
		_, _ = client.Write(buf[:])
	})

	err := proto.ServerHandshake(server, 1, time.Second)
	wg.Wait()
	require.ErrorIs(t, err, proto.ErrHandshakeMismatch)
}

func TestHandshakePeerGone(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	client.Close()
	defer server.Close()

	start := time.Now()
	err := proto.ClientHandshake(server, time.Second)
	require.Error(t, err)
	// One retry after the fixed delay, no more.
	assert.GreaterOrEqual(t, time.Since(start), proto.HandshakeRetryDelay)
	assert.Less(t, time.Since(start), 10*proto.HandshakeRetryDelay)
}

// flakyConn fails the first read and then behaves normally.
type flakyConn struct {
	net.Conn
	failed bool
}

func (c *flakyConn) Read(p []byte) (int, error) {
	if !c.failed {
		c.failed = true
		return 0, errors.New("transient")
	}
	return c.Conn.Read(p)
}

func TestHandshakeRetriesOnce(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var wg sync.WaitGroup
	var serverErr error
	wg.Go(func() {
		serverErr = proto.ServerHandshake(server, 99, time.Second)
	})

	require.NoError(t, proto.ClientHandshake(&flakyConn{Conn: client}, time.Second))
	wg.Wait()
	require.NoError(t, serverErr)
}

func TestHandshakeTimeout(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	// Nobody answers on the client side.
	go func() {
		var buf [4]byte
		_, _ = io.ReadFull(client, buf[:])
	}()

	start := time.Now()
	err := proto.ServerHandshake(server, 5, 50*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcessSeedStable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, proto.ProcessSeed(), proto.ProcessSeed())
	assert.NotZero(t, proto.ProcessSeed())
}

func TestClientHandshakeUntilBoundsRetry(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	start := time.Now()
	err := proto.ClientHandshakeUntil(client, 5*time.Second, start.Add(50*time.Millisecond))
	elapsed := time.Since(start)

	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
	assert.Less(t, elapsed, 50*time.Millisecond+proto.HandshakeRetryDelay)
}

package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range opsPerGoroutine {
				c.AddConnections(1)
				c.AddHandshakeFailures(1)
				c.AddCommands(1)
				c.AddFilesSent(1)
				c.AddFilesReceived(1)
				c.AddFilesFailed(1)
				c.AddBytesTransferred(256)
			}
		})
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.Connections)
	assert.Equal(t, expected, s.HandshakeFailures)
	assert.Equal(t, expected, s.Commands)
	assert.Equal(t, expected, s.FilesSent)
	assert.Equal(t, expected, s.FilesReceived)
	assert.Equal(t, expected, s.FilesFailed)
	assert.Equal(t, expected*256, s.BytesTransferred)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		Connections:       3,
		HandshakeFailures: 1,
		Commands:          12,
		FilesSent:         0,
		FilesReceived:     4,
		FilesFailed:       1,
		BytesTransferred:  4096,
	}
	expected := "conns=3 handshake_failures=1 commands=12 sent=0 received=4 failed=1 bytes=4096"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()

	for range 5 {
		c.AddBytesTransferred(1000)
		c.Tick()
	}

	assert.InDelta(t, 1000.0, c.RollingSpeed(5), 0.01)
}

func TestRollingSpeedPartialWindow(t *testing.T) {
	c := NewCollector()

	c.AddBytesTransferred(500)
	c.Tick()
	c.AddBytesTransferred(500)
	c.Tick()

	// Ask for 10 but only have 2.
	assert.InDelta(t, 500.0, c.RollingSpeed(10), 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0.0, c.RollingSpeed(5))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()

	for i := range ringSize + 10 {
		c.AddBytesTransferred(int64(i + 1))
		c.Tick()
	}

	// Last sample delta is ringSize+10.
	assert.InDelta(t, float64(ringSize+10), c.RollingSpeed(1), 0.01)
}

func TestETA(t *testing.T) {
	c := NewCollector()
	c.AddBytesTotal(10000)

	for range 5 {
		c.AddBytesTransferred(1000)
		c.Tick()
	}

	assert.InDelta(t, 5.0, c.ETA().Seconds(), 1.0)
}

func TestETANoSpeed(t *testing.T) {
	c := NewCollector()
	c.AddBytesTotal(10000)
	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestETAComplete(t *testing.T) {
	c := NewCollector()
	c.AddBytesTotal(1000)
	c.AddBytesTransferred(1000)
	c.Tick()
	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}

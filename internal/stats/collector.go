package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks transfer statistics using lock-free atomic counters.
// One Collector is shared by every connection of a daemon, or by a single
// sending session.
type Collector struct {
	connections       atomic.Int64
	handshakeFailures atomic.Int64
	commands          atomic.Int64
	filesSent         atomic.Int64
	filesReceived     atomic.Int64
	filesFailed       atomic.Int64
	bytesTransferred  atomic.Int64
	bytesTotal        atomic.Int64
	startTime         time.Time

	// Ring buffer, written only by Tick.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per tick
	ringIdx    int
	ringCount  int // samples written, capped at ringSize
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Connections       int64
	HandshakeFailures int64
	Commands          int64
	FilesSent         int64
	FilesReceived     int64
	FilesFailed       int64
	BytesTransferred  int64
	BytesTotal        int64
	Elapsed           time.Duration
}

func (c *Collector) AddConnections(n int64)       { c.connections.Add(n) }
func (c *Collector) AddHandshakeFailures(n int64) { c.handshakeFailures.Add(n) }
func (c *Collector) AddCommands(n int64)          { c.commands.Add(n) }
func (c *Collector) AddFilesSent(n int64)         { c.filesSent.Add(n) }
func (c *Collector) AddFilesReceived(n int64)     { c.filesReceived.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddBytesTransferred(n int64)  { c.bytesTransferred.Add(n) }

// AddBytesTotal grows the expected byte count (used for ETA).
func (c *Collector) AddBytesTotal(n int64) { c.bytesTotal.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Connections:       c.connections.Load(),
		HandshakeFailures: c.handshakeFailures.Load(),
		Commands:          c.commands.Load(),
		FilesSent:         c.filesSent.Load(),
		FilesReceived:     c.filesReceived.Load(),
		FilesFailed:       c.filesFailed.Load(),
		BytesTransferred:  c.bytesTransferred.Load(),
		BytesTotal:        c.bytesTotal.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called once per
// second by the progress reporter.
func (c *Collector) Tick() {
	current := c.bytesTransferred.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesTransferred.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"conns=%d handshake_failures=%d commands=%d sent=%d received=%d failed=%d bytes=%d",
		s.Connections, s.HandshakeFailures, s.Commands,
		s.FilesSent, s.FilesReceived, s.FilesFailed, s.BytesTransferred,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

package proto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/stats"
)

// shutdownGrace is how long active connections may keep running after
// the daemon stops accepting.
const shutdownGrace = 30 * time.Second

// DaemonConfig configures a ferry receiving daemon.
type DaemonConfig struct {
	Ports      PortAllocator
	Stats      *stats.Collector
	ListenAddr string
	// Root anchors every client-supplied path.
	Root string
	// Seed feeds the server handshake. Zero selects ProcessSeed().
	Seed             uint64
	HandshakeTimeout time.Duration
	BufferSize       int
	// Journal records every completed receive when non-nil.
	Journal *engine.Journal
	// ExitOnEnd stops the daemon after the first EndOfTransfer.
	ExitOnEnd bool
}

// Daemon accepts sender connections and runs the command loop on each.
type Daemon struct {
	listener net.Listener
	conns    map[net.Conn]struct{}
	stop     chan struct{}
	cfg      DaemonConfig
	mu       sync.Mutex
	stopOnce sync.Once
}

// NewDaemon binds cfg.ListenAddr. Call Serve to start accepting connections.
func NewDaemon(cfg DaemonConfig) (*Daemon, error) {
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
		cfg.Root = wd
	}
	if cfg.Ports == nil {
		cfg.Ports = &ProbeAllocator{}
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Seed == 0 {
		cfg.Seed = ProcessSeed()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = HandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = engine.DefaultBufferSize
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	return &Daemon{
		cfg:      cfg,
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
		stop:     make(chan struct{}),
	}, nil
}

// Addr returns the listener's address (useful when listening on :0).
func (d *Daemon) Addr() net.Addr {
	return d.listener.Addr()
}

// Stats returns the daemon's counters.
func (d *Daemon) Stats() *stats.Collector {
	return d.cfg.Stats
}

// Stop makes Serve return once active connections finish. Safe to call
// more than once and from any goroutine.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Serve accepts connections until ctx is cancelled or Stop is called.
// Blocks until shutdown completes.
func (d *Daemon) Serve(ctx context.Context) error {
	slog.Info("ferry daemon listening", "addr", d.listener.Addr(), "root", d.cfg.Root)

	var wg sync.WaitGroup
	done := make(chan struct{})
	defer close(done)

	// Shutdown goroutine: stop the listener and drain connections.
	go func() {
		select {
		case <-ctx.Done():
		case <-d.stop:
		case <-done:
			return
		}
		d.listener.Close()

		time.AfterFunc(shutdownGrace, func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for conn := range d.conns {
				conn.Close()
			}
		})
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if d.stopping(ctx) || errors.Is(err, net.ErrClosed) {
				break // graceful shutdown
			}
			slog.Error("accept error", "error", err)
			continue
		}

		d.mu.Lock()
		d.conns[conn] = struct{}{}
		d.mu.Unlock()

		wg.Go(func() {
			defer func() {
				d.mu.Lock()
				delete(d.conns, conn)
				d.mu.Unlock()
			}()
			d.handleConn(conn)
		})
	}

	wg.Wait()
	slog.Info("ferry daemon stopped", "stats", d.cfg.Stats.Snapshot().String())
	return nil
}

func (d *Daemon) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	log := slog.With("remote", conn.RemoteAddr().String(), "session", uuid.NewString())
	log.Info("new connection")
	d.cfg.Stats.AddConnections(1)

	if err := ServerHandshake(conn, d.cfg.Seed, d.cfg.HandshakeTimeout); err != nil {
		d.cfg.Stats.AddHandshakeFailures(1)
		log.Warn("handshake failed", "error", err)
		return
	}

	if err := newHandler(d, conn, log).Serve(); err != nil {
		log.Warn("connection aborted", "error", err)
		return
	}
	log.Info("connection closed")
}

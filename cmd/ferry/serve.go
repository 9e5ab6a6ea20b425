package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/transport"
	"github.com/bamsammich/ferry/internal/transport/proto"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a ferry receiving daemon",
		Long: `Run a ferry daemon that receives files from "ferry send".

Every connection starts with a handshake, then carries framed commands:
destination checks, free port queries, preallocation and file data. Client
paths are resolved under --root and may not climb out of it.

The daemon address is written to $XDG_RUNTIME_DIR/ferry/daemon.toml so that
"ferry status" can find it. Files still being received when the daemon is
interrupted are removed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}

	fs := cmd.Flags()
	fs.String("listen", fmt.Sprintf(":%d", transport.DefaultPort), "listen address (host:port)")
	fs.String("root", ".", "root directory for received files")
	fs.String("port-range", "", "range GetFreePort hands out from (e.g. 50000-50100)")
	fs.Bool("exit-on-end", false, "stop after the first end-of-transfer")
	fs.Duration("handshake-timeout", proto.HandshakeTimeout, "handshake deadline")
	fs.String("buffer-size", "1M", "receive buffer size")
	fs.String("journal", "", "record completed receives in this SQLite database")
	return cmd
}

//nolint:revive // cyclomatic: flag parsing + validation + discovery
func (a *app) runServe(cmd *cobra.Command) error {
	fs := cmd.Flags()
	listenAddr, _ := fs.GetString("listen")                    //nolint:errcheck // flag name is hardcoded
	root, _ := fs.GetString("root")                            //nolint:errcheck // flag name is hardcoded
	portRange, _ := fs.GetString("port-range")                 //nolint:errcheck // flag name is hardcoded
	exitOnEnd, _ := fs.GetBool("exit-on-end")                  //nolint:errcheck // flag name is hardcoded
	handshakeTimeout, _ := fs.GetDuration("handshake-timeout") //nolint:errcheck // flag name is hardcoded
	bufferSize, _ := fs.GetString("buffer-size")               //nolint:errcheck // flag name is hardcoded
	journalPath, _ := fs.GetString("journal")                  //nolint:errcheck // flag name is hardcoded

	d := a.cfg.Daemon
	if !fs.Changed("listen") && d.Listen != nil {
		listenAddr = *d.Listen
	}
	if !fs.Changed("root") && d.Root != nil {
		root = *d.Root
	}
	if !fs.Changed("port-range") && d.PortRange != nil {
		portRange = *d.PortRange
	}
	if !fs.Changed("handshake-timeout") && a.cfg.Connect.HandshakeTimeout != nil {
		handshakeTimeout = a.cfg.Connect.HandshakeTimeout.Duration
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("root directory %q: %w", root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}

	bufSize, err := config.ParseSize(bufferSize)
	if err != nil {
		return fmt.Errorf("invalid --buffer-size: %w", err)
	}

	ports := &proto.ProbeAllocator{}
	if portRange != "" {
		ports.Start, ports.End, err = config.ParsePortRange(portRange)
		if err != nil {
			return fmt.Errorf("invalid --port-range: %w", err)
		}
	}

	var journal *engine.Journal
	if journalPath != "" {
		journal, err = engine.OpenJournal(journalPath)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	daemon, err := proto.NewDaemon(proto.DaemonConfig{
		Ports:            ports,
		ListenAddr:       listenAddr,
		Root:             root,
		HandshakeTimeout: handshakeTimeout,
		BufferSize:       int(bufSize),
		Journal:          journal,
		ExitOnEnd:        exitOnEnd,
	})
	if err != nil {
		return err
	}

	if err := config.WriteDaemonDiscovery(config.DaemonDiscovery{
		Addr: daemon.Addr().String(),
		Root: root,
		PID:  os.Getpid(),
	}); err != nil {
		slog.Warn("failed to write daemon discovery file", "error", err)
	}
	defer config.RemoveDaemonDiscovery()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("serving", "addr", daemon.Addr(), "root", root, "exit_on_end", exitOnEnd)
	serveErr := daemon.Serve(ctx)

	if ctx.Err() != nil {
		if n := engine.CleanupPartial(); n > 0 {
			slog.Info("removed partial files", "count", n)
		}
	}
	return serveErr
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transport"
	"github.com/bamsammich/ferry/internal/transport/proto"
	"github.com/bamsammich/ferry/internal/ui"
)

type sendFlags struct {
	connect     connectFlags
	bufferSize  string
	depth       int
	strategy    string
	compression string
	bwLimit     string
	backend     string
	mmap        bool
	noPrealloc  bool
	noProgress  bool
	end         bool
}

func newSendCmd(a *app) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send [flags] <source>... <destination>",
		Short: "Send files to a ferry daemon",
		Long: `Send one or more files to a ferry daemon.

The destination is host[:port][:path] or ferry://host[:port]/path; the path
is resolved under the daemon's root. A single source is stored at path (or
path/<name> when path ends with a slash). Several sources are stored inside
path as a directory. Use "-" as the only source to send standard input.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSend(cmd, f, args)
		},
	}

	fs := cmd.Flags()
	f.connect.register(fs)
	fs.StringVar(&f.bufferSize, "buffer-size", "1M", "read buffer size (e.g. 256K, 1M)")
	fs.IntVar(&f.depth, "depth", 4, "reads kept in flight by batched strategies")
	fs.StringVar(&f.strategy, "strategy", engine.SlidingWindow.String(),
		"copy strategy: unbatched, batch, pipelined or window")
	fs.StringVar(&f.compression, "compression", "none", "stream codec: none, zstd, gzip, lz4 or snappy")
	fs.StringVar(&f.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	fs.StringVar(&f.backend, "backend", "auto", "file read backend: auto, io_uring or pread")
	fs.BoolVar(&f.mmap, "mmap", false, "map source files into memory instead of reading them")
	fs.BoolVar(&f.noPrealloc, "no-prealloc", false, "do not preallocate destination files")
	fs.BoolVar(&f.noProgress, "no-progress", false, "disable progress display")
	fs.BoolVar(&f.end, "end", false, "send end-of-transfer when done (stops an --exit-on-end daemon)")
	return cmd
}

// applyConfig fills flags not set on the command line from the config file.
func (f *sendFlags) applyConfig(fs *pflag.FlagSet, c config.TransferConfig) {
	if !fs.Changed("buffer-size") && c.BufferSize != nil {
		f.bufferSize = *c.BufferSize
	}
	if !fs.Changed("depth") && c.Depth != nil {
		f.depth = *c.Depth
	}
	if !fs.Changed("strategy") && c.Strategy != nil {
		f.strategy = *c.Strategy
	}
	if !fs.Changed("compression") && c.Compression != nil {
		f.compression = *c.Compression
	}
	if !fs.Changed("bwlimit") && c.BWLimit != nil {
		f.bwLimit = *c.BWLimit
	}
	if !fs.Changed("backend") && c.Backend != nil {
		f.backend = *c.Backend
	}
}

// sendOptions turns the flags into per-file send options.
func (f *sendFlags) sendOptions(collector *stats.Collector, fileCount int) (transport.SendOptions, error) {
	opts := transport.SendOptions{
		Stats:     collector,
		FileCount: uint32(fileCount), //nolint:gosec // G115: bounded by argv length
		Depth:     f.depth,
	}

	bufSize, err := config.ParseSize(f.bufferSize)
	if err != nil {
		return opts, fmt.Errorf("invalid --buffer-size: %w", err)
	}
	opts.BufferSize = int(bufSize)

	if opts.Strategy, err = engine.ParseStrategy(f.strategy); err != nil {
		return opts, err
	}
	if opts.Compression, err = proto.ParseCompression(f.compression); err != nil {
		return opts, err
	}
	if opts.Backend, err = platform.ParseBackend(f.backend); err != nil {
		return opts, err
	}

	if f.bwLimit != "" {
		bw, err := config.ParseSize(f.bwLimit)
		if err != nil {
			return opts, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if bw > 0 {
			opts.Limiter = engine.NewBWLimiter(bw)
		}
	}
	return opts, nil
}

//nolint:revive // cyclomatic: orchestrates check, per-file sessions, progress and exit codes
func (a *app) runSend(cmd *cobra.Command, f *sendFlags, args []string) error {
	fs := cmd.Flags()
	f.applyConfig(fs, a.cfg.Transfer)
	f.connect.applyConfig(fs, a.cfg.Connect)

	rawSources := args[:len(args)-1]
	loc, err := transport.ParseLocation(args[len(args)-1])
	if err != nil {
		return err
	}
	plan, err := planTransfer(rawSources, loc.Path)
	if err != nil {
		return err
	}

	collector := stats.NewCollector()
	sendOpts, err := f.sendOptions(collector, len(plan.items))
	if err != nil {
		return err
	}
	clientOpts, err := f.connect.options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind := platform.SourceFile
	if f.mmap {
		kind = platform.SourceMmap
	}
	sources := make([]*platform.Source, len(plan.items))
	defer func() {
		for _, src := range sources {
			if src != nil {
				src.Close() //nolint:errcheck // read-only source
			}
		}
	}()
	for i, item := range plan.items {
		src, err := platform.OpenSource(item.src, kind)
		if err != nil {
			return fmt.Errorf("source %s: %w", item.src, err)
		}
		sources[i] = src
		if src.Size() >= 0 {
			collector.AddBytesTotal(src.Size())
		}
	}

	slog.Debug("starting send",
		"destination", loc,
		"files", len(plan.items),
		"mode", clientOpts.Mode,
		"strategy", sendOpts.Strategy,
		"compression", sendOpts.Compression,
		"backend", sendOpts.Backend,
	)

	var progressWg sync.WaitGroup
	progressCtx, stopProgress := context.WithCancel(ctx)
	if !a.quiet && !f.noProgress {
		isTTY := ui.IsTTY(os.Stderr.Fd())
		p := &ui.Progress{W: os.Stderr, Stats: collector, TTY: isTTY}
		if isTTY {
			p.Width = ui.TermWidth(os.Stderr.Fd()) / 4
		}
		progressWg.Go(func() { p.Run(progressCtx) })
	}

	sendErr := sendAll(ctx, loc.Addr(), clientOpts, plan, sources, sendOpts, !f.noPrealloc)
	if sendErr == nil && f.end {
		sendErr = endTransfer(ctx, loc.Addr(), clientOpts)
	}

	stopProgress()
	progressWg.Wait()

	snap := collector.Snapshot()
	if !a.quiet {
		fmt.Fprintln(os.Stderr, ui.CompletionSummary(snap))
	}

	if sendErr != nil {
		slog.Error("send failed", "error", sendErr)
		if snap.FilesSent > 0 {
			return &exitError{code: 1} // partial failure
		}
		return &exitError{code: 2} // total failure
	}
	return nil
}

// sendAll validates the destination and then sends each file over its own
// session. A failed file does not stop the others; the joined error covers
// every failure.
func sendAll(
	ctx context.Context,
	addr string,
	clientOpts transport.ClientOptions,
	plan transferPlan,
	sources []*platform.Source,
	opts transport.SendOptions,
	prealloc bool,
) error {
	s, err := transport.Dial(ctx, addr, clientOpts)
	if err != nil {
		return err
	}
	err = s.CheckDestination(plan.mode, plan.check)
	s.Close() //nolint:errcheck // check session is done
	if err != nil {
		return fmt.Errorf("destination %s: %w", plan.check, err)
	}

	var errs []error
	for i, item := range plan.items {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := sendOne(ctx, addr, clientOpts, item.name, sources[i], opts, prealloc); err != nil {
			opts.Stats.AddFilesFailed(1)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sendOne(
	ctx context.Context,
	addr string,
	clientOpts transport.ClientOptions,
	name string,
	src *platform.Source,
	opts transport.SendOptions,
	prealloc bool,
) error {
	s, err := transport.Dial(ctx, addr, clientOpts)
	if err != nil {
		return err
	}
	defer s.Close()

	if size := src.Size(); size > 0 && prealloc {
		if err := s.Prealloc(name, uint64(size)); err != nil {
			return fmt.Errorf("prealloc %s: %w", name, err)
		}
	}
	_, err = s.SendFile(ctx, src, name, opts)
	return err
}

func endTransfer(ctx context.Context, addr string, clientOpts transport.ClientOptions) error {
	s, err := transport.Dial(ctx, addr, clientOpts)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.EndTransfer()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/platform"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		bufferSize string
		depth      int
		backend    string
	)
	cmd := &cobra.Command{
		Use:   "bench [flags] <file>",
		Short: "Measure each copy strategy reading a local file",
		Long: `Read a file once per copy strategy, discarding the bytes, and print the
throughput of each. Use it to pick --strategy, --depth and --buffer-size for
"ferry send" on this machine.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			t := a.cfg.Transfer
			if !fs.Changed("buffer-size") && t.BufferSize != nil {
				bufferSize = *t.BufferSize
			}
			if !fs.Changed("depth") && t.Depth != nil {
				depth = *t.Depth
			}
			if !fs.Changed("backend") && t.Backend != nil {
				backend = *t.Backend
			}

			bufSize, err := config.ParseSize(bufferSize)
			if err != nil {
				return fmt.Errorf("invalid --buffer-size: %w", err)
			}
			be, err := platform.ParseBackend(backend)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			results, err := engine.RunBenchmark(ctx, args[0], engine.BenchmarkConfig{
				BufferSize: int(bufSize),
				Depth:      depth,
				Backend:    be,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, engine.FormatBenchmark(results))
			return nil
		},
	}
	cmd.Flags().StringVar(&bufferSize, "buffer-size", "1M", "read buffer size")
	cmd.Flags().IntVar(&depth, "depth", 4, "reads kept in flight by batched strategies")
	cmd.Flags().StringVar(&backend, "backend", "auto", "file read backend: auto, io_uring or pread")
	return cmd
}

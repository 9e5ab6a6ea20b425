package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/transport/proto"
)

func newPortCmd(a *app) *cobra.Command {
	var (
		cf        connectFlags
		portRange string
	)
	cmd := &cobra.Command{
		Use:           "port [flags] <host[:port]>",
		Short:         "Ask a daemon for a free TCP port on its host",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end *uint16
			if portRange != "" {
				lo, hi, err := config.ParsePortRange(portRange)
				if err != nil {
					return err
				}
				start, end = &lo, &hi
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, _, err := cf.dialLocation(ctx, cmd.Flags(), a.cfg, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			port, err := s.FreePort(start, end)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, port)
			return nil
		},
	}
	cf.register(cmd.Flags())
	cmd.Flags().StringVar(&portRange, "range", "", "inclusive range to search (e.g. 50000-50100)")
	return cmd
}

var destinationModes = map[string]proto.DestinationMode{
	"file":      proto.SingleFile,
	"files":     proto.MultipleFiles,
	"recursive": proto.RecursiveDirectory,
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		cf   connectFlags
		mode string
	)
	cmd := &cobra.Command{
		Use:   "check [flags] <destination>",
		Short: "Check whether a daemon path can receive a transfer",
		Long: `Ask the daemon whether a destination path is usable.

  --mode file        the parent exists and the path is not a directory
  --mode files       the path is an existing directory
  --mode recursive   the path or its parent is an existing directory`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := destinationModes[mode]
			if !ok {
				return fmt.Errorf("unknown --mode %q (use file, files or recursive)", mode)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, loc, err := cf.dialLocation(ctx, cmd.Flags(), a.cfg, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.CheckDestination(m, loc.Path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s: ok (%s)\n", loc, m)
			return nil
		},
	}
	cf.register(cmd.Flags())
	cmd.Flags().StringVar(&mode, "mode", "file", "transfer shape: file, files or recursive")
	return cmd
}

func newEndCmd(a *app) *cobra.Command {
	var cf connectFlags
	cmd := &cobra.Command{
		Use:           "end [flags] <host[:port]>",
		Short:         "Tell a daemon the transfer is over",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, _, err := cf.dialLocation(ctx, cmd.Flags(), a.cfg, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			return s.EndTransfer()
		},
	}
	cf.register(cmd.Flags())
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:           "status",
	Short:         "Show the locally running ferry daemon",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStatus,
}

func runStatus(*cobra.Command, []string) error {
	d, err := config.ReadDaemonDiscovery()
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no ferry daemon running (no %s)", config.DaemonDiscoveryPath())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "addr: %s\nroot: %s\npid:  %d\n", d.Addr, d.Root, d.PID)
	if !d.StartedAt.IsZero() {
		fmt.Fprintf(os.Stdout, "up:   %s\n", ui.FormatDuration(time.Since(d.StartedAt)))
	}
	return nil
}

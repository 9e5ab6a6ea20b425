package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// app carries the state every subcommand shares: the loaded config file
// and the logging setup from the persistent flags.
type app struct {
	cfg        config.Config
	logFile    io.Closer
	configPath string
	logPath    string
	verbose    bool
	quiet      bool
}

func run() int {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "ferry",
		Short: "Push files to a ferry daemon over TCP",
		Long: `ferry streams files from this machine to a "ferry serve" daemon.

The sender connects (once, or polling until the daemon is up), checks the
destination, preallocates space and streams each file through a batched
read engine. Transfers can be compressed and rate limited.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logFile != nil {
				a.logFile.Close() //nolint:errcheck // best-effort on exit
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&a.logPath, "log", "", "write structured JSON log to FILE")
	pf.StringVar(&a.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/ferry/config.toml)")

	rootCmd.AddCommand(newSendCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newPortCmd(a))
	rootCmd.AddCommand(newCheckCmd(a))
	rootCmd.AddCommand(newEndCmd(a))
	rootCmd.AddCommand(newBenchCmd(a))
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// setup configures logging and loads the config file.
func (a *app) setup() error {
	logLevel := slog.LevelWarn
	if a.verbose {
		logLevel = slog.LevelDebug
	} else if !a.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if a.logPath != "" {
		lf, err := os.Create(a.logPath)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = lf
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

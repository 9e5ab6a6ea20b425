package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/ui"
)

var journalCmd = &cobra.Command{
	Use:   "journal <database>",
	Short: "List files recorded by a daemon started with --journal",
	Long: `List the files a daemon has fully received, with their size, BLAKE3 digest
and sender. Pass --verify to re-hash each file on disk and compare.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runJournal,
}

func init() {
	journalCmd.Flags().Bool("verify", false, "re-hash each recorded file and compare digests")
}

func runJournal(cmd *cobra.Command, args []string) error {
	verify, _ := cmd.Flags().GetBool("verify") //nolint:errcheck // flag name is hardcoded

	j, err := engine.OpenJournal(args[0])
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Entries()
	if err != nil {
		return err
	}

	mismatches := 0
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tSIZE\tBLAKE3\tREMOTE\tPATH")
	for _, e := range entries {
		hash := e.Hash
		if len(hash) > 16 {
			hash = hash[:16]
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s",
			e.ReceivedAt.Format(time.DateTime), ui.FormatBytes(e.Size), hash, e.Remote, e.Path)
		if verify {
			got, err := engine.HashFile(e.Path)
			switch {
			case err != nil:
				line += "\t" + err.Error()
				mismatches++
			case got != e.Hash:
				line += "\tMISMATCH"
				mismatches++
			default:
				line += "\tok"
			}
		}
		fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if mismatches > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d files failed verification\n", mismatches, len(entries))
		return &exitError{code: 1}
	}
	return nil
}

package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bamsammich/ferry/internal/stats"
)

// Progress periodically prints transfer progress from a Collector. On a
// terminal the line is redrawn in place; otherwise one line is printed per
// tick.
type Progress struct {
	W        io.Writer
	Stats    *stats.Collector
	Interval time.Duration
	TTY      bool
	Width    int
}

// Run ticks the collector and prints until ctx is done.
func (p *Progress) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.TTY {
				fmt.Fprint(p.W, "\r\033[K")
			}
			return
		case <-ticker.C:
			p.Stats.Tick()
			p.print()
		}
	}
}

func (p *Progress) print() {
	line := ProgressLine(p.Stats.Snapshot(), p.Stats.RollingSpeed(5), p.Stats.ETA(), p.Width)
	if p.TTY {
		fmt.Fprint(p.W, "\r\033[K"+line)
		return
	}
	fmt.Fprintln(p.W, line)
}

// ProgressLine renders one progress line. width bounds the bar; zero
// omits it.
func ProgressLine(snap stats.Snapshot, speed float64, eta time.Duration, width int) string {
	var b strings.Builder
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesTransferred) / float64(snap.BytesTotal)
		if width > 0 {
			b.WriteString(ProgressBar(pct, min(width, 30)))
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.0f%% %s/%s %s eta %s",
			pct*100,
			FormatBytes(snap.BytesTransferred), FormatBytes(snap.BytesTotal),
			FormatRate(speed),
			FormatETA(eta),
		)
		return b.String()
	}
	fmt.Fprintf(&b, "%s sent %s", FormatBytes(snap.BytesTransferred), FormatRate(speed))
	return b.String()
}

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  files 3  size 2.1 GiB  avg 641 MB/s  time 3m 17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesTransferred) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.FilesFailed > 0 {
		icon = "✗"
	}

	return fmt.Sprintf("done %s  files %s  size %s  avg %s  time %s  errors %d",
		icon,
		FormatCount(snap.FilesSent+snap.FilesReceived),
		FormatBytes(snap.BytesTransferred),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
		snap.FilesFailed,
	)
}

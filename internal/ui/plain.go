package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/stats"
)

// plainPresenter prints notable events to stdout and periodic progress to
// stderr. Used when stderr is not a terminal (logs, cron, pipes).
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	verbose bool
	dryRun  bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	sample := time.NewTicker(time.Second)
	defer sample.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-sample.C:
			p.stats.Tick()
		case <-progress.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case event.SessionStarted:
		if p.dryRun {
			fmt.Fprintf(p.w, "dry run: scanning %s\n", FormatBytes(ev.Size))
		} else {
			fmt.Fprintf(p.w, "syncing %s\n", FormatBytes(ev.Size))
		}
	case event.Resumed:
		fmt.Fprintf(p.w, "resuming at block %d (offset %s)\n", ev.Index, FormatBytes(ev.Offset))
	case event.BlockWritten:
		if p.verbose {
			fmt.Fprintf(p.w, "block %d  %s  written\n", ev.Index, FormatBytes(ev.Size))
		}
	case event.BlockRetried:
		fmt.Fprintf(p.errW, "retrying destination read at offset %d: %v\n", ev.Offset, ev.Error)
	case event.BlockUnreadable:
		fmt.Fprintf(p.errW, "destination block %d unreadable: %v\n", ev.Index, ev.Error)
	case event.CheckpointSaved:
		if p.verbose {
			fmt.Fprintf(p.w, "checkpoint at block %d\n", ev.Index)
		}
	case event.VerifyStarted:
		fmt.Fprintf(p.w, "verifying %s...\n", FormatBytes(ev.Size))
	case event.VerifyMismatch:
		fmt.Fprintf(p.w, "MISMATCH: block %d (offset %d)\n", ev.Index, ev.Offset)
	case event.SessionComplete:
		// Summary is printed by the caller.
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal == 0 {
		return
	}
	pct := float64(snap.BytesScanned) / float64(snap.BytesTotal) * 100
	fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s scanned, %s written, %s eta %s\n",
		pct,
		FormatBytes(snap.BytesScanned), FormatBytes(snap.BytesTotal),
		FormatBytes(snap.BytesWritten),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatETA(p.stats.ETA()),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot(), p.dryRun)
}

package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/stats"
)

// livePresenter redraws a single status line in place on a TTY:
// a progress bar, percentage, throughput and ETA.
type livePresenter struct {
	w      io.Writer
	stats  stats.ReadTicker
	dryRun bool
	dirty  bool
}

func (p *livePresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearLine()
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.redraw()
		}
	}
}

func (p *livePresenter) handleEvent(ev Event) {
	switch ev.Type {
	case event.Resumed:
		p.println(fmt.Sprintf("resuming at block %d (offset %s)", ev.Index, FormatBytes(ev.Offset)))
	case event.BlockUnreadable:
		p.println(fmt.Sprintf("destination block %d unreadable: %v", ev.Index, ev.Error))
	case event.VerifyStarted:
		p.println(fmt.Sprintf("verifying %s...", FormatBytes(ev.Size)))
	case event.VerifyMismatch:
		p.println(fmt.Sprintf("MISMATCH: block %d (offset %d)", ev.Index, ev.Offset))
	}
}

// println clears the status line before printing, so event output does not
// interleave with the in-place redraw.
func (p *livePresenter) println(line string) {
	p.clearLine()
	fmt.Fprintln(p.w, line)
	p.redraw()
}

func (p *livePresenter) redraw() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal == 0 {
		return
	}
	pct := float64(snap.BytesScanned) / float64(snap.BytesTotal)
	fmt.Fprintf(p.w, "\r[%s] %3.0f%%  %s/%s  %s written  %s  eta %s   ",
		ProgressBar(pct, 20),
		pct*100,
		FormatBytes(snap.BytesScanned), FormatBytes(snap.BytesTotal),
		FormatBytes(snap.BytesWritten),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatETA(p.stats.ETA()),
	)
	p.dirty = true
}

func (p *livePresenter) clearLine() {
	if p.dirty {
		fmt.Fprint(p.w, "\r\033[K")
		p.dirty = false
	}
}

func (p *livePresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot(), p.dryRun)
}

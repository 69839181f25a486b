package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/stats"
)

func newTestStats() *stats.Collector {
	return stats.NewCollector()
}

func TestNewPresenter_Selection(t *testing.T) {
	c := newTestStats()

	p := NewPresenter(Config{Quiet: true, Stats: c})
	assert.IsType(t, &quietPresenter{}, p)

	p = NewPresenter(Config{IsTTY: false, Stats: c})
	assert.IsType(t, &plainPresenter{}, p)

	p = NewPresenter(Config{IsTTY: true, Stats: c})
	assert.IsType(t, &livePresenter{}, p)
}

func TestPlainPresenter_Events(t *testing.T) {
	var out, errOut bytes.Buffer
	c := newTestStats()
	p := &plainPresenter{w: &out, errW: &errOut, stats: c, verbose: true}

	events := make(chan Event, 8)
	events <- Event{Type: event.SessionStarted, Size: 10 << 20}
	events <- Event{Type: event.Resumed, Index: 5, Offset: 5 << 20}
	events <- Event{Type: event.BlockWritten, Index: 7, Size: 1 << 20}
	events <- Event{Type: event.BlockUnreadable, Index: 9, Error: errors.New("io error")}
	events <- Event{Type: event.SessionComplete}
	close(events)

	require.NoError(t, p.Run(events))

	assert.Contains(t, out.String(), "syncing 10.0 MiB")
	assert.Contains(t, out.String(), "resuming at block 5")
	assert.Contains(t, out.String(), "block 7")
	assert.Contains(t, errOut.String(), "destination block 9 unreadable")
}

func TestPlainPresenter_DryRun(t *testing.T) {
	var out, errOut bytes.Buffer
	c := newTestStats()
	p := &plainPresenter{w: &out, errW: &errOut, stats: c, dryRun: true}

	events := make(chan Event, 1)
	events <- Event{Type: event.SessionStarted, Size: 1 << 20}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Contains(t, out.String(), "dry run: scanning 1.0 MiB")
	assert.Contains(t, p.Summary(), "would write")
}

func TestQuietPresenter(t *testing.T) {
	c := newTestStats()
	p := &quietPresenter{stats: c}

	events := make(chan Event, 2)
	events <- Event{Type: event.SessionStarted}
	events <- Event{Type: event.BlockWritten}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Empty(t, p.Summary())
}

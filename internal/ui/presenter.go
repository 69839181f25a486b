package ui

import (
	"io"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/stats"
)

// Event is the engine event type consumed by presenters.
type Event = event.Event

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     stats.ReadTicker
	IsTTY     bool
	Quiet     bool
	Verbose   bool
	DryRun    bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY {
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
			dryRun:  cfg.DryRun,
		}
	}
	return &livePresenter{
		w:      cfg.ErrWriter, // renders to stderr (the TTY)
		stats:  cfg.Stats,
		dryRun: cfg.DryRun,
	}
}

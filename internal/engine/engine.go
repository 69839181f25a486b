package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/platform"
	"github.com/mwfern/blocksync/internal/stats"
	"github.com/mwfern/blocksync/internal/store"
)

// DefaultBlockSize is used when no block size is configured. Low megabytes
// keeps per-block syscall overhead negligible while bounding pipeline memory.
const DefaultBlockSize = 4 << 20 // 4 MiB

// DefaultDepth is the default number of in-flight blocks per pipeline stage.
const DefaultDepth = 4

// Config describes one sync run.
type Config struct {
	SourcePath string
	DstPath    string

	// BlockSize is the comparison/transfer unit in bytes. Zero selects
	// DefaultBlockSize. Rounded up to the endpoints' alignment unit.
	BlockSize int64
	// Depth is the bounded queue depth between pipeline stages.
	Depth int

	Resume     bool
	DryRun     bool
	Grow       bool
	Verify     bool
	Digest     bool
	UseIOURing bool

	// BWLimit caps destination write bandwidth in bytes/sec. Zero is unlimited.
	BWLimit int64

	Events chan<- event.Event
	Stats  *stats.Collector
}

// Result is the outcome of a sync run.
type Result struct {
	Stats      stats.Snapshot
	Err        error
	Resumed    bool
	StartIndex int64
	// LastConfirmed is the highest block index confirmed in sync when the
	// run ended, -1 if none. On failure a rerun with resume enabled
	// continues after this index.
	LastConfirmed int64
}

// OpenError is a failure to open or size an endpoint.
type OpenError struct {
	Endpoint string // "source" or "destination"
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Endpoint, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// VerifyError reports post-sync digest mismatches.
type VerifyError struct {
	Mismatches int64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification failed: %d mismatched blocks", e.Mismatches)
}

// Run executes a sync run, blocking until complete. The returned Result
// carries a final stats snapshot even on failure.
func Run(ctx context.Context, cfg Config) Result {
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}

	res := Result{LastConfirmed: -1}

	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize <= 0 {
		res.Err = fmt.Errorf("invalid block size %d", blockSize)
		res.Stats = collector.Snapshot()
		return res
	}

	depth := cfg.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}

	sessionID := uuid.New().String()
	logger := slog.With("session", sessionID[:8])

	var srcRing, dstRing *platform.Ring
	if cfg.UseIOURing {
		var err error
		if srcRing, err = platform.NewRing(8); err != nil {
			logger.Warn("io_uring unavailable, falling back to pread", "error", err)
		}
		if srcRing != nil {
			if dstRing, err = platform.NewRing(8); err != nil || dstRing == nil {
				srcRing.Close()
				srcRing = nil
			}
		}
	}
	defer srcRing.Close()
	defer dstRing.Close()

	src, err := store.Open(cfg.SourcePath, store.Options{Ring: srcRing})
	if err != nil {
		res.Err = &OpenError{Endpoint: "source", Err: err}
		res.Stats = collector.Snapshot()
		return res
	}
	defer src.Close()

	if src.Size() == 0 {
		logger.Info("source is empty, nothing to do")
		res.Stats = collector.Snapshot()
		return res
	}

	// With growth permitted a missing destination image is created empty and
	// then grown to the source length like any too-short regular file.
	dstOpts := store.Options{Write: true, Create: cfg.Grow}
	if cfg.DryRun {
		// Dry-run never mutates the destination, not even an open for write.
		dstOpts = store.Options{}
	}
	dst, err := store.Open(cfg.DstPath, dstOpts)
	if err != nil {
		res.Err = &OpenError{Endpoint: "destination", Err: err}
		res.Stats = collector.Snapshot()
		return res
	}
	defer dst.Close()

	srcLen := src.Size()
	dstLen := dst.Size()

	// Size mismatch policy: a destination shorter than the source fails fast
	// unless it is a regular file permitted to grow. A longer destination
	// keeps its trailing content; only the overlapping prefix is synced.
	growBoundary := int64(-1)
	syncBytes := min64(srcLen, dstLen)
	if srcLen > dstLen {
		if dst.IsDevice() || !cfg.Grow {
			res.Err = &OpenError{Endpoint: "destination", Err: fmt.Errorf(
				"%w: source %d bytes, destination %d bytes", ErrSizeIncompatible, srcLen, dstLen)}
			res.Stats = collector.Snapshot()
			return res
		}
		growBoundary = dstLen
		syncBytes = srcLen
		if !cfg.DryRun {
			if err := dst.Truncate(srcLen); err != nil {
				res.Err = &OpenError{Endpoint: "destination", Err: err}
				res.Stats = collector.Snapshot()
				return res
			}
		}
	}

	// A second read-only handle lets the destination reader and the writer
	// overlap without sharing an io_uring ring.
	dstRead, err := store.Open(cfg.DstPath, store.Options{Ring: dstRing})
	if err != nil {
		res.Err = &OpenError{Endpoint: "destination", Err: err}
		res.Stats = collector.Snapshot()
		return res
	}
	defer dstRead.Close()

	// Round the block size up to the coarser alignment unit of the two
	// endpoints so every access is sector-aligned on raw devices.
	align := max64(src.Alignment(), dst.Alignment())
	if rem := blockSize % align; rem != 0 {
		blockSize += align - rem
		logger.Debug("block size rounded to alignment unit", "block_size", blockSize, "align", align)
	}

	fullBlocks := syncBytes / blockSize
	tail := syncBytes % blockSize
	totalBlocks := fullBlocks
	if tail > 0 {
		totalBlocks++
	}
	collector.SetTotals(totalBlocks, syncBytes)

	s := &session{
		id:           sessionID,
		src:          src,
		dst:          dst,
		dstRead:      dstRead,
		cmp:          Comparator{Digest: cfg.Digest},
		blockSize:    blockSize,
		totalBlocks:  totalBlocks,
		syncBytes:    syncBytes,
		growBoundary: growBoundary,
		depth:        depth,
		dryRun:       cfg.DryRun,
		events:       cfg.Events,
		stats:        collector,
		log:          logger,
	}
	s.confirmed.Store(-1)

	if cfg.BWLimit > 0 {
		burst := cfg.BWLimit
		if blockSize > burst {
			burst = blockSize
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.BWLimit), int(burst))
	}

	srcHint := IdentityHint(cfg.SourcePath, srcLen)
	dstHint := IdentityHint(cfg.DstPath, dstLen)
	if growBoundary >= 0 {
		// The destination was (or will be) grown; hint against the target
		// length so a resumed run sees the same identity.
		dstHint = IdentityHint(cfg.DstPath, srcLen)
	}
	s.srcHint, s.dstHint = srcHint, dstHint

	if !cfg.DryRun {
		ledger, err := OpenLedger(cfg.SourcePath, cfg.DstPath)
		if err != nil {
			// Checkpoint errors are never fatal; run without resume state.
			logger.Warn("checkpoint ledger unavailable", "error", err)
		} else {
			s.ledger = ledger
			defer ledger.Close()
		}
	}

	if cfg.Resume && s.ledger != nil {
		cp, err := s.ledger.Load()
		if err != nil {
			logger.Warn("discarding unreadable checkpoint", "error", err)
		} else if cp != nil {
			if cp.Matches(blockSize, srcHint, dstHint) && cp.LastConfirmed < totalBlocks-1 {
				s.startIndex = cp.LastConfirmed + 1
				s.confirmed.Store(cp.LastConfirmed)
				res.Resumed = true
				logger.Info("resuming from checkpoint",
					"block", s.startIndex, "offset", s.startIndex*blockSize)
				s.emit(event.Event{Type: event.Resumed, Index: s.startIndex, Offset: s.startIndex * blockSize})
			} else {
				logger.Info("checkpoint does not match this invocation, rescanning from start")
				if err := s.ledger.Clear(); err != nil {
					logger.Warn("clear stale checkpoint", "error", err)
				}
			}
		}
	}

	s.emit(event.Event{Type: event.SessionStarted, Size: syncBytes})
	logger.Debug("starting sync",
		"source", cfg.SourcePath,
		"destination", cfg.DstPath,
		"block_size", blockSize,
		"blocks", totalBlocks,
		"start", s.startIndex,
		"dry_run", cfg.DryRun,
	)

	runErr := s.run(ctx)
	res.StartIndex = s.startIndex
	res.LastConfirmed = s.confirmed.Load()

	if runErr == nil && !cfg.DryRun {
		if err := dst.Sync(); err != nil {
			runErr = &DestWriteError{Offset: syncBytes, Err: err}
		}
	}

	// Persist or clear resume state. On failure or cancellation the ledger
	// keeps the last confirmed index; on success it is cleared so the next
	// run rescans everything.
	if s.ledger != nil {
		if runErr == nil {
			if err := s.ledger.Clear(); err != nil {
				logger.Warn("clear ledger", "error", err)
			}
		} else if res.LastConfirmed >= 0 {
			s.saveCheckpoint(res.LastConfirmed)
		}
	}

	if runErr == nil && cfg.Verify && !cfg.DryRun {
		vr, err := Verify(ctx, src, dstRead, blockSize, syncBytes, cfg.Events)
		switch {
		case err != nil:
			runErr = err
		case vr.Mismatches > 0:
			runErr = &VerifyError{Mismatches: vr.Mismatches}
		default:
			logger.Info("verification passed", "blocks", vr.Blocks)
		}
	}

	if runErr != nil && res.LastConfirmed >= 0 {
		logger.Error("sync stopped",
			"error", runErr,
			"last_synchronized_offset", (res.LastConfirmed+1)*blockSize)
	}

	s.emit(event.Event{Type: event.SessionComplete, Error: runErr})

	res.Err = runErr
	res.Stats = collector.Snapshot()
	return res
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

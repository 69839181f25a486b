package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/stats"
	"github.com/mwfern/blocksync/internal/store"
)

// Destination read failure policy: each block read is retried a few times
// with no backoff (expected transient device hiccups); a block whose retries
// are exhausted is assumed differing and rewritten, and a short run of
// consecutive exhausted blocks escalates to fatal.
const (
	destReadRetries      = 3
	destReadFailureLimit = 4
)

// Checkpoint cadence: whichever comes first.
const (
	checkpointBlocks   = 256
	checkpointInterval = 5 * time.Second
)

// blockReaderAt is the positional read surface the destination reader
// consumes. Satisfied by *store.Handle.
type blockReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// blockRead is one block read by a reader stage.
type blockRead struct {
	index int64
	buf   *[]byte
	n     int
	// unreadable marks a destination block whose read retries were
	// exhausted: assume differing, never silently skip.
	unreadable bool
}

// blockResult is the comparator's verdict for one block, in index order.
type blockResult struct {
	index        int64
	buf          *[]byte // source data; nil when no write is needed
	n            int     // bytes to write
	want         int64   // logical block length
	differ       bool
	undetermined bool // dry-run only: destination state unknown
}

// session owns one run of the pipeline: a source reader, a destination
// reader, a comparator and a writer, connected by bounded channels. The
// channel bounds are the sole flow-control mechanism; a slow writer blocks
// the readers instead of buffering unboundedly.
type session struct {
	id      string
	src     *store.Handle
	dst     *store.Handle // write path
	dstRead blockReaderAt // read path
	cmp     Comparator

	blockSize    int64
	totalBlocks  int64
	syncBytes    int64
	startIndex   int64
	growBoundary int64 // old destination length when growing, else -1
	depth        int

	dryRun  bool
	limiter *rate.Limiter
	ledger  *Ledger
	srcHint string
	dstHint string

	events chan<- event.Event
	stats  *stats.Collector
	log    *slog.Logger

	pool      sync.Pool
	confirmed atomic.Int64 // highest block index confirmed in sync
}

// blockLen returns the logical length of the block at index: blockSize for
// all but a trailing partial block.
func (s *session) blockLen(index int64) int64 {
	off := index * s.blockSize
	if off+s.blockSize > s.syncBytes {
		return s.syncBytes - off
	}
	return s.blockSize
}

func (s *session) getBuf() *[]byte {
	return s.pool.Get().(*[]byte)
}

func (s *session) putBuf(buf *[]byte) {
	if buf != nil {
		s.pool.Put(buf)
	}
}

func (s *session) emit(e event.Event) {
	if s.events == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case s.events <- e:
	default:
	}
}

// run drives the staged pipeline across [startIndex, totalBlocks).
func (s *session) run(ctx context.Context) error {
	if s.startIndex >= s.totalBlocks {
		return nil
	}

	s.pool.New = func() any {
		b := make([]byte, s.blockSize)
		return &b
	}

	srcCh := make(chan blockRead, s.depth)
	dstCh := make(chan blockRead, s.depth)
	resCh := make(chan blockResult, s.depth)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readSource(ctx, srcCh) })
	g.Go(func() error { return s.readDest(ctx, dstCh) })
	g.Go(func() error { return s.compare(ctx, srcCh, dstCh, resCh) })
	g.Go(func() error { return s.write(ctx, resCh) })

	return g.Wait()
}

// readSource visits every block index in order and reads the source block.
// Any source read error is fatal for the whole session.
func (s *session) readSource(ctx context.Context, out chan<- blockRead) error {
	defer close(out)

	for index := s.startIndex; index < s.totalBlocks; index++ {
		if err := ctx.Err(); err != nil {
			return s.cancelErr(ctx)
		}

		off := index * s.blockSize
		want := s.blockLen(index)
		buf := s.getBuf()
		n, err := s.src.ReadAt((*buf)[:want], off)
		if err != nil {
			s.putBuf(buf)
			return &SourceIOError{Offset: off, Err: err}
		}

		select {
		case out <- blockRead{index: index, buf: buf, n: n}:
		case <-ctx.Done():
			s.putBuf(buf)
			return s.cancelErr(ctx)
		}
	}
	return nil
}

// readDest mirrors readSource on the destination, with the per-block retry
// budget. Blocks at or beyond the growth boundary are synthesized as empty
// short reads: data that never existed cannot be "unchanged".
func (s *session) readDest(ctx context.Context, out chan<- blockRead) error {
	defer close(out)

	consecutiveFailed := 0
	for index := s.startIndex; index < s.totalBlocks; index++ {
		if err := ctx.Err(); err != nil {
			return s.cancelErr(ctx)
		}

		off := index * s.blockSize
		want := s.blockLen(index)

		var br blockRead
		if s.growBoundary >= 0 && off >= s.growBoundary {
			br = blockRead{index: index, n: 0}
		} else {
			buf := s.getBuf()
			n, err := s.dstRead.ReadAt((*buf)[:want], off)
			for attempt := 1; err != nil && attempt <= destReadRetries; attempt++ {
				s.stats.RecordDestReadRetry()
				s.log.Warn("destination read failed, retrying",
					"offset", off, "attempt", attempt, "error", err)
				s.emit(event.Event{Type: event.BlockRetried, Index: index, Offset: off, Error: err})
				n, err = s.dstRead.ReadAt((*buf)[:want], off)
			}
			if err != nil {
				s.putBuf(buf)
				consecutiveFailed++
				if consecutiveFailed >= destReadFailureLimit {
					return &DestReadError{Offset: off, Attempts: destReadRetries + 1, Err: err}
				}
				s.log.Warn("destination block unreadable, assuming it differs",
					"offset", off, "error", err)
				s.emit(event.Event{Type: event.BlockUnreadable, Index: index, Offset: off, Error: err})
				br = blockRead{index: index, unreadable: true}
			} else {
				consecutiveFailed = 0
				br = blockRead{index: index, buf: buf, n: n}
			}
		}

		select {
		case out <- br:
		case <-ctx.Done():
			s.putBuf(br.buf)
			return s.cancelErr(ctx)
		}
	}
	return nil
}

// compare zips the two read streams, which emit the same indices in the same
// order, and classifies each block pair.
func (s *session) compare(ctx context.Context, srcCh, dstCh <-chan blockRead, out chan<- blockResult) error {
	defer close(out)

	for {
		var srcR, dstR blockRead
		var ok bool

		select {
		case srcR, ok = <-srcCh:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return s.cancelErr(ctx)
		}
		select {
		case dstR, ok = <-dstCh:
			if !ok {
				s.putBuf(srcR.buf)
				return nil
			}
		case <-ctx.Done():
			s.putBuf(srcR.buf)
			return s.cancelErr(ctx)
		}

		want := s.blockLen(srcR.index)
		res := blockResult{index: srcR.index, want: want}

		switch {
		case dstR.unreadable && s.dryRun:
			res.undetermined = true
			s.putBuf(srcR.buf)
		case dstR.unreadable:
			res.differ = true
			res.buf = srcR.buf
			res.n = srcR.n
		default:
			var dstData []byte
			if dstR.buf != nil {
				dstData = (*dstR.buf)[:dstR.n]
			}
			outcome := s.cmp.Compare((*srcR.buf)[:srcR.n], dstData, int(want))
			if outcome.Differs() {
				res.differ = true
				res.buf = srcR.buf
				res.n = srcR.n
			} else {
				s.putBuf(srcR.buf)
			}
		}
		s.putBuf(dstR.buf)

		select {
		case out <- res:
		case <-ctx.Done():
			s.putBuf(res.buf)
			return s.cancelErr(ctx)
		}
	}
}

// write consumes comparator verdicts in strictly increasing index order,
// issues the rewrites, and checkpoints. A block's write completes before any
// checkpoint covering its index is persisted.
func (s *session) write(ctx context.Context, in <-chan blockResult) error {
	lastSave := time.Now()
	lastSaved := s.confirmed.Load()

	for {
		var res blockResult
		var ok bool
		select {
		case res, ok = <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return s.cancelErr(ctx)
		}

		off := res.index * s.blockSize

		switch {
		case res.undetermined:
			s.stats.RecordUndetermined()
		case res.differ:
			s.stats.RecordScanned(res.want)
			if s.dryRun {
				// Report what would be written, with zero mutation.
				s.stats.RecordWritten(int64(res.n))
				s.putBuf(res.buf)
				break
			}
			if s.limiter != nil {
				if err := s.limiter.WaitN(ctx, res.n); err != nil {
					s.putBuf(res.buf)
					return s.cancelErr(ctx)
				}
			}
			if err := s.dst.WriteAt((*res.buf)[:res.n], off); err != nil {
				s.putBuf(res.buf)
				return &DestWriteError{Offset: off, Err: err}
			}
			s.putBuf(res.buf)
			s.stats.RecordWritten(int64(res.n))
			s.emit(event.Event{Type: event.BlockWritten, Index: res.index, Offset: off, Size: int64(res.n)})
		default:
			s.stats.RecordScanned(res.want)
		}

		s.confirmed.Store(res.index)

		if s.ledger != nil && !s.dryRun &&
			(res.index-lastSaved >= checkpointBlocks || time.Since(lastSave) >= checkpointInterval) {
			s.saveCheckpoint(res.index)
			lastSave = time.Now()
			lastSaved = res.index
		}
	}
}

// saveCheckpoint syncs the destination, then persists the confirmed index.
// Ordering matters for resume correctness: the checkpoint must never cover a
// write that is not yet durable.
func (s *session) saveCheckpoint(index int64) {
	if s.ledger == nil {
		return
	}
	if err := s.dst.Sync(); err != nil {
		s.log.Warn("sync before checkpoint failed, skipping checkpoint", "error", err)
		return
	}
	cp := Checkpoint{
		LastConfirmed: index,
		BlockSize:     s.blockSize,
		SrcHint:       s.srcHint,
		DstHint:       s.dstHint,
		SessionID:     s.id,
	}
	if err := s.ledger.Save(cp); err != nil {
		// Checkpoint errors are never fatal.
		s.log.Warn("save checkpoint", "error", err)
		return
	}
	s.emit(event.Event{Type: event.CheckpointSaved, Index: index, Offset: (index + 1) * s.blockSize})
}

// cancelErr maps context termination onto the session's cancellation error.
// When a sibling stage failed first, errgroup reports that error instead.
func (s *session) cancelErr(_ context.Context) error {
	return ErrCancelled
}

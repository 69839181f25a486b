package engine

import (
	"context"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/store"
)

// VerifyResult holds the outcome of a post-sync verification pass.
type VerifyResult struct {
	Blocks     int64
	Mismatches int64
}

// Verify re-reads both endpoints over the synchronized range and compares
// BLAKE3 digests block by block. It runs after a successful sync, so any
// mismatch indicates a device-level problem rather than an engine bug.
func Verify(ctx context.Context, src, dst *store.Handle, blockSize, length int64, events chan<- event.Event) (VerifyResult, error) {
	var res VerifyResult

	emitVerify(events, event.Event{Type: event.VerifyStarted, Size: length})

	srcBuf := make([]byte, blockSize)
	dstBuf := make([]byte, blockSize)

	for off := int64(0); off < length; off += blockSize {
		if err := ctx.Err(); err != nil {
			return res, ErrCancelled
		}

		want := blockSize
		if off+want > length {
			want = length - off
		}

		srcN, err := src.ReadAt(srcBuf[:want], off)
		if err != nil {
			return res, &SourceIOError{Offset: off, Err: err}
		}
		dstN, err := dst.ReadAt(dstBuf[:want], off)
		if err != nil {
			return res, &DestReadError{Offset: off, Attempts: 1, Err: err}
		}

		res.Blocks++
		if srcN != dstN || blake3.Sum256(srcBuf[:srcN]) != blake3.Sum256(dstBuf[:dstN]) {
			res.Mismatches++
			emitVerify(events, event.Event{
				Type:   event.VerifyMismatch,
				Index:  off / blockSize,
				Offset: off,
				Size:   int64(want),
			})
		}
	}

	return res, nil
}

func emitVerify(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the caller for exit-code mapping.
var (
	// ErrSizeIncompatible means the destination cannot hold the source and
	// growth is not permitted.
	ErrSizeIncompatible = errors.New("destination is smaller than source")
	// ErrCancelled means the session observed cancellation and drained to a
	// checkpoint boundary.
	ErrCancelled = errors.New("sync cancelled")
)

// SourceIOError is a read failure on the source. Always fatal: the engine
// cannot determine correctness of the remaining blocks.
type SourceIOError struct {
	Offset int64
	Err    error
}

func (e *SourceIOError) Error() string {
	return fmt.Sprintf("source read at offset %d: %v", e.Offset, e.Err)
}

func (e *SourceIOError) Unwrap() error { return e.Err }

// DestReadError is a destination read failure that persisted beyond the
// per-block retry budget and the session's consecutive-failure allowance.
type DestReadError struct {
	Offset   int64
	Attempts int
	Err      error
}

func (e *DestReadError) Error() string {
	return fmt.Sprintf("destination read at offset %d failed after %d attempts: %v",
		e.Offset, e.Attempts, e.Err)
}

func (e *DestReadError) Unwrap() error { return e.Err }

// DestWriteError is a write failure on the destination. Always fatal: there
// is no safe way to continue once the destination cannot accept writes.
type DestWriteError struct {
	Offset int64
	Err    error
}

func (e *DestWriteError) Error() string {
	return fmt.Sprintf("destination write at offset %d: %v", e.Offset, e.Err)
}

func (e *DestWriteError) Unwrap() error { return e.Err }

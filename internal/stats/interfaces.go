package stats

import "time"

// Writer is the engine-facing mutation surface of the Collector.
type Writer interface {
	RecordScanned(n int64)
	RecordWritten(n int64)
	RecordUndetermined()
	RecordDestReadRetry()
	SetTotals(blocks, bytes int64)
}

// Reader is the read-only view shared with presenters.
type Reader interface {
	Snapshot() Snapshot
}

// ReadTicker extends Reader with the sampling hooks presenters drive.
type ReadTicker interface {
	Reader
	Tick()
	RollingSpeed(seconds int) float64
	ETA() time.Duration
}

package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks sync progress using lock-free atomic counters. It is
// written by the pipeline and read concurrently by the presenter.
type Collector struct {
	blocksScanned      atomic.Int64
	blocksWritten      atomic.Int64
	bytesScanned       atomic.Int64
	bytesWritten       atomic.Int64
	blocksUndetermined atomic.Int64
	destReadRetries    atomic.Int64
	blocksTotal        atomic.Int64
	bytesTotal         atomic.Int64
	startTime          time.Time
	lastUpdate         atomic.Int64 // unix nanos

	// Ring buffer — written only by the presenter's Tick(), not the pipeline.
	mu         sync.Mutex
	throughput [ringSize]int64 // scanned-bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	c := &Collector{startTime: time.Now()}
	c.lastUpdate.Store(c.startTime.UnixNano())
	return c
}

// SetTotals records the sync range (called once after sizing).
func (c *Collector) SetTotals(blocks, bytes int64) {
	c.blocksTotal.Store(blocks)
	c.bytesTotal.Store(bytes)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BlocksScanned      int64
	BlocksWritten      int64
	BytesScanned       int64
	BytesWritten       int64
	BlocksUndetermined int64
	DestReadRetries    int64
	BlocksTotal        int64
	BytesTotal         int64
	StartedAt          time.Time
	LastUpdateAt       time.Time
	Elapsed            time.Duration
}

// RecordScanned accounts one compared block of n bytes.
func (c *Collector) RecordScanned(n int64) {
	c.blocksScanned.Add(1)
	c.bytesScanned.Add(n)
	c.touch()
}

// RecordWritten accounts one rewritten block of n bytes.
func (c *Collector) RecordWritten(n int64) {
	c.blocksWritten.Add(1)
	c.bytesWritten.Add(n)
	c.touch()
}

// RecordUndetermined accounts a block whose state could not be read
// (dry-run destination read failures).
func (c *Collector) RecordUndetermined() {
	c.blocksUndetermined.Add(1)
	c.touch()
}

// RecordDestReadRetry accounts one retried destination read.
func (c *Collector) RecordDestReadRetry() {
	c.destReadRetries.Add(1)
}

func (c *Collector) touch() {
	c.lastUpdate.Store(time.Now().UnixNano())
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		BlocksScanned:      c.blocksScanned.Load(),
		BlocksWritten:      c.blocksWritten.Load(),
		BytesScanned:       c.bytesScanned.Load(),
		BytesWritten:       c.bytesWritten.Load(),
		BlocksUndetermined: c.blocksUndetermined.Load(),
		DestReadRetries:    c.destReadRetries.Load(),
		BlocksTotal:        c.blocksTotal.Load(),
		BytesTotal:         c.bytesTotal.Load(),
		StartedAt:          c.startTime,
		LastUpdateAt:       time.Unix(0, c.lastUpdate.Load()),
		Elapsed:            c.Elapsed(),
	}
}

// Tick snapshots the scanned-bytes delta into the ring buffer. Called 1/sec
// by the presenter.
func (c *Collector) Tick() {
	current := c.bytesScanned.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	delta := current - c.lastBytes
	c.lastBytes = current

	c.throughput[c.ringIdx] = delta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average scanned bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := seconds
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesScanned.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d written=%d bytes_scanned=%d bytes_written=%d retries=%d",
		s.BlocksScanned, s.BlocksWritten, s.BytesScanned, s.BytesWritten, s.DestReadRetries,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	c.SetTotals(10, 10*4096)

	c.RecordScanned(4096)
	c.RecordScanned(4096)
	c.RecordWritten(4096)
	c.RecordUndetermined()
	c.RecordDestReadRetry()
	c.RecordDestReadRetry()

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.BlocksScanned)
	assert.Equal(t, int64(8192), s.BytesScanned)
	assert.Equal(t, int64(1), s.BlocksWritten)
	assert.Equal(t, int64(4096), s.BytesWritten)
	assert.Equal(t, int64(1), s.BlocksUndetermined)
	assert.Equal(t, int64(2), s.DestReadRetries)
	assert.Equal(t, int64(10), s.BlocksTotal)
	assert.Equal(t, int64(10*4096), s.BytesTotal)
}

func TestCollector_ConcurrentWrites(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.RecordScanned(100)
				c.RecordWritten(50)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(8000), s.BlocksScanned)
	assert.Equal(t, int64(800000), s.BytesScanned)
	assert.Equal(t, int64(8000), s.BlocksWritten)
	assert.Equal(t, int64(400000), s.BytesWritten)
}

func TestCollector_RollingSpeed(t *testing.T) {
	c := NewCollector()

	assert.Equal(t, float64(0), c.RollingSpeed(10), "no samples yet")

	c.RecordScanned(1000)
	c.Tick()
	c.RecordScanned(3000)
	c.Tick()

	assert.Equal(t, float64(2000), c.RollingSpeed(2))
	assert.Equal(t, float64(2000), c.RollingSpeed(60), "clamped to sample count")
	assert.Equal(t, float64(3000), c.RollingSpeed(1), "latest sample only")
}

func TestCollector_ETA(t *testing.T) {
	c := NewCollector()
	c.SetTotals(100, 100000)

	assert.Equal(t, time.Duration(0), c.ETA(), "no speed yet")

	c.RecordScanned(10000)
	c.Tick()

	// 90000 remaining at 10000/s.
	assert.Equal(t, 9*time.Second, c.ETA())
}

func TestCollector_ETAComplete(t *testing.T) {
	c := NewCollector()
	c.SetTotals(1, 1000)
	c.RecordScanned(1000)
	c.Tick()

	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestCollector_Elapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Elapsed(), 10*time.Millisecond)
}

func TestSnapshot_String(t *testing.T) {
	c := NewCollector()
	c.RecordScanned(512)
	c.RecordWritten(512)

	s := c.Snapshot().String()
	require.Contains(t, s, "scanned=1")
	require.Contains(t, s, "written=1")
	require.Contains(t, s, "bytes_written=512")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{4 << 20, "4.0 MiB"},
		{3 << 30, "3.0 GiB"},
		{2 << 40, "2.0 TiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), "FormatBytes(%d)", tt.in)
	}
}

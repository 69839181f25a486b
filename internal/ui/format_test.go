package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mwfern/blocksync/internal/stats"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B/s"},
		{-5, "0 B/s"},
		{5.25, "5.25 B/s"},
		{42.5, "42.5 B/s"},
		{512, "512 B/s"},
		{2048, "2.00 KB/s"},
		{5 << 20, "5.00 MB/s"},
		{float64(3) * 1024 * 1024 * 1024, "3.00 GB/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRate(tt.in), "FormatRate(%v)", tt.in)
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "--"},
		{-time.Second, "--"},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute + 3*time.Second, "2h 05m 03s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatETA(tt.in), "FormatETA(%v)", tt.in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "3m 02s", FormatDuration(182*time.Second))
	assert.Equal(t, "1h 00m 00s", FormatDuration(time.Hour))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "", ProgressBar(0.5, 0))
	assert.Equal(t, "□□□□□□□□□□", ProgressBar(0, 10))
	assert.Equal(t, "▪▪▪▪▪□□□□□", ProgressBar(0.5, 10))
	assert.Equal(t, "▪▪▪▪▪▪▪▪▪▪", ProgressBar(1, 10))
	assert.Equal(t, "▪▪▪▪▪▪▪▪▪▪", ProgressBar(1.5, 10), "clamped above")
	assert.Equal(t, "□□□□□□□□□□", ProgressBar(-0.5, 10), "clamped below")
}

func TestCompletionSummary(t *testing.T) {
	s := stats.Snapshot{
		BytesScanned:  10 << 20,
		BlocksScanned: 10,
		BytesWritten:  2 << 20,
		BlocksWritten: 2,
		Elapsed:       3 * time.Second,
	}

	got := CompletionSummary(s, false)
	assert.Contains(t, got, "scanned 10.0 MiB in 10 blocks")
	assert.Contains(t, got, "written 2.0 MiB (2 blocks)")
	assert.Contains(t, got, "in 3s")

	dry := CompletionSummary(s, true)
	assert.Contains(t, dry, "would write 2.0 MiB (2 blocks)")
}

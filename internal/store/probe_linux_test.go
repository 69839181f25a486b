//go:build linux

package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpen_BlockDevice probes a real block device when one is readable,
// exercising the BLKGETSIZE64/BLKSSZGET path that stat cannot cover.
func TestOpen_BlockDevice(t *testing.T) {
	entries, err := os.ReadDir("/sys/block")
	if err != nil || len(entries) == 0 {
		t.Skip("no block devices visible")
	}

	for _, e := range entries {
		dev := "/dev/" + e.Name()
		h, err := Open(dev, Options{})
		if err != nil {
			// Not readable by this user; try the next one.
			continue
		}
		defer h.Close()

		assert.True(t, h.IsDevice())
		assert.GreaterOrEqual(t, h.Size(), int64(0))
		assert.GreaterOrEqual(t, h.Alignment(), int64(512))

		if h.Size() > 0 {
			buf := make([]byte, h.Alignment())
			n, err := h.ReadAt(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, len(buf), n)
		}
		return
	}
	t.Skip("no readable block device")
}

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBlockSize = 1024

// patternData returns deterministic pseudo-random bytes so block
// comparisons never collide by accident.
func patternData(n int, seed byte) []byte {
	data := make([]byte, n)
	x := uint32(seed) + 1
	for i := range data {
		x = x*1664525 + 1013904223
		data[i] = byte(x >> 24)
	}
	return data
}

// writeFile creates a file with the given content and returns its path.
func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// mutateBlock flips one byte inside block idx of data.
func mutateBlock(data []byte, idx int) {
	data[idx*testBlockSize+17] ^= 0xFF
}

// readBack returns the current content of path.
func readBack(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// runSync executes the engine with test defaults: small block size, private
// checkpoint directory, no resume unless requested.
func runSync(t *testing.T, cfg Config) Result {
	t.Helper()
	if cfg.BlockSize == 0 {
		cfg.BlockSize = testBlockSize
	}
	return Run(context.Background(), cfg)
}

// setupLedgerDir points checkpoint storage at a private temp dir.
func setupLedgerDir(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
}

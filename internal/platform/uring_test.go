package platform

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingDetection(t *testing.T) {
	// Just verify the probe doesn't panic.
	supported := KernelSupportsIOURing()
	t.Logf("io_uring supported: %v", supported)
}

func TestRingReadWrite(t *testing.T) {
	ring, err := NewRing(8)
	if ring == nil {
		t.Skip("io_uring not available on this kernel")
	}
	require.NoError(t, err)
	defer ring.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	data := make([]byte, 2*1024*1024)
	_, err = rand.Read(data)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer f.Close()
	fd := int32(f.Fd())

	n, err := ring.WriteAt(fd, data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = ring.ReadAt(fd, got, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, got)
}

func TestRingReadAtOffset(t *testing.T) {
	ring, err := NewRing(8)
	if ring == nil {
		t.Skip("io_uring not available on this kernel")
	}
	require.NoError(t, err)
	defer ring.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(path, []byte("AAAA_BBBB_CCCC"), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 4)
	n, err := ring.ReadAt(int32(f.Fd()), buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("BBBB"), buf)
}

func TestRingCloseNil(t *testing.T) {
	var ring *Ring
	assert.NoError(t, ring.Close())
}

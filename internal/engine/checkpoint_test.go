package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_OpenClose(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	l, err := OpenLedger("/src", "/dst")
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.FileExists(t, l.Path())
	require.NoError(t, l.Close())
}

func TestLedger_SaveLoad(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	l, err := OpenLedger("/src", "/dst")
	require.NoError(t, err)
	defer l.Close()

	// Empty ledger loads as absent.
	cp, err := l.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)

	saved := Checkpoint{
		LastConfirmed: 41,
		BlockSize:     1 << 20,
		SrcHint:       "aa:100",
		DstHint:       "bb:100",
		SessionID:     "s1",
	}
	require.NoError(t, l.Save(saved))

	cp, err = l.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, saved, *cp)
}

func TestLedger_SaveReplaces(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	l, err := OpenLedger("/src", "/dst")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Save(Checkpoint{LastConfirmed: 10, BlockSize: 4096}))
	require.NoError(t, l.Save(Checkpoint{LastConfirmed: 20, BlockSize: 4096}))

	cp, err := l.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(20), cp.LastConfirmed)
}

func TestLedger_Clear(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	l, err := OpenLedger("/src", "/dst")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Save(Checkpoint{LastConfirmed: 5, BlockSize: 4096}))
	require.NoError(t, l.Clear())

	cp, err := l.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestLedger_PersistsAcrossOpens(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	l, err := OpenLedger("/src", "/dst")
	require.NoError(t, err)
	require.NoError(t, l.Save(Checkpoint{LastConfirmed: 99, BlockSize: 4096, SrcHint: "a", DstHint: "b"}))
	require.NoError(t, l.Close())

	l, err = OpenLedger("/src", "/dst")
	require.NoError(t, err)
	defer l.Close()

	cp, err := l.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(99), cp.LastConfirmed)
	assert.Equal(t, "a", cp.SrcHint)
}

func TestLedger_JournalMode(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	l, err := OpenLedger("/src", "/dst")
	require.NoError(t, err)
	defer l.Close()

	// The DSN pragmas must actually reach the driver.
	var mode string
	require.NoError(t, l.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, l.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestCheckpointMatches(t *testing.T) {
	cp := &Checkpoint{BlockSize: 4096, SrcHint: "src:100", DstHint: "dst:100"}

	assert.True(t, cp.Matches(4096, "src:100", "dst:100"))
	assert.False(t, cp.Matches(8192, "src:100", "dst:100"), "block size mismatch")
	assert.False(t, cp.Matches(4096, "src:200", "dst:100"), "source identity mismatch")
	assert.False(t, cp.Matches(4096, "src:100", "dst:200"), "destination identity mismatch")

	var absent *Checkpoint
	assert.False(t, absent.Matches(4096, "src:100", "dst:100"))
}

func TestIdentityHint(t *testing.T) {
	h1 := IdentityHint("/some/path", 1000)
	h2 := IdentityHint("/some/path", 1000)
	h3 := IdentityHint("/some/path", 2000)
	h4 := IdentityHint("/other/path", 1000)

	assert.Equal(t, h1, h2, "same path and size should produce the same hint")
	assert.NotEqual(t, h1, h3, "size change must invalidate the hint")
	assert.NotEqual(t, h1, h4, "path change must invalidate the hint")
}

func TestLedgerJobIDDeterminism(t *testing.T) {
	id1 := ledgerJobID("/src/a", "/dst/b")
	id2 := ledgerJobID("/src/a", "/dst/b")
	id3 := ledgerJobID("/src/a", "/dst/c")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

package engine

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// Checkpoint records synchronization progress for resume. It is only valid
// for a resume attempt when the block size and both identity hints match the
// current invocation.
type Checkpoint struct {
	LastConfirmed int64 // highest block index confirmed in sync with the source
	BlockSize     int64
	SrcHint       string
	DstHint       string
	SessionID     string
}

// Ledger is SQLite-backed resume state for interrupted runs. It is
// best-effort: losing it only costs re-scanning from the start, never
// corruption, because re-scanning an already-synchronized block is a no-op.
type Ledger struct {
	db   *sql.DB
	path string
}

// OpenLedger opens (or creates) the ledger for the given source/destination
// pair. The DB is stored at $XDG_RUNTIME_DIR/blocksync/<job-id>.db or
// /tmp/blocksync-<job-id>.db.
func OpenLedger(src, dst string) (*Ledger, error) {
	dbPath := ledgerPath(ledgerJobID(src, dst))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	l := &Ledger{db: db, path: dbPath}
	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) init() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS progress (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			last_confirmed INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Load returns the stored checkpoint, or nil if none has been saved.
func (l *Ledger) Load() (*Checkpoint, error) {
	var cp Checkpoint
	err := l.db.QueryRow("SELECT last_confirmed FROM progress WHERE id = 1").
		Scan(&cp.LastConfirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	rows, err := l.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		switch key {
		case "block_size":
			if _, err := fmt.Sscanf(value, "%d", &cp.BlockSize); err != nil {
				return nil, fmt.Errorf("parse block_size %q: %w", value, err)
			}
		case "src_hint":
			cp.SrcHint = value
		case "dst_hint":
			cp.DstHint = value
		case "session_id":
			cp.SessionID = value
		}
	}
	return &cp, rows.Err()
}

// Save persists the checkpoint, replacing any prior one.
func (l *Ledger) Save(cp Checkpoint) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES
		('block_size', ?), ('src_hint', ?), ('dst_hint', ?), ('session_id', ?)`,
		fmt.Sprintf("%d", cp.BlockSize), cp.SrcHint, cp.DstHint, cp.SessionID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store meta: %w", err)
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO progress (id, last_confirmed, updated_at)
		VALUES (1, ?, ?)`, cp.LastConfirmed, time.Now().UnixNano())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Clear discards all checkpoint state. Called after a fully successful run
// so the next invocation scans from block zero.
func (l *Ledger) Clear() error {
	if _, err := l.db.Exec("DELETE FROM progress; DELETE FROM meta;"); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the path to the ledger database file.
func (l *Ledger) Path() string {
	return l.path
}

// Matches reports whether the checkpoint is valid for the given invocation.
// Any mismatch means the layout may have changed underneath the ledger, so
// the run restarts from block zero.
func (cp *Checkpoint) Matches(blockSize int64, srcHint, dstHint string) bool {
	return cp != nil &&
		cp.BlockSize == blockSize &&
		cp.SrcHint == srcHint &&
		cp.DstHint == dstHint
}

// IdentityHint derives a self-validating identity for one endpoint from its
// resolved path and probed length. Size changes invalidate old checkpoints.
func IdentityHint(path string, size int64) string {
	resolved, err := filepath.Abs(path)
	if err != nil {
		resolved = path
	}
	if linked, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = linked
	}
	h := blake3.New()
	h.Write([]byte(resolved))
	digest := h.Sum(nil)
	return fmt.Sprintf("%s:%d", hex.EncodeToString(digest[:8]), size)
}

// ledgerJobID computes a deterministic job ID from source and destination paths.
func ledgerJobID(src, dst string) string {
	h := blake3.New()
	h.Write([]byte(src))
	h.Write([]byte{0})
	h.Write([]byte(dst))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// ledgerPath returns the filesystem path for a ledger DB.
func ledgerPath(jobID string) string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "blocksync", jobID+".db")
	}
	return filepath.Join(os.TempDir(), "blocksync-"+jobID+".db")
}

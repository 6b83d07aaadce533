package upload

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB remembers which export files have already been accepted by the
// server, keyed by file name with size and content hash to catch rewrites.
// The server-assigned batch id is stored alongside so a local file can be
// traced back to its ingest batch.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sent_exports (
		path     TEXT PRIMARY KEY,
		size     INTEGER NOT NULL,
		sha256   TEXT NOT NULL,
		batch_id TEXT NOT NULL DEFAULT '',
		sent_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// AlreadySent reports whether this exact file content was already accepted.
// A changed size or hash means the export was rewritten and must be re-sent.
func (s *StateDB) AlreadySent(relPath string, size int64, hash string) (bool, error) {
	var storedSize int64
	var storedHash string
	err := s.db.QueryRow(
		`SELECT size, sha256 FROM sent_exports WHERE path = ?`, relPath,
	).Scan(&storedSize, &storedHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return storedSize == size && storedHash == hash, nil
}

// MarkSent records that the server accepted this file under the given batch.
func (s *StateDB) MarkSent(relPath string, size int64, hash, batchID string) error {
	_, err := s.db.Exec(
		`INSERT INTO sent_exports (path, size, sha256, batch_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET size = excluded.size, sha256 = excluded.sha256,
		 batch_id = excluded.batch_id, sent_at = CURRENT_TIMESTAMP`,
		relPath, size, hash, batchID,
	)
	return err
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// HashFile computes the SHA-256 hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Package sqlite implements the storage adapter on an embedded SQLite
// database.
//
// The database runs in embedded mode with WAL so a long-lived daemon and a
// one-shot CLI invocation can share the same file. Each authenticated
// identity gets its own database file under the data directory, which keeps
// account switches from mixing task namespaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tasksync/tasksync/internal/storage"
)

// Store is a storage.Adapter backed by a single SQLite file.
type Store struct {
	conn *sql.DB
	path string
}

var _ storage.Adapter = (*Store)(nil)

// Path returns the database file location for an identity inside dataDir.
func Path(dataDir, identity string) string {
	if identity == "" {
		identity = "default"
	}
	return filepath.Join(dataDir, identity, "tasksync.db")
}

// Open creates (if necessary) and opens the database at path.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL mode allows concurrent readers during writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    record     TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// GetAll implements storage.Adapter.
func (s *Store) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT record FROM records WHERE collection = ? ORDER BY id", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", collection, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s records: %w", collection, err)
	}
	return records, nil
}

// Put implements storage.Adapter.
func (s *Store) Put(ctx context.Context, collection, id string, record []byte) error {
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO records (collection, id, record, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET
    record = excluded.record,
    updated_at = excluded.updated_at`,
		collection, id, record, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements storage.Adapter.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Clear implements storage.Adapter.
func (s *Store) Clear(ctx context.Context, collection string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ?", collection)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", collection, err)
	}
	return nil
}

// Close closes the database connection after a WAL checkpoint.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

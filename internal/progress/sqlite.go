package progress

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS import_progress (
	kind              TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	batches_completed INTEGER NOT NULL,
	total_batches     INTEGER NOT NULL,
	updated_at        TEXT NOT NULL DEFAULT ''
)`

// SQLiteBackend stores the checkpoint in a table of a SQLite database.
// Save replaces all rows in a single transaction.
type SQLiteBackend struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		if isNotADatabase(err) {
			return nil, &CorruptError{Location: path, Err: err}
		}
		return nil, fmt.Errorf("create progress table: %w", err)
	}
	return &SQLiteBackend{path: path, db: db}, nil
}

// Location returns the database path.
func (b *SQLiteBackend) Location() string { return b.path }

// Close closes the database.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Load reads every row.
func (b *SQLiteBackend) Load() (map[string]Record, error) {
	rows, err := b.db.Query(`SELECT kind, status, batches_completed, total_batches, updated_at FROM import_progress`)
	if err != nil {
		if isNotADatabase(err) {
			return nil, &CorruptError{Location: b.path, Err: err}
		}
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var (
			kind, status, updated string
			rec                   Record
		)
		if err := rows.Scan(&kind, &status, &rec.BatchesCompleted, &rec.TotalBatches, &updated); err != nil {
			return nil, &CorruptError{Location: b.path, Kind: kind, Err: err}
		}
		rec.Status = Status(status)
		if updated != "" {
			t, err := time.Parse(time.RFC3339, updated)
			if err != nil {
				return nil, &CorruptError{Location: b.path, Kind: kind, Err: fmt.Errorf("updated_at: %w", err)}
			}
			rec.UpdatedAt = t
		}
		records[kind] = rec
	}
	return records, rows.Err()
}

// Save replaces the stored rows.
func (b *SQLiteBackend) Save(records map[string]Record) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM import_progress`); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO import_progress (kind, status, batches_completed, total_batches, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for kind, rec := range records {
		updated := ""
		if !rec.UpdatedAt.IsZero() {
			updated = rec.UpdatedAt.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.Exec(kind, string(rec.Status), rec.BatchesCompleted, rec.TotalBatches, updated); err != nil {
			return fmt.Errorf("insert %s: %w", kind, err)
		}
	}

	return tx.Commit()
}

// Clear deletes every row.
func (b *SQLiteBackend) Clear() error {
	_, err := b.db.Exec(`DELETE FROM import_progress`)
	return err
}

// Lock takes an exclusive lock on a sibling .lock file.
func (b *SQLiteBackend) Lock() (func() error, error) {
	return LockCheckpoint(b.path)
}

// RemoveSQLite deletes the database at path together with its journal
// files. Missing files are ignored.
func RemoveSQLite(path string) error {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func isNotADatabase(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not a database")
}

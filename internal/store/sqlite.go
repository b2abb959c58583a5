package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteMetadata implements Metadata on a single SQLite database. The
// (name, version) primary key is the uniqueness fence that arbitrates
// concurrent version assignment.
type SQLiteMetadata struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the metadata database at path.
func OpenSQLite(path string) (*SQLiteMetadata, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent reads while writes are serialized
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=500"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS zones (
		name        TEXT NOT NULL,
		version     INTEGER NOT NULL,
		file_path   TEXT NOT NULL,
		file_size   INTEGER NOT NULL,
		description TEXT,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (name, version)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteMetadata{db: db}, nil
}

func (m *SQLiteMetadata) Close() error {
	return m.db.Close()
}

// Insert adds a record. A duplicate (name, version) returns
// ErrVersionConflict.
func (m *SQLiteMetadata) Insert(rec Record) error {
	_, err := m.db.Exec(`
		INSERT INTO zones (name, version, file_path, file_size, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Version, rec.FilePath, rec.FileSize,
		nullableString(rec.Description),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

func (m *SQLiteMetadata) Get(name string, version int) (*Record, error) {
	row := m.db.QueryRow(`
		SELECT name, version, file_path, file_size, description, created_at
		FROM zones WHERE name = ? AND version = ?`, name, version)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *SQLiteMetadata) MaxVersion(name string) (int, error) {
	var max int
	err := m.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM zones WHERE name = ?`, name,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (m *SQLiteMetadata) List(name string, latestOnly bool) ([]Record, error) {
	query := `
		SELECT z.name, z.version, z.file_path, z.file_size, z.description, z.created_at
		FROM zones z`
	if latestOnly {
		query += `
		JOIN (SELECT name, MAX(version) AS version FROM zones GROUP BY name) latest
		  ON z.name = latest.name AND z.version = latest.version`
	}

	var args []any
	if name != "" {
		query += ` WHERE z.name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY z.name ASC, z.version DESC`

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Delete removes one record. Returns whether a row existed.
func (m *SQLiteMetadata) Delete(name string, version int) (bool, error) {
	res, err := m.db.Exec(`DELETE FROM zones WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var description sql.NullString
	var createdAt string

	if err := row.Scan(&rec.Name, &rec.Version, &rec.FilePath, &rec.FileSize, &description, &createdAt); err != nil {
		return nil, err
	}
	rec.Description = description.String

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

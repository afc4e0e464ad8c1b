package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the optional SQLite-backed persistence layer described by
// SPEC_FULL §3: it snapshots (code id, guard text, hit count) rows that
// outlive the process and can be read back with LoadStats. It is additive
// only — Store is never consulted to decide whether to skip a translation,
// and Metrics and the CLI report do not read the persisted counts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) a SQLite database at path and
// ensures the cache_entries table exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening store %q: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			code_name  TEXT NOT NULL,
			guard_text TEXT NOT NULL,
			hit_count  INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (code_name, guard_text)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: creating cache_entries table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordEntry inserts a new (code_name, guard_text) row, or bumps its
// updated_at if it already exists, leaving hit_count for RecordHit to grow.
func (s *Store) RecordEntry(codeName, guardText string) error {
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (code_name, guard_text, hit_count, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (code_name, guard_text) DO UPDATE SET updated_at = excluded.updated_at
	`, codeName, guardText, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache: recording entry for %q: %w", codeName, err)
	}
	return nil
}

// RecordHit increments the persisted hit count for one (code_name,
// guard_text) pair. The count is only read back through LoadStats;
// Metrics.Snapshot's hotspot ranking is not seeded from it.
func (s *Store) RecordHit(codeName, guardText string) error {
	_, err := s.db.Exec(`
		UPDATE cache_entries SET hit_count = hit_count + 1, updated_at = ?
		WHERE code_name = ? AND guard_text = ?
	`, time.Now().UTC().Format(time.RFC3339), codeName, guardText)
	if err != nil {
		return fmt.Errorf("cache: recording hit for %q: %w", codeName, err)
	}
	return nil
}

// EntryStats is one persisted row, used to seed a warm-start report.
type EntryStats struct {
	CodeName  string
	GuardText string
	HitCount  int64
	UpdatedAt string
}

// LoadStats returns every persisted row ordered by hit count descending,
// the shape the CLI's warm-start report iterates over.
func (s *Store) LoadStats() ([]EntryStats, error) {
	rows, err := s.db.Query(`
		SELECT code_name, guard_text, hit_count, updated_at
		FROM cache_entries
		ORDER BY hit_count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("cache: loading stats: %w", err)
	}
	defer rows.Close()

	var out []EntryStats
	for rows.Next() {
		var e EntryStats
		if err := rows.Scan(&e.CodeName, &e.GuardText, &e.HitCount, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("cache: scanning stats row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

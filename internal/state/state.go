package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store persists per-source cursor and dedup-window snapshots in a small
// SQLite database. It narrows the restart boundary: a restored cursor may
// replay or miss items right at the boundary, never beyond it.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent directories
// as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS watch_state (
		source TEXT PRIMARY KEY,
		cursor INTEGER NOT NULL DEFAULT 0,
		seen TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Load returns the saved cursor and dedup window for source. A source with
// no saved row gets zero values, which sources treat as "start fresh".
func (s *Store) Load(source string) (uint32, []string, error) {
	var cursor uint32
	var seenJSON string

	err := s.db.QueryRow(
		"SELECT cursor, seen FROM watch_state WHERE source = ?", source,
	).Scan(&cursor, &seenJSON)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load state for %s: %w", source, err)
	}

	var seen []string
	if err := json.Unmarshal([]byte(seenJSON), &seen); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("Discarding corrupt dedup snapshot")
		return cursor, nil, nil
	}

	return cursor, seen, nil
}

// Save upserts the snapshot for source. Implements watch.StateStore.
func (s *Store) Save(source string, cursor uint32, seen []string) error {
	if seen == nil {
		seen = []string{}
	}
	seenJSON, err := json.Marshal(seen)
	if err != nil {
		return fmt.Errorf("failed to marshal dedup snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO watch_state (source, cursor, seen, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source) DO UPDATE SET
			cursor = excluded.cursor,
			seen = excluded.seen,
			updated_at = excluded.updated_at
	`, source, cursor, string(seenJSON))
	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", source, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

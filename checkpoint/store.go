package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no checkpoint exists for a key.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists checkpoint blobs in SQLite. The engine itself never
// touches storage; hosts hand blobs to a Store when they want
// durability.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and applies the
// schema. Configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, a 5-second busy timeout, and a single writer
// connection. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists one checkpoint blob under (replayID, index). Saving the
// same key twice replaces the blob; checkpoints are content-addressed,
// so a replacement under the determinism contract is byte-identical.
func (s *Store) Save(ctx context.Context, replayID string, index int, stateHash string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (replay_id, idx, state_hash, blob) VALUES (?, ?, ?, ?)`,
		replayID, index, stateHash, blob)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s/%d: %w", replayID, index, err)
	}
	return nil
}

// Load returns the blob stored under (replayID, index).
func (s *Store) Load(ctx context.Context, replayID string, index int) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM checkpoints WHERE replay_id = ? AND idx = ?`,
		replayID, index).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, replayID, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s/%d: %w", replayID, index, err)
	}
	return blob, nil
}

// Latest returns the highest-index blob for a replay and its index.
func (s *Store) Latest(ctx context.Context, replayID string) ([]byte, int, error) {
	var (
		blob  []byte
		index int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT blob, idx FROM checkpoints WHERE replay_id = ? ORDER BY idx DESC LIMIT 1`,
		replayID).Scan(&blob, &index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, replayID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load latest checkpoint for %s: %w", replayID, err)
	}
	return blob, index, nil
}

// List returns the committed indices with stored checkpoints for a
// replay, ascending.
func (s *Store) List(ctx context.Context, replayID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx FROM checkpoints WHERE replay_id = ? ORDER BY idx ASC`, replayID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for %s: %w", replayID, err)
	}
	defer rows.Close()

	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

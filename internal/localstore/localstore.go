// Package localstore is the client's durable key/value storage — the Go
// analogue of the browser's localStorage. The dashboard keeps exactly one
// piece of durable state in it: the bearer token, under a single
// well-known key. Absence of the key means "no session".
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — why SQLite for a single key?
// ────────────────────────────────────────────────────────────────────
// Browsers back localStorage with SQLite for the same reasons we do:
// writes are atomic (no torn token on a crash mid-write), the file
// format is stable across versions, and concurrent readers are safe.
// A plain text file would need fsync-and-rename dances to get the same
// guarantees; the database gives them to us for free. modernc.org/sqlite
// is a pure-Go port, so the client still cross-compiles without CGo.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// Blank import: the modernc driver registers itself with
	// database/sql under the name "sqlite" when this package loads.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when the key has never been set or has
// been removed. Callers treat it as an ordinary absent signal, not a fault.
var ErrNotFound = errors.New("localstore: key not found")

// Store is the durable storage contract. Two implementations exist: the
// SQLite-backed store used by the real client, and the in-memory store
// used by tests (and by callers that explicitly opt out of persistence).
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// SQLiteStore persists keys in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the store at dsn and ensures the schema exists.
//
// Recommended DSN format for modernc.org/sqlite:
//
//	"wastewatch.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// MemoryStore is a map-backed Store for tests. The mutex matters: the
// live channel's read goroutine can consult the session (and therefore
// the store) while the test goroutine mutates it.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

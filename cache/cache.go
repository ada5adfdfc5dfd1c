// Package cache stores compiled bytecode in SQLite, keyed by the hash of
// the program's syntax tree. Two sources that differ only in layout share
// an entry.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/jsvm/vm"
	"github.com/chazu/jsvm/vm/wire"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested key has no cached bytecode.
var ErrNotFound = errors.New("cache: entry not found")

var log = commonlog.GetLogger("jsvm.cache")

// Store handles SQLite storage for compiled programs.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path. Use ":memory:" for a
// private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS bytecode (
		key     TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data    BLOB NOT NULL,
		hits    INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened bytecode cache %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Put stores bc under key, replacing any previous entry.
func (s *Store) Put(key string, bc *vm.Bytecode) error {
	data, err := wire.Marshal(bc, key)
	if err != nil {
		return fmt.Errorf("encoding bytecode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO bytecode (key, version, data, hits) VALUES (?, ?, ?, 0)",
		key, wire.Version, data,
	)
	if err != nil {
		return fmt.Errorf("saving bytecode: %w", err)
	}
	return nil
}

// Get returns the bytecode cached under key. Entries written by another
// wire version are dropped and reported as not found.
func (s *Store) Get(key string) (*vm.Bytecode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		version int
		data    []byte
	)
	err := s.db.QueryRow("SELECT version, data FROM bytecode WHERE key = ?", key).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying bytecode: %w", err)
	}

	bc, err := wire.Unmarshal(data)
	if version != wire.Version || err != nil {
		log.Warningf("dropping unreadable cache entry %s: version %d: %v", key, version, err)
		if _, derr := s.db.Exec("DELETE FROM bytecode WHERE key = ?", key); derr != nil {
			return nil, fmt.Errorf("deleting stale entry: %w", derr)
		}
		return nil, ErrNotFound
	}

	if _, err := s.db.Exec("UPDATE bytecode SET hits = hits + 1 WHERE key = ?", key); err != nil {
		return nil, fmt.Errorf("recording hit: %w", err)
	}
	return bc, nil
}

// Stats reports the number of entries and total recorded hits.
func (s *Store) Stats() (entries, hits int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(hits), 0) FROM bytecode").Scan(&entries, &hits)
	if err != nil {
		return 0, 0, fmt.Errorf("querying stats: %w", err)
	}
	return entries, hits, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM bytecode"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

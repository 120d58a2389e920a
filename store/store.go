// Package store is a content-addressed cache of compiled templates.
//
// Entries are keyed by the SHA-256 of the template source and hold the
// bytecode tree in CBOR form together with the diagnostics the compile
// produced, so a cache hit replays exactly what a fresh compile would.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/stencil/compiler"
	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
)

// FormatVersion is bumped whenever the stored encoding changes. Rows with
// another version are treated as misses.
const FormatVersion = 1

// ErrNotFound is returned by Get when no entry exists for a key.
var ErrNotFound = errors.New("template not found in cache")

var log = commonlog.GetLogger("stencil.store")

// Entry is one cached compile.
type Entry struct {
	Code     *bytecode.Root
	Errors   []diag.Error
	Complete bool
}

// Stats counts lookups since Open.
type Stats struct {
	Hits    int
	Misses  int
	Entries int
}

// Store wraps a SQLite database of compiled templates.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	hits   int
	misses int
}

// Open opens (or creates) the cache database at path. The special path
// ":memory:" gives a private in-memory cache.
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
	// One connection: an in-memory database is per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS templates (
			hash       TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			code       BLOB NOT NULL,
			errors     BLOB,
			complete   INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating templates table: %w", err)
	}
	log.Debugf("opened cache %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the cache key for a template source.
func Key(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Get loads the entry stored under key.
func (s *Store) Get(key string) (*Entry, error) {
	var (
		version  int
		code     []byte
		errBlob  []byte
		complete bool
	)
	err := s.db.QueryRow(
		"SELECT version, code, errors, complete FROM templates WHERE hash = ?", key,
	).Scan(&version, &code, &errBlob, &complete)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading template %s: %w", key, err)
	}
	if version != FormatVersion {
		return nil, ErrNotFound
	}

	root, err := bytecode.UnmarshalCBOR(code)
	if err != nil {
		return nil, fmt.Errorf("decoding template %s: %w", key, err)
	}
	entry := &Entry{Code: root, Complete: complete}
	if len(errBlob) > 0 {
		if err := cbor.Unmarshal(errBlob, &entry.Errors); err != nil {
			return nil, fmt.Errorf("decoding diagnostics for %s: %w", key, err)
		}
	}
	return entry, nil
}

// Put stores entry under key, replacing any previous row.
func (s *Store) Put(key string, entry *Entry) error {
	code, err := bytecode.MarshalCBOR(entry.Code)
	if err != nil {
		return err
	}
	var errBlob []byte
	if len(entry.Errors) > 0 {
		if errBlob, err = cbor.Marshal(entry.Errors); err != nil {
			return fmt.Errorf("encoding diagnostics: %w", err)
		}
	}

	complete := 0
	if entry.Complete {
		complete = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO templates (hash, version, code, errors, complete, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, FormatVersion, code, errBlob, complete, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving template %s: %w", key, err)
	}
	return nil
}

// Compile returns the compiled form of src, from the cache when present.
// A cache failure is logged and falls back to compiling; it never hides a
// result from the caller.
func (s *Store) Compile(src string) (*compiler.Result, bool) {
	key := Key(src)
	entry, err := s.Get(key)
	if err == nil {
		s.count(true)
		log.Debugf("cache hit %s", key[:12])
		return &compiler.Result{Code: entry.Code, Errors: entry.Errors, Complete: entry.Complete}, true
	}
	if !errors.Is(err, ErrNotFound) {
		log.Errorf("cache lookup failed: %v", err)
	}
	s.count(false)

	res := compiler.Compile(src)
	if err := s.Put(key, &Entry{Code: res.Code, Errors: res.Errors, Complete: res.Complete}); err != nil {
		log.Errorf("cache store failed: %v", err)
	}
	return res, false
}

func (s *Store) count(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// Stats reports lookup counters and the number of stored entries.
func (s *Store) Stats() (Stats, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM templates").Scan(&n); err != nil {
		return Stats{}, fmt.Errorf("counting templates: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Hits: s.hits, Misses: s.misses, Entries: n}, nil
}

// Purge deletes every entry.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM templates"); err != nil {
		return fmt.Errorf("purging templates: %w", err)
	}
	return nil
}

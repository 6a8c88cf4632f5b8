// Package store is the durable local cache: the first and authoritative
// write target for every mutation. Collections are persisted as namespaced
// JSON blobs, byte-compatible with the legacy storage layout, inside a
// single SQLite database. Every mutation is a synchronous read-modify-write
// of the whole collection under one lock; acceptable at personal-scale
// data volumes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Storage namespaces. Names are part of the on-disk format.
const (
	nsArticles = "readlater.articles"
	nsFolders  = "readlater.folders"
	nsSessions = "readlater.sessions"
	nsPrefs    = "readlater.prefs"
	nsPending  = "readlater.pending"
)

// Store owns the local cache database.
type Store struct {
	db     *sqlx.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// Open opens or creates the cache database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		namespace  TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// getBlob loads a namespace into dest. A missing namespace leaves dest
// untouched so callers start from their zero value.
func (s *Store) getBlob(namespace string, dest any) error {
	var data string
	err := s.db.QueryRow("SELECT data FROM kv WHERE namespace = ?", namespace).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", namespace, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("decode %s: %w", namespace, err)
	}
	return nil
}

// putBlob serializes and writes a namespace in one statement. The write is
// all-or-nothing: a serialization failure leaves the previous blob intact.
func (s *Store) putBlob(namespace string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO kv (namespace, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(namespace) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		namespace, string(data),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", namespace, err)
	}
	return nil
}

// Prefs returns the per-device preference map.
func (s *Store) Prefs() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := map[string]string{}
	if err := s.getBlob(nsPrefs, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetPref stores one preference key.
func (s *Store) SetPref(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := map[string]string{}
	if err := s.getBlob(nsPrefs, &prefs); err != nil {
		return err
	}
	prefs[key] = value
	return s.putBlob(nsPrefs, prefs)
}

// PendingIDs returns the ids of records with local changes not yet
// confirmed remotely.
func (s *Store) PendingIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingIDsLocked()
}

func (s *Store) pendingIDsLocked() ([]string, error) {
	var ids []string
	if err := s.getBlob(nsPending, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkPending records an id as awaiting remote confirmation.
func (s *Store) MarkPending(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.pendingIDsLocked()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return s.putBlob(nsPending, append(ids, id))
}

// ClearPending removes an id from the pending set.
func (s *Store) ClearPending(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.pendingIDsLocked()
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return s.putBlob(nsPending, kept)
}

// ClearAllPending empties the pending set. Used on sign-out so one
// account's unpushed writes can never replay against another account.
func (s *Store) ClearAllPending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putBlob(nsPending, []string{})
}

// Copyright 2025 sigaid authors
//
// Package kv wraps CometBFT's embedded key-value database for the
// Authority's persistent state: registry records, lease records, and
// state-chain entries.
//
// Adapted from the teacher's KVAdapter (pkg/kvdb/adapter.go), which wrapped
// the same dbm.DB interface for a ledger store; this version adds Has,
// Delete and a prefix iterator, which the lease and state-chain stores both
// need and the original ledger-only adapter didn't expose.
package kv

import (
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// ErrNotFound names a missing key. No Store method returns it: Get
// returns (nil, nil) for a missing key, matching dbm.DB's own convention.
var ErrNotFound = errors.New("kv: key not found")

// Store wraps a dbm.DB and exposes the subset of operations the rest of
// the core needs. All writes are synchronous (SetSync/DeleteSync) so a
// lease grant or state append is durable before the Authority acknowledges
// it.
type Store struct {
	db dbm.DB
}

// NewStore wraps an already-open dbm.DB.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

// OpenGoLevelDB opens (creating if absent) a goleveldb-backed store rooted
// at dataDir/name.db — the Authority's on-disk data directory layout.
func OpenGoLevelDB(name, dataDir string) (*Store, error) {
	db, err := dbm.NewGoLevelDB(name, dataDir)
	if err != nil {
		return nil, fmt.Errorf("kv: open goleveldb %q: %w", name, err)
	}
	return NewStore(db), nil
}

// Get returns the value for key, or (nil, nil) if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, nil
	}
	v, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	return v, nil
}

// Has reports whether key is present.
func (s *Store) Has(key []byte) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	ok, err := s.db.Has(key)
	if err != nil {
		return false, fmt.Errorf("kv: has: %w", err)
	}
	return ok, nil
}

// Set durably writes key to value.
func (s *Store) Set(key, value []byte) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.SetSync(key, value); err != nil {
		return fmt.Errorf("kv: set: %w", err)
	}
	return nil
}

// Delete durably removes key.
func (s *Store) Delete(key []byte) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.DeleteSync(key); err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// IteratePrefix calls fn for every key with the given prefix, in ascending
// key order, stopping early if fn returns false. Used for state-chain
// history range scans.
func (s *Store) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	if s.db == nil {
		return nil
	}
	end := prefixUpperBound(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return fmt.Errorf("kv: iterator: %w", err)
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// prefixUpperBound returns the smallest key that sorts after every key
// with the given prefix, for use as an iterator's exclusive end bound.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	// prefix is all 0xFF bytes: no upper bound within the keyspace.
	return nil
}

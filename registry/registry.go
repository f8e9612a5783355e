// Copyright 2025 sigaid authors
//
// Package registry is the Authority's record of known agents: their
// public key, free-form metadata, and reputation counter. It backs
// POST/GET /v1/agents and is the public-key source the lease manager and
// proof verifier consult.
package registry

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sigaid/core/kv"
)

// ErrAlreadyRegistered is returned by Register when agent_id is already
// present — the 409 case of POST /v1/agents.
var ErrAlreadyRegistered = errors.New("registry: agent already registered")

// ErrNotFound is returned when an agent_id has no record.
var ErrNotFound = errors.New("registry: agent not found")

// Record is one agent's registry entry.
type Record struct {
	AgentID         string            `json:"agent_id"`
	PublicKey       []byte            `json:"public_key"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ReputationScore float64           `json:"reputation_score"`
	RegisteredAt    time.Time         `json:"registered_at"`
}

// Store is the Authority's agent registry, backed by the shared kv.Store.
type Store struct {
	kv *kv.Store
}

// NewStore wraps a kv.Store as an agent registry.
func NewStore(store *kv.Store) *Store {
	return &Store{kv: store}
}

func recordKey(agentID string) []byte {
	return []byte("registry/agent/" + agentID)
}

// Register creates a new record for agentID. It fails with
// ErrAlreadyRegistered if one already exists.
func (s *Store) Register(agentID string, pub ed25519.PublicKey, metadata map[string]string) (Record, error) {
	key := recordKey(agentID)
	existing, err := s.kv.Get(key)
	if err != nil {
		return Record{}, err
	}
	if existing != nil {
		return Record{}, ErrAlreadyRegistered
	}

	rec := Record{
		AgentID:      agentID,
		PublicKey:    append([]byte(nil), pub...),
		Metadata:     metadata,
		RegisteredAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("registry: encode record: %w", err)
	}
	if err := s.kv.Set(key, raw); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record for agentID.
func (s *Store) Get(agentID string) (Record, error) {
	raw, err := s.kv.Get(recordKey(agentID))
	if err != nil {
		return Record{}, err
	}
	if raw == nil {
		return Record{}, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("registry: decode record: %w", err)
	}
	return rec, nil
}

// PublicKey is a convenience accessor the lease manager and proof
// verifier use on every request.
func (s *Store) PublicKey(agentID string) (ed25519.PublicKey, error) {
	rec, err := s.Get(agentID)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(rec.PublicKey), nil
}

// AdjustReputation adds delta to agentID's reputation score. The read and
// the write are not guarded by a lock, so concurrent calls for the same
// agent are not serialized.
func (s *Store) AdjustReputation(agentID string, delta float64) error {
	rec, err := s.Get(agentID)
	if err != nil {
		return err
	}
	rec.ReputationScore += delta
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: encode record: %w", err)
	}
	return s.kv.Set(recordKey(agentID), raw)
}

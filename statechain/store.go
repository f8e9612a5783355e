// Copyright 2025 sigaid authors

package statechain

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigaid/core/kv"
	"github.com/sigaid/core/wire"
)

// ErrFork is returned by Store.Append when a client proposes an entry that
// conflicts with the committed head: either the same-or-earlier sequence
// with different content, or sequence == head+1 with a prev_hash that
// doesn't match the head's entry_hash. A Fork is a hard error — the
// Authority never reconciles it.
type ErrFork struct {
	CurrentHead Entry
}

func (e *ErrFork) Error() string {
	return fmt.Sprintf("statechain: fork detected at sequence %d", e.CurrentHead.Sequence)
}

// ErrSequenceMismatch is returned when the proposed sequence isn't
// current_head.sequence + 1 and the entry is not a conflicting rewrite of
// a committed one: a sequence beyond head+1, a resubmission of an already
// committed entry, or a first entry whose sequence is not 0.
var ErrSequenceMismatch = errors.New("statechain: sequence mismatch")

// Store is the Authority-side persistent state chain: one hash-linked log
// per agent_id, with fork detection on every append.
type Store struct {
	kv    *kv.Store
	locks *kv.KeyLock
}

// NewStore wraps a kv.Store as a state-chain store.
func NewStore(store *kv.Store) *Store {
	return &Store{kv: store, locks: kv.NewKeyLock()}
}

func headKey(agentID string) []byte {
	return []byte("statechain/head/" + agentID)
}

func entryKey(agentID string, sequence int64) []byte {
	return []byte(fmt.Sprintf("statechain/entry/%s/%020d", agentID, sequence))
}

type headRecord struct {
	Sequence  int64  `json:"sequence"`
	EntryHash []byte `json:"entry_hash"`
}

// Head returns the current (sequence, entry_hash) for agentID, and false
// if the agent has no entries yet.
func (s *Store) Head(agentID string) (int64, [32]byte, bool, error) {
	raw, err := s.kv.Get(headKey(agentID))
	if err != nil {
		return 0, [32]byte{}, false, err
	}
	if raw == nil {
		return 0, [32]byte{}, false, nil
	}
	var hr headRecord
	if err := json.Unmarshal(raw, &hr); err != nil {
		return 0, [32]byte{}, false, fmt.Errorf("statechain: decode head record: %w", err)
	}
	var h [32]byte
	copy(h[:], hr.EntryHash)
	return hr.Sequence, h, true, nil
}

// Append validates and commits entry as the next step of agentID's chain.
// It verifies the entry's own signature/entry_hash under pub, checks the
// linkage against the committed head, and — on a match — persists the
// entry and advances the head atomically under a per-agent lock.
func (s *Store) Append(pub ed25519.PublicKey, entry Entry) error {
	agentID := string(entry.AgentID)

	if err := entry.Verify(pub); err != nil {
		return err
	}

	return s.locks.WithLock(agentID, func() error {
		headSeq, headHash, hasHead, err := s.Head(agentID)
		if err != nil {
			return err
		}

		if !hasHead {
			if entry.Sequence != 0 {
				return fmt.Errorf("%w: first entry must be sequence 0, got %d", ErrSequenceMismatch, entry.Sequence)
			}
			if entry.PrevHash != ZeroHash {
				return &ErrFork{CurrentHead: entry}
			}
		} else {
			switch {
			case entry.Sequence == headSeq+1:
				if entry.PrevHash != headHash {
					current, _ := s.getEntry(agentID, headSeq)
					return &ErrFork{CurrentHead: current}
				}
			case entry.Sequence <= headSeq:
				existing, err := s.getEntry(agentID, entry.Sequence)
				if err == nil && existing.EntryHash != entry.EntryHash {
					current, _ := s.getEntry(agentID, headSeq)
					return &ErrFork{CurrentHead: current}
				}
				return fmt.Errorf("%w: sequence %d already committed", ErrSequenceMismatch, entry.Sequence)
			default:
				return fmt.Errorf("%w: expected sequence %d, got %d", ErrSequenceMismatch, headSeq+1, entry.Sequence)
			}
		}

		raw, err := json.Marshal(entry.ToWire())
		if err != nil {
			return fmt.Errorf("statechain: encode entry: %w", err)
		}
		if err := s.kv.Set(entryKey(agentID, entry.Sequence), raw); err != nil {
			return err
		}

		hr, err := json.Marshal(headRecord{Sequence: entry.Sequence, EntryHash: entry.EntryHash[:]})
		if err != nil {
			return fmt.Errorf("statechain: encode head record: %w", err)
		}
		return s.kv.Set(headKey(agentID), hr)
	})
}

func (s *Store) getEntry(agentID string, sequence int64) (Entry, error) {
	raw, err := s.kv.Get(entryKey(agentID, sequence))
	if err != nil {
		return Entry{}, err
	}
	if raw == nil {
		return Entry{}, fmt.Errorf("statechain: no entry at sequence %d", sequence)
	}
	var w wire.StateEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return Entry{}, fmt.Errorf("statechain: decode entry: %w", err)
	}
	return EntryFromWire(w)
}

// History returns entries for agentID in ascending sequence order,
// starting at offset, up to limit entries.
func (s *Store) History(agentID string, offset, limit int64) ([]Entry, error) {
	prefix := []byte("statechain/entry/" + agentID + "/")
	var all []Entry
	err := s.kv.IteratePrefix(prefix, func(_, value []byte) bool {
		var w wire.StateEntry
		if jsonErr := json.Unmarshal(value, &w); jsonErr != nil {
			return true
		}
		e, entryErr := EntryFromWire(w)
		if entryErr != nil {
			return true
		}
		all = append(all, e)
		return true
	})
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(all)) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[offset:end], nil
}

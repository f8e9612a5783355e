// Copyright 2025 sigaid authors
//
// Package statechain implements the per-agent, hash-linked, append-only
// action log: entry construction and signing, offline chain verification,
// fork detection, and Merkle inclusion proofs over the resulting entry
// hashes (statechain/merkle).
package statechain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/wire"
)

// MaxActionSummaryBytes is the normative limit on action_summary, in UTF-8
// bytes (spec §3).
const MaxActionSummaryBytes = 256

var (
	// ErrInvalidEntry covers malformed field values caught before any
	// cryptographic check, such as an oversized summary.
	ErrInvalidEntry = errors.New("statechain: invalid entry")
	// ErrBadSignature is returned when an entry's signature does not
	// verify under the claimed agent's public key.
	ErrBadSignature = errors.New("statechain: signature does not verify")
	// ErrEntryHashMismatch is returned when a received entry's entry_hash
	// does not recompute from its other fields.
	ErrEntryHashMismatch = errors.New("statechain: entry_hash does not recompute")
	// ErrChainBroken is returned by VerifyChain when two adjacent entries
	// don't link (wrong prev_hash or non-consecutive sequence).
	ErrChainBroken = errors.New("statechain: chain linkage broken")
)

// ZeroHash is the all-zero 32-byte prev_hash used for sequence 0.
var ZeroHash [32]byte

// Entry is an immutable, signed step of an agent's state chain.
type Entry struct {
	AgentID        identity.AgentID
	Sequence       int64
	PrevHash       [32]byte
	Timestamp      time.Time
	ActionType     string
	ActionSummary  string
	ActionDataHash [32]byte
	Signature      [64]byte
	EntryHash      [32]byte
}

// canonicalBytes is the fixed-layout, length-prefixed encoding signed and
// hashed for an entry — every field except Signature and EntryHash.
func canonicalBytes(pub ed25519.PublicKey, sequence int64, prevHash [32]byte, ts time.Time, actionType, summary string, dataHash [32]byte) ([]byte, error) {
	tsBytes := []byte(ts.UTC().Format(time.RFC3339))
	typeBytes := []byte(actionType)
	summaryBytes := []byte(summary)

	if len(summaryBytes) > MaxActionSummaryBytes {
		return nil, fmt.Errorf("%w: action_summary exceeds %d bytes", ErrInvalidEntry, MaxActionSummaryBytes)
	}
	if len(typeBytes) > 0xFFFF || len(tsBytes) > 0xFFFF {
		return nil, fmt.Errorf("%w: field too long", ErrInvalidEntry)
	}

	buf := make([]byte, 0, ed25519.PublicKeySize+8+32+2+len(tsBytes)+2+len(typeBytes)+2+len(summaryBytes)+32)
	buf = append(buf, pub...)

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(sequence))
	buf = append(buf, seqBuf[:]...)

	buf = append(buf, prevHash[:]...)
	buf = appendLen16(buf, tsBytes)
	buf = appendLen16(buf, typeBytes)
	buf = appendLen16(buf, summaryBytes)
	buf = append(buf, dataHash[:]...)

	return buf, nil
}

func appendLen16(buf, field []byte) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(field)))
	buf = append(buf, l[:]...)
	return append(buf, field...)
}

// NewEntry builds and signs a new entry extending a chain whose current
// head is (prevSequence, prevHash) — pass Sequence -1 and ZeroHash for the
// first entry of a fresh agent.
func NewEntry(priv ed25519.PrivateKey, pub ed25519.PublicKey, prevSequence int64, prevHash [32]byte, actionType, summary string, payload []byte) (Entry, error) {
	agentID, err := identity.Encode(pub)
	if err != nil {
		return Entry{}, err
	}

	sequence := prevSequence + 1
	dataHash := crypto.Hash(payload)
	ts := time.Now().UTC()

	cb, err := canonicalBytes(pub, sequence, prevHash, ts, actionType, summary, dataHash)
	if err != nil {
		return Entry{}, err
	}

	sigBytes, err := crypto.Sign(priv, crypto.DomainState, cb)
	if err != nil {
		return Entry{}, err
	}
	var sig [64]byte
	copy(sig[:], sigBytes)

	entryHash := crypto.Hash(cb, sigBytes)

	return Entry{
		AgentID:        agentID,
		Sequence:       sequence,
		PrevHash:       prevHash,
		Timestamp:      ts,
		ActionType:     actionType,
		ActionSummary:  summary,
		ActionDataHash: dataHash,
		Signature:      sig,
		EntryHash:      entryHash,
	}, nil
}

// Verify checks that e's signature verifies under pub and that its
// entry_hash recomputes from its other fields.
func (e Entry) Verify(pub ed25519.PublicKey) error {
	cb, err := canonicalBytes(pub, e.Sequence, e.PrevHash, e.Timestamp, e.ActionType, e.ActionSummary, e.ActionDataHash)
	if err != nil {
		return err
	}
	if !crypto.Verify(pub, crypto.DomainState, cb, e.Signature[:]) {
		return ErrBadSignature
	}
	wantHash := crypto.Hash(cb, e.Signature[:])
	if !crypto.CTEqual(wantHash[:], e.EntryHash[:]) {
		return ErrEntryHashMismatch
	}
	return nil
}

// VerifyChain checks an ordered run of entries: every entry's signature
// and entry_hash, and every adjacent pair's sequence/prev_hash linkage.
func VerifyChain(entries []Entry, pub ed25519.PublicKey) error {
	for i, e := range entries {
		if err := e.Verify(pub); err != nil {
			return fmt.Errorf("entry %d (sequence %d): %w", i, e.Sequence, err)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Sequence != prev.Sequence+1 {
			return fmt.Errorf("%w: entry %d sequence %d does not follow %d", ErrChainBroken, i, e.Sequence, prev.Sequence)
		}
		if !crypto.CTEqual(e.PrevHash[:], prev.EntryHash[:]) {
			return fmt.Errorf("%w: entry %d prev_hash does not match entry %d's entry_hash", ErrChainBroken, i, i-1)
		}
	}
	return nil
}

// ToWire converts e to its JSON wire form.
func (e Entry) ToWire() wire.StateEntry {
	return wire.StateEntry{
		AgentID:           string(e.AgentID),
		Sequence:          e.Sequence,
		PrevHashBase64:    base64.StdEncoding.EncodeToString(e.PrevHash[:]),
		Timestamp:         e.Timestamp.UTC().Format(time.RFC3339),
		ActionType:        e.ActionType,
		ActionSummary:     e.ActionSummary,
		ActionDataHashB64: base64.StdEncoding.EncodeToString(e.ActionDataHash[:]),
		SignatureBase64:   base64.StdEncoding.EncodeToString(e.Signature[:]),
		EntryHashBase64:   base64.StdEncoding.EncodeToString(e.EntryHash[:]),
	}
}

// EntryFromWire parses a wire.StateEntry back into an Entry, validating
// field shapes but not signatures (callers must call Verify separately).
func EntryFromWire(w wire.StateEntry) (Entry, error) {
	prevHash, err := decodeHash32(w.PrevHashBase64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: prev_hash: %v", ErrInvalidEntry, err)
	}
	dataHash, err := decodeHash32(w.ActionDataHashB64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: action_data_hash: %v", ErrInvalidEntry, err)
	}
	entryHash, err := decodeHash32(w.EntryHashBase64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: entry_hash: %v", ErrInvalidEntry, err)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(w.SignatureBase64)
	if err != nil || len(sigBytes) != 64 {
		return Entry{}, fmt.Errorf("%w: signature must decode to 64 bytes", ErrInvalidEntry)
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidEntry, err)
	}
	if len([]byte(w.ActionSummary)) > MaxActionSummaryBytes {
		return Entry{}, fmt.Errorf("%w: action_summary exceeds %d bytes", ErrInvalidEntry, MaxActionSummaryBytes)
	}

	var sig [64]byte
	copy(sig[:], sigBytes)

	return Entry{
		AgentID:        identity.AgentID(w.AgentID),
		Sequence:       w.Sequence,
		PrevHash:       prevHash,
		Timestamp:      ts,
		ActionType:     w.ActionType,
		ActionSummary:  w.ActionSummary,
		ActionDataHash: dataHash,
		Signature:      sig,
		EntryHash:      entryHash,
	}, nil
}

func decodeHash32(b64 string) ([32]byte, error) {
	var out [32]byte
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

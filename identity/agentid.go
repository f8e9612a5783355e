// Copyright 2025 sigaid authors
//
// Package identity owns agent keypair lifecycle, the printable AgentID
// encoding, and the encrypted keyfile container agents use to store their
// signing key at rest.
package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/sigaid/core/internal/crypto"
)

// AgentID is the printable identifier of an agent: the literal prefix
// "aid_" followed by Base58 (Bitcoin alphabet) of the 32-byte Ed25519
// public key concatenated with a 4-byte truncated BLAKE3 checksum.
type AgentID string

const agentIDPrefix = "aid_"

// ErrInvalidAgentID covers every way a string can fail to be a well-formed
// AgentID: wrong prefix, bad Base58 alphabet, wrong decoded length, or bad
// checksum. The decoded key is not checked to be a valid Ed25519 point.
var ErrInvalidAgentID = errors.New("identity: invalid agent id")

// checksum returns the first 4 bytes of BLAKE3(pubkey).
func checksum(pub ed25519.PublicKey) [4]byte {
	h := crypto.Hash(pub)
	var c [4]byte
	copy(c[:], h[:4])
	return c
}

// Encode computes the AgentID for a public key.
func Encode(pub ed25519.PublicKey) (AgentID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes", ErrInvalidAgentID, ed25519.PublicKeySize)
	}
	sum := checksum(pub)
	payload := make([]byte, 0, ed25519.PublicKeySize+4)
	payload = append(payload, pub...)
	payload = append(payload, sum[:]...)
	return AgentID(agentIDPrefix + base58.Encode(payload)), nil
}

// Parse decodes and validates an AgentID string, returning the embedded
// public key. It rejects any string whose checksum disagrees, length
// differs, Base58 alphabet is violated, or prefix is absent. It does not
// check that the decoded key is a valid Ed25519 public point.
func Parse(s string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(s, agentIDPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidAgentID, agentIDPrefix)
	}
	decoded, err := base58.Decode(strings.TrimPrefix(s, agentIDPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: bad base58 encoding", ErrInvalidAgentID)
	}
	if len(decoded) != ed25519.PublicKeySize+4 {
		return nil, fmt.Errorf("%w: wrong decoded length %d", ErrInvalidAgentID, len(decoded))
	}
	pub := ed25519.PublicKey(decoded[:ed25519.PublicKeySize])
	want := checksum(pub)
	got := decoded[ed25519.PublicKeySize:]
	if !crypto.CTEqual(want[:], got) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAgentID)
	}
	return pub, nil
}

// String satisfies fmt.Stringer.
func (a AgentID) String() string { return string(a) }

// Equal compares two AgentIDs by their decoded public key, not by the
// textual form (which, absent bugs elsewhere, are equivalent — but callers
// that build an AgentID from an externally-supplied public key should use
// this rather than string equality).
func Equal(a, b AgentID) bool {
	pa, err := Parse(string(a))
	if err != nil {
		return false
	}
	pb, err := Parse(string(b))
	if err != nil {
		return false
	}
	return crypto.CTEqual(pa, pb)
}

// Copyright 2025 sigaid authors
//
// Package proof implements the compact ProofBundle a service challenges an
// agent for, its construction on the agent side, and its online/offline
// verification on the service side (spec §4.E).
package proof

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/statechain"
	"github.com/sigaid/core/wire"
)

// ErrInvalidBundle covers malformed bundle fields caught before any
// cryptographic check.
var ErrInvalidBundle = errors.New("proof: invalid bundle")

// identitySigner is the minimal signing surface Build needs from a
// keypair; kept narrow so this package doesn't import identity just for a
// function pointer.
type identitySigner interface {
	Sign(domain crypto.Domain, message []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// Bundle is the domain form of a ProofBundle: what an agent hands a
// verifier and what a verifier forwards to the Authority's /v1/verify.
type Bundle struct {
	AgentID            identity.AgentID
	LeaseToken         string
	StateHead          statechain.Entry
	Challenge          []byte
	ChallengeSignature []byte
	BundleTimestamp    time.Time
	BundleSignature    []byte
}

// canonicalBytes is the fixed-layout encoding bundle_signature is computed
// over: {agent_id, lease_token, state_head.entry_hash, challenge,
// challenge_signature, bundle_timestamp}. The state head's entry_hash, not
// its full content, is folded in — the entry_hash already commits to
// every other field of the head, and StateHeadMismatch verification
// compares entry_hash directly.
func canonicalBytes(agentID identity.AgentID, leaseToken string, stateHeadHash [32]byte, challenge, challengeSig []byte, ts time.Time) ([]byte, error) {
	tsBytes := []byte(ts.UTC().Format(time.RFC3339))
	agentBytes := []byte(agentID)
	tokenBytes := []byte(leaseToken)

	if len(agentBytes) > 0xFFFF || len(tokenBytes) > 0xFFFF || len(challenge) > 0xFFFF || len(challengeSig) > 0xFFFF {
		return nil, fmt.Errorf("%w: field too long", ErrInvalidBundle)
	}

	buf := make([]byte, 0, len(agentBytes)+len(tokenBytes)+32+len(challenge)+len(challengeSig)+len(tsBytes)+16)
	buf = appendLen16(buf, agentBytes)
	buf = appendLen16(buf, tokenBytes)
	buf = append(buf, stateHeadHash[:]...)
	buf = appendLen16(buf, challenge)
	buf = appendLen16(buf, challengeSig)
	buf = appendLen16(buf, tsBytes)
	return buf, nil
}

func appendLen16(buf, field []byte) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(field)))
	buf = append(buf, l[:]...)
	return append(buf, field...)
}

// Build constructs and signs a Bundle. The caller must hold a current
// valid lease token and the chain's current head.
func Build(kp identitySigner, leaseToken string, head statechain.Entry, challenge []byte, now time.Time) (Bundle, error) {
	agentID, err := identity.Encode(kp.PublicKey())
	if err != nil {
		return Bundle{}, err
	}

	challengeSig, err := kp.Sign(crypto.DomainChallenge, challenge)
	if err != nil {
		return Bundle{}, fmt.Errorf("proof: sign challenge: %w", err)
	}

	cb, err := canonicalBytes(agentID, leaseToken, head.EntryHash, challenge, challengeSig, now)
	if err != nil {
		return Bundle{}, err
	}
	bundleSig, err := kp.Sign(crypto.DomainProof, cb)
	if err != nil {
		return Bundle{}, fmt.Errorf("proof: sign bundle: %w", err)
	}

	return Bundle{
		AgentID:            agentID,
		LeaseToken:         leaseToken,
		StateHead:          head,
		Challenge:          challenge,
		ChallengeSignature: challengeSig,
		BundleTimestamp:    now,
		BundleSignature:    bundleSig,
	}, nil
}

// ToWire converts b to its JSON wire form.
func (b Bundle) ToWire() wire.ProofBundle {
	return wire.ProofBundle{
		AgentID:               string(b.AgentID),
		LeaseToken:            b.LeaseToken,
		StateHead:             b.StateHead.ToWire(),
		ChallengeBase64:       base64.StdEncoding.EncodeToString(b.Challenge),
		ChallengeSignatureB64: base64.StdEncoding.EncodeToString(b.ChallengeSignature),
		BundleTimestamp:       b.BundleTimestamp.UTC().Format(time.RFC3339),
		BundleSignatureBase64: base64.StdEncoding.EncodeToString(b.BundleSignature),
	}
}

// FromWire parses a wire.ProofBundle back into a Bundle, validating field
// shapes but not signatures (callers verify via Verify/VerifyOffline).
func FromWire(w wire.ProofBundle) (Bundle, error) {
	head, err := statechain.EntryFromWire(w.StateHead)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: state_head: %v", ErrInvalidBundle, err)
	}
	challenge, err := base64.StdEncoding.DecodeString(w.ChallengeBase64)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: challenge: %v", ErrInvalidBundle, err)
	}
	challengeSig, err := base64.StdEncoding.DecodeString(w.ChallengeSignatureB64)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: challenge_signature: %v", ErrInvalidBundle, err)
	}
	bundleSig, err := base64.StdEncoding.DecodeString(w.BundleSignatureBase64)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: bundle_signature: %v", ErrInvalidBundle, err)
	}
	ts, err := time.Parse(time.RFC3339, w.BundleTimestamp)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: bundle_timestamp: %v", ErrInvalidBundle, err)
	}

	return Bundle{
		AgentID:            identity.AgentID(w.AgentID),
		LeaseToken:         w.LeaseToken,
		StateHead:          head,
		Challenge:          challenge,
		ChallengeSignature: challengeSig,
		BundleTimestamp:    ts,
		BundleSignature:    bundleSig,
	}, nil
}

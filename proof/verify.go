// Copyright 2025 sigaid authors

package proof

import (
	"crypto/ed25519"
	"time"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/internal/crypto"
)

func identityPublicKey(agentID identity.AgentID) (ed25519.PublicKey, error) {
	return identity.Parse(string(agentID))
}

// ReasonCode is the closed set of reasons a verification can fail with,
// per spec §4.E.
type ReasonCode string

const (
	ReasonBadAgentID           ReasonCode = "BadAgentId"
	ReasonBadSignature         ReasonCode = "BadSignature"
	ReasonChallengeMismatch    ReasonCode = "ChallengeMismatch"
	ReasonStaleBundle          ReasonCode = "StaleBundle"
	ReasonNoActiveLease        ReasonCode = "NoActiveLease"
	ReasonStateHeadMismatch    ReasonCode = "StateHeadMismatch"
	ReasonAuthorityUnavailable ReasonCode = "AuthorityUnavailable"
)

// Policy is the verifier's acceptance policy for one verification call.
type Policy struct {
	RequireLease       bool
	MaxStateAge        time.Duration
	MinReputationScore *float64
}

// CachedHead is the offline verifier's optional last-known head for an
// agent, used to detect regression without contacting the Authority.
type CachedHead struct {
	Sequence  int64
	EntryHash [32]byte
}

// Result is the outcome of a verification call.
type Result struct {
	Valid      bool
	Offline    bool
	ReasonCode ReasonCode
}

func invalid(reason ReasonCode) Result {
	return Result{Valid: false, ReasonCode: reason}
}

// AuthorityClient is the subset of the Authority's lease/state surface the
// online verifier needs. Kept as an interface so tests can drive
// verification without a live server; the Authority's real HTTP client
// (or, in-process, lease.Manager + statechain.Store directly) implements
// it.
type AuthorityClient interface {
	// ValidateLeaseToken returns the session_id carried by token if it is
	// valid, belongs to agentID, and is unexpired.
	ValidateLeaseToken(agentID, token string, now time.Time) (sessionID string, err error)
	// CurrentHead returns the Authority's current committed head for
	// agentID.
	CurrentHead(agentID string) (sequence int64, entryHash [32]byte, found bool, err error)
}

// checkSelfConsistent runs the verification steps common to both online
// and offline paths: signature recovery, bundle/challenge signatures, and
// the state head's internal consistency.
func checkSelfConsistent(b Bundle, expectedChallenge []byte, maxAge time.Duration, now time.Time) (ed25519.PublicKey, Result, bool) {
	pub, err := identityPublicKey(b.AgentID)
	if err != nil {
		return nil, invalid(ReasonBadAgentID), false
	}

	stateHeadHash := b.StateHead.EntryHash
	cb, err := canonicalBytes(b.AgentID, b.LeaseToken, stateHeadHash, b.Challenge, b.ChallengeSignature, b.BundleTimestamp)
	if err != nil {
		return nil, invalid(ReasonBadSignature), false
	}
	if !crypto.Verify(pub, crypto.DomainProof, cb, b.BundleSignature) {
		return nil, invalid(ReasonBadSignature), false
	}
	if !crypto.Verify(pub, crypto.DomainChallenge, b.Challenge, b.ChallengeSignature) {
		return nil, invalid(ReasonBadSignature), false
	}
	if expectedChallenge != nil && !crypto.CTEqual(b.Challenge, expectedChallenge) {
		return nil, invalid(ReasonChallengeMismatch), false
	}

	age := now.Sub(b.BundleTimestamp)
	if age < 0 {
		age = -age
	}
	if maxAge > 0 && age > maxAge {
		return nil, invalid(ReasonStaleBundle), false
	}

	if err := b.StateHead.Verify(pub); err != nil {
		return nil, invalid(ReasonStateHeadMismatch), false
	}

	return pub, Result{}, true
}

// Verify performs the online verification path. When policy.RequireLease
// is set it asks authority to validate the lease token and compares the
// current head; otherwise only the self-consistency checks run and
// authority is not contacted.
func Verify(b Bundle, expectedChallenge []byte, policy Policy, authority AuthorityClient, now time.Time) Result {
	_, selfResult, ok := checkSelfConsistent(b, expectedChallenge, policy.MaxStateAge, now)
	if !ok {
		return selfResult
	}

	if policy.RequireLease {
		sessionID, err := authority.ValidateLeaseToken(string(b.AgentID), b.LeaseToken, now)
		if err != nil {
			return invalid(ReasonNoActiveLease)
		}
		_ = sessionID

		sequence, entryHash, found, err := authority.CurrentHead(string(b.AgentID))
		if err != nil {
			return invalid(ReasonAuthorityUnavailable)
		}
		if !found || sequence != b.StateHead.Sequence || !crypto.CTEqual(entryHash[:], b.StateHead.EntryHash[:]) {
			return invalid(ReasonStateHeadMismatch)
		}
	}

	return Result{Valid: true}
}

// VerifyOffline performs steps 1, 2 and 4 of §4.E only — no Authority
// contact — and returns Valid{offline}. If cached is non-nil, it also
// checks that the bundle's head does not regress behind the cache and
// that the two agree on any overlapping sequence.
func VerifyOffline(b Bundle, expectedChallenge []byte, maxAge time.Duration, cached *CachedHead, now time.Time) Result {
	_, selfResult, ok := checkSelfConsistent(b, expectedChallenge, maxAge, now)
	if !ok {
		return selfResult
	}

	if cached != nil {
		if b.StateHead.Sequence < cached.Sequence {
			return invalid(ReasonStateHeadMismatch)
		}
		if b.StateHead.Sequence == cached.Sequence && !crypto.CTEqual(b.StateHead.EntryHash[:], cached.EntryHash[:]) {
			return invalid(ReasonStateHeadMismatch)
		}
	}

	return Result{Valid: true, Offline: true}
}

// Copyright 2025 sigaid authors

package lease

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/kv"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/wire"
)

// Sentinel errors for the Authority-side state machine (spec §4.C, §7).
var (
	ErrInvalidSignature = errors.New("lease: invalid signature")
	ErrClockSkew        = errors.New("lease: timestamp outside clock skew window")
	ErrNonceReplay      = errors.New("lease: nonce already observed")
	ErrSessionMismatch  = errors.New("lease: session id does not match current holder")
	ErrLeaseExpired     = errors.New("lease: lease has expired")
	ErrNoActiveLease    = errors.New("lease: no active lease for this session")
	ErrUnknownAgent     = errors.New("lease: unknown agent_id")
)

// ErrLeaseHeld is returned when an AcquireRequest targets an agent whose
// lease is currently held by a different session. Manager.Acquire returns
// it on the conflicting request itself. Client.Acquire always retries on it
// with backoff until the lease is granted or ctx is done; it has no mode
// that returns ErrLeaseHeld after a single attempt.
type ErrLeaseHeld struct {
	HolderSessionID string
	ExpiresAt       time.Time
}

func (e *ErrLeaseHeld) Error() string {
	return fmt.Sprintf("lease: held by session %s until %s", e.HolderSessionID, e.ExpiresAt.Format(time.RFC3339))
}

// record is the Authority's persisted per-agent lease state.
type record struct {
	SessionID  string    `json:"session_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Sequence   int64     `json:"sequence"`
}

// Manager is the Authority-side lease state machine: one logical
// Free/Held/Expired slot per agent_id, atomic acquire/renew/release, and
// PASETO token issuance.
type Manager struct {
	store     *kv.Store
	locks     *kv.KeyLock
	registry  *registry.Store
	nonces    *NonceCache
	clockSkew time.Duration
	tokenKey  [TokenKeySize]byte
}

// NewManager constructs a Manager. clockSkew bounds both the acquire
// timestamp tolerance and the nonce-replay window (spec §4.C uses the
// same "e.g., 2 minutes" figure for both).
func NewManager(store *kv.Store, reg *registry.Store, clockSkew time.Duration, tokenKey [TokenKeySize]byte) *Manager {
	return &Manager{
		store:     store,
		locks:     kv.NewKeyLock(),
		registry:  reg,
		nonces:    NewNonceCache(clockSkew),
		clockSkew: clockSkew,
		tokenKey:  tokenKey,
	}
}

func leaseKey(agentID string) []byte {
	return []byte("lease/record/" + agentID)
}

func (m *Manager) getRecord(agentID string) (record, bool, error) {
	raw, err := m.store.Get(leaseKey(agentID))
	if err != nil {
		return record{}, false, err
	}
	if raw == nil {
		return record{}, false, nil
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return record{}, false, fmt.Errorf("lease: decode record: %w", err)
	}
	return r, true, nil
}

func (m *Manager) putRecord(agentID string, r record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("lease: encode record: %w", err)
	}
	return m.store.Set(leaseKey(agentID), raw)
}

// acquireMessage is the canonical byte layout signed by the client for an
// AcquireRequest: agent_id || session_id || ts || nonce || ttl.
func acquireMessage(agentID, sessionID, ts string, nonce []byte, ttlSeconds int64) []byte {
	buf := make([]byte, 0, len(agentID)+len(sessionID)+len(ts)+len(nonce)+8+8)
	buf = appendLenPrefixed(buf, []byte(agentID))
	buf = appendLenPrefixed(buf, []byte(sessionID))
	buf = appendLenPrefixed(buf, []byte(ts))
	buf = appendLenPrefixed(buf, nonce)
	var ttlBuf [8]byte
	binary.BigEndian.PutUint64(ttlBuf[:], uint64(ttlSeconds))
	buf = append(buf, ttlBuf[:]...)
	return buf
}

func appendLenPrefixed(buf, field []byte) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(field)))
	buf = append(buf, l[:]...)
	return append(buf, field...)
}

// Acquire implements the AcquireRequest transition of spec §4.C.
func (m *Manager) Acquire(req wire.AcquireRequest, now time.Time) (wire.AcquireResponse, error) {
	pub, err := m.registry.PublicKey(req.AgentID)
	if err != nil {
		return wire.AcquireResponse{}, ErrUnknownAgent
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return wire.AcquireResponse{}, fmt.Errorf("lease: bad timestamp: %w", err)
	}
	nonce, err := hex.DecodeString(req.NonceHex)
	if err != nil {
		return wire.AcquireResponse{}, fmt.Errorf("lease: bad nonce encoding: %w", err)
	}
	sig, err := hex.DecodeString(req.SignatureHex)
	if err != nil {
		return wire.AcquireResponse{}, fmt.Errorf("lease: bad signature encoding: %w", err)
	}

	msg := acquireMessage(req.AgentID, req.SessionID, req.Timestamp, nonce, req.TTLSeconds)
	if !crypto.Verify(pub, crypto.DomainLease, msg, sig) {
		return wire.AcquireResponse{}, ErrInvalidSignature
	}

	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > m.clockSkew {
		return wire.AcquireResponse{}, ErrClockSkew
	}

	if !m.nonces.CheckAndRecord(req.AgentID, req.NonceHex, now) {
		return wire.AcquireResponse{}, ErrNonceReplay
	}

	var resp wire.AcquireResponse
	err = m.locks.WithLock(req.AgentID, func() error {
		current, found, err := m.getRecord(req.AgentID)
		if err != nil {
			return err
		}
		if found && now.Before(current.ExpiresAt) {
			return &ErrLeaseHeld{HolderSessionID: current.SessionID, ExpiresAt: current.ExpiresAt}
		}

		expiresAt := now.Add(time.Duration(req.TTLSeconds) * time.Second)
		next := record{SessionID: req.SessionID, AcquiredAt: now, ExpiresAt: expiresAt, Sequence: 0}

		tokenID, err := crypto.RandomBytes(16)
		if err != nil {
			return err
		}
		token, err := MintToken(m.tokenKey, Claims{
			AgentID:   req.AgentID,
			SessionID: req.SessionID,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
			TokenID:   newTokenID(tokenID),
			Sequence:  0,
		})
		if err != nil {
			return err
		}

		if err := m.putRecord(req.AgentID, next); err != nil {
			return err
		}

		resp = wire.AcquireResponse{
			LeaseToken: token,
			AcquiredAt: now.UTC().Format(time.RFC3339),
			ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
			Sequence:   0,
		}
		return nil
	})
	if err != nil {
		return wire.AcquireResponse{}, err
	}
	return resp, nil
}

// Renew implements the RenewRequest transition of spec §4.C.
func (m *Manager) Renew(agentID string, req wire.RenewRequest, now time.Time) (wire.RenewResponse, error) {
	claims, err := ParseToken(m.tokenKey, req.CurrentToken)
	if err != nil {
		return wire.RenewResponse{}, err
	}
	if claims.AgentID != agentID || claims.SessionID != req.SessionID {
		return wire.RenewResponse{}, ErrSessionMismatch
	}

	var resp wire.RenewResponse
	err = m.locks.WithLock(agentID, func() error {
		current, found, err := m.getRecord(agentID)
		if err != nil {
			return err
		}
		if !found || current.SessionID != req.SessionID {
			return ErrSessionMismatch
		}
		if now.After(current.ExpiresAt) {
			return ErrLeaseExpired
		}

		newExpiry := current.ExpiresAt
		if now.After(newExpiry) {
			newExpiry = now
		}
		newExpiry = newExpiry.Add(time.Duration(req.TTLSeconds) * time.Second)
		newSeq := current.Sequence + 1

		tokenID, err := crypto.RandomBytes(16)
		if err != nil {
			return err
		}
		token, err := MintToken(m.tokenKey, Claims{
			AgentID:   agentID,
			SessionID: req.SessionID,
			IssuedAt:  now,
			ExpiresAt: newExpiry,
			TokenID:   newTokenID(tokenID),
			Sequence:  newSeq,
		})
		if err != nil {
			return err
		}

		next := record{SessionID: req.SessionID, AcquiredAt: current.AcquiredAt, ExpiresAt: newExpiry, Sequence: newSeq}
		if err := m.putRecord(agentID, next); err != nil {
			return err
		}

		resp = wire.RenewResponse{
			LeaseToken: token,
			ExpiresAt:  newExpiry.UTC().Format(time.RFC3339),
			Sequence:   newSeq,
		}
		return nil
	})
	if err != nil {
		return wire.RenewResponse{}, err
	}
	return resp, nil
}

// Release implements the ReleaseRequest transition: best-effort,
// idempotent. Releasing an already-free or already-expired lease still
// returns success.
func (m *Manager) Release(agentID string, req wire.ReleaseRequest) error {
	return m.locks.WithLock(agentID, func() error {
		current, found, err := m.getRecord(agentID)
		if err != nil {
			return err
		}
		if !found || current.SessionID != req.SessionID {
			// Idempotent: releasing a lease that's already gone (or was
			// never this session's) is still success.
			return nil
		}
		return m.store.Delete(leaseKey(agentID))
	})
}

// ValidateToken checks that token decrypts, belongs to agentID and
// sessionID, and is not expired — the check every state-append and proof
// verification performs before trusting a caller's lease.
func (m *Manager) ValidateToken(agentID, sessionID, token string, now time.Time) (Claims, error) {
	claims, err := ParseToken(m.tokenKey, token)
	if err != nil {
		return Claims{}, err
	}
	if claims.AgentID != agentID || claims.SessionID != sessionID {
		return Claims{}, ErrSessionMismatch
	}
	if now.After(claims.ExpiresAt) {
		return Claims{}, ErrLeaseExpired
	}

	current, found, err := m.getRecord(agentID)
	if err != nil {
		return Claims{}, err
	}
	if !found || current.SessionID != sessionID || now.After(current.ExpiresAt) {
		return Claims{}, ErrNoActiveLease
	}
	return claims, nil
}

// ValidateTokenForAgent is like ValidateToken but trusts the session_id
// carried inside token rather than requiring the caller to already know
// it — used by the proof verifier, which only has a bundle's agent_id and
// lease_token in hand.
func (m *Manager) ValidateTokenForAgent(agentID, token string, now time.Time) (Claims, error) {
	claims, err := ParseToken(m.tokenKey, token)
	if err != nil {
		return Claims{}, err
	}
	if claims.AgentID != agentID {
		return Claims{}, ErrSessionMismatch
	}
	return m.ValidateToken(agentID, claims.SessionID, token, now)
}

// Status reports the current logical state of agentID's lease.
func (m *Manager) Status(agentID string, now time.Time) (wire.LeaseStatusResponse, error) {
	current, found, err := m.getRecord(agentID)
	if err != nil {
		return wire.LeaseStatusResponse{}, err
	}
	if !found || now.After(current.ExpiresAt) {
		return wire.LeaseStatusResponse{State: "free"}, nil
	}
	return wire.LeaseStatusResponse{
		State:      "held",
		SessionID:  current.SessionID,
		AcquiredAt: current.AcquiredAt.UTC().Format(time.RFC3339),
		ExpiresAt:  current.ExpiresAt.UTC().Format(time.RFC3339),
		Sequence:   current.Sequence,
	}, nil
}

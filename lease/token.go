// Copyright 2025 sigaid authors
//
// Package lease implements the exclusive lease protocol of spec §4.C: the
// Authority-side per-agent state machine (Manager) and the agent-side
// Client that acquires, renews, and releases a lease and keeps it alive in
// the background.
package lease

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paseto "github.com/zntrio/paseto/v4"
)

// TokenKeySize is the length of the Authority's long-lived PASETO v4.local
// symmetric key.
const TokenKeySize = 32

// tokenImplicitAssertion binds every lease token to this protocol the same
// way internal/crypto's domain separation binds a signature to one message
// kind — it is PASETO's own non-repudiable binding input, so a token
// minted here can never be replayed against an unrelated PASETO use.
var tokenImplicitAssertion = []byte("agent.lease.v1")

// Claims are the payload fields encoded inside a Lease Token, per spec §6:
// agent_id, session_id, iat, exp, jti (unique token id), seq (monotonic
// per-session renew counter).
type Claims struct {
	AgentID   string    `json:"agent_id"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	TokenID   string    `json:"jti"`
	Sequence  int64     `json:"seq"`
}

// ErrTokenInvalid covers every way a token fails to decrypt or parse:
// wrong key, tampered ciphertext, or malformed claims JSON. It is
// deliberately opaque, matching spec §7's CryptoFailure policy.
var ErrTokenInvalid = errors.New("lease: invalid token")

// MintToken encrypts claims into a v4.local PASETO token under key.
func MintToken(key [TokenKeySize]byte, claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("lease: encode claims: %w", err)
	}
	token, err := paseto.Encrypt(payload, key[:], nil, tokenImplicitAssertion)
	if err != nil {
		return "", fmt.Errorf("lease: mint token: %w", err)
	}
	return string(token), nil
}

// ParseToken decrypts and validates the structure of a lease token. It does
// not check expiry or claim-vs-record agreement — callers do that against
// the current Lease record.
func ParseToken(key [TokenKeySize]byte, token string) (Claims, error) {
	payload, err := paseto.Decrypt([]byte(token), key[:], nil, tokenImplicitAssertion)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// newTokenID derives a short id for jti from caller-supplied random bytes:
// "tok_" followed by the first 8 bytes as 16 hex digits (zero if fewer
// than 8 bytes are given).
func newTokenID(random []byte) string {
	var n uint64
	if len(random) >= 8 {
		n = binary.BigEndian.Uint64(random[:8])
	}
	return fmt.Sprintf("tok_%016x", n)
}

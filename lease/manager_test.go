// Copyright 2025 sigaid authors

package lease

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/kv"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/wire"
)

func newTestManager(t *testing.T) (*Manager, *identity.KeyPair, string) {
	t.Helper()
	store, err := kv.OpenGoLevelDB("lease-test", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.NewStore(store)
	kp, err := identity.Generate()
	require.NoError(t, err)
	agentID, err := kp.AgentID()
	require.NoError(t, err)

	_, err = reg.Register(agentID.String(), kp.PublicKey(), nil)
	require.NoError(t, err)

	var tokenKey [TokenKeySize]byte
	copy(tokenKey[:], mustRandom(t, TokenKeySize))

	m := NewManager(store, reg, 2*time.Minute, tokenKey)
	return m, kp, agentID.String()
}

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b, err := crypto.RandomBytes(n)
	require.NoError(t, err)
	return b
}

func signedAcquire(t *testing.T, kp *identity.KeyPair, agentID, sessionID string, now time.Time, ttl int64) wire.AcquireRequest {
	t.Helper()
	nonce := mustRandom(t, 16)
	ts := now.UTC().Format(time.RFC3339)
	msg := acquireMessage(agentID, sessionID, ts, nonce, ttl)
	sig, err := kp.Sign(crypto.DomainLease, msg)
	require.NoError(t, err)
	return wire.AcquireRequest{
		AgentID:      agentID,
		SessionID:    sessionID,
		Timestamp:    ts,
		NonceHex:     hex.EncodeToString(nonce),
		TTLSeconds:   ttl,
		SignatureHex: hex.EncodeToString(sig),
	}
}

func TestManagerAcquireRenewRelease(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req := signedAcquire(t, kp, agentID, "session-1", now, 60)
	resp, err := m.Acquire(req, now)
	require.NoError(t, err)
	require.NotEmpty(t, resp.LeaseToken)
	require.Equal(t, int64(0), resp.Sequence)

	status, err := m.Status(agentID, now)
	require.NoError(t, err)
	require.Equal(t, "held", status.State)
	require.Equal(t, "session-1", status.SessionID)

	renewResp, err := m.Renew(agentID, wire.RenewRequest{SessionID: "session-1", CurrentToken: resp.LeaseToken, TTLSeconds: 60}, now.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(1), renewResp.Sequence)

	err = m.Release(agentID, wire.ReleaseRequest{SessionID: "session-1", Token: renewResp.LeaseToken})
	require.NoError(t, err)

	status, err = m.Status(agentID, now.Add(20*time.Second))
	require.NoError(t, err)
	require.Equal(t, "free", status.State)
}

func TestManagerAcquireHeldByAnotherSession(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req1 := signedAcquire(t, kp, agentID, "session-1", now, 60)
	_, err := m.Acquire(req1, now)
	require.NoError(t, err)

	req2 := signedAcquire(t, kp, agentID, "session-2", now.Add(time.Second), 60)
	_, err = m.Acquire(req2, now.Add(time.Second))
	require.Error(t, err)
	var held *ErrLeaseHeld
	require.ErrorAs(t, err, &held)
	require.Equal(t, "session-1", held.HolderSessionID)
}

func TestManagerAcquireAfterExpiryIsAllowed(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req1 := signedAcquire(t, kp, agentID, "session-1", now, 5)
	_, err := m.Acquire(req1, now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	req2 := signedAcquire(t, kp, agentID, "session-2", later, 60)
	resp, err := m.Acquire(req2, later)
	require.NoError(t, err)
	require.NotEmpty(t, resp.LeaseToken)
}

func TestManagerAcquireRejectsNonceReplay(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()
	nonce := mustRandom(t, 16)
	ts := now.Format(time.RFC3339)

	build := func(sessionID string) wire.AcquireRequest {
		msg := acquireMessage(agentID, sessionID, ts, nonce, 60)
		sig, err := kp.Sign(crypto.DomainLease, msg)
		require.NoError(t, err)
		return wire.AcquireRequest{
			AgentID: agentID, SessionID: sessionID, Timestamp: ts,
			NonceHex: hex.EncodeToString(nonce), TTLSeconds: 60,
			SignatureHex: hex.EncodeToString(sig),
		}
	}

	_, err := m.Acquire(build("session-1"), now)
	require.NoError(t, err)

	_, err = m.Acquire(build("session-1"), now.Add(time.Millisecond))
	require.ErrorIs(t, err, ErrNonceReplay)
}

func TestManagerAcquireRejectsBadSignature(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req := signedAcquire(t, kp, agentID, "session-1", now, 60)
	req.SignatureHex = hex.EncodeToString(make([]byte, 64))

	_, err := m.Acquire(req, now)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestManagerAcquireRejectsClockSkew(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req := signedAcquire(t, kp, agentID, "session-1", now, 60)
	_, err := m.Acquire(req, now.Add(10*time.Minute))
	require.ErrorIs(t, err, ErrClockSkew)
}

func TestManagerRenewRejectsWrongSession(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req := signedAcquire(t, kp, agentID, "session-1", now, 60)
	resp, err := m.Acquire(req, now)
	require.NoError(t, err)

	_, err = m.Renew(agentID, wire.RenewRequest{SessionID: "session-2", CurrentToken: resp.LeaseToken, TTLSeconds: 60}, now)
	require.ErrorIs(t, err, ErrSessionMismatch)
}

func TestManagerValidateToken(t *testing.T) {
	m, kp, agentID := newTestManager(t)
	now := time.Now().UTC()

	req := signedAcquire(t, kp, agentID, "session-1", now, 60)
	resp, err := m.Acquire(req, now)
	require.NoError(t, err)

	claims, err := m.ValidateToken(agentID, "session-1", resp.LeaseToken, now)
	require.NoError(t, err)
	require.Equal(t, agentID, claims.AgentID)

	_, err = m.ValidateToken(agentID, "session-1", resp.LeaseToken, now.Add(time.Hour))
	require.Error(t, err)
}

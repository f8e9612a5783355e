// Copyright 2025 sigaid authors

package proof

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/statechain"
)

func testChainHead(t *testing.T, kp *identity.KeyPair) statechain.Entry {
	t.Helper()
	seed, err := kp.Seed()
	require.NoError(t, err)
	priv := ed25519.NewKeyFromSeed(seed[:])
	entry, err := statechain.NewEntry(priv, kp.PublicKey(), -1, statechain.ZeroHash, "test.action", "did a thing", []byte("payload"))
	require.NoError(t, err)
	return entry
}

func TestBuildAndVerifyOffline(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	head := testChainHead(t, kp)

	challenge, err := crypto.RandomBytes(32)
	require.NoError(t, err)

	now := time.Now().UTC()
	bundle, err := Build(kp, "lease-token-abc", head, challenge, now)
	require.NoError(t, err)

	result := VerifyOffline(bundle, challenge, 2*time.Minute, nil, now)
	require.True(t, result.Valid)
	require.True(t, result.Offline)
}

func TestVerifyOfflineRejectsTamperedChallengeSignature(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	head := testChainHead(t, kp)
	challenge, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	now := time.Now().UTC()

	bundle, err := Build(kp, "lease-token-abc", head, challenge, now)
	require.NoError(t, err)
	bundle.ChallengeSignature[0] ^= 0xFF

	result := VerifyOffline(bundle, challenge, 2*time.Minute, nil, now)
	require.False(t, result.Valid)
	require.Equal(t, ReasonBadSignature, result.ReasonCode)
}

func TestVerifyOfflineRejectsChallengeMismatch(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	head := testChainHead(t, kp)
	challenge, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	now := time.Now().UTC()

	bundle, err := Build(kp, "lease-token-abc", head, challenge, now)
	require.NoError(t, err)

	other, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	result := VerifyOffline(bundle, other, 2*time.Minute, nil, now)
	require.False(t, result.Valid)
	require.Equal(t, ReasonChallengeMismatch, result.ReasonCode)
}

func TestVerifyOfflineRejectsStaleBundle(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	head := testChainHead(t, kp)
	challenge, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	now := time.Now().UTC()

	bundle, err := Build(kp, "lease-token-abc", head, challenge, now.Add(-time.Hour))
	require.NoError(t, err)

	result := VerifyOffline(bundle, challenge, 2*time.Minute, nil, now)
	require.False(t, result.Valid)
	require.Equal(t, ReasonStaleBundle, result.ReasonCode)
}

func TestVerifyOfflineCachedHeadRegression(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	head := testChainHead(t, kp)
	challenge, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	now := time.Now().UTC()

	bundle, err := Build(kp, "lease-token-abc", head, challenge, now)
	require.NoError(t, err)

	cached := &CachedHead{Sequence: head.Sequence + 1}
	result := VerifyOffline(bundle, challenge, 2*time.Minute, cached, now)
	require.False(t, result.Valid)
	require.Equal(t, ReasonStateHeadMismatch, result.ReasonCode)
}

func TestWireRoundTrip(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	head := testChainHead(t, kp)
	challenge, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	now := time.Now().UTC()

	bundle, err := Build(kp, "lease-token-abc", head, challenge, now)
	require.NoError(t, err)

	w := bundle.ToWire()
	back, err := FromWire(w)
	require.NoError(t, err)
	require.Equal(t, bundle.AgentID, back.AgentID)
	require.Equal(t, bundle.StateHead.EntryHash, back.StateHead.EntryHash)

	result := VerifyOffline(back, challenge, 2*time.Minute, nil, now)
	require.True(t, result.Valid)
}

// Copyright 2025 sigaid authors

package statechain

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEntryGenesisAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e, err := NewEntry(priv, pub, -1, ZeroHash, "agent.started", "boot", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, int64(0), e.Sequence)
	require.Equal(t, ZeroHash, e.PrevHash)
	require.NoError(t, e.Verify(pub))
}

func TestVerifyChainLinksSequentially(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e0, err := NewEntry(priv, pub, -1, ZeroHash, "a", "first", []byte("p0"))
	require.NoError(t, err)
	e1, err := NewEntry(priv, pub, e0.Sequence, e0.EntryHash, "a", "second", []byte("p1"))
	require.NoError(t, err)
	e2, err := NewEntry(priv, pub, e1.Sequence, e1.EntryHash, "a", "third", []byte("p2"))
	require.NoError(t, err)

	require.NoError(t, VerifyChain([]Entry{e0, e1, e2}, pub))
}

func TestVerifyChainRejectsTamperedEntry(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e0, err := NewEntry(priv, pub, -1, ZeroHash, "a", "first", []byte("p0"))
	require.NoError(t, err)
	e1, err := NewEntry(priv, pub, e0.Sequence, e0.EntryHash, "a", "second", []byte("p1"))
	require.NoError(t, err)

	tampered := e1
	tampered.ActionSummary = "tampered"

	err = VerifyChain([]Entry{e0, tampered}, pub)
	require.Error(t, err)
}

func TestVerifyChainRejectsBrokenLinkage(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e0, err := NewEntry(priv, pub, -1, ZeroHash, "a", "first", []byte("p0"))
	require.NoError(t, err)
	// Build e1 against the wrong prev hash.
	e1, err := NewEntry(priv, pub, 0, crypto32("wrong"), "a", "second", []byte("p1"))
	require.NoError(t, err)

	err = VerifyChain([]Entry{e0, e1}, pub)
	require.ErrorIs(t, err, ErrChainBroken)
}

func TestWireRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e, err := NewEntry(priv, pub, -1, ZeroHash, "a", "first", []byte("p0"))
	require.NoError(t, err)

	w := e.ToWire()
	back, err := EntryFromWire(w)
	require.NoError(t, err)
	require.NoError(t, back.Verify(pub))
	require.Equal(t, e.EntryHash, back.EntryHash)
}

func crypto32(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}

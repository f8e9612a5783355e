// Copyright 2025 sigaid authors

package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	coreCrypto "github.com/sigaid/core/internal/crypto"
)

func TestFromSeedIsDeterministic(t *testing.T) {
	var seed [SeedSize]byte
	for i := range seed {
		seed[i] = 0x01
	}

	a := FromSeed(seed)
	b := FromSeed(seed)
	require.Equal(t, a.PublicKey(), b.PublicKey())

	idA, err := a.AgentID()
	require.NoError(t, err)
	idB, err := b.AgentID()
	require.NoError(t, err)
	require.Equal(t, idA, idB)
}

func TestSignUnderDomain(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	sig, err := kp.Sign(coreCrypto.DomainIdentity, []byte("hello"))
	require.NoError(t, err)
	require.True(t, coreCrypto.Verify(kp.PublicKey(), coreCrypto.DomainIdentity, []byte("hello"), sig))
}

func TestZeroizeInvalidatesKeyPair(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	kp.Zeroize()

	_, err = kp.Sign(coreCrypto.DomainIdentity, []byte("x"))
	require.ErrorIs(t, err, ErrZeroized)

	_, err = kp.AgentID()
	require.ErrorIs(t, err, ErrZeroized)

	require.Nil(t, kp.PublicKey())
}

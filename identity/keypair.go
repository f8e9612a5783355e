// Copyright 2025 sigaid authors

package identity

import (
	"crypto/ed25519"
	"errors"
	"runtime"

	coreCrypto "github.com/sigaid/core/internal/crypto"
)

// SeedSize is the length in bytes of the Ed25519 seed a KeyPair owns.
const SeedSize = ed25519.SeedSize // 32

// ErrZeroized is returned by any operation attempted on a KeyPair after
// Zeroize has been called.
var ErrZeroized = errors.New("identity: keypair has been zeroized")

// KeyPair owns a 32-byte Ed25519 seed and its derived public key. Secret
// material is zeroized on Zeroize and is never logged by this package.
type KeyPair struct {
	seed [SeedSize]byte
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	live bool
}

// Generate creates a fresh KeyPair from the OS CSPRNG. It fails only if the
// CSPRNG fails.
func Generate() (*KeyPair, error) {
	seed, err := coreCrypto.RandomBytes(SeedSize)
	if err != nil {
		return nil, err
	}
	var s [SeedSize]byte
	copy(s[:], seed)
	zeroBytes(seed)
	return fromSeedArray(s), nil
}

// FromSeed constructs a deterministic KeyPair from a caller-supplied 32-byte
// seed.
func FromSeed(seed [SeedSize]byte) *KeyPair {
	return fromSeedArray(seed)
}

func fromSeedArray(seed [SeedSize]byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.SeedSize:])
	return &KeyPair{
		seed: seed,
		priv: priv,
		pub:  pub,
		live: true,
	}
}

// PublicKey returns the derived Ed25519 public key.
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	if !k.live {
		return nil
	}
	return k.pub
}

// AgentID returns the AgentID encoding of this keypair's public key.
func (k *KeyPair) AgentID() (AgentID, error) {
	if !k.live {
		return "", ErrZeroized
	}
	return Encode(k.pub)
}

// Sign produces a domain-separated Ed25519 signature with this keypair's
// private key.
func (k *KeyPair) Sign(domain coreCrypto.Domain, message []byte) ([]byte, error) {
	if !k.live {
		return nil, ErrZeroized
	}
	return coreCrypto.Sign(k.priv, domain, message)
}

// Seed returns a copy of the 32-byte secret seed. Callers that retain the
// result are responsible for zeroizing it themselves when done; prefer
// Sign/AgentID over reaching for the raw seed.
func (k *KeyPair) Seed() ([SeedSize]byte, error) {
	if !k.live {
		return [SeedSize]byte{}, ErrZeroized
	}
	return k.seed, nil
}

// Zeroize wipes the secret seed and private key bytes in place. The
// KeyPair must not be used afterward; every method returns ErrZeroized.
func (k *KeyPair) Zeroize() {
	for i := range k.seed {
		k.seed[i] = 0
	}
	for i := range k.priv {
		k.priv[i] = 0
	}
	k.live = false
	runtime.KeepAlive(k.seed)
	runtime.KeepAlive(k.priv)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

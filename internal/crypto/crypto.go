// Copyright 2025 sigaid authors
//
// Package crypto provides the domain-separated signing, hashing, key
// derivation and AEAD primitives the rest of the core is built on. Every
// function here is synchronous and performs no I/O: key material never
// leaves this package's callers' hands and nothing here blocks.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
	"lukechampine.com/blake3"
)

func newSHA256() hash.Hash { return sha256.New() }

// Domain is a closed set of signing-context labels. Every signature in the
// core is computed over len16(domain) || domain || message so that a
// signature produced for one protocol message kind can never be replayed
// as a valid signature for another.
type Domain string

// The permitted domain labels. No other value may be passed to Sign/Verify.
const (
	DomainIdentity  Domain = "agent.identity.v1"
	DomainState     Domain = "agent.state.v1"
	DomainLease     Domain = "agent.lease.v1"
	DomainProof     Domain = "agent.proof.v1"
	DomainChallenge Domain = "agent.challenge.v1"
)

var validDomains = map[Domain]bool{
	DomainIdentity:  true,
	DomainState:     true,
	DomainLease:     true,
	DomainProof:     true,
	DomainChallenge: true,
}

// ErrInvalidDomain is returned when Sign or Verify is asked to use a domain
// label outside the closed set above.
var ErrInvalidDomain = errors.New("crypto: invalid signing domain")

// ErrCSPRNGUnavailable is returned when the OS CSPRNG fails to produce
// entropy. Every caller-visible variant of this is CryptoFailure.
var ErrCSPRNGUnavailable = errors.New("crypto: CSPRNG unavailable")

func domainMessage(domain Domain, message []byte) ([]byte, error) {
	if !validDomains[domain] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	if len(domain) > 0xFFFF {
		return nil, fmt.Errorf("%w: domain too long", ErrInvalidDomain)
	}
	buf := make([]byte, 2+len(domain)+len(message))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(domain)))
	copy(buf[2:2+len(domain)], domain)
	copy(buf[2+len(domain):], message)
	return buf, nil
}

// Sign computes a raw Ed25519 signature over the domain-separated message.
// The caller must hold the 64-byte Ed25519 private key (seed||pubkey form,
// as returned by ed25519.NewKeyFromSeed).
func Sign(priv ed25519.PrivateKey, domain Domain, message []byte) ([]byte, error) {
	dm, err := domainMessage(domain, message)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, dm), nil
}

// Verify reports whether sig is a valid signature by pub over message under
// domain. The result is a plain boolean: callers never learn why a
// signature failed to verify, by design (spec §7 CryptoFailure is opaque).
func Verify(pub ed25519.PublicKey, domain Domain, message, sig []byte) bool {
	dm, err := domainMessage(domain, message)
	if err != nil {
		return false
	}
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, dm, sig)
}

// Hash returns the 32-byte BLAKE3 digest of the concatenation of parts.
// Every caller uses fixed-layout, length-prefixed encodings before calling
// Hash so the concatenation is unambiguous.
func Hash(parts ...[]byte) [32]byte {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashReader returns the 32-byte BLAKE3 digest of everything read from r,
// hashing it as a stream, for payloads too large to buffer (e.g. hashing action payloads before
// committing only their hash to the state chain).
func HashReader(r io.Reader) ([32]byte, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, fmt.Errorf("crypto: hash reader: %w", err)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// HKDFSHA256 derives length bytes from ikm using HKDF-SHA256 with the given
// salt and context info.
func HKDFSHA256(ikm, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(newSHA256, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf: %w", err)
	}
	return out, nil
}

// ScryptKDF derives a 32-byte symmetric key from a password using scrypt.
// N, r and p are the standard scrypt cost parameters.
func ScryptKDF(password, salt []byte, n, r, p int) ([]byte, error) {
	key, err := scrypt.Key(password, salt, n, r, p, 32)
	if err != nil {
		return nil, fmt.Errorf("crypto: scrypt: %w", err)
	}
	return key, nil
}

// SealXChaCha20Poly1305 encrypts plaintext under key (32 bytes) with the
// given 24-byte nonce and associated data, returning ciphertext||tag.
func SealXChaCha20Poly1305(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new xchacha20poly1305: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenXChaCha20Poly1305 decrypts a ciphertext produced by
// SealXChaCha20Poly1305. Any authentication failure returns an opaque
// error — callers must not infer which byte of the ciphertext was wrong.
func OpenXChaCha20Poly1305(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new xchacha20poly1305: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("crypto: bad nonce length")
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.New("crypto: AEAD authentication failed")
	}
	return pt, nil
}

// RandomBytes fills and returns n bytes from the OS CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, ErrCSPRNGUnavailable
	}
	return b, nil
}

// CTEqual performs a constant-time byte comparison. Used for every
// MAC/signature/password-derived-key compare path so a timing side channel
// can never leak a partial match.
func CTEqual(a, b []byte) bool {
	if len(a) != len(b) {
		// still run a constant-time compare against a dummy of a's
		// length so the early return doesn't leak information about b.
		_ = subtle.ConstantTimeCompare(a, a)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Copyright 2025 sigaid authors

package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	coreCrypto "github.com/sigaid/core/internal/crypto"
)

// keyfileMagic identifies the on-disk container format. keyfileVersion is
// the normative version byte from spec §6; bumping it is a breaking change
// to the format.
var keyfileMagic = [4]byte{'S', 'A', 'K', 'F'}

const keyfileVersion = 1

const (
	saltSize  = 16
	nonceSize = 24
)

// KDFParams are the scrypt cost parameters recorded in a keyfile so it can
// be decrypted without out-of-band knowledge of how it was created.
type KDFParams struct {
	N int
	R int
	P int
}

// DefaultKDFParams is a conservative interactive-use scrypt cost, matching
// the parameters scrypt's own documentation recommends for 2024-era
// hardware.
var DefaultKDFParams = KDFParams{N: 1 << 15, R: 8, P: 1}

// ErrWrongPassword is returned by FromKeyfile when the supplied password
// fails to authenticate the keyfile's AEAD tag. A wrong password and a
// corrupted-but-well-formed keyfile are cryptographically indistinguishable
// at this point, so this is a best-effort classification, not a guarantee;
// either way the caller learns nothing about which byte was wrong.
var ErrWrongPassword = errors.New("identity: wrong password or corrupt keyfile")

// ErrCorruptKeyfile is returned when the container's structure itself is
// invalid (bad magic, truncated header, bad version) — failures detectable
// before any AEAD operation is attempted.
var ErrCorruptKeyfile = errors.New("identity: corrupt keyfile")

// ToKeyfile writes a freshly-salted, freshly-nonced encrypted container for
// k at path, protected by password under the given KDF parameters. An
// existing file at path is replaced atomically (write-to-temp-and-rename).
func (k *KeyPair) ToKeyfile(path string, password []byte, params KDFParams) error {
	if !k.live {
		return ErrZeroized
	}

	salt, err := coreCrypto.RandomBytes(saltSize)
	if err != nil {
		return err
	}
	nonce, err := coreCrypto.RandomBytes(nonceSize)
	if err != nil {
		return err
	}

	key, err := coreCrypto.ScryptKDF(password, salt, params.N, params.R, params.P)
	if err != nil {
		return fmt.Errorf("identity: derive keyfile key: %w", err)
	}
	defer zeroBytes(key)

	plaintext := encodeKeyfilePlaintext(k.seed, time.Now().UTC())
	defer zeroBytes(plaintext)

	header := encodeKeyfileHeader(salt, nonce, params)
	ciphertext, err := coreCrypto.SealXChaCha20Poly1305(key, nonce, plaintext, header)
	if err != nil {
		return fmt.Errorf("identity: seal keyfile: %w", err)
	}

	buf := make([]byte, 0, len(header)+4+len(ciphertext))
	buf = append(buf, header...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, ciphertext...)

	return writeFileAtomic(path, buf)
}

// FromKeyfile reads and decrypts the encrypted container at path, returning
// the enclosed KeyPair. It fails with ErrWrongPassword or ErrCorruptKeyfile.
func FromKeyfile(path string, password []byte) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read keyfile: %w", err)
	}

	header, rest, err := decodeKeyfileHeader(raw)
	if err != nil {
		return nil, err
	}
	if len(rest) < 4 {
		return nil, fmt.Errorf("%w: truncated ciphertext length", ErrCorruptKeyfile)
	}
	ctLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) != ctLen {
		return nil, fmt.Errorf("%w: ciphertext length mismatch", ErrCorruptKeyfile)
	}
	ciphertext := rest

	key, err := coreCrypto.ScryptKDF(password, header.salt[:], header.params.N, header.params.R, header.params.P)
	if err != nil {
		return nil, fmt.Errorf("identity: derive keyfile key: %w", err)
	}
	defer zeroBytes(key)

	plaintext, err := coreCrypto.OpenXChaCha20Poly1305(key, header.nonce[:], ciphertext, header.aad)
	if err != nil {
		return nil, ErrWrongPassword
	}
	defer zeroBytes(plaintext)

	seed, err := decodeKeyfilePlaintext(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptKeyfile, err)
	}

	return fromSeedArray(seed), nil
}

type keyfileHeader struct {
	salt   [saltSize]byte
	nonce  [nonceSize]byte
	params KDFParams
	aad    []byte
}

func encodeKeyfileHeader(salt, nonce []byte, params KDFParams) []byte {
	buf := make([]byte, 0, 4+1+saltSize+12+nonceSize)
	buf = append(buf, keyfileMagic[:]...)
	buf = append(buf, byte(keyfileVersion))
	buf = append(buf, salt...)
	var p [12]byte
	binary.BigEndian.PutUint32(p[0:4], uint32(params.N))
	binary.BigEndian.PutUint32(p[4:8], uint32(params.R))
	binary.BigEndian.PutUint32(p[8:12], uint32(params.P))
	buf = append(buf, p[:]...)
	buf = append(buf, nonce...)
	return buf
}

func decodeKeyfileHeader(raw []byte) (keyfileHeader, []byte, error) {
	const headerLen = 4 + 1 + saltSize + 12 + nonceSize
	if len(raw) < headerLen {
		return keyfileHeader{}, nil, fmt.Errorf("%w: truncated header", ErrCorruptKeyfile)
	}
	if [4]byte(raw[0:4]) != keyfileMagic {
		return keyfileHeader{}, nil, fmt.Errorf("%w: bad magic", ErrCorruptKeyfile)
	}
	if raw[4] != keyfileVersion {
		return keyfileHeader{}, nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptKeyfile, raw[4])
	}
	var h keyfileHeader
	copy(h.salt[:], raw[5:5+saltSize])
	off := 5 + saltSize
	h.params.N = int(binary.BigEndian.Uint32(raw[off : off+4]))
	h.params.R = int(binary.BigEndian.Uint32(raw[off+4 : off+8]))
	h.params.P = int(binary.BigEndian.Uint32(raw[off+8 : off+12]))
	off += 12
	copy(h.nonce[:], raw[off:off+nonceSize])
	off += nonceSize
	h.aad = append([]byte(nil), raw[:headerLen]...)
	return h, raw[off:], nil
}

// encodeKeyfilePlaintext lays out the protected payload: the 32-byte seed
// followed by a length-prefixed RFC 3339 creation timestamp, kept purely
// as informational metadata (never consulted for any security decision).
func encodeKeyfilePlaintext(seed [SeedSize]byte, createdAt time.Time) []byte {
	ts := []byte(createdAt.Format(time.RFC3339))
	buf := make([]byte, 0, SeedSize+2+len(ts))
	buf = append(buf, seed[:]...)
	var tsLen [2]byte
	binary.BigEndian.PutUint16(tsLen[:], uint16(len(ts)))
	buf = append(buf, tsLen[:]...)
	buf = append(buf, ts...)
	return buf
}

func decodeKeyfilePlaintext(plaintext []byte) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if len(plaintext) < SeedSize+2 {
		return seed, errors.New("plaintext too short")
	}
	copy(seed[:], plaintext[:SeedSize])
	tsLen := binary.BigEndian.Uint16(plaintext[SeedSize : SeedSize+2])
	if len(plaintext) != SeedSize+2+int(tsLen) {
		return seed, errors.New("plaintext metadata length mismatch")
	}
	return seed, nil
}

// writeFileAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a
// half-written keyfile where one was expected.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: create keyfile directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".keyfile-*.tmp")
	if err != nil {
		return fmt.Errorf("identity: create temp keyfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: chmod temp keyfile: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: write temp keyfile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: sync temp keyfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp keyfile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("identity: rename keyfile into place: %w", err)
	}
	return nil
}

// Copyright 2025 sigaid authors

package face

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigaid/core/internal/crypto"
)

func TestTotalCombinationsMatchesSpec(t *testing.T) {
	require.Equal(t, int64(2378170368000), TotalCombinations())
}

func TestFromBytesIsDeterministic(t *testing.T) {
	input := make([]byte, 32)
	for i := range input {
		input[i] = byte(i * 7)
	}
	a := FromBytes(input)
	b := FromBytes(input)
	require.Equal(t, a.Parameters(), b.Parameters())
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFromBytesShorterThan32HashesFirst(t *testing.T) {
	f := FromBytes([]byte("short input"))
	require.Len(t, f.Fingerprint(), 8)
	h := crypto.Hash([]byte("short input"))
	require.Equal(t, FromBytes(h[:]).Parameters(), f.Parameters())
}

func TestFromHexAndFromBase64RoundTrip(t *testing.T) {
	input := make([]byte, 32)
	for i := range input {
		input[i] = byte(255 - i)
	}
	direct := FromBytes(input)

	hexFace, err := FromHex(hex.EncodeToString(input))
	require.NoError(t, err)
	require.Equal(t, direct.Fingerprint(), hexFace.Fingerprint())

	b64Face, err := FromBase64(base64.StdEncoding.EncodeToString(input))
	require.NoError(t, err)
	require.Equal(t, direct.Fingerprint(), b64Face.Fingerprint())
}

func TestFromHexRejectsBadInput(t *testing.T) {
	_, err := FromHex("not-hex!!")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSimilaritySelfIsZero(t *testing.T) {
	f := FromBytes(make([]byte, 32))
	require.Equal(t, 0.0, f.Similarity(f))
}

func TestSimilarityIsSymmetricAndBounded(t *testing.T) {
	a := FromBytes(bytesOf(1))
	b := FromBytes(bytesOf(2))
	require.Equal(t, a.Similarity(b), b.Similarity(a))
	require.GreaterOrEqual(t, a.Similarity(b), 0.0)
	require.LessOrEqual(t, a.Similarity(b), 1.0)
}

func TestFingerprintIsFirstFourBytesOfHash(t *testing.T) {
	input := bytesOf(9)
	f := FromBytes(input)
	require.Len(t, f.Fingerprint(), 8)
	h := crypto.Hash(input)
	require.Equal(t, hex.EncodeToString(h[:4]), f.Fingerprint())
}

func TestParameterExtractionSelectsFromTables(t *testing.T) {
	input := bytesOf(5)
	f := FromBytes(input)
	p := f.Parameters()
	require.Contains(t, palettes[:], p.Palette)
	require.Contains(t, faceShapes[:], p.FaceShape)
	require.GreaterOrEqual(t, p.FaceW, 50.0)
	require.LessOrEqual(t, p.FaceW, 70.0)
}

func TestDescribeAndFullDescriptionAreNonEmpty(t *testing.T) {
	f := FromBytes(bytesOf(3))
	require.NotEmpty(t, f.Describe())
	require.NotEmpty(t, f.FullDescription())
}

func bytesOf(seedByte byte) []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(int(seedByte)*31 + i*13)
	}
	return b
}


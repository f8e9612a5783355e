// Copyright 2025 sigaid authors

package face

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMT19937SimpleSeedIsDeterministic(t *testing.T) {
	a := newMT19937FromSeed(42)
	b := newMT19937FromSeed(42)
	for i := 0; i < 1000; i++ {
		require.Equal(t, a.nextUint32(), b.nextUint32())
	}
}

func TestMT19937DifferentSeedsDiverge(t *testing.T) {
	a := newMT19937FromSeed(1)
	b := newMT19937FromSeed(2)
	require.NotEqual(t, a.nextUint32(), b.nextUint32())
}

func TestMT19937KnownFirstOutputForSeed5489(t *testing.T) {
	// 5489 is MT19937's own conventional default seed; the first tempered
	// output for it is a widely published reference value used to pin
	// conformance across implementations.
	m := newMT19937FromSeed(5489)
	first := m.nextUint32()
	require.Equal(t, uint32(3499211612), first)
}

func TestMT19937RandomDoubleInRange(t *testing.T) {
	m := newMT19937FromSeed(7)
	for i := 0; i < 1024; i++ {
		d := m.randomDouble()
		require.GreaterOrEqual(t, d, 0.0)
		require.Less(t, d, 1.0)
	}
}

func TestMT19937SeedByArrayIsDeterministic(t *testing.T) {
	key := []uint32{0x123, 0x234, 0x345, 0x456}
	a := newMT19937FromArray(key)
	b := newMT19937FromArray(key)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.nextUint32(), b.nextUint32())
	}
}

func TestBytesToWordsTrimsLeadingZeroWordsButKeepsOne(t *testing.T) {
	words := bytesToWords([]byte{0, 0, 0, 0, 0x00, 0x00, 0x00, 0x01})
	require.Equal(t, []uint32{1}, words)
}

func TestNewMT19937FromBytesSingleWordUsesSimplePath(t *testing.T) {
	a := newMT19937FromBytes([]byte{0, 0, 0, 42})
	b := newMT19937FromSeed(42)
	require.Equal(t, b.nextUint32(), a.nextUint32())
}

// Copyright 2025 sigaid authors

package face

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sigaid/core/internal/crypto"
)

// ErrInvalidInput covers malformed face-source input: bad hex/base64.
var ErrInvalidInput = errors.New("face: invalid input")

// Parameters is the full set of values extracted from a 32-byte key,
// per spec §4.F.
type Parameters struct {
	Palette    string
	FaceShape  string
	EyeStyle   string
	EyeExpr    string
	Mouth      string
	Crown      string
	Forehead   string
	Cheek      string
	Chin       string
	Side       string
	Background string
	Aura       string

	FaceW         float64
	FaceH         float64
	EyeSize       float64
	EyeSpacing    float64
	MouthW        float64
	CrownSize     float64
	MarkSize      float64
	AccessorySize float64
	Glow          float64
	AnimSpeed     float64
	Glitch        float64

	ParticleDensity int

	PatternSeed  uint16
	CircuitSeed  uint16
	ParticleSeed uint16
	EffectSeed   uint16
}

// Face is a deterministic visual identity derived from 32 input bytes.
type Face struct {
	source [32]byte
	params Parameters
}

// byteToRange maps a byte in [0,255] to [lo,hi] via lo + (v/255)*(hi-lo),
// evaluated in IEEE-754 double precision.
func byteToRange(v byte, lo, hi float64) float64 {
	return lo + (float64(v)/255.0)*(hi-lo)
}

// FromBytes builds a Face from arbitrary-length input. Input of exactly 32
// bytes is used as is; input of any other length is first hashed to 32
// bytes via BLAKE3.
func FromBytes(input []byte) Face {
	var b [32]byte
	if len(input) == 32 {
		copy(b[:], input)
	} else {
		b = crypto.Hash(input)
	}
	return Face{source: b, params: extractParameters(b)}
}

// FromHex builds a Face from a hex-encoded key.
func FromHex(s string) (Face, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Face{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return FromBytes(raw), nil
}

// FromBase64 builds a Face from a standard-base64-encoded key.
func FromBase64(s string) (Face, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Face{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return FromBytes(raw), nil
}

func extractParameters(b [32]byte) Parameters {
	p := Parameters{
		Palette:    palettes[int(b[0])%len(palettes)],
		FaceShape:  faceShapes[int(b[1])%len(faceShapes)],
		EyeStyle:   eyeStyles[int(b[2])%len(eyeStyles)],
		EyeExpr:    eyeExpressions[int(b[3])%len(eyeExpressions)],
		Mouth:      mouthStyles[int(b[4])%len(mouthStyles)],
		Crown:      crownStyles[int(b[5])%len(crownStyles)],
		Forehead:   foreheadMarks[int(b[6])%len(foreheadMarks)],
		Cheek:      cheekPatterns[int(b[7])%len(cheekPatterns)],
		Chin:       chinFeatures[int(b[8])%len(chinFeatures)],
		Side:       sideAccessories[int(b[9])%len(sideAccessories)],
		Background: bgStyles[int(b[10])%len(bgStyles)],
		Aura:       auraStyles[int(b[11])%len(auraStyles)],

		FaceW:      byteToRange(b[12], 50, 70),
		FaceH:      byteToRange(b[13], 65, 85),
		EyeSize:    byteToRange(b[14], 10, 20),
		EyeSpacing: byteToRange(b[15], 22, 38),
		MouthW:     byteToRange(b[16], 18, 40),

		CrownSize:     byteToRange(b[17], 0.7, 1.3),
		MarkSize:      byteToRange(b[18], 0.7, 1.3),
		AccessorySize: byteToRange(b[19], 0.8, 1.2),
		Glow:          byteToRange(b[20], 0.5, 1.0),
		AnimSpeed:     byteToRange(b[21], 1.5, 3.5),
		Glitch:        byteToRange(b[22], 0.1, 0.3),

		ParticleDensity: int(byteToRange(b[23], 8, 20)),

		PatternSeed:  uint16(b[24])<<8 | uint16(b[25]),
		CircuitSeed:  uint16(b[26])<<8 | uint16(b[27]),
		ParticleSeed: uint16(b[28])<<8 | uint16(b[29]),
		EffectSeed:   uint16(b[30])<<8 | uint16(b[31]),
	}
	return p
}

// TotalCombinations is a normative self-check: the product of every
// categorical table's size.
func TotalCombinations() int64 {
	return int64(len(palettes)) * int64(len(faceShapes)) * int64(len(eyeStyles)) *
		int64(len(eyeExpressions)) * int64(len(mouthStyles)) * int64(len(crownStyles)) *
		int64(len(foreheadMarks)) * int64(len(cheekPatterns)) * int64(len(chinFeatures)) *
		int64(len(sideAccessories)) * int64(len(bgStyles)) * int64(len(auraStyles))
}

// Fingerprint returns the hex of the first 4 bytes of BLAKE3(source) — an
// 8-character identifier distinct from, but derived the same way as,
// every other hash this core computes.
func (f Face) Fingerprint() string {
	h := crypto.Hash(f.source[:])
	return hex.EncodeToString(h[:4])
}

// Parameters returns the extracted parameter set.
func (f Face) Parameters() Parameters {
	return f.params
}

// Describe returns a short, single-line human-readable summary.
func (f Face) Describe() string {
	p := f.params
	return fmt.Sprintf("%s %s, %s eyes (%s), %s mouth, %s crown",
		p.Palette, p.FaceShape, p.EyeStyle, p.EyeExpr, p.Mouth, p.Crown)
}

// FullDescription returns a multi-line human-readable feature breakdown.
func (f Face) FullDescription() string {
	p := f.params
	var b strings.Builder
	fmt.Fprintf(&b, "fingerprint: %s\n", f.Fingerprint())
	fmt.Fprintf(&b, "palette: %s\n", p.Palette)
	fmt.Fprintf(&b, "face: %s (%.2fx%.2f)\n", p.FaceShape, p.FaceW, p.FaceH)
	fmt.Fprintf(&b, "eyes: %s/%s, size=%.2f spacing=%.2f\n", p.EyeStyle, p.EyeExpr, p.EyeSize, p.EyeSpacing)
	fmt.Fprintf(&b, "mouth: %s, width=%.2f\n", p.Mouth, p.MouthW)
	fmt.Fprintf(&b, "crown: %s, size=%.2f\n", p.Crown, p.CrownSize)
	fmt.Fprintf(&b, "forehead: %s, cheek: %s, chin: %s, side: %s\n", p.Forehead, p.Cheek, p.Chin, p.Side)
	fmt.Fprintf(&b, "background: %s, aura: %s, glow=%.2f\n", p.Background, p.Aura, p.Glow)
	fmt.Fprintf(&b, "particles: density=%d speed=%.2f glitch=%.2f\n", p.ParticleDensity, p.AnimSpeed, p.Glitch)
	return b.String()
}

// categoricalIndices returns the 12 categorical table indices this face
// resolved to, in the fixed order used by Similarity.
func (f Face) categoricalIndices() [12]byte {
	b := f.source
	return [12]byte{
		b[0] % byte(len(palettes)),
		b[1] % byte(len(faceShapes)),
		b[2] % byte(len(eyeStyles)),
		b[3] % byte(len(eyeExpressions)),
		b[4] % byte(len(mouthStyles)),
		b[5] % byte(len(crownStyles)),
		b[6] % byte(len(foreheadMarks)),
		b[7] % byte(len(cheekPatterns)),
		b[8] % byte(len(chinFeatures)),
		b[9] % byte(len(sideAccessories)),
		b[10] % byte(len(bgStyles)),
		b[11] % byte(len(auraStyles)),
	}
}

// Similarity returns the Hamming distance between f and other's 12
// categorical indices, divided by 12 — 0 means identical, 1 means every
// categorical choice differs.
func (f Face) Similarity(other Face) float64 {
	a := f.categoricalIndices()
	b := other.categoricalIndices()
	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(a))
}

// Copyright 2025 sigaid authors

package face

import (
	"fmt"
	"strconv"
	"strings"
)

// viewport is the renderer's fixed document size in both axes.
const viewport = 200

// centerX/centerY is the fixed reference center every subcomponent's
// geometry is computed relative to.
const centerX = viewport / 2
const centerY = viewport / 2

// formatNumber applies the one canonical number-formatting rule every
// implementation of this renderer must follow: shortest round-trip
// decimal, fixed (never scientific) notation.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// seededFor returns an MT19937 generator seeded with the given 16-bit
// per-subcomponent seed, installed fresh immediately before drawing that
// subcomponent — per spec §4.F, this makes subcomponent output
// independent of what else has already been drawn.
func seededFor(seed uint16) *mt19937 {
	return newMT19937FromBytes([]byte{byte(seed >> 8), byte(seed)})
}

// ToVectorGraphic composes the fixed-viewport document for this face,
// emitting subcomponents in the normative fixed order: definitions,
// animations (if enabled), background, aura, pre-face crown variants,
// face shape, forehead mark, eyes, cheeks, mouth, chin, side accessories,
// post-face crown variants, and scan overlay (if animated).
func (f Face) ToVectorGraphic(size int, animated bool) string {
	p := f.params

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d">`,
		viewport, viewport, size, size)

	b.WriteString(renderDefs(p))
	if animated {
		b.WriteString(renderAnimations(p))
	}
	b.WriteString(renderBackground(p))
	b.WriteString(renderAura(p))

	if crownIsPreFace(p.Crown) {
		b.WriteString(renderCrown(p, seededFor(p.CircuitSeed)))
	}

	b.WriteString(renderFaceShape(p))
	b.WriteString(renderForeheadMark(p, seededFor(p.PatternSeed)))
	b.WriteString(renderEyes(p))
	b.WriteString(renderCheeks(p, seededFor(p.PatternSeed)))
	b.WriteString(renderMouth(p))
	b.WriteString(renderChin(p))
	b.WriteString(renderSideAccessories(p, seededFor(p.EffectSeed)))

	if !crownIsPreFace(p.Crown) {
		b.WriteString(renderCrown(p, seededFor(p.CircuitSeed)))
	}

	if animated {
		b.WriteString(renderScanOverlay(p, seededFor(p.ParticleSeed)))
	}

	b.WriteString("</svg>")
	return b.String()
}

func renderDefs(p Parameters) string {
	return fmt.Sprintf(`<defs><radialGradient id="bgGrad"><stop offset="0%%" stop-opacity="%s"/><stop offset="100%%" stop-opacity="0"/></radialGradient></defs>`,
		formatNumber(p.Glow))
}

func renderAnimations(p Parameters) string {
	return fmt.Sprintf(`<style>.pulse{animation-duration:%ss;}</style>`, formatNumber(p.AnimSpeed))
}

func renderBackground(p Parameters) string {
	return fmt.Sprintf(`<rect class="bg-%s" x="0" y="0" width="%d" height="%d"/>`, p.Background, viewport, viewport)
}

func renderAura(p Parameters) string {
	if p.Aura == "none" {
		return ""
	}
	radius := formatNumber(p.FaceW * 1.4)
	return fmt.Sprintf(`<circle class="aura-%s" cx="%d" cy="%d" r="%s" opacity="%s"/>`,
		p.Aura, centerX, centerY, radius, formatNumber(p.Glow))
}

func renderCrown(p Parameters, rng *mt19937) string {
	if p.Crown == "none" {
		return ""
	}
	jitter := rng.uniform(-2, 2)
	size := formatNumber(p.CrownSize * (p.FaceW / 2))
	offset := formatNumber(jitter)
	return fmt.Sprintf(`<g class="crown-%s" transform="translate(%s,0)"><rect x="%d" y="%s" width="%s" height="10"/></g>`,
		p.Crown, offset, centerX-10, formatNumber(float64(centerY)-p.FaceH), size)
}

func renderFaceShape(p Parameters) string {
	rx := formatNumber(p.FaceW / 2)
	ry := formatNumber(p.FaceH / 2)
	return fmt.Sprintf(`<ellipse class="face-%s palette-%s" cx="%d" cy="%d" rx="%s" ry="%s"/>`,
		p.FaceShape, p.Palette, centerX, centerY, rx, ry)
}

func renderForeheadMark(p Parameters, rng *mt19937) string {
	if p.Forehead == "none" {
		return ""
	}
	size := formatNumber(p.MarkSize * 6)
	y := formatNumber(float64(centerY) - p.FaceH*0.35)
	jitter := rng.randint(-2, 2)
	return fmt.Sprintf(`<g class="forehead-%s" transform="translate(%d,0)"><circle cx="%d" cy="%s" r="%s"/></g>`,
		p.Forehead, jitter, centerX, y, size)
}

func renderEyes(p Parameters) string {
	size := formatNumber(p.EyeSize / 2)
	half := p.EyeSpacing / 2
	leftX := formatNumber(float64(centerX) - half)
	rightX := formatNumber(float64(centerX) + half)
	y := formatNumber(float64(centerY) - p.FaceH*0.1)
	return fmt.Sprintf(
		`<g class="eyes-%s expr-%s"><circle cx="%s" cy="%s" r="%s"/><circle cx="%s" cy="%s" r="%s"/></g>`,
		p.EyeStyle, p.EyeExpr, leftX, y, size, rightX, y, size)
}

func renderCheeks(p Parameters, rng *mt19937) string {
	if p.Cheek == "none" {
		return ""
	}
	offset := rng.uniform(-1, 1)
	half := p.EyeSpacing/2 + 6
	leftX := formatNumber(float64(centerX) - half + offset)
	rightX := formatNumber(float64(centerX) + half + offset)
	y := formatNumber(float64(centerY) + p.FaceH*0.05)
	return fmt.Sprintf(`<g class="cheek-%s"><circle cx="%s" cy="%s" r="3"/><circle cx="%s" cy="%s" r="3"/></g>`,
		p.Cheek, leftX, y, rightX, y)
}

func renderMouth(p Parameters) string {
	w := formatNumber(p.MouthW / 2)
	y := formatNumber(float64(centerY) + p.FaceH*0.3)
	return fmt.Sprintf(`<path class="mouth-%s" d="M %d %s h %s"/>`, p.Mouth, centerX, y, w)
}

func renderChin(p Parameters) string {
	if p.Chin == "none" {
		return ""
	}
	y := formatNumber(float64(centerY) + p.FaceH*0.48)
	return fmt.Sprintf(`<g class="chin-%s"><rect x="%d" y="%s" width="6" height="4"/></g>`, p.Chin, centerX-3, y)
}

func renderSideAccessories(p Parameters, rng *mt19937) string {
	if p.Side == "none" {
		return ""
	}
	size := formatNumber(p.AccessorySize * 8)
	jitter := rng.uniform(-3, 3)
	x := formatNumber(float64(centerX) - p.FaceW/2 - 4 + jitter)
	y := formatNumber(float64(centerY))
	return fmt.Sprintf(`<g class="side-%s"><rect x="%s" y="%s" width="%s" height="%s"/></g>`, p.Side, x, y, size, size)
}

func renderScanOverlay(p Parameters, rng *mt19937) string {
	lines := rng.randint(2, 5)
	var b strings.Builder
	b.WriteString(`<g class="scan">`)
	for i := 0; i < lines; i++ {
		y := rng.uniform(0, viewport)
		fmt.Fprintf(&b, `<line x1="0" y1="%s" x2="%d" y2="%s"/>`, formatNumber(y), viewport, formatNumber(y))
	}
	b.WriteString("</g>")
	return b.String()
}

// Copyright 2025 sigaid authors

package face

// The categorical tables below. Sizes are normative (spec §4.F); names are
// this implementation's own labels for each variant and carry no
// cross-implementation significance beyond indexing.

var palettes = [20]string{
	"slate", "azure", "crimson", "amber", "jade", "violet", "coral", "steel",
	"gold", "indigo", "rose", "teal", "copper", "sapphire", "ember", "moss",
	"orchid", "graphite", "sunrise", "midnight",
}

var faceShapes = [12]string{
	"round", "oval", "square", "heart", "diamond", "triangle",
	"hexagon", "pear", "oblong", "rectangle", "inverted_triangle", "soft_square",
}

var eyeStyles = [16]string{
	"round", "almond", "sharp", "sleepy", "wide", "narrow", "star",
	"diamond", "crescent", "hollow", "dot", "lined", "hooded", "upturned",
	"downturned", "glowing",
}

var eyeExpressions = [8]string{
	"neutral", "happy", "curious", "focused", "surprised", "calm", "alert", "dreamy",
}

var mouthStyles = [14]string{
	"neutral", "smile", "smirk", "open", "line", "grin", "frown",
	"pursed", "zigzag", "small_o", "wide_o", "curved", "flat", "dot",
}

var crownStyles = [16]string{
	"none", "halo", "flames", "data_cloud", "spikes", "band", "laurel",
	"antenna", "visor", "horns", "circuit", "orbit", "plume", "diadem",
	"fin", "static",
}

var foreheadMarks = [12]string{
	"none", "dot", "line", "triangle", "rune", "circuit_trace", "scar",
	"gem", "chevron", "stripe", "cross", "spiral",
}

var cheekPatterns = [10]string{
	"none", "freckles", "stripes", "blush", "circuit", "scales", "dots", "gradient", "hex", "scratch",
}

var chinFeatures = [8]string{
	"none", "point", "cleft", "round", "angular", "tuft", "plate", "glow",
}

var sideAccessories = [10]string{
	"none", "antenna_left", "antenna_right", "fin_left", "fin_right",
	"ear_ring", "wires", "blades", "vents", "studs",
}

var bgStyles = [6]string{
	"solid", "gradient", "grid", "radial", "noise", "rings",
}

var auraStyles = [6]string{
	"none", "glow", "particles", "rings", "flicker", "static",
}

// crownIsPreFace reports whether a crown variant is drawn before the face
// shape (halo, flames, data_cloud per spec §4.F's fixed subcomponent
// order) or after it (every other crown style).
func crownIsPreFace(style string) bool {
	switch style {
	case "halo", "flames", "data_cloud":
		return true
	default:
		return false
	}
}

package eventstore

import (
	"fmt"
	"hash/fnv"
)

// palette is the fixed 16-entry color set spec §3 requires. Chosen for visual distinctness on a
// dark chat-style UI background.
var palette = [16]string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
	"#bcf60c", "#fabebe", "#008080", "#e6beff",
	"#9a6324", "#fffac8", "#800000", "#aaffc3",
}

// assignColor picks a deterministic color for userID against the colors already held by
// subscribers within this device's subscriber set. It hashes userID to an initial palette index, then
// probes forward through the palette on collision; if every entry is already in use it falls
// back to an additive HSL-like perturbation of the hash-selected entry so the result is still
// deterministic for a given (userID, in-use set) pair (spec §3: "hash-ordered probing, ultimate
// fallback is an additive HSL-like perturbation").
func assignColor(userID string, inUse map[string]bool) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	start := int(h.Sum32()) % len(palette)
	if start < 0 {
		start += len(palette)
	}

	for i := 0; i < len(palette); i++ {
		candidate := palette[(start+i)%len(palette)]
		if !inUse[candidate] {
			return candidate
		}
	}

	return perturb(palette[start], h.Sum32())
}

// perturb derives a new color from base by nudging its RGB channels using the hash as a
// deterministic seed, approximating an HSL lightness/hue shift without pulling in a color math
// library for one fallback path.
func perturb(base string, seed uint32) string {
	var r, g, b int
	_, _ = fmt.Sscanf(base, "#%02x%02x%02x", &r, &g, &b)

	shift := int(seed % 40) - 20
	r = clampByte(r + shift)
	g = clampByte(g + shift/2)
	b = clampByte(b - shift/2)

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

package eventstore

import "testing"

func TestAssignColorDeterministic(t *testing.T) {
	a := assignColor("user-1", map[string]bool{})
	b := assignColor("user-1", map[string]bool{})
	if a != b {
		t.Fatalf("expected deterministic color, got %s and %s", a, b)
	}
}

func TestAssignColorAvoidsInUse(t *testing.T) {
	first := assignColor("user-1", map[string]bool{})
	inUse := map[string]bool{first: true}
	second := assignColor("user-2", inUse)
	if second == first {
		t.Fatalf("expected distinct colors when %s is in use", first)
	}
}

func TestAssignColorFallsBackWhenPaletteExhausted(t *testing.T) {
	inUse := make(map[string]bool, len(palette))
	for _, c := range palette {
		inUse[c] = true
	}
	got := assignColor("user-x", inUse)
	if len(got) != 7 || got[0] != '#' {
		t.Fatalf("expected a #rrggbb fallback color, got %q", got)
	}
}

func TestPerturbIsDeterministicForSameSeed(t *testing.T) {
	a := perturb("#112233", 42)
	b := perturb("#112233", 42)
	if a != b {
		t.Fatalf("expected deterministic perturbation, got %s and %s", a, b)
	}
}

package spot

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	if d := Distance(54.5, -1.2, 54.5, -1.2); d != 0 {
		t.Errorf("distance to self should be 0, got %v", d)
	}

	// One degree of latitude is ~111.19 km.
	d := Distance(0, 0, 1, 0)
	if math.Abs(d-111.19) > 0.1 {
		t.Errorf("expected ~111.19 km, got %v", d)
	}

	if a, b := Distance(10, 20, 30, 40), Distance(30, 40, 10, 20); math.Abs(a-b) > 1e-9 {
		t.Errorf("distance should be symmetric: %v != %v", a, b)
	}
}

package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	t.Parallel()

	// Madrid city centre to Barcelona city centre, roughly 505 km.
	d := HaversineKm(40.4168, -3.7038, 41.3874, 2.1686)
	if d < 500 || d > 510 {
		t.Fatalf("unexpected Madrid-Barcelona distance: %f", d)
	}
}

func TestHaversineKm_ZeroDistance(t *testing.T) {
	t.Parallel()

	if d := HaversineKm(48.8566, 2.3522, 48.8566, 2.3522); d != 0 {
		t.Fatalf("expected zero distance for identical points, got %f", d)
	}
}

func TestHaversineKm_NaNPropagates(t *testing.T) {
	t.Parallel()

	if d := HaversineKm(math.NaN(), 0, 0, 0); !math.IsNaN(d) {
		t.Fatalf("expected NaN to propagate, got %f", d)
	}
}

func TestBoundingBox_Contains(t *testing.T) {
	t.Parallel()

	box := BoundingBox{MinLat: 40, MaxLat: 41, MinLon: -4, MaxLon: -3}
	if !box.Contains(40.5, -3.5) {
		t.Fatalf("expected interior point to be contained")
	}
	if !box.Contains(40, -4) {
		t.Fatalf("expected corner point to be contained")
	}
	if box.Contains(39.999, -3.5) {
		t.Fatalf("expected outside point to be excluded")
	}
}

func TestBoundingBox_Expand(t *testing.T) {
	t.Parallel()

	box := BoundingBox{MinLat: 40, MaxLat: 41, MinLon: -4, MaxLon: -3}
	grown := box.Expand(111)

	if grown.MinLat >= box.MinLat || grown.MaxLat <= box.MaxLat {
		t.Fatalf("expected latitude bounds to widen: %+v", grown)
	}
	if grown.MinLon >= box.MinLon || grown.MaxLon <= box.MaxLon {
		t.Fatalf("expected longitude bounds to widen: %+v", grown)
	}
	if grown.MaxLat-box.MaxLat < 0.9 || grown.MaxLat-box.MaxLat > 1.1 {
		t.Fatalf("expected ~1 degree of latitude growth for 111 km, got %f", grown.MaxLat-box.MaxLat)
	}
}

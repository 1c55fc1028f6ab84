package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between two
// WGS-84 points. NaN inputs propagate; callers validate ranges.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether the point falls inside the box, bounds inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Expand grows the box by approximately km kilometers in every direction.
// The longitude delta widens with latitude; near the poles it degrades to
// the full circle, which is acceptable for coarse pre-filtering.
func (b BoundingBox) Expand(km float64) BoundingBox {
	latDelta := km / 111.0
	midLat := toRadians((b.MinLat + b.MaxLat) / 2)
	cosLat := math.Cos(midLat)
	lonDelta := 180.0
	if cosLat > 1e-6 {
		lonDelta = km / (111.0 * cosLat)
	}
	return BoundingBox{
		MinLat: math.Max(b.MinLat-latDelta, -90),
		MaxLat: math.Min(b.MaxLat+latDelta, 90),
		MinLon: math.Max(b.MinLon-lonDelta, -180),
		MaxLon: math.Min(b.MaxLon+lonDelta, 180),
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

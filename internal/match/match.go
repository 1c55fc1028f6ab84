// Package match decides whether two candidates harvested from independent
// sources denote the same physical flood event.
package match

import (
	"math"

	"github.com/JinJiangyue/EUflood-sub000/internal/event"
	"github.com/JinJiangyue/EUflood-sub000/internal/geo"
)

const (
	DefaultMaxDistanceKm  = 50.0
	DefaultMaxTimeDiffHrs = 12.0
)

// Matcher holds the identity thresholds. The zero value is unusable; use
// New or NewWithThresholds.
type Matcher struct {
	maxDistanceKm  float64
	maxTimeDiffHrs float64
}

func New() Matcher {
	return NewWithThresholds(DefaultMaxDistanceKm, DefaultMaxTimeDiffHrs)
}

func NewWithThresholds(maxDistanceKm, maxTimeDiffHrs float64) Matcher {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}
	if maxTimeDiffHrs <= 0 {
		maxTimeDiffHrs = DefaultMaxTimeDiffHrs
	}
	return Matcher{
		maxDistanceKm:  maxDistanceKm,
		maxTimeDiffHrs: maxTimeDiffHrs,
	}
}

// SameEvent is a symmetric, side-effect-free identity predicate. Rules are
// evaluated in order and short-circuit on the first failure:
//
//  1. country must match exactly, never relaxed;
//  2. the event times must lie within the time window;
//  3. when both sides carry coordinates, distance alone decides;
//  4. otherwise a shared normalized city (inside the time window) matches;
//  5. without any usable spatial signal the answer is no. Country plus
//     time alone never merges.
func (m Matcher) SameEvent(a, b event.Candidate) bool {
	if a.NormalizedCountry() != b.NormalizedCountry() {
		return false
	}

	timeDiff := timeDiffHours(a, b)
	if timeDiff > m.maxTimeDiffHrs {
		return false
	}

	if a.HasCoordinates() && b.HasCoordinates() {
		// Distance decides outright here; the threshold itself is out.
		distance := geo.HaversineKm(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		return distance < m.maxDistanceKm
	}

	if cityA, cityB := a.NormalizedCity(), b.NormalizedCity(); cityA != "" && cityB != "" {
		return cityA == cityB
	}

	return false
}

func timeDiffHours(a, b event.Candidate) float64 {
	return math.Abs(a.EffectiveTime().Sub(b.EffectiveTime()).Hours())
}

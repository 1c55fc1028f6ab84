package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// globalKeyCoordDecimals controls how coarsely coordinates are bucketed
// when deriving a global event key. One decimal place gives ~11 km cells,
// comfortably inside the 50 km matching radius.
const globalKeyCoordDecimals = 1

const dayFormat = "20060102"

// DedupKey is the deterministic fingerprint of one harvested candidate.
// Two polls of the same source yielding the same (date, country, location)
// collide here, and the collision is treated as a no-op upsert.
func (c Candidate) DedupKey() string {
	location := c.NormalizedCity()
	if location == "" && c.HasCoordinates() {
		location = fmt.Sprintf("%.4f,%.4f", *c.Latitude, *c.Longitude)
	}

	raw := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(c.Source)),
		c.EventDate.UTC().Format("2006-01-02"),
		strings.ToLower(strings.TrimSpace(c.Country)),
		location,
	}, "|")

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

// GlobalKey derives the canonical identity for the merged event a seed
// candidate belongs to. It is a pure function of the seed's date, country,
// rounded coordinates (or city), and hour-precision time, so the same seed
// always lands in the same merged record across runs.
func GlobalKey(seed Candidate) string {
	location := "noloc"
	if seed.HasCoordinates() {
		location = fmt.Sprintf("%s,%s",
			roundCoord(*seed.Latitude, globalKeyCoordDecimals),
			roundCoord(*seed.Longitude, globalKeyCoordDecimals),
		)
	} else if city := seed.NormalizedCity(); city != "" {
		location = strings.ReplaceAll(city, " ", "_")
	}

	hour := "00"
	if seed.TimeFrom != nil && !seed.TimeFrom.IsZero() {
		hour = seed.TimeFrom.UTC().Format("15")
	}

	return strings.Join([]string{
		seed.EventDate.UTC().Format(dayFormat),
		strings.ToLower(strings.TrimSpace(seed.Country)),
		location,
		"h" + hour,
	}, "|")
}

func roundCoord(v float64, decimals int) string {
	factor := math.Pow10(decimals)
	rounded := math.Round(v*factor) / factor
	// Normalize -0.0 so keys east and west of a rounding boundary agree.
	if rounded == 0 {
		rounded = 0
	}
	return fmt.Sprintf("%.*f", decimals, rounded)
}

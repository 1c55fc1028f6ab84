// Package ingestion reconciles interpolated rainfall point batches into
// the rain_events collection: stable region-scoped sequence identifiers,
// no re-inserts, and no resets of the investigation flag.
package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	dayFormat  = "20060102"
)

// UnknownProvince is used when a point carries no administrative name at
// all, so the row still gets a stable identifier.
const UnknownProvince = "unknown"

// Normalizer derives the storage and identifier forms of a point's
// attributes. Precision is the number of coordinate decimals folded into
// identity keys.
type Normalizer struct {
	precision int
}

func NewNormalizer(precision int) Normalizer {
	if precision < 0 {
		precision = 0
	}
	return Normalizer{precision: precision}
}

// ProvinceDisplay is the storage form: the text before the first "/",
// trimmed, spaces preserved.
func (n Normalizer) ProvinceDisplay(raw string) string {
	name := raw
	if idx := strings.Index(name, "/"); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownProvince
	}
	return name
}

// ProvinceSanitized is the identifier form: the display form with spaces
// replaced by underscores.
func (n Normalizer) ProvinceSanitized(raw string) string {
	return strings.ReplaceAll(n.ProvinceDisplay(raw), " ", "_")
}

// IdentityKey fingerprints one stored or incoming point. Coordinates are
// fixed to the configured number of decimals so float noise from the
// JSON round-trip cannot split identities.
func (n Normalizer) IdentityKey(date time.Time, fileName string, lon, lat float64) string {
	p := n.precision
	return strings.Join([]string{
		date.UTC().Format(dateLayout),
		fileName,
		strconv.FormatFloat(lon, 'f', p, 64),
		strconv.FormatFloat(lat, 'f', p, 64),
	}, "|")
}

// RainEventID builds the stable region-scoped identifier for one row.
func (n Normalizer) RainEventID(date time.Time, provinceRaw string, seq int) string {
	return fmt.Sprintf("%s_%s_%d", date.UTC().Format(dayFormat), n.ProvinceSanitized(provinceRaw), seq)
}

// SequenceAllocator hands out the next seq per province for one request.
// It is seeded from the stored maxima and never shared across requests;
// concurrent requests racing on the same (date, province) are resolved by
// the unique constraint on rain_event_id, not here.
type SequenceAllocator struct {
	next map[string]int
}

func NewSequenceAllocator() *SequenceAllocator {
	return &SequenceAllocator{next: make(map[string]int)}
}

// Seed records the highest stored seq for a province. Next then starts
// at max+1.
func (a *SequenceAllocator) Seed(province string, maxSeq int) {
	a.next[province] = maxSeq + 1
}

// Seeded reports whether the province has been seeded.
func (a *SequenceAllocator) Seeded(province string) bool {
	_, ok := a.next[province]
	return ok
}

// Next returns the next seq for the province and advances the counter.
// An unseeded province starts at 1.
func (a *SequenceAllocator) Next(province string) int {
	seq, ok := a.next[province]
	if !ok {
		seq = 1
	}
	a.next[province] = seq + 1
	return seq
}

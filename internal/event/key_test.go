package event

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func f64(v float64) *float64 { return &v }

func TestDedupKey_Deterministic(t *testing.T) {
	t.Parallel()

	c := Candidate{
		Source:    "meteoalarm",
		EventDate: day("2025-10-11"),
		Country:   "Spain",
		City:      " Madrid ",
	}
	first := c.DedupKey()
	second := c.DedupKey()
	if first != second {
		t.Fatalf("dedup key is not deterministic: %q vs %q", first, second)
	}
	if len(first) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(first))
	}
}

func TestDedupKey_CaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	a := Candidate{Source: "gdacs", EventDate: day("2025-10-11"), Country: "Spain", City: "Madrid"}
	b := Candidate{Source: "GDACS", EventDate: day("2025-10-11"), Country: " spain ", City: " MADRID "}
	if a.DedupKey() != b.DedupKey() {
		t.Fatalf("expected normalized candidates to collide")
	}
}

func TestDedupKey_DistinguishesSourceAndLocation(t *testing.T) {
	t.Parallel()

	base := Candidate{Source: "gdacs", EventDate: day("2025-10-11"), Country: "Spain", City: "Madrid"}
	otherSource := base
	otherSource.Source = "meteoalarm"
	otherCity := base
	otherCity.City = "Valencia"

	if base.DedupKey() == otherSource.DedupKey() {
		t.Fatalf("expected different sources to produce different keys")
	}
	if base.DedupKey() == otherCity.DedupKey() {
		t.Fatalf("expected different cities to produce different keys")
	}
}

func TestDedupKey_CoordinateFallback(t *testing.T) {
	t.Parallel()

	withCoords := Candidate{
		Source:    "gdacs",
		EventDate: day("2025-10-11"),
		Country:   "Spain",
		Latitude:  f64(40.4168),
		Longitude: f64(-3.7038),
	}
	withoutLocation := withCoords
	withoutLocation.Latitude = nil
	withoutLocation.Longitude = nil

	if withCoords.DedupKey() == withoutLocation.DedupKey() {
		t.Fatalf("expected coordinates to contribute to the key")
	}
}

func TestGlobalKey_RoundedCoordinatesAgree(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 10, 11, 14, 30, 0, 0, time.UTC)
	a := Candidate{
		EventDate: day("2025-10-11"),
		Country:   "Spain",
		Latitude:  f64(40.41),
		Longitude: f64(-3.69),
		TimeFrom:  &ts,
	}
	b := a
	b.Latitude = f64(40.43)
	b.Longitude = f64(-3.68)

	if GlobalKey(a) != GlobalKey(b) {
		t.Fatalf("expected nearby coordinates to share a global key: %q vs %q", GlobalKey(a), GlobalKey(b))
	}
}

func TestGlobalKey_CityFallbackAndHour(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 10, 11, 9, 5, 0, 0, time.UTC)
	c := Candidate{
		EventDate: day("2025-10-11"),
		Country:   "France",
		City:      "Île-de-France",
		TimeFrom:  &ts,
	}
	key := GlobalKey(c)
	if key != "20251011|france|île-de-france|h09" {
		t.Fatalf("unexpected global key: %q", key)
	}

	c.TimeFrom = nil
	if GlobalKey(c) != "20251011|france|île-de-france|h00" {
		t.Fatalf("expected midnight hour bucket without TimeFrom, got %q", GlobalKey(c))
	}
}

func TestGlobalKey_NoSpatialSignal(t *testing.T) {
	t.Parallel()

	c := Candidate{EventDate: day("2025-10-11"), Country: "Italy"}
	if GlobalKey(c) != "20251011|italy|noloc|h00" {
		t.Fatalf("unexpected key for candidate without location: %q", GlobalKey(c))
	}
}

func TestSeverityLevelRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityExtreme} {
		if SeverityForLevel(s.Level()) != s {
			t.Fatalf("severity %q does not round-trip through its level", s)
		}
	}
	if SeverityForLevel(0) != SeverityLow {
		t.Fatalf("expected level 0 to map to low")
	}
}

func TestCandidateValidate(t *testing.T) {
	t.Parallel()

	valid := Candidate{Source: "gdacs", EventDate: day("2025-10-11"), Country: "Spain"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid candidate, got %v", err)
	}

	missingCountry := valid
	missingCountry.Country = " "
	if err := missingCountry.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error for missing country, got %v", err)
	}

	halfCoords := valid
	halfCoords.Latitude = f64(40)
	if err := halfCoords.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error for latitude without longitude, got %v", err)
	}

	badLat := valid
	badLat.Latitude = f64(95)
	badLat.Longitude = f64(0)
	if err := badLat.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error for out-of-range latitude, got %v", err)
	}
}

package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity is the ordinal severity vocabulary shared across sources.
type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityExtreme Severity = "extreme"
)

// Level returns the numeric rank of a severity, 1 through 4. Unknown
// severities rank lowest.
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityExtreme:
		return 4
	default:
		return 1
	}
}

// SeverityForLevel maps a numeric level back to its severity label.
func SeverityForLevel(level int) Severity {
	switch {
	case level >= 4:
		return SeverityExtreme
	case level == 3:
		return SeverityHigh
	case level == 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Candidate is one source's single report of a possible event. Candidates
// are immutable once stored; identity lives in DedupKey.
type Candidate struct {
	Source      string
	EventDate   time.Time
	Country     string
	City        string
	Latitude    *float64
	Longitude   *float64
	TimeFrom    *time.Time
	TimeTo      *time.Time
	Severity    Severity
	Level       int
	Title       string
	Description string
	SourceURL   string
}

// HasCoordinates reports whether both latitude and longitude are set.
func (c Candidate) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// EffectiveTime is the candidate's best-known event time: TimeFrom when
// present, otherwise the event date at midnight.
func (c Candidate) EffectiveTime() time.Time {
	if c.TimeFrom != nil && !c.TimeFrom.IsZero() {
		return c.TimeFrom.UTC()
	}
	return c.EventDate.UTC().Truncate(24 * time.Hour)
}

// NormalizedCity returns the lowercased, trimmed city name used for
// identity comparisons.
func (c Candidate) NormalizedCity() string {
	return strings.ToLower(strings.TrimSpace(c.City))
}

// NormalizedCountry returns the lowercased, trimmed country used for the
// hard country filter.
func (c Candidate) NormalizedCountry() string {
	return strings.ToLower(strings.TrimSpace(c.Country))
}

// Validate rejects candidates that cannot participate in identity
// decisions. Provenance fields are never required.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return &ValidationError{Field: "source", Reason: "is required"}
	}
	if c.EventDate.IsZero() {
		return &ValidationError{Field: "event_date", Reason: "is required"}
	}
	if strings.TrimSpace(c.Country) == "" {
		return &ValidationError{Field: "country", Reason: "is required"}
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return &ValidationError{Field: "coordinates", Reason: "latitude and longitude must be set together"}
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90) {
		return &ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if c.Longitude != nil && (*c.Longitude < -180 || *c.Longitude > 180) {
		return &ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	if c.Level < 0 || c.Level > 4 {
		return &ValidationError{Field: "level", Reason: "must be between 0 and 4"}
	}
	return nil
}

// Merged is the canonical cross-source view of one physical event.
// Sources, titles, descriptions and source URLs only ever grow; severity
// only escalates; Enriched/EnrichedAt belong to a downstream step and are
// never written by re-merge.
type Merged struct {
	GlobalKey    string
	EventDate    time.Time
	Country      string
	City         string
	Latitude     *float64
	Longitude    *float64
	Severity     Severity
	Level        int
	Sources      []string
	SourceCount  int
	Titles       []string
	Descriptions []string
	SourceURLs   []string
	Enriched     bool
	EnrichedAt   *time.Time
}

// ValidationError marks input rejected before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Package storage defines the small CRUD contract the engines write
// through: named collections of flat records, addressed by id, filtered
// with a conjunction-only expression language.
package storage

import (
	"context"
	"errors"
	"time"
)

// Collection names used by the catalog.
const (
	CollectionCandidates = "event_candidates"
	CollectionEvents     = "flood_events"
	CollectionRainEvents = "rain_events"
)

var (
	// ErrNotFound is returned by Get and Update when no record matches the id.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a create collides with an existing id or
	// unique key. Callers treat it as "already there", not as a failure.
	ErrConflict = errors.New("record already exists")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// Record is one stored row. Every record carries a string "id" field.
type Record map[string]any

// Query bounds a Find call. Filter uses the expression language from
// filter.go; Sort is a comma-separated field list with a leading '-' for
// descending order.
type Query struct {
	Filter string
	Sort   string
	Limit  int
	Offset int
}

// Store is the storage collaborator. Implementations must treat Create of
// a duplicate id as ErrConflict and must support partial success in
// CreateBatch: the returned slice aligns with the input rows, nil meaning
// the row was written.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Find(ctx context.Context, collection string, q Query) ([]Record, error)
	Count(ctx context.Context, collection, filter string) (int64, error)
	Create(ctx context.Context, collection string, rec Record) error
	CreateBatch(ctx context.Context, collection string, recs []Record) []error
	Update(ctx context.Context, collection, id string, fields Record) error
}

// ID returns the record's id field.
func (r Record) ID() string {
	return r.String("id")
}

// String returns the named field as a string, or "" when absent or of
// another type.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the named field as a float64, coercing the integer types
// a JSON or SQL round-trip may produce.
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Int returns the named field as an int.
func (r Record) Int(key string) int {
	return int(r.Float(key))
}

// Bool returns the named field as a bool.
func (r Record) Bool(key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// Time returns the named field as a time.Time. String values are parsed
// as RFC3339.
func (r Record) Time(key string) (time.Time, bool) {
	switch v := r[key].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Strings returns the named field as a string slice.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// FloatPtr returns the named field as a *float64, nil when absent.
func (r Record) FloatPtr(key string) *float64 {
	switch v := r[key].(type) {
	case float64:
		value := v
		return &value
	case *float64:
		return v
	case float32:
		value := float64(v)
		return &value
	default:
		return nil
	}
}

// Clone returns a shallow copy with slices duplicated, so callers can
// mutate the result without aliasing stored state.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if s, ok := v.([]string); ok {
			out[k] = append([]string(nil), s...)
			continue
		}
		out[k] = v
	}
	return out
}

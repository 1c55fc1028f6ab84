package merge

import (
	"time"

	"github.com/JinJiangyue/EUflood-sub000/internal/event"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
)

const dateLayout = "2006-01-02"

func candidateRecord(c event.Candidate) storage.Record {
	rec := storage.Record{
		"id":          c.DedupKey(),
		"source":      c.Source,
		"event_date":  c.EventDate.UTC().Format(dateLayout),
		"country":     c.Country,
		"city":        c.City,
		"severity":    string(c.Severity),
		"level":       c.Level,
		"title":       c.Title,
		"description": c.Description,
		"source_url":  c.SourceURL,
	}
	if c.HasCoordinates() {
		rec["latitude"] = *c.Latitude
		rec["longitude"] = *c.Longitude
	}
	if c.TimeFrom != nil {
		rec["time_from"] = c.TimeFrom.UTC()
	}
	if c.TimeTo != nil {
		rec["time_to"] = c.TimeTo.UTC()
	}
	return rec
}

func candidateFromRecord(rec storage.Record) (event.Candidate, error) {
	day, err := time.ParseInLocation(dateLayout, rec.String("event_date"), time.UTC)
	if err != nil {
		return event.Candidate{}, err
	}
	c := event.Candidate{
		Source:      rec.String("source"),
		EventDate:   day,
		Country:     rec.String("country"),
		City:        rec.String("city"),
		Latitude:    rec.FloatPtr("latitude"),
		Longitude:   rec.FloatPtr("longitude"),
		Severity:    event.Severity(rec.String("severity")),
		Level:       rec.Int("level"),
		Title:       rec.String("title"),
		Description: rec.String("description"),
		SourceURL:   rec.String("source_url"),
	}
	if ts, ok := rec.Time("time_from"); ok {
		c.TimeFrom = &ts
	}
	if ts, ok := rec.Time("time_to"); ok {
		c.TimeTo = &ts
	}
	return c, nil
}

// mergedRecord is the full row written when a merged event is first
// created. Enrichment fields start false/empty and are owned downstream.
func mergedRecord(m event.Merged) storage.Record {
	rec := storage.Record{
		"id":           m.GlobalKey,
		"event_date":   m.EventDate.UTC().Format(dateLayout),
		"country":      m.Country,
		"city":         m.City,
		"severity":     string(m.Severity),
		"level":        m.Level,
		"sources":      m.Sources,
		"source_count": m.SourceCount,
		"titles":       m.Titles,
		"descriptions": m.Descriptions,
		"source_urls":  m.SourceURLs,
		"enriched":     false,
	}
	if m.Latitude != nil && m.Longitude != nil {
		rec["latitude"] = *m.Latitude
		rec["longitude"] = *m.Longitude
	}
	return rec
}

// mergedUpdate is the restricted column set a re-merge may touch. It
// never carries enriched or enriched_at.
func mergedUpdate(m event.Merged) storage.Record {
	return storage.Record{
		"sources":      m.Sources,
		"source_count": m.SourceCount,
		"titles":       m.Titles,
		"descriptions": m.Descriptions,
		"source_urls":  m.SourceURLs,
		"severity":     string(m.Severity),
		"level":        m.Level,
	}
}

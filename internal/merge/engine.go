// Package merge clusters harvested candidates into canonical flood
// events and keeps the flood_events collection in sync, idempotently,
// run after run.
package merge

import (
	"sort"

	"github.com/JinJiangyue/EUflood-sub000/internal/event"
	"github.com/JinJiangyue/EUflood-sub000/internal/match"
)

// Engine groups candidates by pairwise matching against cluster seeds.
type Engine struct {
	matcher match.Matcher
}

func NewEngine(m match.Matcher) Engine {
	return Engine{matcher: m}
}

// Cluster partitions candidates into clusters of reports believed to
// describe the same physical event. Candidates are compared against each
// cluster's seed only, first fit wins, so membership is not transitive.
// The input is stably pre-sorted to keep cluster seeds, and therefore
// global keys, deterministic across runs.
func (e Engine) Cluster(candidates []event.Candidate) [][]event.Candidate {
	sorted := append([]event.Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if !a.EventDate.Equal(b.EventDate) {
			return a.EventDate.Before(b.EventDate)
		}
		if ac, bc := a.NormalizedCountry(), b.NormalizedCountry(); ac != bc {
			return ac < bc
		}
		return a.NormalizedCity() < b.NormalizedCity()
	})

	var clusters [][]event.Candidate
	for _, c := range sorted {
		placed := false
		for i := range clusters {
			if e.matcher.SameEvent(clusters[i][0], c) {
				clusters[i] = append(clusters[i], c)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []event.Candidate{c})
		}
	}
	return clusters
}

// Aggregate folds one cluster into its merged event. The seed (first
// member) fixes the global key, date, country and city; coordinates come
// from the first member that has them; severity is the cluster maximum.
// Titles, descriptions and source URLs stay parallel per member.
func Aggregate(cluster []event.Candidate) event.Merged {
	seed := cluster[0]

	m := event.Merged{
		GlobalKey: event.GlobalKey(seed),
		EventDate: seed.EventDate,
		Country:   seed.Country,
		City:      seed.City,
	}

	seen := make(map[string]bool, len(cluster))
	maxLevel := 0
	var maxSeverity event.Severity
	for _, c := range cluster {
		if !seen[c.Source] {
			seen[c.Source] = true
			m.Sources = append(m.Sources, c.Source)
		}
		if m.City == "" && c.City != "" {
			m.City = c.City
		}
		if m.Latitude == nil && c.HasCoordinates() {
			m.Latitude = c.Latitude
			m.Longitude = c.Longitude
		}
		if level := candidateLevel(c); level > maxLevel {
			maxLevel = level
			maxSeverity = c.Severity
		}
		m.Titles = append(m.Titles, c.Title)
		m.Descriptions = append(m.Descriptions, c.Description)
		m.SourceURLs = append(m.SourceURLs, c.SourceURL)
	}

	m.SourceCount = len(m.Sources)
	m.Level = maxLevel
	m.Severity = maxSeverity
	if m.Severity == "" {
		m.Severity = event.SeverityForLevel(maxLevel)
	}
	return m
}

func candidateLevel(c event.Candidate) int {
	if c.Level > 0 {
		return c.Level
	}
	return c.Severity.Level()
}

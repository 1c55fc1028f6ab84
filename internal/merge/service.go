package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/JinJiangyue/EUflood-sub000/internal/collector"
	"github.com/JinJiangyue/EUflood-sub000/internal/event"
	"github.com/JinJiangyue/EUflood-sub000/internal/observability"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
)

const defaultPageSize = 500

// Stats summarizes one merge run.
type Stats struct {
	PerSource      map[string]int    `json:"per_source"`
	Dropped        map[string]int    `json:"dropped,omitempty"`
	SourceFailures map[string]string `json:"source_failures,omitempty"`
	NewCandidates  int               `json:"new_candidates"`
	Total          int               `json:"total_candidates"`
	Clusters       int               `json:"clusters"`
	Merged         int               `json:"merged"`
	Failed         int               `json:"failed"`
}

// Service runs the full harvest-and-merge cycle against the store.
type Service struct {
	store    storage.Store
	registry *collector.Registry
	engine   Engine
	logger   zerolog.Logger
	metrics  *observability.Metrics
	pageSize int
}

func NewService(store storage.Store, reg *collector.Registry, engine Engine, logger zerolog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:    store,
		registry: reg,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		pageSize: defaultPageSize,
	}
}

// WithPageSize overrides the candidate page size used when reloading the
// date window.
func (s *Service) WithPageSize(n int) *Service {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// Harvest runs steps one and two only: poll every registered source and
// store the valid candidates. Nothing is clustered or merged.
func (s *Service) Harvest(ctx context.Context, from, to time.Time) (Stats, error) {
	stats := Stats{
		PerSource:      map[string]int{},
		Dropped:        map[string]int{},
		SourceFailures: map[string]string{},
	}
	s.harvestInto(ctx, &stats, from, to)
	return stats, nil
}

// Run harvests every registered source for [from, to], stores the new
// candidates, then re-clusters the whole window and upserts the merged
// events. Re-running over the same window is a no-op: candidate creates
// collide on their dedup key and merged updates rewrite the same values.
func (s *Service) Run(ctx context.Context, from, to time.Time) (Stats, error) {
	stats := Stats{
		PerSource:      map[string]int{},
		Dropped:        map[string]int{},
		SourceFailures: map[string]string{},
	}

	s.harvestInto(ctx, &stats, from, to)

	candidates, err := s.loadWindow(ctx, from, to)
	if err != nil {
		return stats, fmt.Errorf("load candidates: %w", err)
	}
	stats.Total = len(candidates)

	clusters := s.engine.Cluster(candidates)
	stats.Clusters = len(clusters)

	for _, cluster := range clusters {
		merged := Aggregate(cluster)
		if err := s.upsertMerged(ctx, merged); err != nil {
			stats.Failed++
			s.metrics.MergeFailures.Inc()
			s.logger.Error().Err(err).Str("global_key", merged.GlobalKey).Msg("persisting merged event failed")
			continue
		}
		stats.Merged++
		s.metrics.EventsUpserted.Inc()
	}

	s.logger.Info().
		Int("new_candidates", stats.NewCandidates).
		Int("total_candidates", stats.Total).
		Int("clusters", stats.Clusters).
		Int("merged", stats.Merged).
		Int("failed", stats.Failed).
		Msg("merge run finished")
	return stats, nil
}

func (s *Service) harvestInto(ctx context.Context, stats *Stats, from, to time.Time) {
	harvest := collector.HarvestAll(ctx, s.logger, s.registry, from, to)
	for source, n := range harvest.PerSource {
		stats.PerSource[source] = n
		s.metrics.CandidatesHarvested.WithLabelValues(source).Add(float64(n))
	}
	for source, n := range harvest.Dropped {
		stats.Dropped[source] = n
		s.metrics.CandidatesDropped.WithLabelValues(source).Add(float64(n))
	}
	for source, err := range harvest.Failures {
		stats.SourceFailures[source] = err.Error()
		s.metrics.CollectorFailures.WithLabelValues(source).Inc()
	}

	for _, c := range harvest.Candidates {
		err := s.store.Create(ctx, storage.CollectionCandidates, candidateRecord(c))
		switch {
		case err == nil:
			stats.NewCandidates++
		case storage.IsConflict(err):
			// Same source, same day, same place: already cataloged.
		default:
			s.logger.Error().Err(err).Str("source", c.Source).Msg("storing candidate failed")
		}
	}
}

func (s *Service) loadWindow(ctx context.Context, from, to time.Time) ([]event.Candidate, error) {
	filter := storage.Where("event_date", storage.OpGte, from.UTC().Format(dateLayout)).
		And("event_date", storage.OpLte, to.UTC().Format(dateLayout)).
		String()

	var out []event.Candidate
	for offset := 0; ; offset += s.pageSize {
		page, err := s.store.Find(ctx, storage.CollectionCandidates, storage.Query{
			Filter: filter,
			Sort:   "event_date,id",
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			c, err := candidateFromRecord(rec)
			if err != nil {
				s.logger.Warn().Err(err).Str("id", rec.ID()).Msg("skipping malformed candidate record")
				continue
			}
			out = append(out, c)
		}
		if len(page) < s.pageSize {
			return out, nil
		}
	}
}

// upsertMerged creates the merged record, falling back to the restricted
// update when the global key already exists. Enriched and enriched_at are
// never part of the update.
func (s *Service) upsertMerged(ctx context.Context, m event.Merged) error {
	err := s.store.Create(ctx, storage.CollectionEvents, mergedRecord(m))
	if err == nil {
		return nil
	}
	if !storage.IsConflict(err) {
		return err
	}
	return s.store.Update(ctx, storage.CollectionEvents, m.GlobalKey, mergedUpdate(m))
}

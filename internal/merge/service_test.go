package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinJiangyue/EUflood-sub000/internal/collector"
	"github.com/JinJiangyue/EUflood-sub000/internal/event"
	"github.com/JinJiangyue/EUflood-sub000/internal/match"
	"github.com/JinJiangyue/EUflood-sub000/internal/observability"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
)

type stubCollector struct {
	name       string
	candidates []event.Candidate
	err        error
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Collect(_ context.Context, _, _ time.Time) ([]event.Candidate, error) {
	return s.candidates, s.err
}

func newTestService(store storage.Store, collectors ...collector.Collector) *Service {
	return NewService(
		store,
		collector.NewRegistry(collectors...),
		NewEngine(match.New()),
		zerolog.Nop(),
		observability.NewMetricsForTesting(),
	)
}

func TestServiceRunMergesAcrossSources(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	a := coordCandidate("gdacs", 40.40, -3.70, 2)
	b := coordCandidate("copernicus", 40.43, -3.68, 4)
	svc := newTestService(store,
		&stubCollector{name: "gdacs", candidates: []event.Candidate{a}},
		&stubCollector{name: "copernicus", candidates: []event.Candidate{b}},
	)

	stats, err := svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.NewCandidates)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Clusters)
	assert.Equal(t, 1, stats.Merged)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, map[string]int{"gdacs": 1, "copernicus": 1}, stats.PerSource)

	events, err := store.Find(ctx, storage.CollectionEvents, storage.Query{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].Int("level"))
	assert.Equal(t, "extreme", events[0].String("severity"))
	assert.ElementsMatch(t, []string{"gdacs", "copernicus"}, events[0].Strings("sources"))
	assert.Equal(t, 2, events[0].Int("source_count"))
	assert.False(t, events[0].Bool("enriched"))
}

func TestServiceHarvestStoresCandidatesOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	a := coordCandidate("gdacs", 40.40, -3.70, 2)
	svc := newTestService(store,
		&stubCollector{name: "gdacs", candidates: []event.Candidate{a}},
	)

	stats, err := svc.Harvest(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewCandidates)
	assert.Zero(t, stats.Clusters)
	assert.Zero(t, stats.Merged)

	candidates, err := store.Find(ctx, storage.CollectionCandidates, storage.Query{})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	events, err := store.Find(ctx, storage.CollectionEvents, storage.Query{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestServiceRunIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	a := coordCandidate("gdacs", 40.40, -3.70, 2)
	b := coordCandidate("copernicus", 40.43, -3.68, 4)
	svc := newTestService(store,
		&stubCollector{name: "gdacs", candidates: []event.Candidate{a}},
		&stubCollector{name: "copernicus", candidates: []event.Candidate{b}},
	)

	first, err := svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)
	require.Equal(t, 2, first.NewCandidates)

	firstEvents, err := store.Find(ctx, storage.CollectionEvents, storage.Query{})
	require.NoError(t, err)
	require.Len(t, firstEvents, 1)

	second, err := svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)

	assert.Zero(t, second.NewCandidates, "re-harvest collides on dedup keys")
	assert.Equal(t, 2, second.Total)
	assert.Equal(t, 1, second.Merged)

	secondEvents, err := store.Find(ctx, storage.CollectionEvents, storage.Query{})
	require.NoError(t, err)
	require.Len(t, secondEvents, 1)
	assert.Equal(t, firstEvents[0].ID(), secondEvents[0].ID())
	assert.Equal(t, firstEvents[0].Strings("sources"), secondEvents[0].Strings("sources"))

	candidates, err := store.Count(ctx, storage.CollectionCandidates, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, candidates)
}

func TestServiceRunNeverTouchesEnrichment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	a := coordCandidate("gdacs", 40.40, -3.70, 2)
	svc := newTestService(store, &stubCollector{name: "gdacs", candidates: []event.Candidate{a}})

	_, err := svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)

	events, err := store.Find(ctx, storage.CollectionEvents, storage.Query{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	key := events[0].ID()

	// A downstream enrichment step marks the event.
	enrichedAt := time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Update(ctx, storage.CollectionEvents, key, storage.Record{
		"enriched":    true,
		"enriched_at": enrichedAt,
	}))

	// A later harvest adds a second source to the same cluster.
	b := coordCandidate("copernicus", 40.43, -3.68, 4)
	svc.registry.Register(&stubCollector{name: "copernicus", candidates: []event.Candidate{b}})

	_, err = svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)

	got, err := store.Get(ctx, storage.CollectionEvents, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gdacs", "copernicus"}, got.Strings("sources"))
	assert.Equal(t, 4, got.Int("level"))
	assert.True(t, got.Bool("enriched"), "re-merge must not reset the enriched flag")
	ts, ok := got.Time("enriched_at")
	require.True(t, ok)
	assert.True(t, ts.Equal(enrichedAt))
}

func TestServiceRunSurvivesSourceFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	a := coordCandidate("gdacs", 40.40, -3.70, 2)
	svc := newTestService(store,
		&stubCollector{name: "gdacs", candidates: []event.Candidate{a}},
		&stubCollector{name: "copernicus", err: errors.New("upstream timeout")},
	)

	stats, err := svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NewCandidates)
	assert.Contains(t, stats.SourceFailures, "copernicus")
	assert.Equal(t, 1, stats.Merged)
}

func TestServiceRunOnlyMergesWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	inWindow := coordCandidate("gdacs", 40.40, -3.70, 2)
	outside := coordCandidate("gdacs", 40.40, -3.70, 2)
	outside.EventDate = day(2025, 9, 1)
	svc := newTestService(store, &stubCollector{name: "gdacs", candidates: []event.Candidate{inWindow, outside}})

	stats, err := svc.Run(ctx, day(2025, 10, 1), day(2025, 10, 31))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.NewCandidates, "both candidates are stored")
	assert.Equal(t, 1, stats.Total, "only the window is re-clustered")
	assert.Equal(t, 1, stats.Merged)
}

func TestServiceRunPaginatesCandidateReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()

	var cands []event.Candidate
	for i := 0; i < 7; i++ {
		c := coordCandidate("gdacs", 40.0+float64(i), -3.70, 1)
		c.City = ""
		cands = append(cands, c)
	}
	svc := newTestService(store, &stubCollector{name: "gdacs", candidates: cands}).WithPageSize(2)

	stats, err := svc.Run(ctx, day(2025, 10, 11), day(2025, 10, 11))
	require.NoError(t, err)

	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 7, stats.Clusters, "one degree apart is beyond the matching radius")
	assert.Equal(t, 7, stats.Merged)
}

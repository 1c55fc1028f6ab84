// Package collector defines the source collaborator contract and the
// concurrent harvest fan-out that feeds the matching engine.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JinJiangyue/EUflood-sub000/internal/event"
)

// Collector pulls raw flood event candidates from one upstream source for
// a date window. Implementations live outside this module; the service
// only depends on this contract.
type Collector interface {
	Name() string
	Collect(ctx context.Context, from, to time.Time) ([]event.Candidate, error)
}

// Registry is an ordered set of collectors keyed by source name.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	collectors map[string]Collector
}

func NewRegistry(collectors ...Collector) *Registry {
	r := &Registry{collectors: make(map[string]Collector)}
	for _, c := range collectors {
		r.Register(c)
	}
	return r
}

// Register adds a collector. A later registration under the same name
// replaces the earlier one.
func (r *Registry) Register(c Collector) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collectors[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.collectors[c.Name()] = c
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) all() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collector, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.collectors[name])
	}
	return out
}

// Harvest is the outcome of one fan-out across all registered sources.
// Candidates holds every valid candidate; PerSource counts them by
// source; Failures maps failed sources to their errors. One source
// failing never aborts the others.
type Harvest struct {
	Candidates []event.Candidate
	PerSource  map[string]int
	Dropped    map[string]int
	Failures   map[string]error
}

type sourceResult struct {
	name       string
	candidates []event.Candidate
	dropped    int
	err        error
}

// HarvestAll queries every registered collector concurrently and merges
// the results in registration order. Candidates failing validation are
// dropped and counted, not fatal.
func HarvestAll(ctx context.Context, logger zerolog.Logger, reg *Registry, from, to time.Time) Harvest {
	collectors := reg.all()
	results := make([]sourceResult, len(collectors))

	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			results[i] = collectFrom(ctx, logger, c, from, to)
		}(i, c)
	}
	wg.Wait()

	harvest := Harvest{
		PerSource: make(map[string]int),
		Dropped:   make(map[string]int),
		Failures:  make(map[string]error),
	}
	for _, res := range results {
		if res.err != nil {
			harvest.Failures[res.name] = res.err
			continue
		}
		harvest.PerSource[res.name] = len(res.candidates)
		if res.dropped > 0 {
			harvest.Dropped[res.name] = res.dropped
		}
		harvest.Candidates = append(harvest.Candidates, res.candidates...)
	}
	return harvest
}

func collectFrom(ctx context.Context, logger zerolog.Logger, c Collector, from, to time.Time) sourceResult {
	res := sourceResult{name: c.Name()}

	candidates, err := c.Collect(ctx, from, to)
	if err != nil {
		logger.Error().Err(err).Str("source", c.Name()).Msg("source collection failed")
		res.err = fmt.Errorf("collect from %s: %w", c.Name(), err)
		return res
	}

	res.candidates = make([]event.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Source == "" {
			cand.Source = c.Name()
		}
		if err := cand.Validate(); err != nil {
			res.dropped++
			logger.Warn().Err(err).
				Str("source", c.Name()).
				Str("title", cand.Title).
				Msg("dropping invalid candidate")
			continue
		}
		res.candidates = append(res.candidates, cand)
	}

	logger.Info().
		Str("source", c.Name()).
		Int("candidates", len(res.candidates)).
		Int("dropped", res.dropped).
		Msg("source collected")
	return res
}

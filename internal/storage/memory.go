package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and by the service wiring
// when no database is reachable. Records are kept in insertion order per
// collection.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Record
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Record)}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.collections[collection] {
		if rec.ID() == id {
			return rec.Clone(), nil
		}
	}
	return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
}

func (m *Memory) Find(_ context.Context, collection string, q Query) ([]Record, error) {
	filter, err := ParseFilter(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	m.mu.RLock()
	matched := make([]Record, 0, 16)
	for _, rec := range m.collections[collection] {
		if filter.Matches(rec) {
			matched = append(matched, rec.Clone())
		}
	}
	m.mu.RUnlock()

	sortRecords(matched, q.Sort)

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []Record{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (m *Memory) Count(_ context.Context, collection, filterExpr string) (int64, error) {
	filter, err := ParseFilter(filterExpr)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, rec := range m.collections[collection] {
		if filter.Matches(rec) {
			total++
		}
	}
	return total, nil
}

func (m *Memory) Create(_ context.Context, collection string, rec Record) error {
	id := rec.ID()
	if id == "" {
		return fmt.Errorf("create in %s: record id is required", collection)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.collections[collection] {
		if existing.ID() == id {
			return fmt.Errorf("create %s/%s: %w", collection, id, ErrConflict)
		}
	}
	m.collections[collection] = append(m.collections[collection], rec.Clone())
	return nil
}

func (m *Memory) CreateBatch(ctx context.Context, collection string, recs []Record) []error {
	results := make([]error, len(recs))
	for i, rec := range recs {
		results[i] = m.Create(ctx, collection, rec)
	}
	return results
}

func (m *Memory) Update(_ context.Context, collection, id string, fields Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, rec := range m.collections[collection] {
		if rec.ID() != id {
			continue
		}
		updated := rec.Clone()
		for k, v := range fields.Clone() {
			if k == "id" {
				continue
			}
			updated[k] = v
		}
		m.collections[collection][i] = updated
		return nil
	}
	return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
}

func sortRecords(recs []Record, sortExpr string) {
	fields := parseSort(sortExpr)
	if len(fields) == 0 {
		return
	}

	sort.SliceStable(recs, func(i, j int) bool {
		for _, f := range fields {
			cmp := compareField(recs[i], recs[j], f.name)
			if cmp == 0 {
				continue
			}
			if f.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

type sortField struct {
	name string
	desc bool
}

func parseSort(sortExpr string) []sortField {
	parts := strings.Split(sortExpr, ",")
	fields := make([]sortField, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		desc := strings.HasPrefix(name, "-")
		fields = append(fields, sortField{name: strings.TrimPrefix(name, "-"), desc: desc})
	}
	return fields
}

func compareField(a, b Record, field string) int {
	av, bv := a[field], b[field]
	if af, ok := toFloat(av); ok {
		if bf, ok := toFloat(bv); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(stringify(av), stringify(bv))
}

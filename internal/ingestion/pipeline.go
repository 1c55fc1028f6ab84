package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JinJiangyue/EUflood-sub000/internal/event"
	"github.com/JinJiangyue/EUflood-sub000/internal/observability"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
	payloadschema "github.com/JinJiangyue/EUflood-sub000/schema"
)

// Request is one reconciliation batch. ConfirmedDate is authoritative
// over anything embedded in the file name.
type Request struct {
	ConfirmedDate    time.Time
	FileName         string
	ThresholdMode    string
	DefaultThreshold float64
	GridRPBand       string
	Points           []payloadschema.InterpolationPoint
}

// Result reports the per-row outcome of one batch. Inserted, Skipped and
// Errors always sum over the processed rows, even on partial failure.
type Result struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}

// Pipeline reconciles point batches against the rain_events collection.
type Pipeline struct {
	store      storage.Store
	normalizer Normalizer
	logger     zerolog.Logger
	metrics    *observability.Metrics
	gridBand   string
	pageSize   int
}

func NewPipeline(store storage.Store, normalizer Normalizer, logger zerolog.Logger, metrics *observability.Metrics, gridBand string, pageSize int) *Pipeline {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Pipeline{
		store:      store,
		normalizer: normalizer,
		logger:     logger,
		metrics:    metrics,
		gridBand:   gridBand,
		pageSize:   pageSize,
	}
}

func (r Request) validate() error {
	if r.ConfirmedDate.IsZero() {
		return &event.ValidationError{Field: "confirmed_date", Reason: "is required"}
	}
	if strings.TrimSpace(r.FileName) == "" {
		return &event.ValidationError{Field: "file_name", Reason: "is required"}
	}
	mode := strings.TrimSpace(r.ThresholdMode)
	if mode != payloadschema.ThresholdModeFixed && mode != payloadschema.ThresholdModeGrid {
		return &event.ValidationError{Field: "threshold_mode", Reason: `must be "fixed" or "grid"`}
	}
	return nil
}

// Run executes the reconciliation steps in order: seed per-province
// sequence counters from the stored maxima, build the existing identity
// set for (date, file), walk the points in array order skipping known
// identities, re-check the computed rain_event_ids right before the
// write, then batch-create with row-level error reporting. The searched
// flag of existing rows is never touched.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	res := &Result{Total: len(req.Points)}
	dateStr := req.ConfirmedDate.UTC().Format(dateLayout)

	provinces, order := p.groupByProvince(req.Points)

	alloc := NewSequenceAllocator()
	failedProvinces := make(map[string]bool)
	for _, province := range order {
		maxSeq, err := p.maxStoredSeq(ctx, dateStr, province)
		if err != nil {
			// Fatal for this province only; its rows are reported as errors.
			failedProvinces[province] = true
			res.Errors += len(provinces[province])
			p.metrics.RainPointErrors.Add(float64(len(provinces[province])))
			p.logger.Error().Err(err).
				Str("date", dateStr).
				Str("province", province).
				Msg("max seq lookup failed")
			continue
		}
		alloc.Seed(province, maxSeq)
	}

	identities, err := p.existingIdentities(ctx, dateStr, req.FileName)
	if err != nil {
		return nil, fmt.Errorf("load existing identities: %w", err)
	}

	band := strings.TrimSpace(req.GridRPBand)
	if band == "" {
		band = p.gridBand
	}

	var pending []storage.Record
	for _, point := range req.Points {
		province := p.normalizer.ProvinceDisplay(deref(point.ProvinceName))
		if failedProvinces[province] {
			continue
		}

		key := p.normalizer.IdentityKey(req.ConfirmedDate, req.FileName, point.Longitude, point.Latitude)
		if identities[key] {
			res.Skipped++
			p.metrics.RainPointsSkipped.Inc()
			continue
		}
		identities[key] = true

		seq := alloc.Next(province)
		pending = append(pending, storage.Record{
			"id":            p.normalizer.RainEventID(req.ConfirmedDate, deref(point.ProvinceName), seq),
			"rain_event_id": p.normalizer.RainEventID(req.ConfirmedDate, deref(point.ProvinceName), seq),
			"date":          dateStr,
			"country":       deref(point.CountryName),
			"province":      province,
			"city":          deref(point.CityName),
			"longitude":     point.Longitude,
			"latitude":      point.Latitude,
			"value":         point.Value,
			"threshold":     p.selectThreshold(req, point, band),
			"file_name":     req.FileName,
			"seq":           seq,
			"searched":      0,
		})
	}

	pending, dropped, err := p.dropExistingIDs(ctx, dateStr, pending)
	if err != nil {
		return nil, fmt.Errorf("recheck rain_event_ids: %w", err)
	}
	res.Skipped += dropped

	for i, err := range p.store.CreateBatch(ctx, storage.CollectionRainEvents, pending) {
		switch {
		case err == nil:
			res.Inserted++
			p.metrics.RainPointsInserted.Inc()
		case storage.IsConflict(err):
			// A racing request won the row; the stored record stands.
			res.Skipped++
			p.metrics.RainPointsSkipped.Inc()
		default:
			res.Errors++
			p.metrics.RainPointErrors.Inc()
			p.logger.Error().Err(err).
				Str("rain_event_id", pending[i].ID()).
				Msg("rain event row write failed")
		}
	}

	p.logger.Info().
		Str("date", dateStr).
		Str("file", req.FileName).
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Int("total", res.Total).
		Msg("ingestion batch reconciled")
	return res, nil
}

// groupByProvince buckets points by display province, keeping the order
// of first appearance so query volume and allocation stay deterministic.
func (p *Pipeline) groupByProvince(points []payloadschema.InterpolationPoint) (map[string][]payloadschema.InterpolationPoint, []string) {
	groups := make(map[string][]payloadschema.InterpolationPoint)
	var order []string
	for _, point := range points {
		province := p.normalizer.ProvinceDisplay(deref(point.ProvinceName))
		if _, seen := groups[province]; !seen {
			order = append(order, province)
		}
		groups[province] = append(groups[province], point)
	}
	return groups, order
}

func (p *Pipeline) maxStoredSeq(ctx context.Context, dateStr, province string) (int, error) {
	recs, err := p.store.Find(ctx, storage.CollectionRainEvents, storage.Query{
		Filter: storage.Where("date", storage.OpEq, dateStr).
			And("province", storage.OpEq, province).
			String(),
		Sort:  "-seq",
		Limit: 1,
	})
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[0].Int("seq"), nil
}

// existingIdentities loads every stored row for (date, file) and indexes
// it by identity key. Paginated so a large file cannot produce an
// unbounded result set.
func (p *Pipeline) existingIdentities(ctx context.Context, dateStr, fileName string) (map[string]bool, error) {
	date, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		return nil, err
	}

	filter := storage.Where("date", storage.OpEq, dateStr).
		And("file_name", storage.OpEq, fileName).
		String()

	identities := make(map[string]bool)
	for offset := 0; ; offset += p.pageSize {
		page, err := p.store.Find(ctx, storage.CollectionRainEvents, storage.Query{
			Filter: filter,
			Sort:   "seq,id",
			Limit:  p.pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			key := p.normalizer.IdentityKey(date, fileName, rec.Float("longitude"), rec.Float("latitude"))
			identities[key] = true
		}
		if len(page) < p.pageSize {
			return identities, nil
		}
	}
}

// dropExistingIDs is the pre-write race defense: one batched lookup per
// province confirms that no computed rain_event_id has appeared since the
// sequence counters were seeded.
func (p *Pipeline) dropExistingIDs(ctx context.Context, dateStr string, pending []storage.Record) ([]storage.Record, int, error) {
	if len(pending) == 0 {
		return pending, 0, nil
	}

	provinces := make(map[string]bool)
	var order []string
	for _, rec := range pending {
		province := rec.String("province")
		if !provinces[province] {
			provinces[province] = true
			order = append(order, province)
		}
	}

	existing := make(map[string]bool)
	for _, province := range order {
		filter := storage.Where("date", storage.OpEq, dateStr).
			And("province", storage.OpEq, province).
			String()
		for offset := 0; ; offset += p.pageSize {
			page, err := p.store.Find(ctx, storage.CollectionRainEvents, storage.Query{
				Filter: filter,
				Sort:   "seq,id",
				Limit:  p.pageSize,
				Offset: offset,
			})
			if err != nil {
				return nil, 0, err
			}
			for _, rec := range page {
				existing[rec.String("rain_event_id")] = true
			}
			if len(page) < p.pageSize {
				break
			}
		}
	}

	kept := pending[:0]
	dropped := 0
	for _, rec := range pending {
		if existing[rec.String("rain_event_id")] {
			dropped++
			p.metrics.RainPointsSkipped.Inc()
			continue
		}
		kept = append(kept, rec)
	}
	return kept, dropped, nil
}

// selectThreshold picks the per-row threshold. Grid mode prefers the
// configured band, then the point's own band, then the batch default.
// Fixed mode always uses the batch default.
func (p *Pipeline) selectThreshold(req Request, point payloadschema.InterpolationPoint, band string) float64 {
	if strings.TrimSpace(req.ThresholdMode) != payloadschema.ThresholdModeGrid {
		return req.DefaultThreshold
	}
	if t, ok := point.Thresholds[band]; ok {
		return t
	}
	if point.ReturnPeriodBand != nil {
		if t, ok := point.Thresholds[*point.ReturnPeriodBand]; ok {
			return t
		}
	}
	return req.DefaultThreshold
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

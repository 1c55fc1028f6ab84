package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/JinJiangyue/EUflood-sub000/internal/geo"
	"github.com/JinJiangyue/EUflood-sub000/internal/globaltime"
	"github.com/JinJiangyue/EUflood-sub000/internal/ingestion"
	"github.com/JinJiangyue/EUflood-sub000/internal/interp"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
	payloadschema "github.com/JinJiangyue/EUflood-sub000/schema"
)

const dateLayout = "2006-01-02"

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "floodwatch",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	candidates, err := s.store.Count(ctx, storage.CollectionCandidates, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("count candidates failed")
		return internalError(c, "Failed to load stats")
	}
	events, err := s.store.Count(ctx, storage.CollectionEvents, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("count events failed")
		return internalError(c, "Failed to load stats")
	}
	enriched, err := s.store.Count(ctx, storage.CollectionEvents,
		storage.Where("enriched", storage.OpEq, true).String())
	if err != nil {
		s.logger.Error().Err(err).Msg("count enriched events failed")
		return internalError(c, "Failed to load stats")
	}
	rainEvents, err := s.store.Count(ctx, storage.CollectionRainEvents, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("count rain events failed")
		return internalError(c, "Failed to load stats")
	}

	return success(c, map[string]any{
		"candidates":      candidates,
		"events":          events,
		"enriched_events": enriched,
		"rain_events":     rainEvents,
	})
}

func (s *Server) handleEvents(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}
	from, to, fieldErrs := parseDateWindow(c.QueryParam("from"), c.QueryParam("to"))
	if fieldErrs != nil {
		return failValidation(c, fieldErrs)
	}

	var filter storage.Filter
	if from != nil {
		filter = filter.And("event_date", storage.OpGte, from.Format(dateLayout))
	}
	if to != nil {
		filter = filter.And("event_date", storage.OpLte, to.Format(dateLayout))
	}
	if country := strings.TrimSpace(c.QueryParam("country")); country != "" {
		filter = filter.And("country", storage.OpEq, country)
	}
	if raw := strings.TrimSpace(c.QueryParam("bbox")); raw != "" {
		box, err := parseBBox(raw)
		if err != nil {
			return failValidation(c, map[string]string{"bbox": err.Error()})
		}
		filter = filter.
			And("latitude", storage.OpGte, box.MinLat).
			And("latitude", storage.OpLte, box.MaxLat).
			And("longitude", storage.OpGte, box.MinLon).
			And("longitude", storage.OpLte, box.MaxLon)
	}

	ctx := c.Request().Context()
	total, err := s.store.Count(ctx, storage.CollectionEvents, filter.String())
	if err != nil {
		s.logger.Error().Err(err).Msg("count events failed")
		return internalError(c, "Failed to load events")
	}

	items, err := s.store.Find(ctx, storage.CollectionEvents, storage.Query{
		Filter: filter.String(),
		Sort:   "-event_date,id",
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query events failed")
		return internalError(c, "Failed to load events")
	}

	return success(c, map[string]any{
		"items":      items,
		"pagination": pagination(page, pageSize, total),
	})
}

func (s *Server) handleEventDetail(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return failValidation(c, map[string]string{"key": "is required"})
	}

	rec, err := s.store.Get(c.Request().Context(), storage.CollectionEvents, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return failNotFound(c, "Event not found")
		}
		s.logger.Error().Err(err).Str("key", key).Msg("query event failed")
		return internalError(c, "Failed to load event")
	}
	return success(c, rec)
}

type mergeRequest struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

func (s *Server) handleMerge(c echo.Context) error {
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}

	from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.DateFrom), time.UTC)
	if err != nil {
		return failValidation(c, map[string]string{"date_from": "must be YYYY-MM-DD"})
	}
	to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.DateTo), time.UTC)
	if err != nil {
		return failValidation(c, map[string]string{"date_to": "must be YYYY-MM-DD"})
	}
	if from.After(to) {
		return failValidation(c, map[string]string{"date_range": "date_from must be <= date_to"})
	}

	ctx := c.Request().Context()
	stats, err := s.merger.Run(ctx, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("merge run failed")
		return internalError(c, "Merge run failed")
	}

	events, err := s.store.Find(ctx, storage.CollectionEvents, storage.Query{
		Filter: storage.Where("event_date", storage.OpGte, from.Format(dateLayout)).
			And("event_date", storage.OpLte, to.Format(dateLayout)).
			String(),
		Sort: "-event_date,id",
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query merged events failed")
		return internalError(c, "Merge run succeeded but loading results failed")
	}

	return success(c, map[string]any{
		"merged_events": events,
		"stats":         stats,
	})
}

func (s *Server) handleRainEvents(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	var filter storage.Filter
	if date := strings.TrimSpace(c.QueryParam("date")); date != "" {
		if _, err := time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
			return failValidation(c, map[string]string{"date": "must be YYYY-MM-DD"})
		}
		filter = filter.And("date", storage.OpEq, date)
	}
	if province := strings.TrimSpace(c.QueryParam("province")); province != "" {
		filter = filter.And("province", storage.OpEq, province)
	}
	if file := strings.TrimSpace(c.QueryParam("file")); file != "" {
		filter = filter.And("file_name", storage.OpEq, file)
	}

	ctx := c.Request().Context()
	total, err := s.store.Count(ctx, storage.CollectionRainEvents, filter.String())
	if err != nil {
		s.logger.Error().Err(err).Msg("count rain events failed")
		return internalError(c, "Failed to load rain events")
	}

	items, err := s.store.Find(ctx, storage.CollectionRainEvents, storage.Query{
		Filter: filter.String(),
		Sort:   "-date,province,seq",
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query rain events failed")
		return internalError(c, "Failed to load rain events")
	}

	return success(c, map[string]any{
		"items":      items,
		"pagination": pagination(page, pageSize, total),
	})
}

type ingestHTTPRequest struct {
	ConfirmedDate string                             `json:"confirmed_date"`
	FileName      string                             `json:"file_name"`
	ThresholdMode string                             `json:"threshold_mode"`
	Threshold     float64                            `json:"threshold"`
	GridRPBand    string                             `json:"grid_rp_band,omitempty"`
	InputFile     string                             `json:"input_file,omitempty"`
	BoundaryFiles []string                           `json:"boundary_files,omitempty"`
	Points        []payloadschema.InterpolationPoint `json:"points,omitempty"`
}

// handleIngest reconciles one batch. Callers either post the points
// directly or name an input file, in which case the interpolation
// collaborator is invoked first and its payload is forwarded back
// verbatim alongside the counters.
func (s *Server) handleIngest(c echo.Context) error {
	var req ingestHTTPRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}

	confirmedDate, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.ConfirmedDate), time.UTC)
	if err != nil {
		return failValidation(c, map[string]string{"confirmed_date": "must be YYYY-MM-DD"})
	}
	if strings.TrimSpace(req.FileName) == "" {
		return failValidation(c, map[string]string{"file_name": "is required"})
	}
	mode := strings.TrimSpace(req.ThresholdMode)
	if mode != payloadschema.ThresholdModeFixed && mode != payloadschema.ThresholdModeGrid {
		return failValidation(c, map[string]string{"threshold_mode": `must be "fixed" or "grid"`})
	}
	if len(req.Points) == 0 && strings.TrimSpace(req.InputFile) == "" {
		return failValidation(c, map[string]string{"points": "points or input_file is required"})
	}

	ctx := c.Request().Context()

	points := req.Points
	var forwarded any
	if len(points) == 0 {
		result, err := s.interp.Run(ctx, interp.Request{
			InputFile:     req.InputFile,
			ThresholdMode: mode,
			Threshold:     req.Threshold,
			GridRPBand:    req.GridRPBand,
			BoundaryFiles: req.BoundaryFiles,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("input_file", req.InputFile).Msg("interpolation failed")
			return fail(c, http.StatusBadGateway, "Interpolation failed", map[string]any{"reason": err.Error()})
		}
		points = result.Points
		forwarded = result
	}

	res, err := s.ingester.Run(ctx, ingestion.Request{
		ConfirmedDate:    confirmedDate,
		FileName:         req.FileName,
		ThresholdMode:    mode,
		DefaultThreshold: req.Threshold,
		GridRPBand:       req.GridRPBand,
		Points:           points,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("file", req.FileName).Msg("ingestion failed")
		return internalError(c, "Ingestion failed")
	}

	return success(c, map[string]any{
		"inserted": res.Inserted,
		"skipped":  res.Skipped,
		"errors":   res.Errors,
		"total":    res.Total,
		"data":     forwarded,
	})
}

func pagination(page, pageSize int, total int64) map[string]any {
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return map[string]any{
		"page":        page,
		"page_size":   pageSize,
		"total_items": total,
		"total_pages": totalPages,
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseDateWindow(fromRaw, toRaw string) (*time.Time, *time.Time, map[string]string) {
	var from, to *time.Time
	if trimmed := strings.TrimSpace(fromRaw); trimmed != "" {
		ts, err := time.ParseInLocation(dateLayout, trimmed, time.UTC)
		if err != nil {
			return nil, nil, map[string]string{"from": "must be YYYY-MM-DD"}
		}
		from = &ts
	}
	if trimmed := strings.TrimSpace(toRaw); trimmed != "" {
		ts, err := time.ParseInLocation(dateLayout, trimmed, time.UTC)
		if err != nil {
			return nil, nil, map[string]string{"to": "must be YYYY-MM-DD"}
		}
		to = &ts
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, map[string]string{"date_range": "from must be <= to"}
	}
	return from, to, nil
}

// parseBBox parses "minLat,minLon,maxLat,maxLon" into a bounding box.
func parseBBox(raw string) (geo.BoundingBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("must be minLat,minLon,maxLat,maxLon")
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("must be four numbers")
		}
		vals[i] = v
	}
	box := geo.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if box.MinLat < -90 || box.MaxLat > 90 || box.MinLat > box.MaxLat {
		return geo.BoundingBox{}, fmt.Errorf("latitude bounds out of order or range")
	}
	if box.MinLon < -180 || box.MaxLon > 180 || box.MinLon > box.MaxLon {
		return geo.BoundingBox{}, fmt.Errorf("longitude bounds out of order or range")
	}
	return box, nil
}

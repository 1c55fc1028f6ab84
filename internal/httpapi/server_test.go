package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinJiangyue/EUflood-sub000/internal/ingestion"
	"github.com/JinJiangyue/EUflood-sub000/internal/interp"
	"github.com/JinJiangyue/EUflood-sub000/internal/merge"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
	payloadschema "github.com/JinJiangyue/EUflood-sub000/schema"
)

type stubMerger struct {
	stats merge.Stats
	err   error
	from  time.Time
	to    time.Time
}

func (s *stubMerger) Run(_ context.Context, from, to time.Time) (merge.Stats, error) {
	s.from, s.to = from, to
	return s.stats, s.err
}

type stubIngester struct {
	result *ingestion.Result
	err    error
	got    ingestion.Request
}

func (s *stubIngester) Run(_ context.Context, req ingestion.Request) (*ingestion.Result, error) {
	s.got = req
	return s.result, s.err
}

type stubInterp struct {
	result *payloadschema.InterpolationResult
	err    error
	got    interp.Request
}

func (s *stubInterp) Run(_ context.Context, req interp.Request) (*payloadschema.InterpolationResult, error) {
	s.got = req
	return s.result, s.err
}

type testEnv struct {
	store    *storage.Memory
	merger   *stubMerger
	ingester *stubIngester
	interp   *stubInterp
	srv      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    storage.NewMemory(),
		merger:   &stubMerger{},
		ingester: &stubIngester{result: &ingestion.Result{}},
		interp:   &stubInterp{},
	}
	server := NewServer(env.store, env.merger, env.ingester, env.interp, zerolog.Nop(), Options{})
	env.srv = httptest.NewServer(server.Router())
	t.Cleanup(env.srv.Close)
	return env
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, jsendResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope jsendResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func dataMap(t *testing.T, envelope jsendResponse) map[string]any {
	t.Helper()
	m, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %#v", envelope.Data)
	return m
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, envelope := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", envelope.Status)
	assert.Equal(t, "floodwatch", dataMap(t, envelope)["service"])
}

func TestStats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Create(ctx, storage.CollectionCandidates, storage.Record{"id": "c1"}))
	require.NoError(t, env.store.Create(ctx, storage.CollectionEvents, storage.Record{"id": "e1", "enriched": true}))
	require.NoError(t, env.store.Create(ctx, storage.CollectionEvents, storage.Record{"id": "e2", "enriched": false}))
	require.NoError(t, env.store.Create(ctx, storage.CollectionRainEvents, storage.Record{"id": "r1"}))

	_, envelope := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/stats", "")

	data := dataMap(t, envelope)
	assert.EqualValues(t, 1, data["candidates"])
	assert.EqualValues(t, 2, data["events"])
	assert.EqualValues(t, 1, data["enriched_events"])
	assert.EqualValues(t, 1, data["rain_events"])
}

func TestEventsListAndDetail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	seed := []storage.Record{
		{"id": "k1", "event_date": "2025-10-11", "country": "Spain", "level": 4},
		{"id": "k2", "event_date": "2025-10-12", "country": "Spain", "level": 2},
		{"id": "k3", "event_date": "2025-10-12", "country": "France", "level": 1},
	}
	for _, rec := range seed {
		require.NoError(t, env.store.Create(ctx, storage.CollectionEvents, rec))
	}

	_, envelope := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events?country=Spain&from=2025-10-12", "")
	data := dataMap(t, envelope)
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "k2", items[0].(map[string]any)["id"])

	resp, envelope := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events/k1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "k1", dataMap(t, envelope)["id"])

	resp, envelope = doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "fail", envelope.Status)

	resp, _ = doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events?from=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsBoundingBoxFilter(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	seed := []storage.Record{
		{"id": "madrid", "event_date": "2025-10-11", "country": "Spain", "latitude": 40.41, "longitude": -3.70},
		{"id": "bilbao", "event_date": "2025-10-11", "country": "Spain", "latitude": 43.26, "longitude": -2.93},
		{"id": "paris", "event_date": "2025-10-11", "country": "France", "latitude": 48.85, "longitude": 2.35},
	}
	for _, rec := range seed {
		require.NoError(t, env.store.Create(ctx, storage.CollectionEvents, rec))
	}

	_, envelope := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events?bbox=39,-5,44,0", "")
	items := dataMap(t, envelope)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "bilbao", items[0].(map[string]any)["id"])
	assert.Equal(t, "madrid", items[1].(map[string]any)["id"])

	resp, _ := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events?bbox=44,-5,39,0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events?bbox=1,2,3", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMergeEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.merger.stats = merge.Stats{
		PerSource: map[string]int{"gdacs": 2},
		Total:     2,
		Merged:    1,
	}

	resp, envelope := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/events/merge",
		`{"date_from":"2025-10-01","date_to":"2025-10-31"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, envelope)
	stats := data["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["merged"])
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), env.merger.from)
	assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), env.merger.to)

	resp, _ = doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/events/merge",
		`{"date_from":"2025-10-31","date_to":"2025-10-01"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMergeEndpointFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.merger.err = errors.New("store down")

	resp, envelope := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/events/merge",
		`{"date_from":"2025-10-01","date_to":"2025-10-31"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", envelope.Status)
}

func TestRainEventsList(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	seed := []storage.Record{
		{"id": "a", "date": "2025-10-11", "province": "Madrid", "seq": 1, "file_name": "pr1.txt"},
		{"id": "b", "date": "2025-10-11", "province": "Madrid", "seq": 2, "file_name": "pr1.txt"},
		{"id": "c", "date": "2025-10-11", "province": "Sevilla", "seq": 1, "file_name": "pr2.txt"},
	}
	for _, rec := range seed {
		require.NoError(t, env.store.Create(ctx, storage.CollectionRainEvents, rec))
	}

	_, envelope := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/rain-events?date=2025-10-11&province=Madrid", "")
	data := dataMap(t, envelope)
	items := data["items"].([]any)
	require.Len(t, items, 2)
	pg := data["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pg["total_items"])

	resp, _ := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/rain-events?date=11-10-2025", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestWithInlinePoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.ingester.result = &ingestion.Result{Inserted: 1, Total: 1}

	resp, envelope := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/rain-events/ingest", `{
		"confirmed_date": "2025-10-11",
		"file_name": "pr_20251011.txt",
		"threshold_mode": "fixed",
		"threshold": 40.0,
		"points": [{"longitude": 2.3522, "latitude": 48.8566, "value": 62.0, "province_name": "Île-de-France/FR"}]
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, envelope)
	assert.EqualValues(t, 1, data["inserted"])
	assert.EqualValues(t, 1, data["total"])

	require.Len(t, env.ingester.got.Points, 1)
	assert.Equal(t, "pr_20251011.txt", env.ingester.got.FileName)
	assert.Equal(t, time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC), env.ingester.got.ConfirmedDate)
}

func TestIngestRunsInterpolationWhenFileGiven(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.interp.result = &payloadschema.InterpolationResult{
		Success: true,
		Summary: payloadschema.InterpolationSummary{ValueThreshold: 40, ThresholdMode: "grid"},
		Points: []payloadschema.InterpolationPoint{
			{Longitude: 2.3522, Latitude: 48.8566, Value: 62},
		},
	}
	env.ingester.result = &ingestion.Result{Inserted: 1, Total: 1}

	resp, envelope := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/rain-events/ingest", `{
		"confirmed_date": "2025-10-11",
		"file_name": "pr_20251011.txt",
		"threshold_mode": "grid",
		"threshold": 40.0,
		"grid_rp_band": "005y",
		"input_file": "/data/pr_20251011.txt"
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/data/pr_20251011.txt", env.interp.got.InputFile)
	require.Len(t, env.ingester.got.Points, 1)

	data := dataMap(t, envelope)
	require.NotNil(t, data["data"], "interpolation output is forwarded verbatim")
}

func TestIngestInterpolationFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.interp.err = errors.New("worker crashed")

	resp, envelope := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/rain-events/ingest", `{
		"confirmed_date": "2025-10-11",
		"file_name": "pr.txt",
		"threshold_mode": "fixed",
		"input_file": "/data/pr.txt"
	}`)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "fail", envelope.Status)
}

func TestIngestValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad date", `{"confirmed_date":"11/10/2025","file_name":"f","threshold_mode":"fixed","points":[{}]}`},
		{"missing file", `{"confirmed_date":"2025-10-11","threshold_mode":"fixed","points":[{}]}`},
		{"bad mode", `{"confirmed_date":"2025-10-11","file_name":"f","threshold_mode":"adaptive","points":[{}]}`},
		{"no points or file", `{"confirmed_date":"2025-10-11","file_name":"f","threshold_mode":"fixed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, envelope := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/rain-events/ingest", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "fail", envelope.Status)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

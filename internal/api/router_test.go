package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rigledger/internal/api/handlers"
	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/internal/simulator"
	"github.com/wonny/rigledger/pkg/logger"
)

type fakeIngestor struct {
	one  []contracts.ReadingInput
	bulk [][]contracts.ReadingInput
	err  error
}

func (f *fakeIngestor) IngestOne(_ context.Context, in contracts.ReadingInput) (*contracts.IngestResult, error) {
	if in.RigID <= 0 {
		return nil, contracts.ValidationError{Field: "rigId", Message: "required"}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.one = append(f.one, in)
	return &contracts.IngestResult{OK: true, LotID: 11, NormalizedTimestamp: "2024-03-01 10:00:00"}, nil
}

func (f *fakeIngestor) IngestBulk(_ context.Context, inputs []contracts.ReadingInput) (*contracts.BulkResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bulk = append(f.bulk, inputs)
	return &contracts.BulkResult{InsertedCount: len(inputs), DistinctLotCount: 1}, nil
}

type fakeSeries struct {
	history contracts.HistoryQuery
	lot     *contracts.Lot
}

func (f *fakeSeries) LatestPerRig(context.Context) ([]contracts.RigReading, error) {
	return []contracts.RigReading{{Reading: contracts.Reading{ID: 1, RigID: 3}, RigName: "Rig 3"}}, nil
}

func (f *fakeSeries) SummaryToday(context.Context) (*contracts.TodaySummary, error) {
	return &contracts.TodaySummary{Date: "2024-03-01", Rigs: []contracts.RigSummary{}}, nil
}

func (f *fakeSeries) History(_ context.Context, _ int64, q contracts.HistoryQuery) ([]contracts.Reading, error) {
	f.history = q
	return []contracts.Reading{}, nil
}

func (f *fakeSeries) DailySeries(_ context.Context, _ int64, day string) (*contracts.DailySeries, error) {
	if !localday.ValidDay(day) {
		return nil, contracts.ValidationError{Field: "date", Message: "invalid"}
	}
	return &contracts.DailySeries{Date: day, Labels: localday.MinuteLabels()}, nil
}

func (f *fakeSeries) LotSummary(context.Context, int64, string) (*contracts.Lot, error) {
	if f.lot == nil {
		return nil, ledger.ErrLotNotFound
	}
	return f.lot, nil
}

type fakeSimulator struct {
	backfills []simulator.BackfillRequest
}

func (f *fakeSimulator) BulkGenerate(_ context.Context, ids []int64) (*contracts.BulkResult, error) {
	return &contracts.BulkResult{InsertedCount: len(ids), DistinctLotCount: len(ids)}, nil
}

func (f *fakeSimulator) Backfill(_ context.Context, req simulator.BackfillRequest) (*simulator.BackfillResult, error) {
	f.backfills = append(f.backfills, req)
	return &simulator.BackfillResult{RigID: req.RigID, Date: req.Date, Inserted: simulator.SamplesPerDay}, nil
}

func (f *fakeSimulator) BackfillRigs(_ context.Context, reqs []simulator.BackfillRequest) ([]*simulator.BackfillResult, error) {
	f.backfills = append(f.backfills, reqs...)
	out := make([]*simulator.BackfillResult, len(reqs))
	for i, r := range reqs {
		out[i] = &simulator.BackfillResult{RigID: r.RigID, Date: r.Date}
	}
	return out, nil
}

type testEnv struct {
	router http.Handler
	ing    *fakeIngestor
	series *fakeSeries
	sim    *fakeSimulator
}

func newTestEnv(limiter *IngestLimiter) *testEnv {
	log := logger.Nop()
	env := &testEnv{ing: &fakeIngestor{}, series: &fakeSeries{}, sim: &fakeSimulator{}}
	env.router = NewRouter(Handlers{
		Readings:  handlers.NewReadingsHandler(env.ing, env.series, log),
		Rigs:      handlers.NewRigsHandler(env.series, log),
		Simulator: handlers.NewSimulatorHandler(env.sim, log),
	}, limiter, log)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := newTestEnv(nil).do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestIngestOne(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do("POST", "/api/readings", `{"rigId":3,"quantity":10,"recordedAt":"2024-03-01 10:00:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, float64(11), res["lotId"])
	assert.Equal(t, "2024-03-01 10:00:00", res["normalizedTimestamp"])

	require.Len(t, env.ing.one, 1)
	assert.Equal(t, 10.0, *env.ing.one[0].Quantity)
	assert.Nil(t, env.ing.one[0].Pressure)
}

func TestIngestErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"validation", nil, `{"quantity":1}`, http.StatusBadRequest},
		{"malformed", nil, `{"rigId":`, http.StatusBadRequest},
		{"too large", &contracts.PayloadTooLargeError{Rows: 10, Limit: 5}, `{"rigId":1}`, http.StatusRequestEntityTooLarge},
		{"storage", &contracts.StorageError{Op: "ingest one", Err: errors.New("conn reset")}, `{"rigId":1}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(nil)
			env.ing.err = tt.err
			rec := env.do("POST", "/api/readings", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIngestBulk_ArrayAndObjectBodies(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do("POST", "/api/readings/bulk", `[{"rigId":1,"quantity":2},{"rigId":1,"quantity":3}]`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"insertedCount":2,"distinctLotCount":1}`, rec.Body.String())

	rec = env.do("POST", "/api/readings/bulk", `{"readings":[{"rigId":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.ing.bulk, 2)
	assert.Len(t, env.ing.bulk[1], 1)
}

func TestQueries(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do("GET", "/api/readings/latest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rigName":"Rig 3"`)

	rec = env.do("GET", "/api/readings/today", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("GET", "/api/rigs/3/history?from=2024-03-01%2000:00:00&to=2024-03-02%2000:00:00&limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.HistoryQuery{From: "2024-03-01 00:00:00", To: "2024-03-02 00:00:00", Limit: 10}, env.series.history)

	rec = env.do("GET", "/api/rigs/3/history?date=2024-03-01&limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/api/rigs/3/series?date=2024-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var grid contracts.DailySeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	assert.Len(t, grid.Labels, 1440)

	rec = env.do("GET", "/api/rigs/3/series", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/api/rigs/3/lots/2024-03-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimulatorRoutes(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do("POST", "/api/simulator/generate", `{"rigIds":[1,2]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do("POST", "/api/simulator/backfill", `{"rigId":4,"date":"2024-03-01","overwrite":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, simulator.BackfillRequest{RigID: 4, Date: "2024-03-01", Overwrite: true}, env.sim.backfills[0])

	rec = env.do("POST", "/api/simulator/backfill", `{"rigIds":[5,6],"date":"2024-03-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.sim.backfills, 3)
}

func TestIngestLimiter(t *testing.T) {
	env := newTestEnv(NewIngestLimiter(1, 1, nil, logger.Nop()))

	first := env.do("POST", "/api/readings", `{"rigId":1}`)
	second := env.do("POST", "/api/readings", `{"rigId":1}`)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// queries are never throttled
	assert.Equal(t, http.StatusOK, env.do("GET", "/api/readings/latest", "").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	env := newTestEnv(nil)
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/energy-feeds/internal/ckan"
	"github.com/mauv0809/energy-feeds/internal/db"
	"github.com/mauv0809/energy-feeds/internal/models"
	"github.com/mauv0809/energy-feeds/internal/pipeline"
)

type stubStore struct {
	pingErr error
}

func (s stubStore) Ping(context.Context) error { return s.pingErr }

func (s stubStore) Stats(context.Context) ([]db.TableStats, error) {
	return []db.TableStats{{Kind: models.SpotPrice, Table: "pld_submarket", Rows: 10}}, nil
}

type stubRunner struct {
	plans []pipeline.Plan
	err   error
	runs  map[string]pipeline.Run
}

func (r *stubRunner) Submit(plan pipeline.Plan) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if err := plan.Validate(); err != nil {
		return "", err
	}
	r.plans = append(r.plans, plan)
	return "run-1", nil
}

func (r *stubRunner) Get(id string) (pipeline.Run, bool) {
	run, ok := r.runs[id]
	return run, ok
}

func (r *stubRunner) Recent(n int) []pipeline.Run {
	out := []pipeline.Run{}
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out
}

func newServer(store Store, runner *stubRunner) *echo.Echo {
	e := echo.New()
	ih := NewIngestHandler(runner, 2010, nil)
	ih.now = func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }
	reg := prometheus.NewRegistry()
	Register(e, New(store), ih, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return e
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newServer(stubStore{}, &stubRunner{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())

	rec = do(newServer(stubStore{pingErr: errors.New("down")}, &stubRunner{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	rec := do(newServer(stubStore{}, &stubRunner{}), http.MethodGet, "/admin/ingest/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pld_submarket"`)
}

func TestIngestSpreadsheetsDefaultsToCurrentYear(t *testing.T) {
	runner := &stubRunner{}
	rec := do(newServer(stubStore{}, runner), http.MethodPost, "/admin/ingest/spreadsheets")

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "run-1", resp.RunID)

	require.Len(t, runner.plans, 1)
	assert.Equal(t, models.SpreadsheetKinds, runner.plans[0].Kinds)
	assert.Equal(t, []int{2024}, runner.plans[0].Years)
}

func TestIngestSpreadsheetsWithRange(t *testing.T) {
	runner := &stubRunner{}
	rec := do(newServer(stubStore{}, runner), http.MethodPost, "/admin/ingest/spreadsheets?kinds=cmo,EAR&from=2018&to=2020")

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []models.Kind{models.MarginalCost, models.StoredEnergy}, runner.plans[0].Kinds)
	assert.Equal(t, []int{2018, 2019, 2020}, runner.plans[0].Years)
}

func TestIngestSpreadsheetsFull(t *testing.T) {
	runner := &stubRunner{}
	rec := do(newServer(stubStore{}, runner), http.MethodPost, "/admin/ingest/spreadsheets?kinds=ena&full=true")

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, runner.plans[0].Years, 15)
	assert.Equal(t, 2010, runner.plans[0].Years[0])
}

func TestIngestSpreadsheetsRejectsBadInput(t *testing.T) {
	e := newServer(stubStore{}, &stubRunner{})

	for _, target := range []string{
		"/admin/ingest/spreadsheets?kinds=tariff",
		"/admin/ingest/spreadsheets?kinds=pld",
		"/admin/ingest/spreadsheets?from=abc",
		"/admin/ingest/spreadsheets?from=2005",
		"/admin/ingest/spreadsheets?from=2021&to=2020",
		"/admin/ingest/spreadsheets?to=2030",
	} {
		rec := do(e, http.MethodPost, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestIngestProducts(t *testing.T) {
	runner := &stubRunner{}
	e := newServer(stubStore{}, runner)

	rec := do(e, http.MethodPost, "/admin/ingest/products")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{ckan.DefaultProduct}, runner.plans[0].Products)

	rec = do(e, http.MethodPost, "/admin/ingest/products?product=unknown_product")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAll(t *testing.T) {
	runner := &stubRunner{}
	rec := do(newServer(stubStore{}, runner), http.MethodPost, "/admin/ingest/all")

	require.Equal(t, http.StatusAccepted, rec.Code)
	plan := runner.plans[0]
	assert.Equal(t, []int{2024}, plan.Years)
	assert.Equal(t, []string{ckan.DefaultProduct}, plan.Products)
	assert.Len(t, plan.Kinds, 4)
}

func TestIngestQueueFull(t *testing.T) {
	rec := do(newServer(stubStore{}, &stubRunner{err: pipeline.ErrQueueFull}), http.MethodPost, "/admin/ingest/all")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRuns(t *testing.T) {
	runner := &stubRunner{runs: map[string]pipeline.Run{
		"abc": {ID: "abc", Status: pipeline.RunCompleted},
	}}
	e := newServer(stubStore{}, runner)

	rec := do(e, http.MethodGet, "/admin/ingest/runs/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	var run pipeline.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, pipeline.RunCompleted, run.Status)

	rec = do(e, http.MethodGet, "/admin/ingest/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/admin/ingest/runs?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"abc"`)

	rec = do(e, http.MethodGet, "/admin/ingest/runs?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	rec := do(newServer(stubStore{}, &stubRunner{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

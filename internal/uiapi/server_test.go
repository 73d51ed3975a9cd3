package uiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/awaistahir/smart-run-planner/internal/metrics"
	"github.com/awaistahir/smart-run-planner/internal/milp"
	"github.com/awaistahir/smart-run-planner/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	curve  engine.PriceCurve
	err    error
	region string
	day    time.Time
}

func (f *fakeSource) HourlyCurve(_ context.Context, day time.Time) (engine.PriceCurve, error) {
	f.day = day
	return f.curve, f.err
}

type fixture struct {
	ts     *httptest.Server
	source *fakeSource
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, withExact bool) *fixture {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "smartrun.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	obs, err := metrics.NewObserver(reg)
	require.NoError(t, err)

	f := &fixture{source: &fakeSource{}, reg: reg}
	opts := []Option{
		WithObserver(obs),
		WithMetrics(reg),
		WithPriceSource(func(region string) PriceSource {
			f.source.region = region
			return f.source
		}),
	}
	if withExact {
		exact, err := engine.OpenExact(milp.BackendGonum, milp.Options{}, nil)
		require.NoError(t, err)
		opts = append(opts, WithExact(exact))
	}

	f.ts = httptest.NewServer(NewServer(st, opts...).Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

// contested prices make greedy and exact disagree: hours 0-3 are cheap,
// everything else is expensive.
func contestedPrices() []float64 {
	prices := make([]float64, engine.HoursPerDay)
	for i := range prices {
		prices[i] = 5
	}
	prices[0], prices[1], prices[2], prices[3] = 0.1, 0.1, 1.0, 0.2
	return prices
}

func (f *fixture) seedContested(t *testing.T) {
	t.Helper()
	code, _ := f.do(t, http.MethodPut, "/api/tariff", map[string]any{"prices": contestedPrices(), "budget_kw": 3})
	require.Equal(t, http.StatusOK, code)
	for _, a := range []engine.ApplianceRequest{
		{Name: "a", PowerKW: 2, Runtime: 1, Window: engine.Window{Start: 0, End: 3}, Priority: 2},
		{Name: "b", PowerKW: 2, Runtime: 2, Window: engine.Window{Start: 0, End: 3}, Priority: 1},
	} {
		code, body := f.do(t, http.MethodPost, "/api/appliances", a)
		require.Equal(t, http.StatusCreated, code, string(body))
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true)

	code, body := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, false, status["tariff"])
	assert.ElementsMatch(t, []any{"greedy", "exact"}, status["strategies"])
	assert.Contains(t, status["backends"], milp.BackendGonum)
}

func TestTariffEndpoints(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(t, http.MethodGet, "/api/tariff", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPut, "/api/tariff", map[string]any{"prices": []float64{1, 2, 3}, "budget_kw": 3})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPut, "/api/tariff", map[string]any{"prices": contestedPrices(), "budget_kw": 3, "region": "C"})
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodGet, "/api/tariff", nil)
	require.Equal(t, http.StatusOK, code)
	var got store.Tariff
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, contestedPrices(), got.Prices)
	assert.Equal(t, "C", got.Region)

	code, body = f.do(t, http.MethodGet, "/api/tariff/templates", nil)
	require.Equal(t, http.StatusOK, code)
	var templates []templateResponse
	require.NoError(t, json.Unmarshal(body, &templates))
	require.Len(t, templates, 3)
	assert.Len(t, templates[0].Prices, engine.HoursPerDay)
}

func TestFetchTariff(t *testing.T) {
	f := newFixture(t, false)

	live := make([]float64, engine.HoursPerDay)
	for i := range live {
		live[i] = 0.2 + float64(i)/100
	}
	f.source.curve = engine.MustPriceCurve(live)

	code, _ := f.do(t, http.MethodPost, "/api/tariff/fetch", map[string]any{"budget_kw": 4})
	assert.Equal(t, http.StatusBadRequest, code, "region is required without a stored tariff")

	code, body := f.do(t, http.MethodPost, "/api/tariff/fetch", map[string]any{"region": "A", "budget_kw": 4, "date": "2025-03-10"})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, "A", f.source.region)
	assert.Equal(t, 10, f.source.day.Day())

	// Region and budget now come from the stored tariff.
	code, body = f.do(t, http.MethodPost, "/api/tariff/fetch", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var got store.Tariff
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, live, got.Prices)
	assert.Equal(t, 4.0, got.BudgetKW)
	assert.Equal(t, "A", got.Region)

	f.source.err = errors.New("upstream down")
	code, _ = f.do(t, http.MethodPost, "/api/tariff/fetch", nil)
	assert.Equal(t, http.StatusBadGateway, code)

	code, _ = f.do(t, http.MethodPost, "/api/tariff/fetch", map[string]any{"date": "10/03/2025"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestApplianceEndpoints(t *testing.T) {
	f := newFixture(t, false)

	washer := engine.ApplianceRequest{Name: "washer", PowerKW: 1, Runtime: 2, Window: engine.Window{Start: 8, End: 22}, Priority: 2}
	code, body := f.do(t, http.MethodPost, "/api/appliances", washer)
	require.Equal(t, http.StatusCreated, code)
	var created store.Appliance
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, washer, created.ApplianceRequest)

	code, _ = f.do(t, http.MethodPost, "/api/appliances", washer)
	assert.Equal(t, http.StatusBadRequest, code, "duplicate name")

	code, _ = f.do(t, http.MethodPost, "/api/appliances", engine.ApplianceRequest{Name: "bad", PowerKW: 1, Runtime: 9, Window: engine.Window{Start: 1, End: 2}})
	assert.Equal(t, http.StatusBadRequest, code)

	washer.Priority = 4
	code, _ = f.do(t, http.MethodPut, "/api/appliances/"+created.ID, washer)
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/api/appliances/"+created.ID, nil)
	require.Equal(t, http.StatusOK, code)
	var got store.Appliance
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 4, got.Priority)

	code, _ = f.do(t, http.MethodPut, "/api/appliances/missing", washer)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/api/appliances", nil)
	require.Equal(t, http.StatusOK, code)
	var list []store.Appliance
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	code, _ = f.do(t, http.MethodDelete, "/api/appliances/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodDelete, "/api/appliances/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScheduleGreedy(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(t, http.MethodPost, "/api/schedule", nil)
	assert.Equal(t, http.StatusNotFound, code, "no tariff stored yet")

	f.seedContested(t)

	code, body := f.do(t, http.MethodPost, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var doc ScheduleDocument
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, engine.StrategyGreedy, doc.Strategy)
	assert.True(t, doc.Feasible)
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, doc.Starts)
	assert.InDelta(t, 2.4, doc.TotalCost, 1e-9)
	require.Len(t, doc.Appliances, 2)
	assert.Equal(t, []int{1, 2}, doc.Appliances[1].Hours)
	assert.InDelta(t, 2.2, doc.Appliances[1].Cost, 1e-9)
	assert.Equal(t, []float64{2, 2, 2, 0}, doc.HourlyUsage[:4])
	assert.Empty(t, doc.Unscheduled)
	assert.Equal(t, 2, doc.Summary.Scheduled)

	code, _ = f.do(t, http.MethodPost, "/api/schedule", ScheduleRequest{Strategy: "random"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/schedule", ScheduleRequest{Strategy: engine.StrategyExact})
	assert.Equal(t, http.StatusNotImplemented, code)

	code, _ = f.do(t, http.MethodPost, "/api/compare", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestScheduleExactAndCompare(t *testing.T) {
	f := newFixture(t, true)
	f.seedContested(t)

	code, body := f.do(t, http.MethodPost, "/api/schedule", ScheduleRequest{Strategy: engine.StrategyExact})
	require.Equal(t, http.StatusOK, code, string(body))
	var doc ScheduleDocument
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, map[string]int{"a": 3, "b": 0}, doc.Starts)
	assert.InDelta(t, 0.8, doc.TotalCost, 1e-9)

	code, body = f.do(t, http.MethodPost, "/api/compare", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var cmp ComparisonDocument
	require.NoError(t, json.Unmarshal(body, &cmp))
	assert.True(t, cmp.Comparison.Comparable)
	assert.InDelta(t, 1.6, cmp.Comparison.Savings, 1e-9)
	assert.InDelta(t, 2.0/3.0, cmp.Comparison.SavingsRatio, 1e-9)

	code, body = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(string(body), `smartrun_schedule_runs_total{outcome="complete",strategy="exact"} 2`), string(body))
}

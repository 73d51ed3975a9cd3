package metrics

import (
	"context"
	"testing"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatPrices(p float64) []float64 {
	out := make([]float64, engine.HoursPerDay)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestObserverRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewObserver(reg)
	require.NoError(t, err)

	p := engine.NewPlanner(engine.WithObserver(obs))
	require.NoError(t, p.Register(flatPrices(0.5), 2.0))
	_, err = p.AddRequest(engine.ApplianceRequest{Name: "kettle", PowerKW: 1.5, Runtime: 1, Window: engine.Window{Start: 7, End: 7}, Fixed: true})
	require.NoError(t, err)
	_, err = p.AddRequest(engine.ApplianceRequest{Name: "toaster", PowerKW: 1.0, Runtime: 1, Window: engine.Window{Start: 7, End: 7}, Fixed: true})
	require.NoError(t, err)

	res, err := p.RunGreedy(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.runs.WithLabelValues(engine.StrategyGreedy, "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.unscheduled.WithLabelValues(engine.StrategyGreedy)))
	assert.InDelta(t, 0.75, testutil.ToFloat64(obs.cost.WithLabelValues(engine.StrategyGreedy)), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(obs.duration))
}

func TestNewObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewObserver(reg)
	require.NoError(t, err)
	second, err := NewObserver(reg)
	require.NoError(t, err)

	first.runs.WithLabelValues("greedy", "complete").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.runs.WithLabelValues("greedy", "complete")))
}

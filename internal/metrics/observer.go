// Package metrics exposes scheduling runs as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Observer records engine runs. It implements engine.Observer.
type Observer struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	unscheduled *prometheus.CounterVec
	cost        *prometheus.GaugeVec
}

// NewObserver registers run metrics on reg. A nil registerer defaults to the global
// Prometheus registerer.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartrun_schedule_runs_total",
		Help: "Scheduling runs by strategy and outcome",
	}, []string{"strategy", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartrun_schedule_duration_seconds",
		Help:    "Wall time of a scheduling run",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
	unscheduled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartrun_unscheduled_appliances_total",
		Help: "Diagnostics recorded for appliances or models that could not be placed",
	}, []string{"strategy"})
	cost := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartrun_schedule_cost",
		Help: "Total cost of the most recent schedule",
	}, []string{"strategy"})

	var err error
	if runs, err = register(reg, runs); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if unscheduled, err = register(reg, unscheduled); err != nil {
		return nil, err
	}
	if cost, err = register(reg, cost); err != nil {
		return nil, err
	}
	return &Observer{runs: runs, duration: duration, unscheduled: unscheduled, cost: cost}, nil
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveRun implements engine.Observer.
func (o *Observer) ObserveRun(res *engine.Result, elapsed time.Duration) {
	outcome := "complete"
	if !res.Feasible() {
		outcome = "partial"
		if len(res.Starts) == 0 {
			outcome = "infeasible"
		}
	}
	o.runs.WithLabelValues(res.Strategy, outcome).Inc()
	o.duration.WithLabelValues(res.Strategy).Observe(elapsed.Seconds())
	o.unscheduled.WithLabelValues(res.Strategy).Add(float64(len(res.Diagnostics)))
	o.cost.WithLabelValues(res.Strategy).Set(res.TotalCost())
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/logger"
)

// Scheduler is a scheduling strategy. Greedy and Exact share this contract so they can
// be swapped per run and compared on the same input.
type Scheduler interface {
	Name() string
	Schedule(ctx context.Context, in Input) (*Result, error)
}

// Observer is notified after every completed run.
type Observer interface {
	ObserveRun(res *Result, elapsed time.Duration)
}

// Planner owns the tariff and the request list for one household and runs strategies
// over them. It is not safe for concurrent use; each run works on its own snapshot and
// ledger.
type Planner struct {
	prices     PriceCurve
	budget     PowerBudget
	registered bool
	requests   []ApplianceRequest

	greedy   Scheduler
	exact    Scheduler
	observer Observer
	log      logger.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithExact enables RunExact.
func WithExact(s Scheduler) Option {
	return func(p *Planner) { p.exact = s }
}

// WithObserver attaches a run observer such as the Prometheus one.
func WithObserver(o Observer) Option {
	return func(p *Planner) { p.observer = o }
}

// WithLogger sets the logger used by the planner and its default greedy strategy.
func WithLogger(l logger.Logger) Option {
	return func(p *Planner) { p.log = l }
}

// NewPlanner returns a planner with the greedy strategy. The exact strategy is only
// available when configured with WithExact.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{log: logger.NopLogger{}}
	for _, opt := range opts {
		opt(p)
	}
	p.greedy = NewGreedy(p.log)
	return p
}

// Register validates and installs the tariff. On error the planner is unchanged.
func (p *Planner) Register(prices []float64, budgetKW float64) error {
	curve, err := NewPriceCurve(prices)
	if err != nil {
		return err
	}
	budget, err := NewPowerBudget(budgetKW)
	if err != nil {
		return err
	}
	p.prices, p.budget, p.registered = curve, budget, true
	return nil
}

// AddRequest validates and appends a request, returning the planner for chaining.
// On error the request list is unchanged.
func (p *Planner) AddRequest(r ApplianceRequest) (*Planner, error) {
	if err := r.Validate(); err != nil {
		return p, err
	}
	for _, existing := range p.requests {
		if existing.Name == r.Name {
			return p, invalid("name", fmt.Sprintf("duplicate appliance %q", r.Name))
		}
	}
	p.requests = append(p.requests, r)
	return p, nil
}

// Requests returns a copy of the registered requests in registration order.
func (p *Planner) Requests() []ApplianceRequest {
	out := make([]ApplianceRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// HasExact reports whether an exact strategy is configured.
func (p *Planner) HasExact() bool {
	return p.exact != nil
}

// RunGreedy schedules the current requests with the greedy strategy.
func (p *Planner) RunGreedy(ctx context.Context) (*Result, error) {
	return p.run(ctx, p.greedy)
}

// RunExact schedules the current requests with the exact strategy. It fails with a
// DependencyError when no solver is configured.
func (p *Planner) RunExact(ctx context.Context) (*Result, error) {
	if p.exact == nil {
		return nil, &DependencyError{Capability: "mixed-integer solver"}
	}
	return p.run(ctx, p.exact)
}

// Run schedules with the named strategy.
func (p *Planner) Run(ctx context.Context, strategy string) (*Result, error) {
	switch strategy {
	case StrategyGreedy, "":
		return p.RunGreedy(ctx)
	case StrategyExact:
		return p.RunExact(ctx)
	default:
		return nil, invalid("strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}
}

func (p *Planner) run(ctx context.Context, s Scheduler) (*Result, error) {
	if !p.registered {
		return nil, invalid("tariff", "prices and power budget must be registered before scheduling")
	}
	in := Input{Prices: p.prices, Budget: p.budget, Requests: p.Requests()}

	began := time.Now()
	res, err := s.Schedule(ctx, in)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(began)

	p.log.Infof("%s run: %d/%d scheduled, total cost %.4f in %s",
		s.Name(), len(res.Starts), len(in.Requests), res.TotalCost(), elapsed)
	if p.observer != nil {
		p.observer.ObserveRun(res, elapsed)
	}
	return res, nil
}

// TotalCost returns the total cost of a result.
func (p *Planner) TotalCost(res *Result) float64 {
	return res.TotalCost()
}

// HourlyUsage returns the 24-hour usage of a result.
func (p *Planner) HourlyUsage(res *Result) []float64 {
	return res.HourlyUsage()
}

// Unscheduled returns the diagnostics of a result.
func (p *Planner) Unscheduled(res *Result) []Diagnostic {
	return res.Unscheduled()
}

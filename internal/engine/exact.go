package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/awaistahir/smart-run-planner/internal/logger"
	"github.com/awaistahir/smart-run-planner/internal/milp"
)

// StrategyExact names the integer-programming strategy.
const StrategyExact = "exact"

// Exact computes a cost-minimal assignment in which every request is placed. It builds
// a 0-1 formulation and delegates solving to a milp.Solver. Any outcome other than an
// optimal solution yields an empty schedule with one model-level diagnostic; there is
// no fallback to the greedy strategy.
type Exact struct {
	solver milp.Solver
	log    logger.Logger
}

// NewExact wraps a solver. A nil solver is a missing dependency.
func NewExact(solver milp.Solver, log logger.Logger) (*Exact, error) {
	if solver == nil {
		return nil, &DependencyError{Capability: "mixed-integer solver"}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Exact{solver: solver, log: log}, nil
}

// OpenExact builds an exact scheduler over a registered milp backend. An empty or
// unregistered backend name is reported as a DependencyError.
func OpenExact(backend string, opts milp.Options, log logger.Logger) (*Exact, error) {
	if backend == "" {
		return nil, &DependencyError{Capability: "mixed-integer solver (no backend configured)"}
	}
	solver, err := milp.Open(backend, opts)
	if err != nil {
		if errors.Is(err, milp.ErrUnknownBackend) {
			return nil, &DependencyError{Capability: fmt.Sprintf("mixed-integer solver backend %q", backend)}
		}
		return nil, fmt.Errorf("opening solver %s: %w", backend, err)
	}
	return NewExact(solver, log)
}

// Name implements Scheduler.
func (e *Exact) Name() string {
	return StrategyExact
}

// decision maps one binary variable back to an (appliance, start) pair.
type decision struct {
	request int
	start   int
}

// Formulation is the 0-1 model for one input together with the variable decoding table.
type Formulation struct {
	Problem   *milp.Problem
	decisions []decision
}

// Formulate builds the model:
//
//	x[a,t] = 1 iff appliance a starts at candidate hour t
//	min  sum cost(a,t) * x[a,t]
//	A:   sum_t x[a,t] = 1                                for every appliance
//	B:   sum power(a) * x[a,t] over blocks covering h <= budget   for every hour h
//	C:   x[a,start] pinned to 1                          for fixed appliances
func Formulate(in Input) *Formulation {
	f := &Formulation{Problem: milp.NewProblem("appliance_scheduling")}
	p := f.Problem

	byRequest := make([][]int, len(in.Requests))
	for i, req := range in.Requests {
		for _, start := range req.CandidateStarts() {
			cost := req.BlockAt(start).Cost(in.Prices, req.PowerKW)
			v := p.AddBinary(fmt.Sprintf("x_%d_%d", i, start), cost)
			f.decisions = append(f.decisions, decision{request: i, start: start})
			byRequest[i] = append(byRequest[i], v)
			if req.Fixed && start == req.Window.Start {
				p.Pin(v, 1)
			}
		}
	}

	for i, vars := range byRequest {
		terms := make([]milp.Term, len(vars))
		for k, v := range vars {
			terms[k] = milp.Term{Var: v, Coef: 1}
		}
		p.AddConstraint("once_"+in.Requests[i].Name, terms, milp.Equal, 1)
	}

	for h := 0; h < HoursPerDay; h++ {
		var terms []milp.Term
		for v, d := range f.decisions {
			req := in.Requests[d.request]
			if req.BlockAt(d.start).Covers(h) {
				terms = append(terms, milp.Term{Var: v, Coef: req.PowerKW})
			}
		}
		if len(terms) == 0 {
			continue
		}
		p.AddConstraint(fmt.Sprintf("capacity_%02d", h), terms, milp.LessEq, float64(in.Budget))
	}
	return f
}

// Decode turns a solver assignment into start hours, keyed by request index.
func (f *Formulation) Decode(values []float64) (map[int]int, error) {
	if len(values) != len(f.decisions) {
		return nil, fmt.Errorf("solver returned %d values for %d variables", len(values), len(f.decisions))
	}
	starts := make(map[int]int)
	for v, d := range f.decisions {
		if values[v] < 0.5 {
			continue
		}
		if _, dup := starts[d.request]; dup {
			return nil, fmt.Errorf("request %d selected more than once", d.request)
		}
		starts[d.request] = d.start
	}
	return starts, nil
}

// Encode is the inverse of Decode: it sets the variable of each (request, start)
// pair to 1. Pairs that are not candidates of the formulation are ignored.
func (f *Formulation) Encode(starts map[int]int) []float64 {
	values := make([]float64, len(f.decisions))
	for v, d := range f.decisions {
		if start, ok := starts[d.request]; ok && start == d.start {
			values[v] = 1
		}
	}
	return values
}

// Schedule implements Scheduler. The only errors are ValidationErrors for malformed
// input; solver failures, cancellation and infeasibility become diagnostics.
func (e *Exact) Schedule(ctx context.Context, in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in = in.snapshot()
	res := newResult(StrategyExact, in)
	if len(in.Requests) == 0 {
		return res, nil
	}

	f := Formulate(in)
	f.Problem.WarmStart = warmStart(f, in)
	sol, err := e.solver.Solve(ctx, f.Problem)
	if err != nil {
		e.log.Warnf("exact solve failed after %d nodes: %v", sol.Nodes, err)
		return infeasible(res, fmt.Sprintf("%s (%v)", reasonModelInfeasible, err)), nil
	}
	if sol.Status != milp.StatusOptimal {
		e.log.Warnf("exact solve ended with status %s after %d nodes", sol.Status, sol.Nodes)
		return infeasible(res, fmt.Sprintf("%s (%s)", reasonModelInfeasible, sol.Status)), nil
	}

	starts, err := f.Decode(sol.Values)
	if err != nil {
		e.log.Errorf("decoding solution: %v", err)
		return infeasible(res, fmt.Sprintf("%s (%v)", reasonModelInfeasible, err)), nil
	}

	var ledger Ledger
	for i, req := range in.Requests {
		start, ok := starts[i]
		if !ok {
			return infeasible(res, fmt.Sprintf("%s (no start selected for %s)", reasonModelInfeasible, req.Name)), nil
		}
		res.Starts[req.Name] = start
		ledger = ledger.Reserve(req.BlockAt(start), req.PowerKW)
	}
	if !ledger.Within(in.Budget) {
		return infeasible(res, reasonModelInfeasible+" (solution exceeds power budget)"), nil
	}
	res.Usage = ledger
	e.log.Debugf("exact solve optimal: objective %.4f in %d nodes", sol.Objective, sol.Nodes)
	return res, nil
}

// infeasible clears any partial assignment and records one model-level diagnostic.
func infeasible(res *Result, reason string) *Result {
	res.Starts = make(map[string]int)
	res.Usage = Ledger{}
	res.Diagnostics = []Diagnostic{{Reason: reason}}
	return res
}

// warmStart seeds the solver with the greedy schedule when greedy places every
// request.
func warmStart(f *Formulation, in Input) []float64 {
	res, err := NewGreedy(nil).Schedule(context.Background(), in)
	if err != nil || !res.Feasible() {
		return nil
	}
	starts := make(map[int]int, len(in.Requests))
	for i, req := range in.Requests {
		starts[i] = res.Starts[req.Name]
	}
	return f.Encode(starts)
}

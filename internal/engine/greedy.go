package engine

import (
	"context"
	"sort"

	"github.com/awaistahir/smart-run-planner/internal/logger"
)

// StrategyGreedy names the priority-ordered heuristic.
const StrategyGreedy = "greedy"

// Greedy places requests one at a time, highest priority first, each at the cheapest
// block that still fits the ledger. It is fast but not optimal: an early placement can
// block a cheaper arrangement for later requests.
type Greedy struct {
	log logger.Logger
}

// NewGreedy returns a greedy scheduler. A nil logger disables logging.
func NewGreedy(log logger.Logger) *Greedy {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Greedy{log: log}
}

// Name implements Scheduler.
func (g *Greedy) Name() string {
	return StrategyGreedy
}

// Schedule implements Scheduler. Infeasible requests are reported as diagnostics;
// the only error is a ValidationError for malformed input.
func (g *Greedy) Schedule(_ context.Context, in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in = in.snapshot()
	res := newResult(StrategyGreedy, in)

	var ledger Ledger
	for _, req := range byPriority(in.Requests) {
		start, ok := g.cheapestFit(req, in, ledger)
		if !ok {
			reason := reasonNoSlot
			if req.Fixed {
				reason = reasonFixedOverBudget
			}
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Appliance: req.Name, Reason: reason})
			g.log.Warnf("cannot schedule %s: %s", req.Name, reason)
			continue
		}
		res.Starts[req.Name] = start
		ledger = ledger.Reserve(req.BlockAt(start), req.PowerKW)
		g.log.Debugw("placed appliance", map[string]any{
			"appliance": req.Name,
			"start":     start,
			"priority":  req.Priority,
		})
	}
	res.Usage = ledger
	return res, nil
}

// cheapestFit returns the lowest-cost feasible start. Ties go to the earliest start in
// window order.
func (g *Greedy) cheapestFit(req ApplianceRequest, in Input, ledger Ledger) (int, bool) {
	best, found := -1, false
	bestCost := 0.0
	for _, start := range req.CandidateStarts() {
		block := req.BlockAt(start)
		if !ledger.Fits(block, req.PowerKW, in.Budget) {
			continue
		}
		cost := block.Cost(in.Prices, req.PowerKW)
		if !found || cost < bestCost {
			best, bestCost, found = start, cost, true
		}
	}
	return best, found
}

// byPriority orders requests by priority descending, keeping registration order on ties.
func byPriority(reqs []ApplianceRequest) []ApplianceRequest {
	ordered := make([]ApplianceRequest, len(reqs))
	copy(ordered, reqs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

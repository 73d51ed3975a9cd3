package engine

import "fmt"

// Diagnostic explains why an appliance, or the whole model when Appliance is empty,
// could not be placed.
type Diagnostic struct {
	Appliance string `json:"appliance,omitempty"`
	Reason    string `json:"reason"`
}

// ModelLevel reports whether the diagnostic concerns the whole run rather than one appliance.
func (d Diagnostic) ModelLevel() bool {
	return d.Appliance == ""
}

func (d Diagnostic) String() string {
	if d.ModelLevel() {
		return d.Reason
	}
	return fmt.Sprintf("%s: %s", d.Appliance, d.Reason)
}

const (
	reasonFixedOverBudget = "power exceeds limit during fixed time period"
	reasonNoSlot          = "no window slot satisfies power constraint"
	reasonModelInfeasible = "could not find an optimal solution, constraints may be too strict"
)

// Result is the outcome of one scheduling run. Costs and usage are derived from Starts
// and the input snapshot, never stored separately.
type Result struct {
	Strategy    string
	Starts      map[string]int
	Usage       Ledger
	Diagnostics []Diagnostic

	input Input
}

func newResult(strategy string, in Input) *Result {
	return &Result{
		Strategy: strategy,
		Starts:   make(map[string]int),
		input:    in,
	}
}

// Requests returns the request snapshot the run consumed.
func (r *Result) Requests() []ApplianceRequest {
	out := make([]ApplianceRequest, len(r.input.Requests))
	copy(out, r.input.Requests)
	return out
}

// Prices returns the price curve the run consumed.
func (r *Result) Prices() PriceCurve {
	return r.input.Prices
}

// Budget returns the power budget the run consumed.
func (r *Result) Budget() PowerBudget {
	return r.input.Budget
}

// Feasible reports whether every request was placed. A run over zero requests is feasible.
func (r *Result) Feasible() bool {
	return len(r.Diagnostics) == 0
}

// Err returns an *InfeasibleError when the run produced diagnostics, nil otherwise.
func (r *Result) Err() error {
	if r.Feasible() {
		return nil
	}
	diags := make([]Diagnostic, len(r.Diagnostics))
	copy(diags, r.Diagnostics)
	return &InfeasibleError{Diagnostics: diags}
}

func (r *Result) request(name string) (ApplianceRequest, bool) {
	for _, req := range r.input.Requests {
		if req.Name == name {
			return req, true
		}
	}
	return ApplianceRequest{}, false
}

// ApplianceCost returns the cost of running a scheduled appliance. Unknown or
// unscheduled names cost zero.
func (r *Result) ApplianceCost(name string) float64 {
	start, ok := r.Starts[name]
	if !ok {
		return 0
	}
	req, ok := r.request(name)
	if !ok {
		return 0
	}
	return req.BlockAt(start).Cost(r.input.Prices, req.PowerKW)
}

// TotalCost sums ApplianceCost over every scheduled appliance.
func (r *Result) TotalCost() float64 {
	total := 0.0
	// Walk requests rather than the map so the float sum is order-stable.
	for _, req := range r.input.Requests {
		total += r.ApplianceCost(req.Name)
	}
	return total
}

// HourlyUsage returns the per-hour power draw of the schedule.
func (r *Result) HourlyUsage() []float64 {
	return r.Usage.Slice()
}

// Unscheduled returns the diagnostics in the order they were recorded.
func (r *Result) Unscheduled() []Diagnostic {
	out := make([]Diagnostic, len(r.Diagnostics))
	copy(out, r.Diagnostics)
	return out
}

// Summary holds headline figures for a schedule
type Summary struct {
	Total       int     `json:"total"`
	Scheduled   int     `json:"scheduled"`
	TotalCost   float64 `json:"total_cost"`
	PeakKW      float64 `json:"peak_kw"`
	PeakHour    int     `json:"peak_hour"`
	AverageKW   float64 `json:"average_kw"`
	Utilization float64 `json:"utilization"` // average draw as a fraction of the budget
	IdleHours   int     `json:"idle_hours"`
}

// Summary computes headline figures from the result.
func (r *Result) Summary() Summary {
	s := Summary{
		Total:     len(r.input.Requests),
		Scheduled: len(r.Starts),
		TotalCost: r.TotalCost(),
	}
	sum := 0.0
	for h, kw := range r.Usage {
		sum += kw
		if kw > s.PeakKW {
			s.PeakKW = kw
			s.PeakHour = h
		}
		if kw == 0 {
			s.IdleHours++
		}
	}
	s.AverageKW = sum / HoursPerDay
	if r.input.Budget > 0 {
		s.Utilization = s.AverageKW / float64(r.input.Budget)
	}
	return s
}

// Comparison contrasts two runs over the same input
type Comparison struct {
	BaselineCost  float64 `json:"baseline_cost"`
	CandidateCost float64 `json:"candidate_cost"`
	Savings       float64 `json:"savings"`
	SavingsRatio  float64 `json:"savings_ratio"`
	// Comparable is false when either run left appliances unplaced, since the costs
	// then cover different sets of appliances.
	Comparable bool `json:"comparable"`
}

// Compare reports how much cheaper candidate is than baseline.
func Compare(baseline, candidate *Result) Comparison {
	c := Comparison{
		BaselineCost:  baseline.TotalCost(),
		CandidateCost: candidate.TotalCost(),
		Comparable:    baseline.Feasible() && candidate.Feasible(),
	}
	c.Savings = c.BaselineCost - c.CandidateCost
	if c.BaselineCost > 0 {
		c.SavingsRatio = c.Savings / c.BaselineCost
	}
	return c
}

package uiapi

import (
	"github.com/awaistahir/smart-run-planner/internal/engine"
)

// ApplianceSlot is one row of a schedule document
type ApplianceSlot struct {
	Name      string  `json:"name"`
	Scheduled bool    `json:"scheduled"`
	Start     *int    `json:"start,omitempty"`
	Hours     []int   `json:"hours,omitempty"`
	PowerKW   float64 `json:"power_kw"`
	Cost      float64 `json:"cost"`
}

// ScheduleDocument is the JSON rendering of a run shared by the API and the CLI
type ScheduleDocument struct {
	Strategy    string              `json:"strategy"`
	Feasible    bool                `json:"feasible"`
	Starts      map[string]int      `json:"starts"`
	Appliances  []ApplianceSlot     `json:"appliances"`
	HourlyUsage []float64           `json:"hourly_usage"`
	BudgetKW    float64             `json:"budget_kw"`
	TotalCost   float64             `json:"total_cost"`
	Unscheduled []engine.Diagnostic `json:"unscheduled"`
	Summary     engine.Summary      `json:"summary"`
}

// NewScheduleDocument renders a result. Appliances are listed in request order.
func NewScheduleDocument(res *engine.Result) ScheduleDocument {
	doc := ScheduleDocument{
		Strategy:    res.Strategy,
		Feasible:    res.Feasible(),
		Starts:      make(map[string]int, len(res.Starts)),
		HourlyUsage: res.HourlyUsage(),
		BudgetKW:    res.Budget().KW(),
		TotalCost:   res.TotalCost(),
		Unscheduled: res.Unscheduled(),
		Summary:     res.Summary(),
	}
	for name, start := range res.Starts {
		doc.Starts[name] = start
	}

	for _, req := range res.Requests() {
		slot := ApplianceSlot{Name: req.Name, PowerKW: req.PowerKW}
		if start, ok := res.Starts[req.Name]; ok {
			start := start
			slot.Scheduled = true
			slot.Start = &start
			slot.Hours = req.BlockAt(start).Hours()
			slot.Cost = res.ApplianceCost(req.Name)
		}
		doc.Appliances = append(doc.Appliances, slot)
	}
	if doc.Appliances == nil {
		doc.Appliances = []ApplianceSlot{}
	}
	return doc
}

// ComparisonDocument holds both strategies' runs over the same input
type ComparisonDocument struct {
	Greedy     ScheduleDocument  `json:"greedy"`
	Exact      ScheduleDocument  `json:"exact"`
	Comparison engine.Comparison `json:"comparison"`
}

// NewComparisonDocument renders a greedy and an exact run side by side.
func NewComparisonDocument(greedy, exact *engine.Result) ComparisonDocument {
	return ComparisonDocument{
		Greedy:     NewScheduleDocument(greedy),
		Exact:      NewScheduleDocument(exact),
		Comparison: engine.Compare(greedy, exact),
	}
}

package engine

import "fmt"

// HoursPerDay is the number of hourly slots in one scheduling day.
const HoursPerDay = 24

// PriceCurve holds the electricity price for each hour of the day (currency/kWh)
type PriceCurve struct {
	prices [HoursPerDay]float64
}

// NewPriceCurve validates and copies 24 hourly prices
func NewPriceCurve(prices []float64) (PriceCurve, error) {
	var c PriceCurve
	if len(prices) != HoursPerDay {
		return c, invalid("prices", fmt.Sprintf("must contain %d hourly prices, got %d", HoursPerDay, len(prices)))
	}
	for h, p := range prices {
		if p < 0 {
			return c, invalid("prices", fmt.Sprintf("price at hour %d is negative (%.4f)", h, p))
		}
		c.prices[h] = p
	}
	return c, nil
}

// MustPriceCurve is NewPriceCurve for known-good literals. It panics on invalid input.
func MustPriceCurve(prices []float64) PriceCurve {
	c, err := NewPriceCurve(prices)
	if err != nil {
		panic(err)
	}
	return c
}

// At returns the price for hour h, wrapping past midnight.
func (c PriceCurve) At(h int) float64 {
	return c.prices[wrapHour(h)]
}

// Values returns a copy of the 24 hourly prices.
func (c PriceCurve) Values() []float64 {
	out := make([]float64, HoursPerDay)
	copy(out, c.prices[:])
	return out
}

// PowerBudget is the maximum simultaneous draw in kW across all appliances in any hour
type PowerBudget float64

// NewPowerBudget validates a power ceiling
func NewPowerBudget(kw float64) (PowerBudget, error) {
	if kw <= 0 {
		return 0, invalid("budget_kw", fmt.Sprintf("must be positive, got %.4f", kw))
	}
	return PowerBudget(kw), nil
}

// KW returns the budget as a plain float.
func (b PowerBudget) KW() float64 {
	return float64(b)
}

// Window is an inclusive range of hours. End < Start wraps past midnight,
// e.g. {22, 5} covers 22:00 through 05:59.
type Window struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Wraps reports whether the window crosses midnight.
func (w Window) Wraps() bool {
	return w.End < w.Start
}

// Len returns the number of hours in the window.
func (w Window) Len() int {
	if w.Wraps() {
		return (HoursPerDay - w.Start) + w.End + 1
	}
	return w.End - w.Start + 1
}

// Hours materialises the window in order, e.g. {22, 5} -> [22 23 0 1 2 3 4 5].
func (w Window) Hours() []int {
	n := w.Len()
	hours := make([]int, 0, n)
	for i := 0; i < n; i++ {
		hours = append(hours, wrapHour(w.Start+i))
	}
	return hours
}

// Admits reports whether a block lies entirely inside the window.
func (w Window) Admits(b Block) bool {
	hours := w.Hours()
	for i, h := range hours {
		if h != b.Start {
			continue
		}
		// The block must fit in the remaining ordered tail of the window.
		return i+b.Length <= len(hours)
	}
	return false
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:59", w.Start, w.End)
}

// Block is a run of Length consecutive hours starting at Start, wrapping mod 24
type Block struct {
	Start  int
	Length int
}

// Hours returns the hours covered by the block.
func (b Block) Hours() []int {
	hours := make([]int, b.Length)
	for i := range hours {
		hours[i] = wrapHour(b.Start + i)
	}
	return hours
}

// Covers reports whether hour h falls inside the block.
func (b Block) Covers(h int) bool {
	offset := wrapHour(h - b.Start)
	return offset < b.Length
}

// Cost returns the price-weighted cost of drawing powerKW over the block.
func (b Block) Cost(prices PriceCurve, powerKW float64) float64 {
	total := 0.0
	for _, h := range b.Hours() {
		total += prices.At(h) * powerKW
	}
	return total
}

// ApplianceRequest describes one appliance that needs to run once today
type ApplianceRequest struct {
	Name     string  `json:"name" yaml:"name"`
	PowerKW  float64 `json:"power_kw" yaml:"power_kw"`
	Runtime  int     `json:"runtime_hours" yaml:"runtime_hours"`
	Window   Window  `json:"window" yaml:"window"`
	// Fixed requests must start exactly at Window.Start.
	Fixed bool `json:"fixed" yaml:"fixed"`
	// Priority orders greedy placement, higher first.
	Priority int `json:"priority" yaml:"priority"`
}

// Validate checks the request in isolation. Name uniqueness is checked by the caller
// that owns the request list.
func (r ApplianceRequest) Validate() error {
	switch {
	case r.Name == "":
		return invalid("name", "must not be empty")
	case r.PowerKW <= 0:
		return invalid("power_kw", fmt.Sprintf("%s: must be positive, got %.4f", r.Name, r.PowerKW))
	case r.Runtime < 1 || r.Runtime > HoursPerDay:
		return invalid("runtime_hours", fmt.Sprintf("%s: must be between 1 and %d, got %d", r.Name, HoursPerDay, r.Runtime))
	case !validHour(r.Window.Start) || !validHour(r.Window.End):
		return invalid("window", fmt.Sprintf("%s: hours must be between 0 and 23, got %d-%d", r.Name, r.Window.Start, r.Window.End))
	case r.Priority < 0:
		return invalid("priority", fmt.Sprintf("%s: must not be negative, got %d", r.Name, r.Priority))
	case r.Runtime > r.Window.Len():
		return invalid("runtime_hours", fmt.Sprintf("%s: runtime %dh exceeds window %s (%dh)", r.Name, r.Runtime, r.Window, r.Window.Len()))
	}
	return nil
}

// CandidateStarts lists every legal start hour in window order. A fixed request has
// exactly one candidate, its window start.
func (r ApplianceRequest) CandidateStarts() []int {
	if r.Fixed {
		return []int{r.Window.Start}
	}
	hours := r.Window.Hours()
	starts := make([]int, 0, len(hours)-r.Runtime+1)
	for i := 0; i+r.Runtime <= len(hours); i++ {
		starts = append(starts, hours[i])
	}
	return starts
}

// BlockAt returns the run block for a given start hour.
func (r ApplianceRequest) BlockAt(start int) Block {
	return Block{Start: start, Length: r.Runtime}
}

// Input is the immutable snapshot a single scheduling run consumes
type Input struct {
	Prices   PriceCurve
	Budget   PowerBudget
	Requests []ApplianceRequest
}

// Validate checks the budget, every request and name uniqueness.
func (in Input) Validate() error {
	if in.Budget <= 0 {
		return invalid("budget_kw", "must be positive")
	}
	seen := make(map[string]bool, len(in.Requests))
	for _, r := range in.Requests {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return invalid("name", fmt.Sprintf("duplicate appliance %q", r.Name))
		}
		seen[r.Name] = true
	}
	return nil
}

func (in Input) snapshot() Input {
	reqs := make([]ApplianceRequest, len(in.Requests))
	copy(reqs, in.Requests)
	in.Requests = reqs
	return in
}

func wrapHour(h int) int {
	h %= HoursPerDay
	if h < 0 {
		h += HoursPerDay
	}
	return h
}

func validHour(h int) bool {
	return h >= 0 && h < HoursPerDay
}

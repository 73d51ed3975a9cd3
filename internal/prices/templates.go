package prices

import (
	"fmt"
	"sort"

	"github.com/awaistahir/smart-run-planner/internal/engine"
)

// Named tariff shapes offered to users without a live feed.
const (
	TemplatePeakValley    = "peak-valley"
	TemplateUniform       = "uniform"
	TemplateNightDiscount = "night-discount"
)

var templates = map[string][engine.HoursPerDay]float64{
	TemplatePeakValley: {
		0.5, 0.5, 0.5, 0.5, 0.5, 0.5,
		0.8, 0.8, 1.2, 1.2, 1.2, 1.2,
		1.0, 1.0, 1.0, 1.0, 1.0, 1.0,
		1.5, 1.5, 1.5, 1.0, 0.8, 0.5,
	},
	TemplateUniform: {
		0.8, 0.8, 0.8, 0.8, 0.8, 0.8,
		0.8, 0.8, 0.8, 0.8, 0.8, 0.8,
		0.8, 0.8, 0.8, 0.8, 0.8, 0.8,
		0.8, 0.8, 0.8, 0.8, 0.8, 0.8,
	},
	TemplateNightDiscount: {
		0.4, 0.4, 0.4, 0.4, 0.4, 0.4,
		0.8, 0.8, 0.8, 0.8, 0.8, 0.8,
		0.8, 0.8, 0.8, 0.8, 0.8, 0.8,
		0.8, 0.8, 0.8, 0.8, 0.4, 0.4,
	},
}

// Template returns the price curve of a named template.
func Template(name string) (engine.PriceCurve, error) {
	p, ok := templates[name]
	if !ok {
		return engine.PriceCurve{}, &engine.ValidationError{
			Field:  "template",
			Reason: fmt.Sprintf("unknown template %q, available: %v", name, Templates()),
		}
	}
	return engine.NewPriceCurve(p[:])
}

// Templates lists template names in sorted order.
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

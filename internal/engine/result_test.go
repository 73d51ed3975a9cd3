package engine

import (
	"context"
	"testing"
)

func TestSummary(t *testing.T) {
	res, err := NewGreedy(nil).Schedule(context.Background(), input(peakValley, 5, washer, heater, aircon))
	if err != nil {
		t.Fatal(err)
	}

	s := res.Summary()
	if s.Total != 3 || s.Scheduled != 3 {
		t.Errorf("counts = %d/%d", s.Scheduled, s.Total)
	}
	if !approx(s.TotalCost, 14.9) {
		t.Errorf("TotalCost = %v", s.TotalCost)
	}
	// heater 6-8 (2 kW), aircon 12-16 (1.5 kW), washer 21-22 (1 kW)
	if s.PeakKW != 2 || s.PeakHour != 6 {
		t.Errorf("peak = %v kW at %d, want 2 kW at 6", s.PeakKW, s.PeakHour)
	}
	if !approx(s.AverageKW, (3*2+5*1.5+2*1)/24.0) {
		t.Errorf("AverageKW = %v", s.AverageKW)
	}
	if !approx(s.Utilization, s.AverageKW/5) {
		t.Errorf("Utilization = %v", s.Utilization)
	}
	if s.IdleHours != 24-10 {
		t.Errorf("IdleHours = %d, want 14", s.IdleHours)
	}
}

func TestCompareNotComparableWhenPartial(t *testing.T) {
	kettle := ApplianceRequest{Name: "kettle", PowerKW: 1.5, Runtime: 1, Window: Window{Start: 7, End: 7}, Fixed: true}
	toaster := ApplianceRequest{Name: "toaster", PowerKW: 1.0, Runtime: 1, Window: Window{Start: 7, End: 7}, Fixed: true}
	in := input(flatCurve(0.5), 2, kettle, toaster)

	greedy, _ := NewGreedy(nil).Schedule(context.Background(), in)
	exact, _ := gonumExact(t).Schedule(context.Background(), in)

	cmp := Compare(greedy, exact)
	if cmp.Comparable {
		t.Error("partial runs must not be comparable")
	}
	if !approx(cmp.BaselineCost, 0.75) || cmp.CandidateCost != 0 {
		t.Errorf("Compare() = %+v", cmp)
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Appliance: "dryer", Reason: reasonNoSlot}
	if d.ModelLevel() || d.String() != "dryer: "+reasonNoSlot {
		t.Errorf("appliance diagnostic = %q", d)
	}
	m := Diagnostic{Reason: reasonModelInfeasible}
	if !m.ModelLevel() || m.String() != reasonModelInfeasible {
		t.Errorf("model diagnostic = %q", m)
	}
}

package engine

// capacityEpsilon absorbs float rounding when summing kW against the budget.
const capacityEpsilon = 1e-9

// Ledger is the accumulated power draw per hour for one run. Reserve returns the
// next ledger and leaves the receiver untouched.
type Ledger [HoursPerDay]float64

// Fits reports whether drawing powerKW over the block keeps every hour within budget.
func (l Ledger) Fits(b Block, powerKW float64, budget PowerBudget) bool {
	for _, h := range b.Hours() {
		if l[h]+powerKW > float64(budget)+capacityEpsilon {
			return false
		}
	}
	return true
}

// Reserve returns the ledger with powerKW added to every hour of the block.
func (l Ledger) Reserve(b Block, powerKW float64) Ledger {
	for _, h := range b.Hours() {
		l[h] += powerKW
	}
	return l
}

// Within reports whether no hour exceeds the budget.
func (l Ledger) Within(budget PowerBudget) bool {
	for _, kw := range l {
		if kw > float64(budget)+capacityEpsilon {
			return false
		}
	}
	return true
}

// Slice returns the ledger as a 24-length slice.
func (l Ledger) Slice() []float64 {
	out := make([]float64, HoursPerDay)
	copy(out, l[:])
	return out
}

package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// BackendGonum is the registry name of the branch-and-bound backend.
const BackendGonum = "gonum"

const (
	defaultMaxNodes  = 20000
	defaultTolerance = 1e-6
	simplexTolerance = 1e-7
)

func init() {
	Register(BackendGonum, func(opts Options) (Solver, error) {
		return NewBranchAndBound(opts), nil
	})
}

// errNoRelaxation marks a node whose LP relaxation could not be solved for
// numerical or structural reasons. Such nodes are branched without a bound.
var errNoRelaxation = errors.New("milp: relaxation unavailable")

// errPenalised marks a relaxation whose optimum kept an artificial variable
// positive. Its objective is still a valid lower bound but its point is not.
var errPenalised = errors.New("milp: relaxation kept artificial variables")

// penaltyScale sizes the cost of artificial variables relative to the objective.
const penaltyScale = 1e3

// simplex points to the LP routine. It can be overridden in tests to simulate
// solver failures.
var simplex = lp.Simplex

// BranchAndBound solves 0-1 programs by depth-first branch-and-bound, bounding each
// node with the LP relaxation solved by gonum's simplex.
type BranchAndBound struct {
	maxNodes int
	tol      float64
	timeout  time.Duration
}

// NewBranchAndBound returns a backend with defaults filled in.
func NewBranchAndBound(opts Options) *BranchAndBound {
	s := &BranchAndBound{maxNodes: opts.MaxNodes, tol: opts.Tolerance, timeout: opts.Timeout}
	if s.maxNodes <= 0 {
		s.maxNodes = defaultMaxNodes
	}
	if s.tol <= 0 {
		s.tol = defaultTolerance
	}
	return s
}

// node holds the current variable bounds of one subproblem.
type node struct {
	lo, hi []float64
}

func (n node) fix(v int, value float64) node {
	lo := append([]float64(nil), n.lo...)
	hi := append([]float64(nil), n.hi...)
	lo[v], hi[v] = value, value
	return node{lo: lo, hi: hi}
}

func (n node) firstFree() int {
	for i := range n.lo {
		if n.lo[i] < n.hi[i] {
			return i
		}
	}
	return -1
}

// Solve implements Solver.
func (s *BranchAndBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rows := compile(p)
	root := node{lo: make([]float64, len(p.Vars)), hi: make([]float64, len(p.Vars))}
	for i, v := range p.Vars {
		root.lo[i], root.hi[i] = v.Lower, v.Upper
	}

	best := math.Inf(1)
	var incumbent []float64
	accept := func(x []float64) {
		if !p.Feasible(x, s.tol) {
			return
		}
		if val := p.Value(x); val < best-s.tol {
			best = val
			incumbent = x
		}
	}
	if p.WarmStart != nil && len(p.WarmStart) == len(p.Vars) {
		accept(append(make([]float64, 0, len(p.WarmStart)), p.WarmStart...))
	}

	stack := []node{root}
	nodes := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Solution{Status: StatusCancelled, Nodes: nodes}, err
		}
		if nodes >= s.maxNodes {
			return Solution{Status: StatusNodeLimit, Nodes: nodes}, nil
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		if !s.propagate(rows, nd) {
			continue
		}
		branch := nd.firstFree()
		if branch < 0 {
			pt := make([]float64, len(nd.lo))
			copy(pt, nd.lo)
			accept(pt)
			continue
		}

		bound, x, err := s.relax(p, rows, nd)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			continue
		case err != nil && !errors.Is(err, errPenalised):
			// No bound available: branch on the first free variable.
		case bound >= best-s.tol:
			continue
		case err != nil:
			// Bounded but without a usable point: branch on the first free variable.
		default:
			if frac := s.mostFractional(x, nd); frac >= 0 {
				branch = frac
				break
			}
			// Integral relaxation: it is the best point under this node if it checks out.
			pt := round(x)
			if p.Feasible(pt, s.tol) {
				accept(pt)
				continue
			}
		}

		// The 1-branch is pushed last so it is explored first.
		stack = append(stack, nd.fix(branch, 0), nd.fix(branch, 1))
	}

	if incumbent == nil {
		return Solution{Status: StatusInfeasible, Nodes: nodes}, nil
	}
	return Solution{Status: StatusOptimal, Objective: best, Values: incumbent, Nodes: nodes}, nil
}

// row is a constraint with the coefficients of repeated variables merged.
type row struct {
	vars  []int
	coefs []float64
	sense Sense
	rhs   float64
}

func compile(p *Problem) []row {
	rows := make([]row, 0, len(p.Constraints))
	for _, c := range p.Constraints {
		r := row{sense: c.Sense, rhs: c.RHS}
		at := make(map[int]int, len(c.Terms))
		for _, t := range c.Terms {
			if k, ok := at[t.Var]; ok {
				r.coefs[k] += t.Coef
				continue
			}
			at[t.Var] = len(r.vars)
			r.vars = append(r.vars, t.Var)
			r.coefs = append(r.coefs, t.Coef)
		}
		rows = append(rows, r)
	}
	return rows
}

// propagate tightens the bounds of nd in place until no row fixes another
// variable. It returns false when some row can no longer be satisfied.
func (s *BranchAndBound) propagate(rows []row, nd node) bool {
	for changed := true; changed; {
		changed = false
		for _, r := range rows {
			minAct, maxAct := 0.0, 0.0
			for k, v := range r.vars {
				lo, hi := r.coefs[k]*nd.lo[v], r.coefs[k]*nd.hi[v]
				if lo > hi {
					lo, hi = hi, lo
				}
				minAct += lo
				maxAct += hi
			}
			if r.sense != GreaterEq {
				if minAct > r.rhs+s.tol {
					return false
				}
				slack := r.rhs - minAct
				for k, v := range r.vars {
					if a := r.coefs[k]; nd.lo[v] < nd.hi[v] && math.Abs(a) > slack+s.tol {
						// Leaving the minimising bound would overrun the row.
						if a > 0 {
							nd.hi[v] = nd.lo[v]
						} else {
							nd.lo[v] = nd.hi[v]
						}
						changed = true
					}
				}
			}
			if r.sense != LessEq {
				if maxAct < r.rhs-s.tol {
					return false
				}
				surplus := maxAct - r.rhs
				for k, v := range r.vars {
					if a := r.coefs[k]; nd.lo[v] < nd.hi[v] && math.Abs(a) > surplus+s.tol {
						if a > 0 {
							nd.lo[v] = nd.hi[v]
						} else {
							nd.hi[v] = nd.lo[v]
						}
						changed = true
					}
				}
			}
		}
	}
	return true
}

func (s *BranchAndBound) mostFractional(x []float64, nd node) int {
	pick, worst := -1, s.tol
	for i, v := range x {
		if nd.lo[i] == nd.hi[i] {
			continue
		}
		if d := math.Abs(v - math.Round(v)); d > worst {
			pick, worst = i, d
		}
	}
	return pick
}

func round(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Round(v)
	}
	return out
}

// relax solves the LP relaxation of nd over its free variables only. Fixed
// variables are substituted into the right-hand sides, and a free variable gets an
// explicit x <= 1 row only when no nonnegative equality row already implies it.
// The standard form handed to the simplex is
//
//	min c'z  s.t.  Az = b, z >= 0
//
// with z = [x | s | a]: free variables, one slack per inequality and one
// artificial per row left without a starting basic column. Equality rows are
// crashed with their cheapest variable that keeps every other basic value
// nonnegative, so artificials are only needed when no such variable exists.
func (s *BranchAndBound) relax(p *Problem, rows []row, nd node) (bound float64, x []float64, err error) {
	col := make([]int, len(p.Vars))
	var free []int
	offset := 0.0
	for j := range p.Vars {
		col[j] = -1
		if nd.lo[j] < nd.hi[j] {
			col[j] = len(free)
			free = append(free, j)
			continue
		}
		offset += p.Objective[j] * nd.lo[j]
	}
	nf := len(free)

	implied := make([]bool, nf)
	equalities := make([]int, nf)
	var lpRows []row
	for _, r := range rows {
		lr := row{sense: r.sense, rhs: r.rhs}
		nonNegative := true
		for k, v := range r.vars {
			a := r.coefs[k]
			if col[v] < 0 {
				lr.rhs -= a * nd.lo[v]
				continue
			}
			if a == 0 {
				continue
			}
			lr.vars = append(lr.vars, col[v])
			lr.coefs = append(lr.coefs, a)
			nonNegative = nonNegative && a > 0
		}
		if len(lr.vars) == 0 {
			continue
		}
		if lr.sense == Equal {
			for k, j := range lr.vars {
				equalities[j]++
				if nonNegative && lr.rhs <= lr.coefs[k] {
					implied[j] = true
				}
			}
		}
		lpRows = append(lpRows, lr)
	}
	for j := 0; j < nf; j++ {
		if !implied[j] {
			lpRows = append(lpRows, row{vars: []int{j}, coefs: []float64{1}, sense: LessEq, rhs: 1})
		}
	}

	m := len(lpRows)
	sign := make([]float64, m)
	slackCol := make([]int, m)
	basis := make([]int, m)
	rem := make([]float64, m)
	cols := nf
	for i, r := range lpRows {
		sign[i] = 1
		if r.rhs < 0 {
			sign[i] = -1
		}
		rem[i] = sign[i] * r.rhs
		slackCol[i], basis[i] = -1, -1
		if r.sense == Equal {
			continue
		}
		slackCol[i] = cols
		cols++
		if (r.sense == LessEq) == (sign[i] > 0) {
			basis[i] = slackCol[i]
		}
	}

	// Crash the equality rows.
	rowsOf := make([][]int, nf)
	coefIn := make([][]float64, nf)
	for i, r := range lpRows {
		for k, j := range r.vars {
			rowsOf[j] = append(rowsOf[j], i)
			coefIn[j] = append(coefIn[j], sign[i]*r.coefs[k])
		}
	}
	chosen := make([]bool, nf)
	for i, r := range lpRows {
		if r.sense != Equal || basis[i] >= 0 {
			continue
		}
		pick, pickValue := -1, 0.0
		for k, j := range r.vars {
			a := sign[i] * r.coefs[k]
			if a <= 0 || chosen[j] || equalities[j] != 1 {
				continue
			}
			value := rem[i] / a
			fits := true
			for q, other := range rowsOf[j] {
				if other != i && rem[other]-coefIn[j][q]*value < 0 {
					fits = false
					break
				}
			}
			if fits && (pick < 0 || p.Objective[free[j]] < p.Objective[free[pick]]) {
				pick, pickValue = j, value
			}
		}
		if pick < 0 {
			continue
		}
		chosen[pick] = true
		basis[i] = pick
		for q, other := range rowsOf[pick] {
			rem[other] -= coefIn[pick][q] * pickValue
		}
	}

	var artificial []int // rows
	for i := range lpRows {
		if basis[i] < 0 {
			basis[i] = cols
			artificial = append(artificial, i)
			cols++
		}
	}

	A := mat.NewDense(m, cols, nil)
	b := make([]float64, m)
	c := make([]float64, cols)
	for i, r := range lpRows {
		for k, j := range r.vars {
			A.Set(i, j, sign[i]*r.coefs[k])
		}
		if slackCol[i] >= 0 {
			coef := 1.0
			if r.sense == GreaterEq {
				coef = -1
			}
			A.Set(i, slackCol[i], sign[i]*coef)
		}
		b[i] = sign[i] * r.rhs
	}
	for j, v := range free {
		c[j] = p.Objective[v]
	}
	penalty := penaltyScale * (1 + floats.Norm(c[:nf], 1))
	for _, i := range artificial {
		A.Set(i, basis[i], 1)
		c[basis[i]] = penalty
	}

	// gonum panics on shape problems; treat them as an unavailable relaxation.
	defer func() {
		if r := recover(); r != nil {
			bound, x, err = 0, nil, fmt.Errorf("%w: %v", errNoRelaxation, r)
		}
	}()
	opt, z, err := simplex(c, A, b, simplexTolerance, basis)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return 0, nil, lp.ErrInfeasible
		}
		return 0, nil, fmt.Errorf("%w: %v", errNoRelaxation, err)
	}

	residual := 0.0
	for _, i := range artificial {
		residual += z[basis[i]]
	}
	if residual > s.tol {
		return opt + offset, nil, errPenalised
	}

	x = make([]float64, len(p.Vars))
	bound = offset
	for j := range p.Vars {
		if col[j] < 0 {
			x[j] = nd.lo[j]
			continue
		}
		x[j] = math.Min(math.Max(z[col[j]], nd.lo[j]), nd.hi[j])
		bound += c[col[j]] * z[col[j]]
	}
	return bound, x, nil
}

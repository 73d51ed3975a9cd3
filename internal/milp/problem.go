// Package milp describes mixed 0-1 linear programs as plain data and solves them
// through pluggable backends. The exact scheduler builds a Problem and hands it to
// whichever Solver is configured, so its logic can be tested against a stub.
package milp

import (
	"context"
	"errors"
	"fmt"
)

// Sense is the relation between a constraint's left-hand side and its RHS.
type Sense int

const (
	LessEq Sense = iota
	Equal
	GreaterEq
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case Equal:
		return "="
	case GreaterEq:
		return ">="
	default:
		return "?"
	}
}

// Variable is a 0-1 decision variable. Lower == Upper pins it.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
}

// Term is one coefficient of a linear expression.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is sum(Terms) <Sense> RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimisation over binary variables.
type Problem struct {
	Name        string
	Vars        []Variable
	Objective   []float64 // one coefficient per variable
	Constraints []Constraint
	// WarmStart is an optional assignment believed feasible. Solvers that use it
	// check it first and treat it as the incumbent to beat.
	WarmStart []float64
}

// NewProblem returns an empty minimisation problem.
func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddBinary adds a free 0-1 variable with the given objective coefficient and returns its index.
func (p *Problem) AddBinary(name string, cost float64) int {
	p.Vars = append(p.Vars, Variable{Name: name, Lower: 0, Upper: 1})
	p.Objective = append(p.Objective, cost)
	return len(p.Vars) - 1
}

// Pin forces variable v to value (0 or 1).
func (p *Problem) Pin(v int, value float64) {
	p.Vars[v].Lower = value
	p.Vars[v].Upper = value
}

// AddConstraint appends a linear constraint.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

var (
	ErrUnknownBackend = errors.New("milp: unknown solver backend")
	ErrMalformed      = errors.New("milp: malformed problem")
)

// Validate checks indices and bounds.
func (p *Problem) Validate() error {
	if len(p.Objective) != len(p.Vars) {
		return fmt.Errorf("%w: %d objective coefficients for %d variables", ErrMalformed, len(p.Objective), len(p.Vars))
	}
	for i, v := range p.Vars {
		if !isBinaryValue(v.Lower) || !isBinaryValue(v.Upper) || v.Lower > v.Upper {
			return fmt.Errorf("%w: variable %d (%s) has bounds [%g, %g]", ErrMalformed, i, v.Name, v.Lower, v.Upper)
		}
	}
	for _, c := range p.Constraints {
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= len(p.Vars) {
				return fmt.Errorf("%w: constraint %s references variable %d", ErrMalformed, c.Name, t.Var)
			}
		}
	}
	return nil
}

// Feasible reports whether the point x satisfies every bound and constraint within tol.
func (p *Problem) Feasible(x []float64, tol float64) bool {
	if len(x) != len(p.Vars) {
		return false
	}
	for i, v := range p.Vars {
		if x[i] < v.Lower-tol || x[i] > v.Upper+tol {
			return false
		}
	}
	for _, c := range p.Constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		switch c.Sense {
		case LessEq:
			if lhs > c.RHS+tol {
				return false
			}
		case GreaterEq:
			if lhs < c.RHS-tol {
				return false
			}
		case Equal:
			if lhs > c.RHS+tol || lhs < c.RHS-tol {
				return false
			}
		}
	}
	return true
}

// Value returns the objective at x.
func (p *Problem) Value(x []float64) float64 {
	total := 0.0
	for i, c := range p.Objective {
		total += c * x[i]
	}
	return total
}

func isBinaryValue(f float64) bool {
	return f == 0 || f == 1
}

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusNodeLimit
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusNodeLimit:
		return "node limit reached"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Solution carries the variable assignment. Values is only meaningful when
// Status is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Solver solves a Problem. Implementations must honour ctx cancellation by returning
// StatusCancelled rather than a partial assignment.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Problem) (Solution, error)

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context, p *Problem) (Solution, error) {
	return f(ctx, p)
}

package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoFeasibleSlots   = errors.New("no feasible time slots found matching constraints")
	ErrInvalidInput      = errors.New("invalid input parameters")
	ErrSolverUnavailable = errors.New("exact solver backend unavailable")
)

// ValidationError reports a malformed price curve, power budget or appliance request.
// It is always caller-fixable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DependencyError reports that a capability needed for exact scheduling is not configured.
type DependencyError struct {
	Capability string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %s", e.Capability)
}

func (e *DependencyError) Unwrap() error {
	return ErrSolverUnavailable
}

// InfeasibleError summarises the diagnostics of a run that did not place every appliance.
// Runs never return it; callers opt in through Result.Err.
type InfeasibleError struct {
	Diagnostics []Diagnostic
}

func (e *InfeasibleError) Error() string {
	parts := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		parts = append(parts, d.String())
	}
	return "infeasible schedule: " + strings.Join(parts, "; ")
}

func (e *InfeasibleError) Unwrap() error {
	return ErrNoFeasibleSlots
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDependency reports whether err is (or wraps) a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}

// Package numerr defines the failure kinds shared by the moment-based
// density packages. Callers match them with errors.Is.
package numerr

import (
	"errors"
	"fmt"
)

var (
	// ErrShape reports operand-length or moment-length mismatches.
	ErrShape = errors.New("shape mismatch")
	// ErrSequencing reports a basis polynomial requested out of degree order.
	ErrSequencing = errors.New("basis built out of order")
	// ErrDegenerate reports a non-positive squared norm, or density data
	// that cannot be repaired.
	ErrDegenerate = errors.New("numerically degenerate")
	// ErrDivision reports division of a polynomial by zero.
	ErrDivision = errors.New("division by zero")
)

// DegeneracyError describes where a degeneracy was detected.
type DegeneracyError struct {
	Op     string
	Degree int // -1 when no basis degree applies
	Value  float64
}

func (e *DegeneracyError) Error() string {
	if e.Degree >= 0 {
		return fmt.Sprintf("%s: %v at degree %d (value %g)", e.Op, ErrDegenerate, e.Degree, e.Value)
	}
	return fmt.Sprintf("%s: %v (value %g)", e.Op, ErrDegenerate, e.Value)
}

func (e *DegeneracyError) Unwrap() error { return ErrDegenerate }

// Degenerate returns a DegeneracyError with no associated degree.
func Degenerate(op string, value float64) error {
	return &DegeneracyError{Op: op, Degree: -1, Value: value}
}

// Shapef wraps ErrShape with a formatted message.
func Shapef(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrShape)
}

package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrNonFiniteState indicates NaN or Inf in a state, derivative or control.
	ErrNonFiniteState = errors.New("dynamo: non-finite state (NaN or Inf detected)")

	// ErrStepSizeUnderflow indicates the tolerance could not be met at h_min.
	ErrStepSizeUnderflow = errors.New("dynamo: adaptive step size below minimum")

	// ErrInvalidOptions indicates inconsistent integration options.
	ErrInvalidOptions = errors.New("dynamo: invalid integration options")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

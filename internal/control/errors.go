package control

import "errors"

var (
	// ErrDegenerateSystem is wrapped by every DegenerateSystemError.
	ErrDegenerateSystem = errors.New("control: degenerate system")

	// ErrInvalidWeighting indicates Q or R is not symmetric, or Q is not
	// positive semi-definite.
	ErrInvalidWeighting = errors.New("control: invalid weighting matrix")

	// ErrMissingIntegral indicates an altitude loop was commanded without
	// integral memory.
	ErrMissingIntegral = errors.New("control: altitude loop needs integral state")
)

// DegenerateSystemError reports that no stabilizing Riccati solution exists
// for the given (A, B, Q, R): (A, B) is not stabilizable, the Hamiltonian
// has eigenvalues on the imaginary axis, or R is singular.
type DegenerateSystemError struct {
	Reason string
}

func (e *DegenerateSystemError) Error() string {
	return ErrDegenerateSystem.Error() + ": " + e.Reason
}

func (e *DegenerateSystemError) Unwrap() error {
	return ErrDegenerateSystem
}

func degenerate(reason string) error {
	return &DegenerateSystemError{Reason: reason}
}

package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Oscillator is a forced harmonic oscillator ẍ = −ω₀²x + u.
// State is [x, v], control is [u].
type Oscillator struct {
	Omega float64
}

func NewOscillator(omega float64) (*Oscillator, error) {
	if !(omega > 0) {
		return nil, fmt.Errorf("%w: natural frequency must be positive, got %g", dynamo.ErrParameterBounds, omega)
	}
	return &Oscillator{Omega: omega}, nil
}

func (o *Oscillator) StateDim() int   { return 2 }
func (o *Oscillator) ControlDim() int { return 1 }

func (o *Oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	return dynamo.State{x[1], -o.Omega*o.Omega*x[0] + force}
}

func (o *Oscillator) Energy(x dynamo.State) float64 {
	return 0.5 * (x[1]*x[1] + o.Omega*o.Omega*x[0]*x[0])
}

// Linearize is exact: the oscillator is already linear.
func (o *Oscillator) Linearize() Linearization {
	return Linearization{
		A: mat.NewDense(2, 2, []float64{0, 1, -o.Omega * o.Omega, 0}),
		B: mat.NewDense(2, 1, []float64{0, 1}),
	}
}

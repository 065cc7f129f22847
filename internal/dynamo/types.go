package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

func (u Control) Clone() Control {
	c := make(Control, len(u))
	copy(c, u)
	return c
}

func (u Control) IsValid() bool {
	return State(u).IsValid()
}

// System is a continuous-time plant dX/dt = f(X, u, t). Derive must not
// mutate x or u: integrators call it at perturbed stage states.
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Projector maps a freshly accepted state back onto the valid manifold
// (for example unit quaternions).
type Projector interface {
	Project(x State) State
}

type Hamiltonian interface {
	Energy(x State) float64
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

// Options controls one adaptive integration run.
type Options struct {
	TStart  float64 `yaml:"t_start" json:"t_start"`
	TEnd    float64 `yaml:"t_end" json:"t_end"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
	HStart  float64 `yaml:"h_start" json:"h_start"`
	HMin    float64 `yaml:"h_min" json:"h_min"`
	// HMax bounds step growth; zero means unbounded.
	HMax    float64 `yaml:"h_max,omitempty" json:"h_max,omitempty"`
	MaxIter int     `yaml:"maxiter" json:"maxiter"`
}

func DefaultOptions() Options {
	return Options{
		TStart:  0,
		TEnd:    10,
		Epsilon: 1e-6,
		HStart:  1e-3,
		HMin:    1e-8,
		MaxIter: 1_000_000,
	}
}

func (o Options) Validate() error {
	switch {
	case !(o.HMin > 0):
		return fmt.Errorf("%w: h_min must be positive, got %g", ErrInvalidOptions, o.HMin)
	case !(o.TEnd > o.TStart):
		return fmt.Errorf("%w: t_end (%g) must be after t_start (%g)", ErrInvalidOptions, o.TEnd, o.TStart)
	case !(o.Epsilon > 0):
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidOptions, o.Epsilon)
	case o.MaxIter <= 0:
		return fmt.Errorf("%w: maxiter must be positive, got %d", ErrInvalidOptions, o.MaxIter)
	case o.HStart < o.HMin:
		return fmt.Errorf("%w: h_start (%g) below h_min (%g)", ErrInvalidOptions, o.HStart, o.HMin)
	case o.HMax != 0 && o.HMax < o.HMin:
		return fmt.Errorf("%w: h_max (%g) below h_min (%g)", ErrInvalidOptions, o.HMax, o.HMin)
	}
	return nil
}

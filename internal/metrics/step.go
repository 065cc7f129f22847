package metrics

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Signal extracts the scalar a step response is measured on.
type Signal func(x dynamo.State) float64

// Component reads one state component.
func Component(i int) Signal {
	return func(x dynamo.State) float64 { return x[i] }
}

// AttitudeAngle is the rotation angle in radians between the quaternion
// at index and ref.
func AttitudeAngle(index int, ref quat.Number) Signal {
	ref = attitude.Normalize(ref)
	return func(x dynamo.State) float64 {
		return attitude.Angle(attitude.Difference(attitude.FromSlice(x, index), ref))
	}
}

// StepResponse measures rise time, overshoot and settling time of a
// signal moving from its first observed value to Target. The band is
// Factor times the initial distance to the target.
type StepResponse struct {
	name   string
	signal Signal
	Target float64
	Factor float64

	started   bool
	t0        float64
	e0        float64
	band      float64
	rise      float64
	settle    float64
	overshoot float64
	last      float64
}

func NewStepResponse(name string, signal Signal, target, factor float64) *StepResponse {
	s := &StepResponse{name: name, signal: signal, Target: target, Factor: factor}
	s.Reset()
	return s
}

func (s *StepResponse) Name() string { return s.name }

func (s *StepResponse) Observe(x dynamo.State, u dynamo.Control, t float64) {
	e := s.Target - s.signal(x)
	s.last = e
	if !s.started {
		s.started, s.t0, s.e0 = true, t, e
		s.band = s.Factor * math.Abs(e)
	}

	inside := math.Abs(e) <= s.band
	if inside && math.IsNaN(s.rise) {
		s.rise = t - s.t0
	}
	switch {
	case !inside:
		s.settle = math.NaN()
	case math.IsNaN(s.settle):
		s.settle = t - s.t0
	}

	// past the target the error changes sign relative to the start
	if s.e0 != 0 {
		if over := -e / s.e0; over > s.overshoot {
			s.overshoot = over
		}
	}
}

// RiseTime is NaN until the signal first enters the band.
func (s *StepResponse) RiseTime() float64 { return s.rise }

// SettlingTime is NaN while the signal is outside the band.
func (s *StepResponse) SettlingTime() float64 { return s.settle }

// Overshoot is the largest excursion past the target relative to the step.
func (s *StepResponse) Overshoot() float64 { return s.overshoot }

// Value folds the response into one cost for tuning: rise time plus
// overshoot plus a heavy weight on the time spent settling. Responses
// that never rise or never settle get a cost that dominates any settled
// one.
func (s *StepResponse) Value() float64 {
	switch {
	case !s.started:
		return 0
	case math.IsNaN(s.rise):
		return 1e20 * math.Abs(s.last)
	case math.IsNaN(s.settle):
		return 1e10 * (1 + s.overshoot)
	}
	return s.rise + s.overshoot + 100*(s.settle-s.rise)
}

func (s *StepResponse) Reset() {
	s.started = false
	s.t0, s.e0, s.band, s.overshoot, s.last = 0, 0, 0, 0, 0
	s.rise, s.settle = math.NaN(), math.NaN()
}

package control

import (
	"fmt"
	"math"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// PIGains tunes the scalar altitude loop: proportional, integral,
// feed-forward and derivative (velocity error) terms.
type PIGains struct {
	Kp  float64 `yaml:"kp" json:"kp"`
	Ki  float64 `yaml:"ki" json:"ki"`
	Kff float64 `yaml:"kff" json:"kff"`
	Kd  float64 `yaml:"kd" json:"kd"`
}

// IntegralState is the altitude loop's memory. It belongs to exactly one
// run and must be reset between independent runs.
type IntegralState struct {
	Value float64
}

func (s *IntegralState) Reset() { s.Value = 0 }

// Accumulate adds e·dt and clamps the result to [−limit, +limit]. Clamping
// happens on every accumulation so the memory never leaves the band. A
// non-finite increment leaves the memory untouched and is reported.
func (s *IntegralState) Accumulate(e, dt, limit float64) error {
	inc := e * dt
	if math.IsNaN(inc) || math.IsInf(inc, 0) {
		return fmt.Errorf("%w: integral increment %g·%g", dynamo.ErrNonFiniteState, e, dt)
	}
	s.Value = clamp(s.Value+inc, -limit, limit)
	return nil
}

// AltitudeLoop adds a clamped PI term on one control channel. The error is
// reference minus measured so a positive Kp pushes towards the target.
type AltitudeLoop struct {
	Gains       PIGains
	MaxIntegral float64
	// Index is the altitude component of the state; RateIndex its rate,
	// or -1 to skip the derivative term.
	Index     int
	RateIndex int
	Channel   int
}

func (a AltitudeLoop) validate(controlDim int) error {
	switch {
	case a.Index < 0:
		return fmt.Errorf("%w: negative altitude index %d", dynamo.ErrDimensionMismatch, a.Index)
	case a.Channel < 0 || a.Channel >= controlDim:
		return fmt.Errorf("%w: altitude channel %d outside control of %d", dynamo.ErrDimensionMismatch, a.Channel, controlDim)
	case !(a.MaxIntegral >= 0):
		return fmt.Errorf("%w: max integral must be non-negative, got %g", dynamo.ErrParameterBounds, a.MaxIntegral)
	}
	return nil
}

// command accumulates the integral for dt and returns the loop output.
// dt = 0 evaluates the loop without touching the memory's value.
func (a AltitudeLoop) command(x, ref dynamo.State, dt float64, integ *IntegralState) (float64, error) {
	e := ref[a.Index] - x[a.Index]
	if dt > 0 {
		if err := integ.Accumulate(e, dt, a.MaxIntegral); err != nil {
			return 0, err
		}
	}

	u := a.Gains.Kp*e + a.Gains.Ki*integ.Value + a.Gains.Kff
	if a.RateIndex >= 0 {
		u += a.Gains.Kd * (ref[a.RateIndex] - x[a.RateIndex])
	}
	return u, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

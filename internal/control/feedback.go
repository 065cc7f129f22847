package control

import (
	"fmt"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Limit is a closed actuator band for one control channel.
type Limit struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Controller combines an LQR gain with an optional altitude loop. It is
// immutable after construction; the only per-run memory is the
// IntegralState handed to Command.
type Controller struct {
	gain       *Gain
	errMap     ErrorMap
	controlDim int
	channels   []int
	altitude   *AltitudeLoop
	limits     []Limit
	ff         dynamo.Control
}

type Option func(*Controller)

// WithChannels routes LQR output i to control channel channels[i]. The
// default is the identity routing.
func WithChannels(channels ...int) Option {
	return func(c *Controller) { c.channels = append([]int(nil), channels...) }
}

func WithAltitude(loop AltitudeLoop) Option {
	return func(c *Controller) { c.altitude = &loop }
}

// WithFeedforward adds a constant input, typically the equilibrium input
// of the setpoint, before limits are applied.
func WithFeedforward(u dynamo.Control) Option {
	return func(c *Controller) { c.ff = u.Clone() }
}

// WithLimits clamps each control channel to its band after all
// contributions are summed.
func WithLimits(limits ...Limit) Option {
	return func(c *Controller) {
		c.limits = make([]Limit, len(limits))
		copy(c.limits, limits)
	}
}

func NewController(gain *Gain, errMap ErrorMap, controlDim int, opts ...Option) (*Controller, error) {
	if gain == nil {
		return nil, fmt.Errorf("%w: nil gain", dynamo.ErrDimensionMismatch)
	}
	rows, cols := gain.Dims()
	if err := checkErrorMap(errMap, cols); err != nil {
		return nil, err
	}

	c := &Controller{gain: gain, errMap: errMap, controlDim: controlDim}
	for _, opt := range opts {
		opt(c)
	}

	if c.channels == nil {
		c.channels = make([]int, rows)
		for i := range c.channels {
			c.channels[i] = i
		}
	}
	if len(c.channels) != rows {
		return nil, fmt.Errorf("%w: %d channels for %d gain rows", dynamo.ErrDimensionMismatch, len(c.channels), rows)
	}
	for _, ch := range c.channels {
		if ch < 0 || ch >= controlDim {
			return nil, fmt.Errorf("%w: channel %d outside control of %d", dynamo.ErrDimensionMismatch, ch, controlDim)
		}
	}

	if c.limits != nil {
		if len(c.limits) != controlDim {
			return nil, fmt.Errorf("%w: %d limits for %d controls", dynamo.ErrDimensionMismatch, len(c.limits), controlDim)
		}
		for i, l := range c.limits {
			if !(l.Min <= l.Max) {
				return nil, fmt.Errorf("%w: limit %d has min %g above max %g", dynamo.ErrParameterBounds, i, l.Min, l.Max)
			}
		}
	}

	if c.ff != nil && len(c.ff) != controlDim {
		return nil, fmt.Errorf("%w: feedforward has %d entries for %d controls", dynamo.ErrDimensionMismatch, len(c.ff), controlDim)
	}

	if c.altitude != nil {
		if err := c.altitude.validate(controlDim); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Controller) Gain() *Gain { return c.gain }

func (c *Controller) ControlDim() int { return c.controlDim }

// Command returns the actuator vector for state x tracking ref. With an
// altitude loop, e·dt is accumulated into integ first; dt = 0 evaluates
// the law at the current memory without changing it.
func (c *Controller) Command(x, ref dynamo.State, dt float64, integ *IntegralState) (dynamo.Control, error) {
	if err := c.checkStates(x, ref); err != nil {
		return nil, err
	}
	if dt < 0 {
		return nil, fmt.Errorf("%w: negative dt %g", dynamo.ErrParameterBounds, dt)
	}

	lqr, err := c.gain.Feedback(c.errMap.Diff(x, ref))
	if err != nil {
		return nil, err
	}

	u := make(dynamo.Control, c.controlDim)
	copy(u, c.ff)
	for i, ch := range c.channels {
		u[ch] += lqr[i]
	}

	if c.altitude != nil {
		if integ == nil {
			return nil, ErrMissingIntegral
		}
		alt, err := c.altitude.command(x, ref, dt, integ)
		if err != nil {
			return nil, err
		}
		u[c.altitude.Channel] += alt
	}

	for i, l := range c.limits {
		u[i] = clamp(u[i], l.Min, l.Max)
	}

	if !u.IsValid() {
		return nil, fmt.Errorf("%w: control %v", dynamo.ErrNonFiniteState, u)
	}
	return u, nil
}

func (c *Controller) checkStates(x, ref dynamo.State) error {
	need := maxIndex(c.errMap) + 1
	if c.altitude != nil {
		need = max(need, c.altitude.Index+1, c.altitude.RateIndex+1)
	}
	if len(x) < need || len(ref) < need {
		return fmt.Errorf("%w: state has %d and reference %d components, need %d", dynamo.ErrDimensionMismatch, len(x), len(ref), need)
	}
	return nil
}

package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// ControlEffort is the quadratic effort ∫ uᵀu dt, integrated with the
// trapezoidal rule over the recorded samples so it does not depend on
// where the adaptive integrator placed its steps.
type ControlEffort struct {
	name  string
	sum   float64
	prevT float64
	prevE float64
	seen  bool
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	e := floats.Dot(u, u)
	if c.seen {
		c.sum += 0.5 * (e + c.prevE) * (t - c.prevT)
	}
	c.prevT, c.prevE, c.seen = t, e, true
}

func (c *ControlEffort) Value() float64 {
	return c.sum
}

func (c *ControlEffort) Reset() {
	*c = ControlEffort{name: c.name}
}

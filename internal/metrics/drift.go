package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// NormDrift is the worst deviation of the quaternion at Index from unit
// length over the run.
type NormDrift struct {
	Index int
	worst float64
}

func NewNormDrift(index int) *NormDrift { return &NormDrift{Index: index} }

func (n *NormDrift) Name() string { return "quat_norm_drift" }

func (n *NormDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if n.Index+4 > len(x) {
		return
	}
	d := math.Abs(floats.Norm(x[n.Index:n.Index+4], 2) - 1)
	n.worst = math.Max(n.worst, d)
}

func (n *NormDrift) Value() float64 { return n.worst }

func (n *NormDrift) Reset() { n.worst = 0 }

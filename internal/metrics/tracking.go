package metrics

import (
	"math"

	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/reference"
)

// TrackingError is the time-weighted RMS distance between selected state
// components and the reference.
type TrackingError struct {
	name    string
	ref     reference.Reference
	indices []int

	sum, span    float64
	prevT, prevE float64
	seen         bool
}

// NewTrackingError compares components indices of the state against ref.
func NewTrackingError(name string, ref reference.Reference, indices ...int) *TrackingError {
	return &TrackingError{name: name, ref: ref, indices: append([]int(nil), indices...)}
}

func (m *TrackingError) Name() string { return m.name }

func (m *TrackingError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	r := m.ref.At(t)
	e := 0.0
	for _, i := range m.indices {
		if i < len(x) && i < len(r) {
			d := x[i] - r[i]
			e += d * d
		}
	}
	if m.seen {
		dt := t - m.prevT
		m.sum += 0.5 * (e + m.prevE) * dt
		m.span += dt
	}
	m.prevT, m.prevE, m.seen = t, e, true
}

func (m *TrackingError) Value() float64 {
	if m.span == 0 {
		return math.Sqrt(m.prevE)
	}
	return math.Sqrt(m.sum / m.span)
}

func (m *TrackingError) Reset() {
	m.sum, m.span, m.prevT, m.prevE, m.seen = 0, 0, 0, 0, false
}

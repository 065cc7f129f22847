package analysis

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/control"
)

// Mode describes one closed-loop pole.
type Mode struct {
	Pole complex128
	// Damping is −Re/|p|; 1 for real poles.
	Damping float64
	// NaturalFreq is |p| in rad/s.
	NaturalFreq float64
	// TimeConstant is −1/Re in seconds; +Inf for poles on the axis.
	TimeConstant float64
}

// Modes summarizes poles, slowest first. Conjugate pairs are reported
// once, with the positive imaginary part.
func Modes(poles []complex128) []Mode {
	modes := make([]Mode, 0, len(poles))
	for _, p := range poles {
		if imag(p) < 0 {
			continue
		}
		wn := cmplx.Abs(p)
		m := Mode{Pole: p, NaturalFreq: wn, TimeConstant: math.Inf(1), Damping: 1}
		if wn > 0 {
			m.Damping = -real(p) / wn
		}
		if real(p) != 0 {
			m.TimeConstant = -1 / real(p)
		}
		modes = append(modes, m)
	}
	sort.SliceStable(modes, func(i, j int) bool { return real(modes[i].Pole) > real(modes[j].Pole) })
	return modes
}

// SweepPoint is the loop at one input weight scale.
type SweepPoint struct {
	Scale float64
	Poles []complex128
	Err   error
}

// Slowest is the pole closest to the imaginary axis.
func (p SweepPoint) Slowest() complex128 {
	var s complex128
	for i, q := range p.Poles {
		if i == 0 || real(q) > real(s) {
			s = q
		}
	}
	return s
}

// WeightSweep designs an LQR for every R scale and records the resulting
// closed-loop poles. Cheap control (small scale) pushes poles left;
// expensive control pulls them towards the open-loop mirror images.
func WeightSweep(a, b mat.Matrix, q, r mat.Symmetric, scales []float64) []SweepPoint {
	out := make([]SweepPoint, len(scales))
	for i, s := range scales {
		var rs mat.SymDense
		rs.ScaleSym(s, r)
		out[i].Scale = s
		gain, err := control.NewLQR(a, b, q, &rs)
		if err != nil {
			out[i].Err = err
			continue
		}
		out[i].Poles = gain.Poles()
	}
	return out
}

package analysis

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/control"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/sim"
)

func sineSamples(freq, amp, offset, duration, step float64) []sim.Sample {
	var out []sim.Sample
	for k := 0; float64(k)*step <= duration+1e-12; k++ {
		t := float64(k) * step
		out = append(out, sim.Sample{T: t, X: dynamo.State{offset + amp*math.Sin(2*math.Pi*freq*t)}})
	}
	return out
}

func TestSpectrumFindsTone(t *testing.T) {
	sp, err := Spectrum(sineSamples(2, 0.5, 3, 10, 1e-3), 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	peak := sp.Peak()
	if math.Abs(peak.Frequency-2) > 0.15 {
		t.Errorf("peak at %v Hz, want 2", peak.Frequency)
	}
	if math.Abs(peak.Amplitude-0.5) > 0.05 {
		t.Errorf("peak amplitude %v, want 0.5", peak.Amplitude)
	}
	if sp.Bins[0].Amplitude > 0.01 {
		t.Errorf("mean not removed: DC = %v", sp.Bins[0].Amplitude)
	}
}

func TestSpectrumRejects(t *testing.T) {
	if _, err := Spectrum(nil, 0, 10); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("empty: %v", err)
	}
	s := sineSamples(1, 1, 0, 1, 0.1)
	if _, err := Spectrum(s, 3, 10); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("bad index: %v", err)
	}
	if _, err := Spectrum(s, 0, 1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("too short: %v", err)
	}
}

func TestModes(t *testing.T) {
	modes := Modes([]complex128{complex(-3, 0), complex(-1, 2), complex(-1, -2)})
	if len(modes) != 2 {
		t.Fatalf("expected conjugates folded, got %d modes", len(modes))
	}
	slow := modes[0]
	if slow.Pole != complex(-1, 2) {
		t.Errorf("slowest mode = %v", slow.Pole)
	}
	if math.Abs(slow.Damping-1/math.Sqrt(5)) > 1e-12 || math.Abs(slow.NaturalFreq-math.Sqrt(5)) > 1e-12 {
		t.Errorf("damping %v, wn %v", slow.Damping, slow.NaturalFreq)
	}
	if slow.TimeConstant != 1 || modes[1].Damping != 1 {
		t.Errorf("unexpected %+v", modes)
	}
}

func TestWeightSweep(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0, 1, -1, 0})
	b := mat.NewDense(2, 1, []float64{0, 1})
	q := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	r := mat.NewSymDense(1, []float64{1})

	pts := WeightSweep(a, b, q, r, []float64{0.1, 1, 10, -1})
	for _, p := range pts[:3] {
		if p.Err != nil {
			t.Fatalf("scale %v: %v", p.Scale, p.Err)
		}
	}
	if !(real(pts[0].Slowest()) < real(pts[1].Slowest()) && real(pts[1].Slowest()) < real(pts[2].Slowest())) {
		t.Errorf("cheaper control should move the slowest pole left: %v %v %v",
			pts[0].Slowest(), pts[1].Slowest(), pts[2].Slowest())
	}
	if !errors.Is(pts[3].Err, control.ErrDegenerateSystem) && !errors.Is(pts[3].Err, control.ErrInvalidWeighting) {
		t.Errorf("negative R should fail, got %v", pts[3].Err)
	}
}

func TestPhasePortrait(t *testing.T) {
	res := &sim.Result{}
	for i := 0; i < 50; i++ {
		th := float64(i) / 50 * 2 * math.Pi
		res.Samples = append(res.Samples, sim.Sample{T: float64(i), X: dynamo.State{math.Cos(th), math.Sin(th), 0}})
	}

	if NewPhasePortrait(res, 0, 3) != nil {
		t.Error("expected nil for out-of-range index")
	}
	p := NewPhasePortrait(res, 0, 1)
	if p == nil || len(p.Points) != 50 {
		t.Fatal("expected 50 points")
	}

	art := PhasePortraitToASCII(p, 40, 20)
	lines := strings.Split(strings.TrimRight(art, "\n"), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 rows, got %d", len(lines))
	}
	for _, mark := range []string{"o", "x", "•", "┼"} {
		if !strings.Contains(art, mark) {
			t.Errorf("missing %q in\n%s", mark, art)
		}
	}
}

package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/sim"
)

type Bin struct {
	Frequency float64
	Amplitude float64
}

// SpectrumResult is the one-sided amplitude spectrum of a signal.
type SpectrumResult struct {
	Bins []Bin
	Rate float64
}

// Peak is the strongest non-DC bin.
func (s *SpectrumResult) Peak() Bin {
	var best Bin
	for _, b := range s.Bins[1:] {
		if b.Amplitude > best.Amplitude {
			best = b
		}
	}
	return best
}

// Spectrum resamples component idx of the trajectory at rate Hz, removes
// the mean, applies a Hann window and returns the amplitude spectrum.
// Amplitudes are scaled so a pure sine of amplitude a peaks near a.
func Spectrum(samples []sim.Sample, idx int, rate float64) (*SpectrumResult, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: need at least two samples", dynamo.ErrDimensionMismatch)
	}
	if idx < 0 || idx >= len(samples[0].X) {
		return nil, fmt.Errorf("%w: component %d of %d", dynamo.ErrDimensionMismatch, idx, len(samples[0].X))
	}

	grid, err := sim.Resample(samples, samples[0].T, 1/rate, samples[len(samples)-1].T)
	if err != nil {
		return nil, err
	}
	if len(grid) < 4 {
		return nil, fmt.Errorf("%w: run too short for %g Hz", dynamo.ErrParameterBounds, rate)
	}

	sig := make([]float64, len(grid))
	mean := 0.0
	for i, s := range grid {
		sig[i] = s.X[idx]
		mean += sig[i]
	}
	mean /= float64(len(sig))
	for i := range sig {
		sig[i] -= mean
	}

	window.Apply(sig, window.Hann)
	coeffs := fft.FFTReal(sig)

	n := len(sig)
	// Hann has coherent gain 1/2
	scale := 4 / float64(n)
	bins := make([]Bin, n/2+1)
	for k := range bins {
		bins[k] = Bin{
			Frequency: float64(k) * rate / float64(n),
			Amplitude: cmplx.Abs(coeffs[k]) * scale,
		}
	}
	bins[0].Amplitude /= 2
	return &SpectrumResult{Bins: bins, Rate: rate}, nil
}

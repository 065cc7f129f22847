package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Resample interpolates an adaptive trajectory linearly onto the grid
// t0, t0+dt, ... up to t1 inclusive. Grid points outside the recorded span
// are dropped.
func Resample(samples []Sample, t0, dt, t1 float64) ([]Sample, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: resample step must be positive, got %g", dynamo.ErrParameterBounds, dt)
	}
	if len(samples) == 0 || t1 < t0 {
		return nil, nil
	}

	first, last := samples[0].T, samples[len(samples)-1].T
	n := int(math.Floor((t1-t0)/dt+1e-9)) + 1
	out := make([]Sample, 0, n)

	for k := 0; k < n; k++ {
		t := t0 + float64(k)*dt
		if t < first || t > last {
			continue
		}
		out = append(out, interpolate(samples, t))
	}
	return out, nil
}

// interpolate assumes first <= t <= last. State and control are linear
// between steps; the reference is held from the earlier step.
func interpolate(samples []Sample, t float64) Sample {
	j := sort.Search(len(samples), func(i int) bool { return samples[i].T >= t })
	if samples[j].T == t || j == 0 {
		s := samples[j]
		return Sample{T: t, X: s.X.Clone(), U: s.U.Clone(), Ref: cloneRef(s.Ref)}
	}

	a, b := samples[j-1], samples[j]
	w := (t - a.T) / (b.T - a.T)
	return Sample{
		T:   t,
		X:   lerp(a.X, b.X, w),
		U:   dynamo.Control(lerp(dynamo.State(a.U), dynamo.State(b.U), w)),
		Ref: cloneRef(a.Ref),
	}
}

func cloneRef(r dynamo.State) dynamo.State {
	if r == nil {
		return nil
	}
	return r.Clone()
}

func lerp(a, b dynamo.State, w float64) dynamo.State {
	out := make(dynamo.State, len(a))
	for i := range a {
		out[i] = a[i] + w*(b[i]-a[i])
	}
	return out
}

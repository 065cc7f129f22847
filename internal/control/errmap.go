package control

import (
	"fmt"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
)

// ErrorMap turns a measured state and a reference into the error vector
// the gain was designed for.
type ErrorMap interface {
	Diff(x, ref dynamo.State) dynamo.State
	Dim() int
}

// VectorError subtracts the listed components: e[i] = x[idx[i]] − ref[idx[i]].
type VectorError struct {
	Indices []int
}

// FullState selects every component of an n-dimensional state.
func FullState(n int) VectorError {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return VectorError{Indices: idx}
}

func (v VectorError) Dim() int { return len(v.Indices) }

func (v VectorError) Diff(x, ref dynamo.State) dynamo.State {
	e := make(dynamo.State, len(v.Indices))
	for i, j := range v.Indices {
		e[i] = x[j] - ref[j]
	}
	return e
}

// AttitudeError maps a scalar-first quaternion and a body rate onto
// [vec(q_e), ω − ω_ref] with q_e = q_ref* ⊗ q taken on the w ≥ 0
// hemisphere, so q and −q yield the same error.
type AttitudeError struct {
	Quat int
	Rate int
}

func (a AttitudeError) Dim() int { return 6 }

func (a AttitudeError) Diff(x, ref dynamo.State) dynamo.State {
	q := attitude.FromSlice(x, a.Quat)
	qRef := attitude.Normalize(attitude.FromSlice(ref, a.Quat))
	qe := attitude.Difference(q, qRef)

	e := make(dynamo.State, 6)
	e[0], e[1], e[2] = qe.Imag, qe.Jmag, qe.Kmag
	for i := 0; i < 3; i++ {
		e[3+i] = x[a.Rate+i] - ref[a.Rate+i]
	}
	return e
}

func maxIndex(m ErrorMap) int {
	switch em := m.(type) {
	case VectorError:
		hi := -1
		for _, j := range em.Indices {
			if j > hi {
				hi = j
			}
		}
		return hi
	case AttitudeError:
		return max(em.Quat+3, em.Rate+2)
	}
	return -1
}

func checkErrorMap(m ErrorMap, states int) error {
	if m == nil {
		return fmt.Errorf("%w: nil error map", dynamo.ErrDimensionMismatch)
	}
	if m.Dim() != states {
		return fmt.Errorf("%w: error map yields %d components, gain expects %d", dynamo.ErrDimensionMismatch, m.Dim(), states)
	}
	if v, ok := m.(VectorError); ok {
		for _, j := range v.Indices {
			if j < 0 {
				return fmt.Errorf("%w: negative state index %d", dynamo.ErrDimensionMismatch, j)
			}
		}
	}
	return nil
}

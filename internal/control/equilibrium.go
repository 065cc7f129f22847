package control

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// EquilibriumMap turns an output setpoint r into the steady state and
// input that hold it, by solving
//
//	[A B] [x]   [0]
//	[C D] [u] = [r]
//
// in the least-squares sense once for all r. The result is G with
// [x; u] = G·r.
type EquilibriumMap struct {
	g    *mat.Dense
	n, m int
}

// NewEquilibriumMap builds the map for ẋ = Ax + Bu, y = Cx + Du. A nil d
// means no feed-through.
func NewEquilibriumMap(a, b, c, d mat.Matrix) (*EquilibriumMap, error) {
	n, ac := a.Dims()
	br, m := b.Dims()
	p, cc := c.Dims()
	if n != ac || br != n || cc != n {
		return nil, fmt.Errorf("%w: A is %dx%d, B %dx%d, C %dx%d", dynamo.ErrDimensionMismatch, n, ac, br, m, p, cc)
	}
	if d != nil {
		if dr, dc := d.Dims(); dr != p || dc != m {
			return nil, fmt.Errorf("%w: D is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, dr, dc, p, m)
		}
	}

	w := mat.NewDense(n+p, n+m, nil)
	w.Slice(0, n, 0, n).(*mat.Dense).Copy(a)
	w.Slice(0, n, n, n+m).(*mat.Dense).Copy(b)
	w.Slice(n, n+p, 0, n).(*mat.Dense).Copy(c)
	if d != nil {
		w.Slice(n, n+p, n, n+m).(*mat.Dense).Copy(d)
	}

	rhs := mat.NewDense(n+p, p, nil)
	for i := 0; i < p; i++ {
		rhs.Set(n+i, i, 1)
	}

	var g mat.Dense
	if err := g.Solve(w, rhs); err != nil {
		return nil, degenerate(fmt.Sprintf("equilibrium system [A B; C D] is singular: %v", err))
	}
	return &EquilibriumMap{g: &g, n: n, m: m}, nil
}

// Outputs is the setpoint dimension.
func (e *EquilibriumMap) Outputs() int {
	_, p := e.g.Dims()
	return p
}

// At returns the equilibrium state and input for setpoint r.
func (e *EquilibriumMap) At(r []float64) (dynamo.State, dynamo.Control, error) {
	if len(r) != e.Outputs() {
		return nil, nil, fmt.Errorf("%w: setpoint has %d entries, map expects %d", dynamo.ErrDimensionMismatch, len(r), e.Outputs())
	}
	eq := mat.NewVecDense(e.n+e.m, nil)
	eq.MulVec(e.g, mat.NewVecDense(len(r), append([]float64(nil), r...)))

	x := make(dynamo.State, e.n)
	u := make(dynamo.Control, e.m)
	for i := range x {
		x[i] = eq.AtVec(i)
	}
	for i := range u {
		u[i] = eq.AtVec(e.n + i)
	}
	if !x.IsValid() || !u.IsValid() {
		return nil, nil, fmt.Errorf("%w: equilibrium for setpoint %v", dynamo.ErrNonFiniteState, r)
	}
	return x, u, nil
}

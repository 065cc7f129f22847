package control

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Gain is a frozen state-feedback matrix K (control × state). It holds no
// mutable state and may be shared across concurrent runs.
type Gain struct {
	k     *mat.Dense
	p     *mat.SymDense
	poles []complex128
}

// NewLQR solves the continuous-time Riccati equation for (A, B, Q, R) and
// returns K = R⁻¹BᵀP. The closed loop A − BK is checked to be strictly
// stable before the gain is handed out.
func NewLQR(a, b, q, r mat.Matrix) (*Gain, error) {
	p, err := SolveCARE(a, b, q, r)
	if err != nil {
		return nil, err
	}

	n := p.SymmetricDim()
	_, m := b.Dims()

	rs, err := symmetric(r, "R")
	if err != nil {
		return nil, err
	}
	var rChol mat.Cholesky
	if ok := rChol.Factorize(rs); !ok {
		return nil, degenerate("R is singular or not positive definite")
	}

	var btp mat.Dense
	btp.Mul(b.T(), p)
	k := mat.NewDense(m, n, nil)
	if err := rChol.SolveTo(k, &btp); err != nil {
		return nil, degenerate(fmt.Sprintf("R is ill-conditioned: %v", err))
	}

	poles, err := closedLoopPoles(a, b, k)
	if err != nil {
		return nil, err
	}
	for _, pole := range poles {
		if !(real(pole) < 0) {
			return nil, degenerate(fmt.Sprintf("closed-loop pole %v is not strictly stable", pole))
		}
	}

	return &Gain{k: k, p: p, poles: poles}, nil
}

// NewGain wraps an externally computed K given row by row.
func NewGain(rows [][]float64) (*Gain, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty gain", dynamo.ErrDimensionMismatch)
	}
	cols := len(rows[0])
	k := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: gain row %d has %d columns, want %d", dynamo.ErrDimensionMismatch, i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: gain[%d][%d]", dynamo.ErrNonFiniteState, i, j)
			}
			k.Set(i, j, v)
		}
	}
	return &Gain{k: k}, nil
}

// Dims returns the control and state dimensions of K.
func (g *Gain) Dims() (controls, states int) { return g.k.Dims() }

// K returns a copy of the gain matrix.
func (g *Gain) K() *mat.Dense { return mat.DenseCopyOf(g.k) }

// P returns a copy of the Riccati solution, or nil for a gain built with
// NewGain.
func (g *Gain) P() *mat.SymDense {
	if g.p == nil {
		return nil
	}
	c := mat.NewSymDense(g.p.SymmetricDim(), nil)
	c.CopySym(g.p)
	return c
}

// Poles returns the closed-loop eigenvalues of A − BK, or nil for a gain
// built with NewGain.
func (g *Gain) Poles() []complex128 {
	if g.poles == nil {
		return nil
	}
	return append([]complex128(nil), g.poles...)
}

// Rows returns K as row-major slices, the form run metadata stores.
func (g *Gain) Rows() [][]float64 {
	r, c := g.k.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		mat.Row(rows[i], i, g.k)
	}
	return rows
}

// Feedback returns u = −K·e.
func (g *Gain) Feedback(e []float64) ([]float64, error) {
	r, c := g.k.Dims()
	if len(e) != c {
		return nil, fmt.Errorf("%w: error vector has %d entries, gain expects %d", dynamo.ErrDimensionMismatch, len(e), c)
	}
	u := make([]float64, r)
	out := mat.NewVecDense(r, u)
	out.MulVec(g.k, mat.NewVecDense(c, append([]float64(nil), e...)))
	out.ScaleVec(-1, out)
	return u, nil
}

func closedLoopPoles(a, b mat.Matrix, k *mat.Dense) ([]complex128, error) {
	var bk, ac mat.Dense
	bk.Mul(b, k)
	ac.Sub(a, &bk)

	var eig mat.Eigen
	if ok := eig.Factorize(&ac, mat.EigenNone); !ok {
		return nil, degenerate("closed-loop eigendecomposition did not converge")
	}
	return eig.Values(nil), nil
}

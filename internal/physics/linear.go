package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

const (
	DefaultMass    = 1.2
	DefaultGravity = 9.81
)

// Linearization holds the state and input Jacobians about a trim point.
type Linearization struct {
	A *mat.Dense
	B *mat.Dense
}

type Linearizer interface {
	Linearize() Linearization
}

// NewLinearization builds a Linearization from row-major matrices, as they
// come out of a parameter file.
func NewLinearization(a, b [][]float64) (Linearization, error) {
	am, err := denseFromRows(a)
	if err != nil {
		return Linearization{}, fmt.Errorf("A: %w", err)
	}
	bm, err := denseFromRows(b)
	if err != nil {
		return Linearization{}, fmt.Errorf("B: %w", err)
	}
	ar, ac := am.Dims()
	br, _ := bm.Dims()
	if ar != ac || br != ar {
		return Linearization{}, fmt.Errorf("%w: A is %dx%d, B has %d rows", dynamo.ErrDimensionMismatch, ar, ac, br)
	}
	return Linearization{A: am, B: bm}, nil
}

func (l Linearization) Dims() (n, m int) {
	n, _ = l.A.Dims()
	_, m = l.B.Dims()
	return n, m
}

// OutputMatrices parses C and D of y = Cx + Du. An empty c measures the
// leading p states; an empty d means no feed-through and comes back nil.
func (l Linearization) OutputMatrices(c, d [][]float64, p int) (*mat.Dense, *mat.Dense, error) {
	n, m := l.Dims()
	var cm *mat.Dense
	if len(c) == 0 {
		if p < 1 || p > n {
			return nil, nil, fmt.Errorf("%w: cannot measure %d of %d states", dynamo.ErrDimensionMismatch, p, n)
		}
		cm = mat.NewDense(p, n, nil)
		for i := 0; i < p; i++ {
			cm.Set(i, i, 1)
		}
	} else {
		var err error
		if cm, err = denseFromRows(c); err != nil {
			return nil, nil, fmt.Errorf("C: %w", err)
		}
		if _, cc := cm.Dims(); cc != n {
			return nil, nil, fmt.Errorf("%w: C has %d columns, model %d states", dynamo.ErrDimensionMismatch, cc, n)
		}
	}
	if len(d) == 0 {
		return cm, nil, nil
	}
	dm, err := denseFromRows(d)
	if err != nil {
		return nil, nil, fmt.Errorf("D: %w", err)
	}
	cr, _ := cm.Dims()
	if dr, dc := dm.Dims(); dr != cr || dc != m {
		return nil, nil, fmt.Errorf("%w: D is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, dr, dc, cr, m)
	}
	return cm, dm, nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", dynamo.ErrDimensionMismatch)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", dynamo.ErrDimensionMismatch, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// LTI is the plant ẋ = Ax + Bu built from its own linearization. It is
// used for arbitrary linear models supplied in a parameter file.
type LTI struct {
	lin  Linearization
	n, m int
}

func NewLTI(lin Linearization) *LTI {
	n, m := lin.Dims()
	return &LTI{lin: lin, n: n, m: m}
}

func (s *LTI) StateDim() int   { return s.n }
func (s *LTI) ControlDim() int { return s.m }

func (s *LTI) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, s.n)
	out := mat.NewVecDense(s.n, dx)
	out.MulVec(s.lin.A, mat.NewVecDense(s.n, x.Clone()))
	if len(u) == s.m {
		var bu mat.VecDense
		bu.MulVec(s.lin.B, mat.NewVecDense(s.m, u.Clone()))
		out.AddVec(out, &bu)
	}
	return dx
}

func (s *LTI) Linearize() Linearization { return s.lin }

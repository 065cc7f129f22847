package control

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

const (
	// symmetryTol is the relative asymmetry accepted in Q and R.
	symmetryTol = 1e-9
	// axisTol scales ‖H‖∞ to decide whether a Hamiltonian eigenvalue sits
	// on the imaginary axis.
	axisTol = 1e-11
	// refineSteps bounds the Newton–Kleinman refinement.
	refineSteps = 4
)

// SolveCARE returns the stabilizing solution P of the continuous-time
// algebraic Riccati equation
//
//	AᵀP + PA − PBR⁻¹BᵀP + Q = 0
//
// P is taken from the stable invariant subspace of the Hamiltonian matrix
// and then polished with Newton–Kleinman steps, each kept only if it
// lowers the residual.
func SolveCARE(a, b, q, r mat.Matrix) (*mat.SymDense, error) {
	n, m, err := careDims(a, b, q, r)
	if err != nil {
		return nil, err
	}

	qs, err := symmetric(q, "Q")
	if err != nil {
		return nil, err
	}
	rs, err := symmetric(r, "R")
	if err != nil {
		return nil, err
	}
	if err := checkPSD(qs); err != nil {
		return nil, err
	}

	var rChol mat.Cholesky
	if ok := rChol.Factorize(rs); !ok {
		return nil, degenerate("R is singular or not positive definite")
	}

	// R⁻¹Bᵀ is m×n; G = B R⁻¹ Bᵀ.
	rInvBt := mat.NewDense(m, n, nil)
	if err := rChol.SolveTo(rInvBt, b.T()); err != nil {
		return nil, degenerate(fmt.Sprintf("R is ill-conditioned: %v", err))
	}
	g := mat.NewDense(n, n, nil)
	g.Mul(b, rInvBt)

	h := hamiltonian(a, g, qs, n)
	p, err := stableSubspaceSolution(h, n)
	if err != nil {
		return nil, err
	}

	p = refine(a, g, qs, p, n)
	if !isFinite(p) {
		return nil, degenerate("Riccati solution is not finite")
	}
	return p, nil
}

// hamiltonian builds H = [A, −G; −Q, −Aᵀ].
func hamiltonian(a mat.Matrix, g *mat.Dense, q *mat.SymDense, n int) *mat.Dense {
	h := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h.Set(i, j, a.At(i, j))
			h.Set(i, n+j, -g.At(i, j))
			h.Set(n+i, j, -q.At(i, j))
			h.Set(n+i, n+j, -a.At(j, i))
		}
	}
	return h
}

// stableSubspaceSolution spans the stable invariant subspace of h with a
// real basis [U₁; U₂] and returns P = U₂U₁⁻¹. A complex pair λ, λ̄
// contributes Re(v) and Im(v) of the eigenvector with Im(λ) > 0.
func stableSubspaceSolution(h *mat.Dense, n int) (*mat.SymDense, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(h, mat.EigenRight); !ok {
		return nil, degenerate("Hamiltonian eigendecomposition did not converge")
	}
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	tol := axisTol * math.Max(1, mat.Norm(h, math.Inf(1)))

	u := mat.NewDense(2*n, n, nil)
	col := 0
	for k, lambda := range vals {
		re := real(lambda)
		if math.Abs(re) <= tol {
			return nil, degenerate(fmt.Sprintf("Hamiltonian eigenvalue %v on the imaginary axis: (A, B) not stabilizable or (A, Q) not detectable", lambda))
		}
		if re > 0 || imag(lambda) < 0 {
			continue
		}

		width := 1
		if imag(lambda) > 0 {
			width = 2
		}
		if col+width > n {
			return nil, degenerate("stable subspace dimension exceeds state dimension")
		}
		for i := 0; i < 2*n; i++ {
			v := vecs.At(i, k)
			u.Set(i, col, real(v))
			if width == 2 {
				u.Set(i, col+1, imag(v))
			}
		}
		col += width
	}
	if col != n {
		return nil, degenerate(fmt.Sprintf("stable subspace has dimension %d, want %d", col, n))
	}

	u1 := u.Slice(0, n, 0, n)
	u2 := u.Slice(n, 2*n, 0, n)

	// P U₁ = U₂  ⇔  U₁ᵀ Pᵀ = U₂ᵀ
	var pt mat.Dense
	if err := pt.Solve(u1.T(), u2.T()); err != nil {
		return nil, degenerate(fmt.Sprintf("stable subspace basis is singular (A, B not stabilizable): %v", err))
	}
	return symmetrize(&pt, n), nil
}

// refine runs Newton–Kleinman iterations
//
//	(A − GP)ᵀX + X(A − GP) = −(Q + PGP)
//
// keeping each iterate only while the Riccati residual decreases.
func refine(a mat.Matrix, g *mat.Dense, q *mat.SymDense, p *mat.SymDense, n int) *mat.SymDense {
	best := residual(a, g, q, p)
	for step := 0; step < refineSteps && best > 0; step++ {
		var gp, ac, pgp, rhs mat.Dense
		gp.Mul(g, p)
		ac.Sub(a, &gp)
		pgp.Mul(p, &gp)
		rhs.Add(q, &pgp)
		rhs.Scale(-1, &rhs)

		x, err := lyapunov(&ac, &rhs, n)
		if err != nil {
			break
		}
		next := symmetrize(x, n)
		if !isFinite(next) {
			break
		}
		res := residual(a, g, q, next)
		if !(res < best) {
			break
		}
		p, best = next, res
	}
	return p
}

// lyapunov solves AᵀX + XA = C through its Kronecker form, X indexed
// row-major as x[i*n+j].
func lyapunov(a, c *mat.Dense, n int) (*mat.Dense, error) {
	l := mat.NewDense(n*n, n*n, nil)
	rhs := mat.NewVecDense(n*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row := i*n + j
			for k := 0; k < n; k++ {
				// (AᵀX)ij = Σk A[k][i] X[k][j]
				l.Set(row, k*n+j, l.At(row, k*n+j)+a.At(k, i))
				// (XA)ij = Σk X[i][k] A[k][j]
				l.Set(row, i*n+k, l.At(row, i*n+k)+a.At(k, j))
			}
			rhs.SetVec(row, c.At(i, j))
		}
	}

	var vec mat.VecDense
	if err := vec.SolveVec(l, rhs); err != nil {
		return nil, err
	}
	return mat.NewDense(n, n, vec.RawVector().Data), nil
}

// residual is the Frobenius norm of AᵀP + PA − PGP + Q.
func residual(a mat.Matrix, g *mat.Dense, q, p *mat.SymDense) float64 {
	var atp, pa, gp, pgp, r mat.Dense
	atp.Mul(a.T(), p)
	pa.Mul(p, a)
	gp.Mul(g, p)
	pgp.Mul(p, &gp)
	r.Add(&atp, &pa)
	r.Sub(&r, &pgp)
	r.Add(&r, q)
	return mat.Norm(&r, 2)
}

func careDims(a, b, q, r mat.Matrix) (n, m int, err error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	qr, qc := q.Dims()
	rr, rc := r.Dims()
	switch {
	case ar != ac:
		err = fmt.Errorf("%w: A is %dx%d, want square", dynamo.ErrDimensionMismatch, ar, ac)
	case br != ar:
		err = fmt.Errorf("%w: B has %d rows, A has %d", dynamo.ErrDimensionMismatch, br, ar)
	case qr != ar || qc != ar:
		err = fmt.Errorf("%w: Q is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, qr, qc, ar, ar)
	case rr != bc || rc != bc:
		err = fmt.Errorf("%w: R is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, rr, rc, bc, bc)
	}
	if err == nil && (!finiteMatrix(a) || !finiteMatrix(b)) {
		err = fmt.Errorf("%w: A or B contains NaN or Inf", dynamo.ErrNonFiniteState)
	}
	return ar, bc, err
}

func symmetric(m mat.Matrix, name string) (*mat.SymDense, error) {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			x, y := m.At(i, j), m.At(j, i)
			if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
				return nil, fmt.Errorf("%w: %s[%d][%d] is not finite", ErrInvalidWeighting, name, i, j)
			}
			if math.Abs(x-y) > symmetryTol*math.Max(1, math.Max(math.Abs(x), math.Abs(y))) {
				return nil, fmt.Errorf("%w: %s is not symmetric at (%d, %d)", ErrInvalidWeighting, name, i, j)
			}
			s.SetSym(i, j, (x+y)/2)
		}
	}
	return s, nil
}

func checkPSD(q *mat.SymDense) error {
	var es mat.EigenSym
	if ok := es.Factorize(q, false); !ok {
		return fmt.Errorf("%w: Q eigendecomposition failed", ErrInvalidWeighting)
	}
	vals := es.Values(nil)
	scale := 0.0
	for _, v := range vals {
		scale = math.Max(scale, math.Abs(v))
	}
	for _, v := range vals {
		if v < -symmetryTol*math.Max(1, scale) {
			return fmt.Errorf("%w: Q has negative eigenvalue %g", ErrInvalidWeighting, v)
		}
	}
	return nil
}

func symmetrize(m mat.Matrix, n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return s
}

func isFinite(m mat.Matrix) bool { return finiteMatrix(m) }

func finiteMatrix(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// RHS is the closed-loop right-hand side dx/dt = f(t, x). An error aborts
// the attempt.
type RHS func(t float64, x dynamo.State) (dynamo.State, error)

// Pair is an embedded Runge–Kutta pair. Attempt advances x by h with the
// higher-order formula and returns the Euclidean norm of the difference to
// the embedded lower-order solution.
type Pair interface {
	Name() string
	Order() int
	Attempt(f RHS, t float64, x dynamo.State, h float64) (dynamo.State, float64, error)
}

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// DormandPrince is the 5(4) pair. The seventh stage is evaluated at the
// new point on every attempt; it is not reused as the next first stage
// because the controller's committed memory changes between steps.
type DormandPrince struct{}

func NewDormandPrince() *DormandPrince { return &DormandPrince{} }

func (DormandPrince) Name() string { return "dopri5" }
func (DormandPrince) Order() int   { return 5 }

func (DormandPrince) Attempt(f RHS, t float64, x dynamo.State, h float64) (dynamo.State, float64, error) {
	n := len(x)

	k1, err := eval(f, t, x)
	if err != nil {
		return nil, 0, err
	}

	x2 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + h*b21*k1[i]
	}
	k2, err := eval(f, t+a2*h, x2)
	if err != nil {
		return nil, 0, err
	}

	x3 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + h*(b31*k1[i]+b32*k2[i])
	}
	k3, err := eval(f, t+a3*h, x3)
	if err != nil {
		return nil, 0, err
	}

	x4 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + h*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4, err := eval(f, t+a4*h, x4)
	if err != nil {
		return nil, 0, err
	}

	x5 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + h*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5, err := eval(f, t+a5*h, x5)
	if err != nil {
		return nil, 0, err
	}

	x6 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + h*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6, err := eval(f, t+h, x6)
	if err != nil {
		return nil, 0, err
	}

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + h*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	k7, err := eval(f, t+h, xNew)
	if err != nil {
		return nil, 0, err
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		e := h * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
		sum += e * e
	}
	return xNew, math.Sqrt(sum), nil
}

// eval calls f and rejects non-finite derivatives.
func eval(f RHS, t float64, x dynamo.State) (dynamo.State, error) {
	dx, err := f(t, x)
	if err != nil {
		return nil, err
	}
	if len(dx) != len(x) {
		return nil, fmt.Errorf("%w: derivative has %d components, state %d", dynamo.ErrDimensionMismatch, len(dx), len(x))
	}
	if !dx.IsValid() {
		return nil, fmt.Errorf("%w: derivative at t=%g", dynamo.ErrNonFiniteState, t)
	}
	return dx, nil
}

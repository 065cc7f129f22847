package integrators

import (
	"math"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Bogacki-Shampine coefficients (RK23)
var (
	bsA2 = 1.0 / 2.0
	bsA3 = 3.0 / 4.0

	bsB3 = [3]float64{2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0}
	// third order minus embedded second order, last entry weights k4
	bsE = [4]float64{
		2.0/9.0 - 7.0/24.0,
		1.0/3.0 - 1.0/4.0,
		4.0/9.0 - 1.0/3.0,
		-1.0 / 8.0,
	}
)

// BogackiShampine is the 3(2) pair, cheaper per attempt than Dormand–Prince
// and suited to loose tolerances.
type BogackiShampine struct{}

func NewBogackiShampine() *BogackiShampine { return &BogackiShampine{} }

func (BogackiShampine) Name() string { return "bs23" }
func (BogackiShampine) Order() int   { return 3 }

func (BogackiShampine) Attempt(f RHS, t float64, x dynamo.State, h float64) (dynamo.State, float64, error) {
	n := len(x)

	k1, err := eval(f, t, x)
	if err != nil {
		return nil, 0, err
	}

	x2 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + h*bsA2*k1[i]
	}
	k2, err := eval(f, t+bsA2*h, x2)
	if err != nil {
		return nil, 0, err
	}

	x3 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + h*bsA3*k2[i]
	}
	k3, err := eval(f, t+bsA3*h, x3)
	if err != nil {
		return nil, 0, err
	}

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + h*(bsB3[0]*k1[i]+bsB3[1]*k2[i]+bsB3[2]*k3[i])
	}

	k4, err := eval(f, t+h, xNew)
	if err != nil {
		return nil, 0, err
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		e := h * (bsE[0]*k1[i] + bsE[1]*k2[i] + bsE[2]*k3[i] + bsE[3]*k4[i])
		sum += e * e
	}
	return xNew, math.Sqrt(sum), nil
}

// PairByName resolves a configured method name.
func PairByName(name string) (Pair, bool) {
	switch name {
	case "", "dopri5", "rk45":
		return NewDormandPrince(), true
	case "bs23", "rk23":
		return NewBogackiShampine(), true
	}
	return nil, false
}

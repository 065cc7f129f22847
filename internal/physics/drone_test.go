package physics

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
)

func newTestDrone(t *testing.T) *Drone {
	t.Helper()
	d, err := NewDrone(DefaultDroneParams())
	if err != nil {
		t.Fatalf("NewDrone: %v", err)
	}
	return d
}

func TestDroneStateDim(t *testing.T) {
	d := newTestDrone(t)
	if d.StateDim() != 13 {
		t.Errorf("expected 13 states, got %d", d.StateDim())
	}
	if d.ControlDim() != 4 {
		t.Errorf("expected 4 controls, got %d", d.ControlDim())
	}
}

func TestDroneHover(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{0, 0, 5})
	u := dynamo.Control{d.HoverThrust(), 0, 0, 0}

	dx := d.Derive(x, u, 0.0)

	for i, v := range dx {
		if math.Abs(v) > 1e-12 {
			t.Errorf("dx[%d] = %g, want 0 at hover", i, v)
		}
	}
}

func TestDroneFreefall(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{0, 0, 5})

	dx := d.Derive(x, dynamo.Control{0, 0, 0, 0}, 0.0)

	if math.Abs(dx[IdxVel+2]+d.Params().Gravity) > 1e-12 {
		t.Errorf("expected az=%f, got %f", -d.Params().Gravity, dx[IdxVel+2])
	}
}

func TestDroneTiltedThrust(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{})
	// Positive roll tips body z towards world -y.
	attitude.Put(x, IdxQuat, attitude.FromEuler(attitude.Deg(10), 0, 0))

	dx := d.Derive(x, dynamo.Control{d.HoverThrust(), 0, 0, 0}, 0)

	if dx[IdxVel+1] >= 0 {
		t.Errorf("expected negative y acceleration, got %f", dx[IdxVel+1])
	}
	if dx[IdxVel+2] >= 0 {
		t.Errorf("tilted hover thrust should lose altitude, got az=%f", dx[IdxVel+2])
	}
}

func TestDroneTorque(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{})

	dx := d.Derive(x, dynamo.Control{d.HoverThrust(), 0, 0, 0.1}, 0.0)

	want := 0.1 / d.Params().Inertia[2][2]
	if math.Abs(dx[IdxRate+2]-want) > 1e-9 {
		t.Errorf("yaw acceleration = %f, want %f", dx[IdxRate+2], want)
	}
}

func TestDroneGyroscopicCoupling(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{})
	x[IdxRate], x[IdxRate+2] = 1, 1

	dx := d.Derive(x, dynamo.Control{d.HoverThrust(), 0, 0, 0}, 0)

	// ω = (1, 0, 1) with J = diag(a, a, c): ω × Jω = (0, a−c, 0).
	j := d.Params().Inertia
	want := (j[2][2] - j[1][1]) / j[1][1]
	if math.Abs(dx[IdxRate+1]-want) > 1e-12 {
		t.Errorf("pitch acceleration = %g, want %g", dx[IdxRate+1], want)
	}
	if dx[IdxRate] != 0 || dx[IdxRate+2] != 0 {
		t.Errorf("unexpected roll/yaw acceleration %g, %g", dx[IdxRate], dx[IdxRate+2])
	}
}

func TestDroneDeriveDoesNotMutate(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{1, 2, 3})
	x[IdxRate] = 0.3
	before := x.Clone()

	d.Derive(x, dynamo.Control{1, 0.1, 0.2, 0.3}, 0)

	for i := range x {
		if x[i] != before[i] {
			t.Fatalf("Derive mutated x[%d]", i)
		}
	}
}

func TestDroneNonFinitePropagates(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{})
	x[IdxRate] = math.NaN()

	if d.Derive(x, dynamo.Control{1, 0, 0, 0}, 0).IsValid() {
		t.Error("NaN body rate should yield a non-finite derivative")
	}
}

func TestDroneProject(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{})
	attitude.Put(x, IdxQuat, quat.Number{Real: 1.1, Imag: 0.1})

	p := d.Project(x)

	if n := quat.Abs(attitude.FromSlice(p, IdxQuat)); math.Abs(n-1) > 1e-15 {
		t.Errorf("projected |q| = %v", n)
	}
	if x[IdxQuat] != 1.1 {
		t.Error("Project mutated its input")
	}
}

func TestDroneEnergy(t *testing.T) {
	d := newTestDrone(t)
	x := d.HoverState([3]float64{0, 0, 10})
	x[IdxVel] = 1

	if e := d.Energy(x); e <= 0 {
		t.Error("energy should be positive")
	}
}

func TestDroneLinearize(t *testing.T) {
	d := newTestDrone(t)
	lin := d.Linearize()

	n, m := lin.Dims()
	if n != 6 || m != 3 {
		t.Fatalf("linearization dims = %d, %d", n, m)
	}
	if lin.A.At(0, 3) != 0.5 {
		t.Errorf("A[0][3] = %v, want 0.5", lin.A.At(0, 3))
	}
	if got, want := lin.B.At(5, 2), 1/d.Params().Inertia[2][2]; math.Abs(got-want) > 1e-9 {
		t.Errorf("B[5][2] = %v, want %v", got, want)
	}
}

func TestNewDroneRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *DroneParams)
	}{
		{"zero mass", func(p *DroneParams) { p.Mass = 0 }},
		{"asymmetric inertia", func(p *DroneParams) { p.Inertia[0][1] = 0.01 }},
		{"indefinite inertia", func(p *DroneParams) { p.Inertia[2][2] = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultDroneParams()
			tt.mutate(&p)
			if _, err := NewDrone(p); !errors.Is(err, dynamo.ErrParameterBounds) {
				t.Errorf("expected ErrParameterBounds, got %v", err)
			}
		})
	}
}

func TestOscillator(t *testing.T) {
	o, err := NewOscillator(2)
	if err != nil {
		t.Fatal(err)
	}

	dx := o.Derive(dynamo.State{1, 0}, dynamo.Control{0.5}, 0)
	if dx[0] != 0 || dx[1] != -3.5 {
		t.Errorf("Derive = %v, want [0 -3.5]", dx)
	}

	lin := o.Linearize()
	if lin.A.At(1, 0) != -4 || lin.B.At(1, 0) != 1 {
		t.Errorf("unexpected linearization A=%v B=%v", lin.A, lin.B)
	}

	if _, err := NewOscillator(0); err == nil {
		t.Error("expected error for zero frequency")
	}
}

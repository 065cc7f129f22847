package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Drone state layout: position, velocity (world frame), attitude
// quaternion (body→world, scalar first) and body rates.
const (
	IdxPos  = 0
	IdxVel  = 3
	IdxQuat = 6
	IdxRate = 10

	DroneStateDim = 13
)

// Drone control layout: collective thrust along body z, then body torques.
const (
	CtlThrust = 0
	CtlTorque = 1

	DroneControlDim = 4
)

type DroneParams struct {
	Mass      float64       `yaml:"mass" json:"mass"`
	Inertia   [3][3]float64 `yaml:"inertia" json:"inertia"`
	Gravity   float64       `yaml:"gravity" json:"gravity"`
	Drag      float64       `yaml:"drag" json:"drag"`
	MaxThrust float64       `yaml:"max_thrust" json:"max_thrust"`
	MaxTorque float64       `yaml:"max_torque" json:"max_torque"`
}

func DefaultDroneParams() DroneParams {
	return DroneParams{
		Mass: DefaultMass,
		Inertia: [3][3]float64{
			{0.0123, 0, 0},
			{0, 0.0123, 0},
			{0, 0, 0.0224},
		},
		Gravity:   DefaultGravity,
		Drag:      0.1,
		MaxThrust: 4 * DefaultMass * DefaultGravity,
		MaxTorque: 0.5,
	}
}

// Drone is a quadrotor rigid body driven directly by thrust and torques.
// Rotor dynamics are not modeled.
type Drone struct {
	params DroneParams
	j      *r3.Mat
	jInv   *r3.Mat
}

func NewDrone(p DroneParams) (*Drone, error) {
	if !(p.Mass > 0) {
		return nil, fmt.Errorf("%w: mass must be positive, got %g", dynamo.ErrParameterBounds, p.Mass)
	}

	j := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			j.Set(r, c, p.Inertia[r][c])
		}
	}
	if !mat.EqualApprox(j, j.T(), 1e-12) {
		return nil, fmt.Errorf("%w: inertia tensor is not symmetric", dynamo.ErrParameterBounds)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(3, []float64{
		p.Inertia[0][0], p.Inertia[0][1], p.Inertia[0][2],
		p.Inertia[1][0], p.Inertia[1][1], p.Inertia[1][2],
		p.Inertia[2][0], p.Inertia[2][1], p.Inertia[2][2],
	})); !ok {
		return nil, fmt.Errorf("%w: inertia tensor is not positive definite", dynamo.ErrParameterBounds)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: inertia tensor: %v", dynamo.ErrParameterBounds, err)
	}

	d := &Drone{params: p, j: r3.NewMat(nil), jInv: r3.NewMat(nil)}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			d.j.Set(r, c, p.Inertia[r][c])
			d.jInv.Set(r, c, inv.At(r, c))
		}
	}
	return d, nil
}

func (d *Drone) Params() DroneParams { return d.params }

func (d *Drone) StateDim() int   { return DroneStateDim }
func (d *Drone) ControlDim() int { return DroneControlDim }

func (d *Drone) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, DroneStateDim)

	q := attitude.FromSlice(x, IdxQuat)
	omega := bodyRates(x)

	var thrust float64
	var torque [3]float64
	if len(u) > CtlThrust {
		thrust = u[CtlThrust]
	}
	for i := 0; i < 3 && CtlTorque+i < len(u); i++ {
		torque[i] = u[CtlTorque+i]
	}

	m := d.params.Mass
	f := attitude.Rotate(attitude.Normalize(q), [3]float64{0, 0, thrust})
	for i := 0; i < 3; i++ {
		v := x[IdxVel+i]
		dx[IdxPos+i] = v
		dx[IdxVel+i] = (f[i] - d.params.Drag*v) / m
	}
	dx[IdxVel+2] -= d.params.Gravity

	attitude.Put(dx, IdxQuat, attitude.Derivative(q, [3]float64{omega.X, omega.Y, omega.Z}))

	// Euler's rotation equation: J ω̇ = τ − ω × Jω
	tau := r3.Vec{X: torque[0], Y: torque[1], Z: torque[2]}
	alpha := d.jInv.MulVec(r3.Sub(tau, r3.Cross(omega, d.j.MulVec(omega))))
	dx[IdxRate], dx[IdxRate+1], dx[IdxRate+2] = alpha.X, alpha.Y, alpha.Z

	return dx
}

// Project renormalizes the attitude quaternion.
func (d *Drone) Project(x dynamo.State) dynamo.State {
	out := x.Clone()
	attitude.Put(out, IdxQuat, attitude.Normalize(attitude.FromSlice(x, IdxQuat)))
	return out
}

func (d *Drone) HoverThrust() float64 {
	return d.params.Mass * d.params.Gravity
}

// HoverState is the trim point: level, at rest, at the given position.
func (d *Drone) HoverState(pos [3]float64) dynamo.State {
	x := make(dynamo.State, DroneStateDim)
	copy(x[IdxPos:], pos[:])
	attitude.Put(x, IdxQuat, attitude.Identity)
	return x
}

func (d *Drone) Energy(x dynamo.State) float64 {
	m := d.params.Mass
	omega := bodyRates(x)
	v := r3.Vec{X: x[IdxVel], Y: x[IdxVel+1], Z: x[IdxVel+2]}

	ke := 0.5*m*r3.Dot(v, v) + 0.5*r3.Dot(omega, d.j.MulVec(omega))
	return ke + m*d.params.Gravity*x[IdxPos+2]
}

// Linearize returns the attitude subsystem about hover. The reduced state
// is [qx qy qz ωx ωy ωz] with torque inputs: q̇v = ½ω, ω̇ = J⁻¹τ.
func (d *Drone) Linearize() Linearization {
	a := mat.NewDense(6, 6, nil)
	b := mat.NewDense(6, 3, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, 3+i, 0.5)
		for k := 0; k < 3; k++ {
			b.Set(3+i, k, d.jInv.At(i, k))
		}
	}
	return Linearization{A: a, B: b}
}

func bodyRates(x dynamo.State) r3.Vec {
	return r3.Vec{X: x[IdxRate], Y: x[IdxRate+1], Z: x[IdxRate+2]}
}

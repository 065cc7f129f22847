// Package physics provides the plant models driven by the closed loop.
//
// Each model implements the [dynamo.System] interface and a [Linearizer]
// giving the (A, B) Jacobians about its trim point for gain synthesis:
//
//   - [Drone]: 6-DoF quadrotor rigid body, quaternion attitude
//   - [Oscillator]: forced harmonic oscillator, used for validation
//
// [Drone] also implements [dynamo.Projector] so the integrator keeps its
// quaternion on the unit sphere, and both models implement
// [dynamo.Hamiltonian]:
//
//	drone, _ := physics.NewDrone(physics.DefaultDroneParams())
//	lin := drone.Linearize()
//	energy := drone.Energy(drone.HoverState([3]float64{0, 0, 1}))
package physics

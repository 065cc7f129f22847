// Package dynamo provides core simulation primitives for closed-loop
// dynamical systems.
//
// The package defines the fundamental interfaces and types shared by the
// numerical core:
//
//   - [State]: vector representing system state
//   - [Control]: vector of actuator commands
//   - [System]: interface for ODE plants (dX/dt = f(X, u, t))
//   - [Projector]: optional post-step normalization (unit quaternions)
//   - [Options]: adaptive integration settings
//
// # Example
//
//	drone, _ := physics.NewDrone(physics.DefaultDroneParams())
//	gain, _ := control.NewLQR(lin.A, lin.B, Q, R)
//	s := sim.New(drone, ctrl, ref)
//	result, err := s.Run(ctx, x0, dynamo.DefaultOptions())
//
// # Errors
//
// Failures that end a run wrap one of the sentinel errors
// ([ErrNonFiniteState], [ErrStepSizeUnderflow]) in a [SimulationError]
// carrying the step index, time and last accepted state.
package dynamo

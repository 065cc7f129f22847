// Package integrators advances closed-loop systems with embedded
// Runge–Kutta pairs and adaptive step-size control.
//
// A [Pair] makes one attempt and reports its local error estimate. The
// [Stepper] owns accept/reject decisions and the run's lifecycle:
//
//	s, err := integrators.NewStepper(integrators.NewDormandPrince(), f, x0, opts)
//	for s.Phase() == integrators.Running {
//		ev, err := s.Step()
//		...
//	}
//
// Available pairs:
//
//   - [DormandPrince]: 5(4), the default
//   - [BogackiShampine]: 3(2)
package integrators

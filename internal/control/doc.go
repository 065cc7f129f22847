// Package control synthesizes and applies state feedback.
//
// [NewLQR] solves the continuous-time algebraic Riccati equation once and
// freezes the result in a [Gain]. A [Controller] applies u = −K·e through
// an [ErrorMap] and may add a clamped PI [AltitudeLoop]:
//
//	gain, err := control.NewLQR(lin.A, lin.B, q, r)
//	ctl, err := control.NewController(gain, control.AttitudeError{Quat: 6, Rate: 10}, 4,
//		control.WithChannels(1, 2, 3),
//		control.WithAltitude(loop),
//	)
//	var integ control.IntegralState
//	u, err := ctl.Command(x, ref, dt, &integ)
//
// The integral memory is owned by the caller, one per run.
package control

// Package analysis inspects finished closed-loop runs and the linear loop
// behind them:
//
//   - [Spectrum]: amplitude spectrum of a resampled state component, used
//     to spot residual oscillation after the loop has settled
//   - [Modes]: damping, natural frequency and time constant of the
//     closed-loop poles
//   - [WeightSweep]: closed-loop poles as the input weight is scaled
//   - [NewPhasePortrait]: 2D phase trajectories of a run
//
// # Residual oscillation
//
//	sp, err := analysis.Spectrum(result.Samples, physics.IdxPos+2, 100)
//	if err == nil && sp.Peak().Amplitude > 1e-3 {
//	    // altitude still rings at sp.Peak().Frequency Hz
//	}
package analysis

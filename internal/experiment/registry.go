package experiment

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/config"
	"github.com/san-kum/lqrsim/internal/control"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/metrics"
	"github.com/san-kum/lqrsim/internal/physics"
	"github.com/san-kum/lqrsim/internal/reference"
)

// Plant is everything a run needs, assembled from a config.
type Plant struct {
	System     dynamo.System
	Lin        physics.Linearization
	X0         dynamo.State
	Reference  reference.Reference
	Controller *control.Controller
	Metrics    []dynamo.Metric
}

type builder func(cfg *config.Config) (*Plant, error)

type Registry struct {
	models map[string]builder
}

func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]builder)}
	r.models["drone"] = buildDrone
	r.models["oscillator"] = buildOscillator
	r.models["linear"] = buildLinear
	return r
}

func (r *Registry) Build(cfg *config.Config) (*Plant, error) {
	fn, ok := r.models[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", cfg.Model)
	}
	return fn(cfg)
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildDrone(cfg *config.Config) (*Plant, error) {
	d, err := physics.NewDrone(cfg.Drone.Params)
	if err != nil {
		return nil, err
	}
	lin := d.Linearize()
	gain, err := lqr(lin, cfg.Weights)
	if err != nil {
		return nil, err
	}

	p := d.Params()
	opts := []control.Option{
		control.WithChannels(physics.CtlTorque, physics.CtlTorque+1, physics.CtlTorque+2),
		control.WithLimits(
			control.Limit{Min: 0, Max: p.MaxThrust},
			control.Limit{Min: -p.MaxTorque, Max: p.MaxTorque},
			control.Limit{Min: -p.MaxTorque, Max: p.MaxTorque},
			control.Limit{Min: -p.MaxTorque, Max: p.MaxTorque},
		),
	}
	if cfg.Altitude.Enabled {
		gains := cfg.Altitude.Gains
		if cfg.Altitude.HoverFeedForward {
			gains.Kff += d.HoverThrust()
		}
		opts = append(opts, control.WithAltitude(control.AltitudeLoop{
			Gains:       gains,
			MaxIntegral: cfg.Altitude.MaxIntegral,
			Index:       physics.IdxPos + 2,
			RateIndex:   physics.IdxVel + 2,
			Channel:     physics.CtlThrust,
		}))
	}
	ctl, err := control.NewController(gain,
		control.AttitudeError{Quat: physics.IdxQuat, Rate: physics.IdxRate},
		physics.DroneControlDim, opts...)
	if err != nil {
		return nil, err
	}

	ref, err := droneReference(cfg)
	if err != nil {
		return nil, err
	}

	x0 := cfg.Drone.Initial.DroneState()
	copy(x0[physics.IdxRate:], cfg.Drone.Rates[:])

	target := ref.At(cfg.Options.TStart)
	return &Plant{
		System:     d,
		Lin:        lin,
		X0:         x0,
		Reference:  ref,
		Controller: ctl,
		Metrics: []dynamo.Metric{
			metrics.NewControlEffort(),
			metrics.NewTrackingError("altitude_rms", ref, physics.IdxPos+2),
			metrics.NewStepResponse("attitude_step",
				metrics.AttitudeAngle(physics.IdxQuat, attitude.FromSlice(target, physics.IdxQuat)), 0, 0.01),
			metrics.NewNormDrift(physics.IdxQuat),
			metrics.NewEnergyDrift(d),
		},
	}, nil
}

func droneReference(cfg *config.Config) (reference.Reference, error) {
	if len(cfg.Reference.Output) > 0 {
		return nil, fmt.Errorf("%w: the drone tracks poses, not output setpoints", dynamo.ErrParameterBounds)
	}
	if len(cfg.Reference.Target) > 0 {
		if len(cfg.Reference.Target) != physics.DroneStateDim {
			return nil, fmt.Errorf("%w: drone target has %d components, want %d",
				dynamo.ErrDimensionMismatch, len(cfg.Reference.Target), physics.DroneStateDim)
		}
		return reference.Constant(cfg.Reference.Target), nil
	}
	if len(cfg.Reference.Steps) == 0 {
		return reference.Hover([3]float64{}), nil
	}
	return reference.DroneSchedule(cfg.Reference.Steps...)
}

func buildOscillator(cfg *config.Config) (*Plant, error) {
	osc, err := physics.NewOscillator(cfg.Oscillator.Omega)
	if err != nil {
		return nil, err
	}
	return linearPlant(cfg, osc, osc.Linearize(), cfg.Oscillator.X0)
}

func buildLinear(cfg *config.Config) (*Plant, error) {
	lin, err := physics.NewLinearization(cfg.Linear.A, cfg.Linear.B)
	if err != nil {
		return nil, err
	}
	return linearPlant(cfg, physics.NewLTI(lin), lin, cfg.Linear.X0)
}

// linearPlant regulates every state with full-state LQR towards a
// constant target. An output setpoint is turned into that target plus the
// input that holds it.
func linearPlant(cfg *config.Config, sys dynamo.System, lin physics.Linearization, x0 []float64) (*Plant, error) {
	n, m := lin.Dims()
	if len(x0) != n {
		return nil, fmt.Errorf("%w: x0 has %d components, model %d", dynamo.ErrDimensionMismatch, len(x0), n)
	}
	gain, err := lqr(lin, cfg.Weights)
	if err != nil {
		return nil, err
	}

	var opts []control.Option
	target := make(reference.Constant, n)
	switch {
	case len(cfg.Reference.Output) > 0:
		xeq, ueq, err := equilibrium(cfg, lin)
		if err != nil {
			return nil, err
		}
		copy(target, xeq)
		opts = append(opts, control.WithFeedforward(ueq))
	case len(cfg.Reference.Target) > 0:
		if len(cfg.Reference.Target) != n {
			return nil, fmt.Errorf("%w: target has %d components, model %d", dynamo.ErrDimensionMismatch, len(cfg.Reference.Target), n)
		}
		copy(target, cfg.Reference.Target)
	}

	ctl, err := control.NewController(gain, control.FullState(n), m, opts...)
	if err != nil {
		return nil, err
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return &Plant{
		System:     sys,
		Lin:        lin,
		X0:         dynamo.State(x0).Clone(),
		Reference:  target,
		Controller: ctl,
		Metrics: []dynamo.Metric{
			metrics.NewControlEffort(),
			metrics.NewTrackingError("tracking_rms", target, all...),
			metrics.NewStepResponse("step", metrics.Component(0), target[0], 0.01),
			metrics.NewEnergy(sys),
		},
	}, nil
}

func equilibrium(cfg *config.Config, lin physics.Linearization) (dynamo.State, dynamo.Control, error) {
	c, d, err := lin.OutputMatrices(cfg.Linear.C, cfg.Linear.D, len(cfg.Reference.Output))
	if err != nil {
		return nil, nil, err
	}
	var dm mat.Matrix
	if d != nil {
		dm = d
	}
	eq, err := control.NewEquilibriumMap(lin.A, lin.B, c, dm)
	if err != nil {
		return nil, nil, err
	}
	return eq.At(cfg.Reference.Output)
}

func lqr(lin physics.Linearization, w config.WeightsConfig) (*control.Gain, error) {
	n, m := lin.Dims()
	if len(w.Q) != n || len(w.R) != m {
		return nil, fmt.Errorf("%w: weights have %d/%d diagonal entries, model needs %d/%d",
			dynamo.ErrDimensionMismatch, len(w.Q), len(w.R), n, m)
	}
	q := mat.NewDiagDense(n, append([]float64(nil), w.Q...))
	r := mat.NewDiagDense(m, append([]float64(nil), w.R...))
	return control.NewLQR(lin.A, lin.B, q, r)
}

package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/lqrsim/internal/config"
	"github.com/san-kum/lqrsim/internal/integrators"
	"github.com/san-kum/lqrsim/internal/sim"
)

// Experiment is one configured closed-loop run. Build it once and Run it
// as often as needed; each Run starts from the configured initial state
// with fresh integral memory.
type Experiment struct {
	cfg       *config.Config
	plant     *Plant
	simulator *sim.Simulator
}

// New validates cfg and assembles its plant and simulator. A nil logger
// keeps the run silent.
func New(reg *Registry, cfg *config.Config, logger *zap.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pair, ok := integrators.PairByName(cfg.Method)
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", cfg.Method)
	}
	plant, err := reg.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Model, err)
	}

	opts := []sim.Option{
		sim.WithPair(pair),
		sim.WithStepControl(cfg.Step),
		sim.WithSampleTime(cfg.SampleTime),
	}
	if logger != nil {
		opts = append(opts, sim.WithLogger(logger.With(zap.String("model", cfg.Model))))
	}
	s := sim.New(plant.System, plant.Controller, plant.Reference, opts...)
	for _, m := range plant.Metrics {
		s.AddMetric(m)
	}
	return &Experiment{cfg: cfg, plant: plant, simulator: s}, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.simulator.Run(ctx, e.plant.X0, e.cfg.Options)
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Plant() *Plant { return e.plant }

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

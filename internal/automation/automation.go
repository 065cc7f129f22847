package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/lqrsim/internal/config"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/experiment"
	"github.com/san-kum/lqrsim/internal/sim"
)

// Scenario defines a batch of runs executed side by side
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parallel    int            `yaml:"parallel"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run of a scenario. It starts from either a preset or
// a config file; the remaining fields override integration settings when
// non-zero.
type ScenarioStep struct {
	Name    string  `yaml:"name"`
	Model   string  `yaml:"model"`
	Preset  string  `yaml:"preset,omitempty"`
	Config  string  `yaml:"config,omitempty"`
	Method  string  `yaml:"method,omitempty"`
	TEnd    float64 `yaml:"t_end,omitempty"`
	Epsilon float64 `yaml:"epsilon,omitempty"`
}

var ErrInvalidScenario = errors.New("invalid scenario")

// LoadScenario loads a scenario from a YAML file. Config paths are taken
// relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s has no steps", ErrInvalidScenario, path)
	}

	dir := filepath.Dir(path)
	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		if (step.Preset == "") == (step.Config == "") {
			return nil, fmt.Errorf("%w: step %d needs exactly one of preset or config", ErrInvalidScenario, i+1)
		}
		if step.Config != "" && !filepath.IsAbs(step.Config) {
			step.Config = filepath.Join(dir, step.Config)
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("step-%d", i+1)
		}
	}
	return &scenario, nil
}

// Resolve builds the configuration the step runs with.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	if s.Config != "" {
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		if s.Model != "" && s.Model != c.Model {
			return nil, fmt.Errorf("%w: %s configures %s, step says %s", ErrInvalidScenario, s.Config, c.Model, s.Model)
		}
		cfg = c
	} else {
		cfg = config.GetPreset(s.Model, s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %s/%s", ErrInvalidScenario, s.Model, s.Preset)
		}
	}

	if s.Method != "" {
		cfg.Method = s.Method
	}
	if s.TEnd != 0 {
		cfg.Options.TEnd = s.TEnd
	}
	if s.Epsilon != 0 {
		cfg.Options.Epsilon = s.Epsilon
	}
	return cfg, cfg.Validate()
}

// StepResult pairs a scenario step with its outcome.
type StepResult struct {
	Step   ScenarioStep
	Config *config.Config
	Result *sim.Result
}

// RunScenario builds every step first and then runs them concurrently.
// A step that fails to build aborts the scenario; steps that fail while
// integrating keep their partial result.
func RunScenario(ctx context.Context, reg *experiment.Registry, scenario *Scenario, logger *zap.Logger) ([]StepResult, error) {
	out := make([]StepResult, len(scenario.Steps))
	jobs := make([]sim.Job, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		exp, err := experiment.New(reg, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		out[i] = StepResult{Step: step, Config: cfg}
		jobs[i] = sim.Job{Sim: exp.GetSimulator(), X0: exp.Plant().X0, Opts: cfg.Options}
	}

	if logger != nil {
		logger.Info("running scenario",
			zap.String("name", scenario.Name),
			zap.Int("steps", len(jobs)),
			zap.Int("parallel", scenario.Parallel),
		)
	}
	results, err := sim.NewEnsemble(scenario.Parallel, jobs...).Run(ctx)
	if err != nil {
		return nil, err
	}
	for i, res := range results {
		out[i].Result = res
	}
	return out, nil
}

const DefaultTolerance = 0.05

// MonteCarloConfig defines a robustness study around one configuration
type MonteCarloConfig struct {
	Trials int
	// Perturbation is the half-width of the uniform offset added to every
	// initial state component.
	Perturbation float64
	// Tolerance is the final distance to the reference that counts as
	// converged; DefaultTolerance when zero.
	Tolerance float64
	Seed      int64
	Parallel  int
}

// Trial is one perturbed run.
type Trial struct {
	ID         int
	X0         dynamo.State
	Final      dynamo.State
	FinalError float64
	Status     sim.Status
	Converged  bool
}

// RunMonteCarlo perturbs the initial state of cfg and runs every trial with
// its own closed loop. Plants with a manifold constraint get their
// perturbed state projected back onto it.
func RunMonteCarlo(ctx context.Context, reg *experiment.Registry, cfg *config.Config, mc MonteCarloConfig) ([]Trial, error) {
	if mc.Trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be positive, got %d", dynamo.ErrParameterBounds, mc.Trials)
	}
	if !(mc.Perturbation >= 0) {
		return nil, fmt.Errorf("%w: perturbation must be non-negative", dynamo.ErrParameterBounds)
	}
	tol := mc.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	rng := rand.New(rand.NewSource(mc.Seed))
	if mc.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	trials := make([]Trial, mc.Trials)
	jobs := make([]sim.Job, mc.Trials)
	plants := make([]*experiment.Plant, mc.Trials)
	for i := range trials {
		exp, err := experiment.New(reg, cfg, nil)
		if err != nil {
			return nil, err
		}
		plant := exp.Plant()

		offset := make(dynamo.State, len(plant.X0))
		for k := range offset {
			offset[k] = (rng.Float64()*2 - 1) * mc.Perturbation
		}
		x0 := plant.X0.Add(offset)
		if p, ok := plant.System.(dynamo.Projector); ok {
			x0 = p.Project(x0)
		}

		plants[i] = plant
		trials[i] = Trial{ID: i, X0: x0}
		jobs[i] = sim.Job{Sim: exp.GetSimulator(), X0: x0, Opts: cfg.Options}
	}

	results, err := sim.NewEnsemble(mc.Parallel, jobs...).Run(ctx)
	if err != nil {
		return nil, err
	}

	for i, res := range results {
		final := res.Final()
		tr := &trials[i]
		tr.Status = res.Status
		tr.Final = final.X
		tr.FinalError = math.Inf(1)
		if final.X != nil {
			tr.FinalError = final.X.Sub(plants[i].Reference.At(final.T)).Norm()
		}
		tr.Converged = res.Status == sim.StatusSuccess && tr.FinalError <= tol
	}
	return trials, nil
}

// MonteCarloStats summarizes a study.
type MonteCarloStats struct {
	Converged  int
	Diverged   int
	Failed     int
	WorstError float64
}

func Summarize(trials []Trial) MonteCarloStats {
	var s MonteCarloStats
	for _, t := range trials {
		switch {
		case t.Status == sim.StatusFailed:
			s.Failed++
		case t.Converged:
			s.Converged++
		default:
			s.Diverged++
		}
		if t.Status != sim.StatusFailed {
			s.WorstError = math.Max(s.WorstError, t.FinalError)
		}
	}
	return s
}

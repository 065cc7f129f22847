package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/lqrsim/internal/control"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/integrators"
	"github.com/san-kum/lqrsim/internal/physics"
	"github.com/san-kum/lqrsim/internal/reference"
)

const (
	DefaultModel    = "drone"
	DefaultMethod   = "dopri5"
	DefaultDuration = 10.0
	DefaultKp       = 6.0
	DefaultKi       = 0.5
	DefaultKd       = 4.0
	DefaultMaxInteg = 1.0
	DefaultExportHz = 30.0
)

type Config struct {
	Model      string           `yaml:"model"`
	Method     string           `yaml:"method"`
	Options    dynamo.Options   `yaml:"integration"`
	Weights    WeightsConfig    `yaml:"weights"`
	Altitude   AltitudeConfig   `yaml:"altitude"`
	Drone      DroneConfig      `yaml:"drone"`
	Oscillator OscillatorConfig `yaml:"oscillator"`
	Linear     LinearConfig     `yaml:"linear"`
	Reference  ReferenceConfig  `yaml:"reference"`
	// Step tunes the adaptive step-size controller.
	Step integrators.StepControl `yaml:"step_control"`
	// SampleTime switches to sampled-data control: the controller runs
	// every SampleTime seconds and its output is held in between. Zero
	// means continuous feedback.
	SampleTime float64 `yaml:"sample_time,omitempty"`
	// ExportHz is the frame rate trajectories are resampled to on export.
	ExportHz float64 `yaml:"export_hz"`
}

// WeightsConfig holds the diagonals of Q and R.
type WeightsConfig struct {
	Q []float64 `yaml:"q"`
	R []float64 `yaml:"r"`
}

// Scaled returns the weights with Q multiplied by qs and R by rs.
func (w WeightsConfig) Scaled(qs, rs float64) WeightsConfig {
	out := WeightsConfig{Q: make([]float64, len(w.Q)), R: make([]float64, len(w.R))}
	for i, v := range w.Q {
		out.Q[i] = v * qs
	}
	for i, v := range w.R {
		out.R[i] = v * rs
	}
	return out
}

type AltitudeConfig struct {
	Enabled     bool            `yaml:"enabled"`
	Gains       control.PIGains `yaml:"gains"`
	MaxIntegral float64         `yaml:"max_integral"`
	// HoverFeedForward adds the hover thrust m·g to Gains.Kff.
	HoverFeedForward bool `yaml:"hover_ff"`
}

type DroneConfig struct {
	Params  physics.DroneParams `yaml:"params"`
	Initial reference.Pose      `yaml:"initial"`
	// Rates are the initial body rates in rad/s.
	Rates [3]float64 `yaml:"rates"`
}

type OscillatorConfig struct {
	Omega float64   `yaml:"omega"`
	X0    []float64 `yaml:"x0"`
}

// LinearConfig describes an arbitrary LTI plant ẋ = Ax + Bu with output
// y = Cx + Du. C and D only matter for an output setpoint; a nil C
// measures the leading states.
type LinearConfig struct {
	A  [][]float64 `yaml:"a"`
	B  [][]float64 `yaml:"b"`
	C  [][]float64 `yaml:"c,omitempty"`
	D  [][]float64 `yaml:"d,omitempty"`
	X0 []float64   `yaml:"x0"`
}

// ReferenceConfig is a pose schedule for the drone, and for the other
// models either a constant target state or an output setpoint mapped to
// its equilibrium. An empty reference means hold the origin.
type ReferenceConfig struct {
	Steps  []reference.PoseStep `yaml:"steps,omitempty"`
	Target []float64            `yaml:"target,omitempty"`
	Output []float64            `yaml:"output,omitempty"`
}

func DefaultConfig() *Config {
	opts := dynamo.DefaultOptions()
	opts.TEnd = DefaultDuration
	return &Config{
		Model:   DefaultModel,
		Method:  DefaultMethod,
		Options: opts,
		Step:    integrators.DefaultStepControl(),
		Weights: WeightsConfig{
			Q: []float64{10, 10, 10, 0.1, 0.1, 0.1},
			R: []float64{1, 1, 1},
		},
		Altitude: AltitudeConfig{
			Enabled:          true,
			Gains:            control.PIGains{Kp: DefaultKp, Ki: DefaultKi, Kd: DefaultKd},
			MaxIntegral:      DefaultMaxInteg,
			HoverFeedForward: true,
		},
		Drone: DroneConfig{
			Params: physics.DefaultDroneParams(),
		},
		Oscillator: OscillatorConfig{Omega: 1, X0: []float64{1, 0}},
		Reference: ReferenceConfig{
			Steps: []reference.PoseStep{{T: 0, Pose: reference.Pose{Position: [3]float64{0, 0, 1}}}},
		},
		ExportHz: DefaultExportHz,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks what can be checked without building the plant.
// Dimension checks against the model happen when it is built.
func (c *Config) Validate() error {
	switch c.Model {
	case "drone", "oscillator", "linear":
	default:
		return fmt.Errorf("%w: unknown model %q", dynamo.ErrParameterBounds, c.Model)
	}
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if err := c.Step.Validate(); err != nil {
		return err
	}
	if !(c.SampleTime >= 0) || math.IsInf(c.SampleTime, 0) {
		return fmt.Errorf("%w: sample_time must be finite and non-negative, got %g", dynamo.ErrInvalidOptions, c.SampleTime)
	}
	if len(c.Reference.Target) > 0 && len(c.Reference.Output) > 0 {
		return fmt.Errorf("%w: reference sets both target and output", dynamo.ErrParameterBounds)
	}
	for _, v := range append(append([]float64(nil), c.Weights.Q...), c.Weights.R...) {
		if !(v >= 0) {
			return fmt.Errorf("%w: negative or NaN weight %g", control.ErrInvalidWeighting, v)
		}
	}
	if c.Altitude.Enabled && !(c.Altitude.MaxIntegral >= 0) {
		return fmt.Errorf("%w: max_integral must be non-negative", dynamo.ErrParameterBounds)
	}
	if c.ExportHz < 0 {
		return fmt.Errorf("%w: export_hz must be non-negative", dynamo.ErrParameterBounds)
	}
	return nil
}

// Clone deep-copies the slices so presets and tuner candidates can be
// modified independently.
func (c *Config) Clone() *Config {
	out := *c
	out.Weights = c.Weights.Scaled(1, 1)
	out.Oscillator.X0 = append([]float64(nil), c.Oscillator.X0...)
	out.Linear.A = cloneRows(c.Linear.A)
	out.Linear.B = cloneRows(c.Linear.B)
	out.Linear.C = cloneRows(c.Linear.C)
	out.Linear.D = cloneRows(c.Linear.D)
	out.Linear.X0 = append([]float64(nil), c.Linear.X0...)
	out.Reference.Steps = append([]reference.PoseStep(nil), c.Reference.Steps...)
	out.Reference.Target = append([]float64(nil), c.Reference.Target...)
	out.Reference.Output = append([]float64(nil), c.Reference.Output...)
	return &out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

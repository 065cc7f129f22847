package config

import (
	"sort"

	"github.com/san-kum/lqrsim/internal/reference"
)

func preset(model string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Model = model
	edit(c)
	return c
}

func level(z float64) reference.Pose {
	return reference.Pose{Position: [3]float64{0, 0, z}}
}

var Presets = map[string]map[string]*Config{
	"drone": {
		"hover": preset("drone", func(c *Config) {}),
		"roll-step": preset("drone", func(c *Config) {
			c.Options.TEnd = 5
			c.Drone.Initial = reference.Pose{Position: [3]float64{0, 0, 1}, Roll: 10}
		}),
		"attitude-sequence": preset("drone", func(c *Config) {
			c.Options.TEnd = 8
			c.Drone.Initial = level(1)
			c.Reference.Steps = []reference.PoseStep{
				{T: 0, Pose: reference.Pose{Position: [3]float64{0, 0, 1}, Roll: 22.5}},
				{T: 2, Pose: reference.Pose{Position: [3]float64{0, 0, 1}, Pitch: 22.5}},
				{T: 4, Pose: reference.Pose{Position: [3]float64{0, 0, 1}, Yaw: 22.5}},
				{T: 6, Pose: level(1)},
			}
		}),
		"sampled": preset("drone", func(c *Config) {
			c.Options.TEnd = 5
			c.SampleTime = 0.005
			c.Drone.Initial = reference.Pose{Position: [3]float64{0, 0, 1}, Roll: 10}
		}),
		"climb": preset("drone", func(c *Config) {
			c.Reference.Steps = []reference.PoseStep{{T: 0, Pose: level(5)}}
		}),
		"tumble": preset("drone", func(c *Config) {
			c.Options.TEnd = 5
			c.Drone.Initial = reference.Pose{Position: [3]float64{0, 0, 1}, Roll: 30, Pitch: -20, Yaw: 45}
			c.Drone.Rates = [3]float64{1, -1, 0.5}
		}),
	},
	"oscillator": {
		"settle": preset("oscillator", func(c *Config) {
			c.Weights = WeightsConfig{Q: []float64{1, 1}, R: []float64{1}}
			c.Altitude.Enabled = false
			c.Reference = ReferenceConfig{Target: []float64{0, 0}}
		}),
		"setpoint": preset("oscillator", func(c *Config) {
			c.Oscillator = OscillatorConfig{Omega: 1, X0: []float64{0, 0}}
			c.Weights = WeightsConfig{Q: []float64{10, 1}, R: []float64{0.1}}
			c.Altitude.Enabled = false
			c.Reference = ReferenceConfig{Output: []float64{0.5}}
		}),
		"stiff": preset("oscillator", func(c *Config) {
			c.Oscillator = OscillatorConfig{Omega: 5, X0: []float64{1, 0}}
			c.Weights = WeightsConfig{Q: []float64{10, 1}, R: []float64{0.1}}
			c.Altitude.Enabled = false
			c.Reference = ReferenceConfig{Target: []float64{0, 0}}
		}),
	},
	"linear": {
		"double-integrator": preset("linear", func(c *Config) {
			c.Linear = LinearConfig{
				A:  [][]float64{{0, 1}, {0, 0}},
				B:  [][]float64{{0}, {1}},
				X0: []float64{1, 0},
			}
			c.Weights = WeightsConfig{Q: []float64{1, 1}, R: []float64{1}}
			c.Altitude.Enabled = false
			c.Reference = ReferenceConfig{Target: []float64{0, 0}}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

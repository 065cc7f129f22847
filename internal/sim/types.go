package sim

import (
	"fmt"

	"github.com/san-kum/lqrsim/internal/control"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/integrators"
)

// Controller maps state and reference to a control vector, accumulating
// dt into integ. *control.Controller implements it.
type Controller interface {
	Command(x, ref dynamo.State, dt float64, integ *control.IntegralState) (dynamo.Control, error)
}

// OpenLoop applies a fixed control regardless of state.
type OpenLoop dynamo.Control

func (o OpenLoop) Command(dynamo.State, dynamo.State, float64, *control.IntegralState) (dynamo.Control, error) {
	return dynamo.Control(o).Clone(), nil
}

type Status int

const (
	StatusSuccess Status = iota
	StatusTruncated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTruncated:
		return "truncated"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*s = StatusSuccess
	case "truncated":
		*s = StatusTruncated
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Sample is one accepted step: the state at T, the control acting there
// and the reference it tracked.
type Sample struct {
	T   float64        `json:"t"`
	X   dynamo.State   `json:"x"`
	U   dynamo.Control `json:"u"`
	Ref dynamo.State   `json:"ref,omitempty"`
}

type Result struct {
	Samples []Sample           `json:"samples"`
	Status  Status             `json:"status"`
	Err     error              `json:"-"`
	Stats   integrators.Stats  `json:"stats"`
	Metrics map[string]float64 `json:"metrics"`
	Method  string             `json:"method"`
	// SampleTime is the controller period of a sampled-data run, zero
	// for continuous feedback. Updates then lists every controller
	// evaluation with the state, reference and control it produced.
	SampleTime float64  `json:"sample_time,omitempty"`
	Updates    []Sample `json:"updates,omitempty"`
}

func (r *Result) Len() int { return len(r.Samples) }

// Final returns the last recorded sample.
func (r *Result) Final() Sample {
	if len(r.Samples) == 0 {
		return Sample{}
	}
	return r.Samples[len(r.Samples)-1]
}

func (r *Result) Times() []float64 {
	ts := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		ts[i] = s.T
	}
	return ts
}

// Component extracts state component i over time.
func (r *Result) Component(i int) []float64 {
	out := make([]float64, len(r.Samples))
	for k, s := range r.Samples {
		if i < len(s.X) {
			out[k] = s.X[i]
		}
	}
	return out
}

// ControlComponent extracts control channel i over time.
func (r *Result) ControlComponent(i int) []float64 {
	out := make([]float64, len(r.Samples))
	for k, s := range r.Samples {
		if i < len(s.U) {
			out[k] = s.U[i]
		}
	}
	return out
}

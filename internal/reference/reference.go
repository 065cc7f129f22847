// Package reference produces time-indexed target states.
//
// Every Reference is pure: integrators evaluate it at stage times, out of
// order and more than once, so At must not depend on call history.
package reference

import (
	"fmt"
	"sort"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/physics"
)

type Reference interface {
	At(t float64) dynamo.State
}

// Func adapts a plain function.
type Func func(t float64) dynamo.State

func (f Func) At(t float64) dynamo.State { return f(t) }

// Constant holds one target for all time.
type Constant dynamo.State

func (c Constant) At(float64) dynamo.State { return dynamo.State(c).Clone() }

// Setpoint switches the target to State from time T on.
type Setpoint struct {
	T     float64
	State dynamo.State
}

// Schedule is a piecewise-constant reference. Before the first switch
// time it holds the first setpoint.
type Schedule struct {
	points []Setpoint
}

func NewSchedule(points ...Setpoint) (*Schedule, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: schedule needs at least one setpoint", dynamo.ErrDimensionMismatch)
	}
	sorted := make([]Setpoint, len(points))
	for i, p := range points {
		if len(p.State) != len(points[0].State) {
			return nil, fmt.Errorf("%w: setpoint %d has %d components, want %d", dynamo.ErrDimensionMismatch, i, len(p.State), len(points[0].State))
		}
		sorted[i] = Setpoint{T: p.T, State: p.State.Clone()}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })
	return &Schedule{points: sorted}, nil
}

func (s *Schedule) At(t float64) dynamo.State {
	// first point strictly after t, the active one is just before it
	i := sort.Search(len(s.points), func(i int) bool { return s.points[i].T > t })
	if i == 0 {
		i = 1
	}
	return s.points[i-1].State.Clone()
}

// Len is the number of setpoints.
func (s *Schedule) Len() int { return len(s.points) }

// Pose is a drone target: world position and Z-Y-X Euler angles in
// degrees.
type Pose struct {
	Position [3]float64 `yaml:"position" json:"position"`
	Roll     float64    `yaml:"roll" json:"roll"`
	Pitch    float64    `yaml:"pitch" json:"pitch"`
	Yaw      float64    `yaml:"yaw" json:"yaw"`
}

// DroneState expands the pose into a full drone state at rest.
func (p Pose) DroneState() dynamo.State {
	x := make(dynamo.State, physics.DroneStateDim)
	copy(x[physics.IdxPos:], p.Position[:])
	q := attitude.FromEuler(attitude.Deg(p.Roll), attitude.Deg(p.Pitch), attitude.Deg(p.Yaw))
	attitude.Put(x, physics.IdxQuat, q)
	return x
}

// Hover holds the drone level at pos.
func Hover(pos [3]float64) Constant {
	return Constant(Pose{Position: pos}.DroneState())
}

// PoseStep is a Pose that becomes active at time T.
type PoseStep struct {
	T    float64 `yaml:"t" json:"t"`
	Pose Pose    `yaml:"pose" json:"pose"`
}

// DroneSchedule builds a schedule of drone poses.
func DroneSchedule(steps ...PoseStep) (*Schedule, error) {
	points := make([]Setpoint, len(steps))
	for i, s := range steps {
		points[i] = Setpoint{T: s.T, State: s.Pose.DroneState()}
	}
	return NewSchedule(points...)
}

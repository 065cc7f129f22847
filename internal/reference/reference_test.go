package reference

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/physics"
)

func TestConstantReturnsCopy(t *testing.T) {
	c := Constant{1, 2}
	x := c.At(0)
	x[0] = 99
	if c.At(5)[0] != 1 {
		t.Error("At must not alias the stored target")
	}
}

func TestFunc(t *testing.T) {
	f := Func(func(t float64) dynamo.State { return dynamo.State{math.Sin(t)} })
	if got := f.At(math.Pi / 2)[0]; math.Abs(got-1) > 1e-15 {
		t.Errorf("At(π/2) = %v", got)
	}
}

func TestScheduleLookup(t *testing.T) {
	s, err := NewSchedule(
		Setpoint{T: 2, State: dynamo.State{20}},
		Setpoint{T: 0, State: dynamo.State{0}},
		Setpoint{T: 1, State: dynamo.State{10}},
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		t    float64
		want float64
	}{
		{-1, 0},
		{0, 0},
		{0.999, 0},
		{1, 10},
		{1.5, 10},
		{2, 20},
		{100, 20},
	}

	// Query out of order, and twice, to check At has no memory.
	for pass := 0; pass < 2; pass++ {
		for i := len(tests) - 1; i >= 0; i-- {
			tt := tests[i]
			if got := s.At(tt.t)[0]; got != tt.want {
				t.Errorf("At(%v) = %v, want %v", tt.t, got, tt.want)
			}
		}
	}
}

func TestScheduleValidation(t *testing.T) {
	if _, err := NewSchedule(); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("empty schedule: got %v", err)
	}
	_, err := NewSchedule(Setpoint{State: dynamo.State{1}}, Setpoint{T: 1, State: dynamo.State{1, 2}})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("ragged schedule: got %v", err)
	}
}

func TestPoseDroneState(t *testing.T) {
	x := Pose{Position: [3]float64{1, 2, 3}, Yaw: 90}.DroneState()

	if len(x) != physics.DroneStateDim {
		t.Fatalf("len = %d", len(x))
	}
	if x[physics.IdxPos+2] != 3 {
		t.Errorf("z = %v", x[physics.IdxPos+2])
	}
	_, _, yaw := attitude.ToEuler(attitude.FromSlice(x, physics.IdxQuat))
	if math.Abs(yaw-math.Pi/2) > 1e-12 {
		t.Errorf("yaw = %v", yaw)
	}
}

func TestDroneSchedule(t *testing.T) {
	s, err := DroneSchedule(
		PoseStep{T: 0, Pose: Pose{Position: [3]float64{0, 0, 1}}},
		PoseStep{T: 2, Pose: Pose{Position: [3]float64{0, 0, 1}, Roll: 10}},
	)
	if err != nil {
		t.Fatal(err)
	}
	roll, _, _ := attitude.ToEuler(attitude.FromSlice(s.At(3), physics.IdxQuat))
	if math.Abs(roll-attitude.Deg(10)) > 1e-12 {
		t.Errorf("roll after switch = %v", roll)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d", s.Len())
	}
	if h := Hover([3]float64{0, 0, 5}).At(0); h[physics.IdxQuat] != 1 || h[physics.IdxPos+2] != 5 {
		t.Errorf("Hover = %v", h)
	}
}

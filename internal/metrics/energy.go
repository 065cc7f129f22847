package metrics

import (
	"math"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Energy is the mean mechanical energy over the recorded samples. Systems
// that do not implement dynamo.Hamiltonian report zero.
type Energy struct {
	name    string
	sys     dynamo.Hamiltonian
	total   float64
	samples int
}

func NewEnergy(sys dynamo.System) *Energy {
	h, _ := sys.(dynamo.Hamiltonian)
	return &Energy{name: "energy", sys: h}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if e.sys == nil {
		return
	}
	e.total += e.sys.Energy(x)
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *Energy) Reset() {
	e.total = 0
	e.samples = 0
}

// EnergyDrift is the largest relative change of the mechanical energy
// from its initial value. Under feedback the energy is not conserved, so
// this is a measure of how hard the loop works rather than a solver check.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	maxDrift      float64
	samples       int
	sys           dynamo.Hamiltonian
}

func NewEnergyDrift(sys dynamo.System) *EnergyDrift {
	h, _ := sys.(dynamo.Hamiltonian)
	return &EnergyDrift{name: "energy_drift", sys: h}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if e.sys == nil {
		return
	}

	energy := e.sys.Energy(x)
	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

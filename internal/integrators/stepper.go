package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Phase is the stepper's lifecycle state.
type Phase int

const (
	Running Phase = iota
	Converged
	Failed
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Outcome qualifies a Converged stepper.
type Outcome int

const (
	// Success means t_end was reached.
	Success Outcome = iota
	// Truncated means maxiter attempts were spent before t_end.
	Truncated
)

func (o Outcome) String() string {
	if o == Truncated {
		return "truncated"
	}
	return "success"
}

// Event is what a single Step did.
type Event int

const (
	Accepted Event = iota
	Rejected
	// Finished is returned once the stepper has left Running; no attempt
	// was made.
	Finished
)

func (e Event) String() string {
	switch e {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return "finished"
}

// Stats counts attempts; Attempts = Accepted + Rejected.
type Stats struct {
	Attempts int `json:"attempts"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// StepControl holds the step-size controller constants.
type StepControl struct {
	Safety    float64 `yaml:"safety" json:"safety"`
	MinShrink float64 `yaml:"min_shrink" json:"min_shrink"`
	MaxGrow   float64 `yaml:"max_grow" json:"max_grow"`
}

// Validate requires 0 < Safety ≤ 1, 0 < MinShrink < 1 and MaxGrow > 1.
func (c StepControl) Validate() error {
	switch {
	case !(c.Safety > 0 && c.Safety <= 1):
		return fmt.Errorf("%w: safety factor %g outside (0, 1]", dynamo.ErrInvalidOptions, c.Safety)
	case !(c.MinShrink > 0 && c.MinShrink < 1):
		return fmt.Errorf("%w: min shrink %g outside (0, 1)", dynamo.ErrInvalidOptions, c.MinShrink)
	case !(c.MaxGrow > 1) || math.IsInf(c.MaxGrow, 0):
		return fmt.Errorf("%w: max grow %g must be finite and above 1", dynamo.ErrInvalidOptions, c.MaxGrow)
	}
	return nil
}

func DefaultStepControl() StepControl {
	return StepControl{Safety: 0.9, MinShrink: 0.2, MaxGrow: 10}
}

// Stepper advances one integration run as an explicit state machine:
//
//	Running ──accept/reject──▶ Running
//	Running ──t ≥ t_end──────▶ Converged(Success)
//	Running ──attempts ≥ max─▶ Converged(Truncated)
//	Running ──underflow/NaN──▶ Failed(err)
//
// A rejected attempt changes only h and the counters. Stepper is not safe
// for concurrent use.
type Stepper struct {
	pair Pair
	ctl  StepControl
	f    RHS
	opts dynamo.Options

	t float64
	x dynamo.State
	h float64

	stop    float64
	hasStop bool

	lastErr float64
	stats   Stats
	phase   Phase
	outcome Outcome
	err     error
}

func NewStepper(pair Pair, f RHS, x0 dynamo.State, opts dynamo.Options) (*Stepper, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(x0) == 0 {
		return nil, fmt.Errorf("%w: empty initial state", dynamo.ErrDimensionMismatch)
	}
	if !x0.IsValid() {
		return nil, fmt.Errorf("%w: initial state", dynamo.ErrNonFiniteState)
	}
	if pair == nil {
		pair = NewDormandPrince()
	}
	return &Stepper{
		pair: pair,
		ctl:  DefaultStepControl(),
		f:    f,
		opts: opts,
		t:    opts.TStart,
		x:    x0.Clone(),
		h:    opts.HStart,
	}, nil
}

// SetControl replaces the step-size constants before the first Step.
func (s *Stepper) SetControl(c StepControl) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.ctl = c
	return nil
}

// StopAt clips later steps so that none crosses t; the step that gets
// there lands on t exactly. Boundaries at or behind the current time, or
// past t_end, have no effect.
func (s *Stepper) StopAt(t float64) { s.stop, s.hasStop = t, true }

func (s *Stepper) T() float64             { return s.t }
func (s *Stepper) H() float64             { return s.h }
func (s *Stepper) State() dynamo.State    { return s.x.Clone() }
func (s *Stepper) Stats() Stats           { return s.stats }
func (s *Stepper) Phase() Phase           { return s.phase }
func (s *Stepper) Outcome() Outcome       { return s.outcome }
func (s *Stepper) Err() error             { return s.err }
func (s *Stepper) LastErrorNorm() float64 { return s.lastErr }

// Replace swaps the committed state, used to project the accepted state
// back onto its manifold. Time and step size are untouched.
func (s *Stepper) Replace(x dynamo.State) error {
	if len(x) != len(s.x) {
		return fmt.Errorf("%w: replacement has %d components, want %d", dynamo.ErrDimensionMismatch, len(x), len(s.x))
	}
	if !x.IsValid() {
		s.fail(fmt.Errorf("%w: projected state", dynamo.ErrNonFiniteState))
		return s.err
	}
	s.x = x.Clone()
	return nil
}

// Fail ends the run with err, for failures the caller finds after an
// accepted step. The first failure sticks.
func (s *Stepper) Fail(err error) {
	if s.phase != Failed {
		s.fail(err)
	}
}

// Step makes one attempt. It returns Finished with the terminal error, if
// any, once the stepper is no longer Running.
func (s *Stepper) Step() (Event, error) {
	if s.phase != Running {
		return Finished, s.err
	}
	if s.checkDone() {
		return Finished, nil
	}

	h := s.h
	if s.opts.HMax > 0 && h > s.opts.HMax {
		h = s.opts.HMax
	}
	end := s.opts.TEnd
	if s.hasStop && s.stop > s.t && s.stop < end {
		end = s.stop
	}
	remaining := end - s.t
	last := h >= remaining
	if last {
		h = remaining
	}

	s.stats.Attempts++
	xNew, errNorm, err := s.pair.Attempt(s.f, s.t, s.x, h)
	if err != nil {
		s.fail(err)
		return Finished, s.err
	}
	if !xNew.IsValid() || math.IsNaN(errNorm) {
		s.fail(fmt.Errorf("%w: solution estimate", dynamo.ErrNonFiniteState))
		return Finished, s.err
	}
	s.lastErr = errNorm

	if errNorm <= s.opts.Epsilon {
		s.stats.Accepted++
		if last {
			s.t = end
		} else {
			s.t += h
		}
		s.x = xNew
		next := s.grow(h, errNorm)
		if last {
			// A step shortened to land on a boundary says nothing about
			// the step size the error allows.
			next = math.Max(next, s.h)
		}
		s.h = next
		s.checkDone()
		return Accepted, nil
	}

	s.stats.Rejected++
	if h <= s.opts.HMin {
		s.fail(fmt.Errorf("%w: error %.3g above epsilon %.3g at h=%.3g (h_min %.3g)",
			dynamo.ErrStepSizeUnderflow, errNorm, s.opts.Epsilon, h, s.opts.HMin))
		return Finished, s.err
	}
	s.h = s.shrink(h, errNorm)
	s.checkDone()
	return Rejected, nil
}

// Run steps until the stepper leaves Running and returns the terminal
// error.
func (s *Stepper) Run() error {
	for s.phase == Running {
		if _, err := s.Step(); err != nil {
			return err
		}
	}
	return s.err
}

func (s *Stepper) checkDone() bool {
	switch {
	case s.t >= s.opts.TEnd:
		s.phase, s.outcome = Converged, Success
	case s.stats.Attempts >= s.opts.MaxIter:
		s.phase, s.outcome = Converged, Truncated
	default:
		return false
	}
	return true
}

func (s *Stepper) factor(errNorm float64) float64 {
	return s.ctl.Safety * math.Pow(s.opts.Epsilon/errNorm, 1/float64(s.pair.Order()))
}

func (s *Stepper) grow(h, errNorm float64) float64 {
	scale := s.ctl.MaxGrow
	if errNorm > 0 {
		scale = math.Min(s.ctl.MaxGrow, s.factor(errNorm))
	}
	next := h * scale
	if s.opts.HMax > 0 && next > s.opts.HMax {
		next = s.opts.HMax
	}
	return math.Max(next, s.opts.HMin)
}

func (s *Stepper) shrink(h, errNorm float64) float64 {
	scale := math.Max(s.ctl.MinShrink, s.factor(errNorm))
	return math.Max(h*scale, s.opts.HMin)
}

func (s *Stepper) fail(err error) {
	s.phase = Failed
	s.err = &dynamo.SimulationError{
		Step:    s.stats.Attempts,
		Time:    s.t,
		State:   s.x.Clone(),
		Wrapped: err,
	}
}

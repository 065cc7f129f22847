package sim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/lqrsim/internal/control"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/integrators"
	"github.com/san-kum/lqrsim/internal/reference"
)

// Simulator closes the loop between a plant, a controller and a
// reference. The gain inside the controller is shared read-only; the
// integral memory is created fresh for every Run. Metrics and observers
// are stateful, so a Simulator that has them must not Run concurrently.
type Simulator struct {
	sys        dynamo.System
	ctl        Controller
	ref        reference.Reference
	pair       integrators.Pair
	stepCtl    integrators.StepControl
	sampleTime float64
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     *zap.Logger
}

type Option func(*Simulator)

func WithPair(p integrators.Pair) Option {
	return func(s *Simulator) { s.pair = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func WithStepControl(c integrators.StepControl) Option {
	return func(s *Simulator) { s.stepCtl = c }
}

// WithSampleTime makes the controller run every ts seconds, starting at
// t_start, with its output held constant in between. The integrator
// lands on every sample instant. ts = 0 is continuous feedback.
func WithSampleTime(ts float64) Option {
	return func(s *Simulator) { s.sampleTime = ts }
}

func New(sys dynamo.System, ctl Controller, ref reference.Reference, opts ...Option) *Simulator {
	s := &Simulator{
		sys:       sys,
		ctl:       ctl,
		ref:       ref,
		pair:      integrators.NewDormandPrince(),
		stepCtl:   integrators.DefaultStepControl(),
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// hold is the zero-order hold of a sampled-data run. Update k happens at
// start + k·period; u is what the plant sees until the next one.
type hold struct {
	start  float64
	period float64
	k      int
	tLast  float64
	u      dynamo.Control
}

func (h *hold) next() float64 { return h.start + float64(h.k+1)*h.period }

// Run integrates from x0 over opts and records every accepted step. A
// failed run returns the partial result together with the error; a run
// truncated by maxiter returns StatusTruncated and no error.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, opts dynamo.Options) (*Result, error) {
	if len(x0) != s.sys.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d components, system %d", dynamo.ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}
	if !(s.sampleTime >= 0) || math.IsInf(s.sampleTime, 0) {
		return nil, fmt.Errorf("%w: sample time must be finite and non-negative, got %g", dynamo.ErrInvalidOptions, s.sampleTime)
	}

	integ := &control.IntegralState{}
	var zoh *hold
	f := s.rhs(integ)
	if s.sampleTime > 0 {
		zoh = &hold{start: opts.TStart, period: s.sampleTime, tLast: opts.TStart}
		f = s.heldRHS(zoh)
	}

	stepper, err := integrators.NewStepper(s.pair, f, x0, opts)
	if err != nil {
		return nil, err
	}
	if err := stepper.SetControl(s.stepCtl); err != nil {
		return nil, err
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	result := &Result{
		Samples:    make([]Sample, 0, 256),
		Metrics:    make(map[string]float64),
		Method:     s.pair.Name(),
		SampleTime: s.sampleTime,
	}

	ref0 := s.ref.At(opts.TStart)
	u0, err := s.ctl.Command(x0, ref0, 0, integ)
	if err != nil {
		stepper.Fail(err)
	} else {
		if zoh != nil {
			zoh.u = u0
			result.Updates = append(result.Updates, Sample{T: opts.TStart, X: x0.Clone(), U: u0.Clone(), Ref: ref0.Clone()})
			stepper.StopAt(zoh.next())
		}
		s.record(result, opts.TStart, x0.Clone(), u0, ref0)
	}

	log := s.logger.With(zap.String("method", s.pair.Name()))
	for stepper.Phase() == integrators.Running {
		select {
		case <-ctx.Done():
			stepper.Fail(ctx.Err())
			continue
		default:
		}

		tPrev := stepper.T()
		ev, err := stepper.Step()
		if err != nil {
			break
		}

		switch ev {
		case integrators.Rejected:
			log.Debug("step rejected",
				zap.Float64("t", tPrev),
				zap.Float64("err", stepper.LastErrorNorm()),
				zap.Float64("h_next", stepper.H()),
			)
		case integrators.Accepted:
			if err := s.commit(stepper, integ, zoh, tPrev, result); err != nil {
				stepper.Fail(err)
			}
		}
	}

	result.Stats = stepper.Stats()
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	switch {
	case stepper.Phase() == integrators.Failed:
		result.Status = StatusFailed
		result.Err = stepper.Err()
	case stepper.Outcome() == integrators.Truncated:
		result.Status = StatusTruncated
	default:
		result.Status = StatusSuccess
	}

	fields := []zap.Field{
		zap.Stringer("status", result.Status),
		zap.Int("samples", len(result.Samples)),
		zap.Int("attempts", result.Stats.Attempts),
		zap.Int("rejected", result.Stats.Rejected),
		zap.Float64("t", stepper.T()),
	}
	if zoh != nil {
		fields = append(fields, zap.Int("updates", len(result.Updates)))
	}
	if result.Err != nil {
		log.Warn("simulation failed", append(fields, zap.Error(result.Err))...)
	} else {
		log.Info("simulation finished", fields...)
	}
	return result, result.Err
}

// rhs evaluates the closed loop at a stage. The controller sees a copy of
// the committed integral with dt = 0, so stage evaluations and rejected
// attempts never change the memory.
func (s *Simulator) rhs(integ *control.IntegralState) integrators.RHS {
	return func(t float64, x dynamo.State) (dynamo.State, error) {
		scratch := *integ
		u, err := s.ctl.Command(x, s.ref.At(t), 0, &scratch)
		if err != nil {
			return nil, err
		}
		return s.sys.Derive(x, u, t), nil
	}
}

// heldRHS drives the plant with the held control; the controller is not
// consulted between sample instants.
func (s *Simulator) heldRHS(zoh *hold) integrators.RHS {
	return func(t float64, x dynamo.State) (dynamo.State, error) {
		return s.sys.Derive(x, zoh.u, t), nil
	}
}

// commit finalizes an accepted step: project the state, accumulate the
// integral over the step and record the sample. In a sampled-data run the
// controller only runs when the step lands on a sample instant.
func (s *Simulator) commit(stepper *integrators.Stepper, integ *control.IntegralState, zoh *hold, tPrev float64, result *Result) error {
	t := stepper.T()
	x := stepper.State()
	if p, ok := s.sys.(dynamo.Projector); ok {
		x = p.Project(x)
		if err := stepper.Replace(x); err != nil {
			return err
		}
	}
	ref := s.ref.At(t)

	if zoh == nil {
		u, err := s.ctl.Command(x, ref, t-tPrev, integ)
		if err != nil {
			return err
		}
		s.record(result, t, x, u, ref)
		return nil
	}

	if t >= zoh.next() {
		u, err := s.ctl.Command(x, ref, t-zoh.tLast, integ)
		if err != nil {
			return err
		}
		zoh.k++
		zoh.tLast = t
		zoh.u = u
		result.Updates = append(result.Updates, Sample{T: t, X: x.Clone(), U: u.Clone(), Ref: ref.Clone()})
		stepper.StopAt(zoh.next())
	}
	s.record(result, t, x, zoh.u.Clone(), ref)
	return nil
}

func (s *Simulator) record(result *Result, t float64, x dynamo.State, u dynamo.Control, ref dynamo.State) {
	result.Samples = append(result.Samples, Sample{T: t, X: x, U: u, Ref: ref})
	for _, m := range s.metrics {
		m.Observe(x, u, t)
	}
	for _, obs := range s.observers {
		obs.OnStep(x, u, t)
	}
}

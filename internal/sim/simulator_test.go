package sim_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/control"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/physics"
	"github.com/san-kum/lqrsim/internal/reference"
	"github.com/san-kum/lqrsim/internal/sim"
)

// integrator is ẋ = u.
type integrator struct{}

func (integrator) Derive(_ dynamo.State, u dynamo.Control, _ float64) dynamo.State {
	return dynamo.State{u[0]}
}
func (integrator) StateDim() int   { return 1 }
func (integrator) ControlDim() int { return 1 }

// recorder wraps a controller and remembers the integral it saw after
// every call.
type recorder struct {
	inner   sim.Controller
	values  []float64
	stages  int
	moved   int
	commits int
}

func (r *recorder) Command(x, ref dynamo.State, dt float64, integ *control.IntegralState) (dynamo.Control, error) {
	before := integ.Value
	u, err := r.inner.Command(x, ref, dt, integ)
	if dt == 0 {
		r.stages++
		if integ.Value != before {
			r.moved++
		}
	} else {
		r.commits++
	}
	r.values = append(r.values, integ.Value)
	return u, err
}

// broken fails every command.
type broken struct{}

func (broken) Command(dynamo.State, dynamo.State, float64, *control.IntegralState) (dynamo.Control, error) {
	return nil, errBroken
}

var errBroken = errors.New("controller offline")

func oscillatorSim(opts ...sim.Option) *sim.Simulator {
	return weightedOscillatorSim([]float64{1, 1}, 1, opts...)
}

func weightedOscillatorSim(q []float64, r float64, opts ...sim.Option) *sim.Simulator {
	osc, err := physics.NewOscillator(1)
	Expect(err).NotTo(HaveOccurred())
	lin := osc.Linearize()

	gain, err := control.NewLQR(lin.A, lin.B, mat.NewDiagDense(2, q), mat.NewDiagDense(1, []float64{r}))
	Expect(err).NotTo(HaveOccurred())
	ctl, err := control.NewController(gain, control.FullState(2), 1)
	Expect(err).NotTo(HaveOccurred())

	return sim.New(osc, ctl, reference.Constant{0, 0}, opts...)
}

func oscillatorOptions() dynamo.Options {
	return dynamo.Options{TStart: 0, TEnd: 1, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-8, MaxIter: 100000}
}

// closedLoop is the analytic response of ẍ = −x − k1·x − k2·ẋ from (x0, 0).
func closedLoop(k1, k2, x0, t float64) (float64, float64) {
	wn2 := 1 + k1
	sigma := k2 / 2
	wd := math.Sqrt(wn2 - sigma*sigma)
	env := math.Exp(-sigma * t)
	pos := x0 * env * (math.Cos(wd*t) + sigma/wd*math.Sin(wd*t))
	vel := -x0 * env * wn2 / wd * math.Sin(wd*t)
	return pos, vel
}

var _ = Describe("Simulator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("harmonic oscillator under LQR", func() {
		It("drives a unit state below 1e-3 by t_end and ends exactly there", func() {
			// 1 + k1 = sqrt(1 + q1/r) = 400, k2² = q2/r + 2·399: poles at
			// −14.1 ± 14.1i.
			s := weightedOscillatorSim([]float64{1599.99, 0.02}, 0.01)
			x0 := dynamo.State{1, 0}

			res, err := s.Run(ctx, x0, oscillatorOptions())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(sim.StatusSuccess))
			Expect(res.Method).To(Equal("dopri5"))

			final := res.Final()
			Expect(final.T).To(Equal(1.0))
			Expect(final.X.Norm()).To(BeNumerically("<", 1e-3))

			// early on the state is still far from the target
			mid, err := sim.Resample(res.Samples, 0.1, 1, 0.1)
			Expect(err).NotTo(HaveOccurred())
			Expect(mid[0].X.Norm()).To(BeNumerically(">", 1e-2))
			for _, smp := range res.Samples {
				Expect(smp.Ref).To(Equal(dynamo.State{0, 0}))
			}
		})

		It("matches the analytic closed-loop response", func() {
			k1, k2 := math.Sqrt2-1, math.Sqrt(2*math.Sqrt2-1)
			o := oscillatorOptions()
			o.Epsilon = 1e-10
			res, err := oscillatorSim().Run(ctx, dynamo.State{1, 0}, o)
			Expect(err).NotTo(HaveOccurred())

			for _, smp := range res.Samples {
				pos, vel := closedLoop(k1, k2, 1, smp.T)
				Expect(smp.X[0]).To(BeNumerically("~", pos, 1e-6))
				Expect(smp.X[1]).To(BeNumerically("~", vel, 1e-6))
				Expect(smp.U[0]).To(BeNumerically("~", -k1*smp.X[0]-k2*smp.X[1], 1e-8))
			}
		})

		It("produces identical trajectories on repeated runs", func() {
			s := oscillatorSim()
			a, err := s.Run(ctx, dynamo.State{1e-3, 0}, oscillatorOptions())
			Expect(err).NotTo(HaveOccurred())
			b, err := s.Run(ctx, dynamo.State{1e-3, 0}, oscillatorOptions())
			Expect(err).NotTo(HaveOccurred())

			Expect(b.Samples).To(Equal(a.Samples))
			Expect(b.Stats).To(Equal(a.Stats))
		})

		It("records strictly increasing times even when steps are rejected", func() {
			o := oscillatorOptions()
			o.HStart = 1
			o.Epsilon = 1e-10

			res, err := oscillatorSim().Run(ctx, dynamo.State{1, 0}, o)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stats.Rejected).To(BeNumerically(">", 0))
			Expect(res.Len()).To(Equal(res.Stats.Accepted + 1))

			ts := res.Times()
			Expect(ts[0]).To(Equal(0.0))
			for i := 1; i < len(ts); i++ {
				Expect(ts[i]).To(BeNumerically(">", ts[i-1]))
			}
		})

		It("truncates without error when maxiter runs out", func() {
			o := oscillatorOptions()
			o.MaxIter = 1

			res, err := oscillatorSim().Run(ctx, dynamo.State{1e-3, 0}, o)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(sim.StatusTruncated))
			Expect(res.Len()).To(BeNumerically("<=", 2))
			Expect(res.Final().T).To(BeNumerically("<", 1))
		})

		It("fails with a partial result when the step size underflows", func() {
			o := oscillatorOptions()
			o.Epsilon = 1e-14
			o.HStart = 0.5
			o.HMin = 0.5

			res, err := oscillatorSim().Run(ctx, dynamo.State{1, 0}, o)
			Expect(errors.Is(err, dynamo.ErrStepSizeUnderflow)).To(BeTrue())
			Expect(res).NotTo(BeNil())
			Expect(res.Status).To(Equal(sim.StatusFailed))
			Expect(res.Err).To(Equal(err))
			Expect(res.Len()).To(BeNumerically(">=", 1))
			Expect(res.Samples[0].X).To(Equal(dynamo.State{1, 0}))

			var se *dynamo.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
		})

		It("stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			res, err := oscillatorSim().Run(cctx, dynamo.State{1e-3, 0}, oscillatorOptions())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(res.Status).To(Equal(sim.StatusFailed))
			Expect(res.Len()).To(Equal(1))
		})

		It("rejects an initial state of the wrong size", func() {
			res, err := oscillatorSim().Run(ctx, dynamo.State{1, 0, 0}, oscillatorOptions())
			Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
			Expect(res).To(BeNil())
		})

		It("rejects invalid options before integrating", func() {
			o := oscillatorOptions()
			o.HMin = 0
			res, err := oscillatorSim().Run(ctx, dynamo.State{1, 0}, o)
			Expect(errors.Is(err, dynamo.ErrInvalidOptions)).To(BeTrue())
			Expect(res).To(BeNil())
		})
	})

	Context("sampled-data control", func() {
		const ts = 0.1

		It("evaluates the controller only on sample instants and holds it", func() {
			o := oscillatorOptions()
			res, err := oscillatorSim(sim.WithSampleTime(ts)).Run(ctx, dynamo.State{1, 0}, o)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(sim.StatusSuccess))
			Expect(res.SampleTime).To(Equal(ts))

			Expect(res.Updates).To(HaveLen(11))
			for k, upd := range res.Updates {
				Expect(upd.T).To(BeNumerically("~", float64(k)*ts, 1e-12))
				Expect(upd.Ref).To(Equal(dynamo.State{0, 0}))
			}

			k := 0
			for _, smp := range res.Samples {
				for k+1 < len(res.Updates) && res.Updates[k+1].T <= smp.T {
					k++
				}
				Expect(smp.U).To(Equal(res.Updates[k].U))
			}
			Expect(len(res.Samples)).To(BeNumerically(">", len(res.Updates)))
		})

		It("matches the exact zero-order-hold discretization", func() {
			k1, k2 := math.Sqrt2-1, math.Sqrt(2*math.Sqrt2-1)
			o := oscillatorOptions()
			o.Epsilon = 1e-11

			res, err := oscillatorSim(sim.WithSampleTime(ts)).Run(ctx, dynamo.State{1, 0}, o)
			Expect(err).NotTo(HaveOccurred())

			// exp([A B; 0 0]·ts) = [Ad Bd; 0 I]
			m := mat.NewDense(3, 3, []float64{0, ts, 0, -ts, 0, ts, 0, 0, 0})
			var e mat.Dense
			e.Exp(m)

			x := []float64{1, 0}
			for _, upd := range res.Updates {
				Expect(upd.X[0]).To(BeNumerically("~", x[0], 1e-8))
				Expect(upd.X[1]).To(BeNumerically("~", x[1], 1e-8))
				u := -k1*x[0] - k2*x[1]
				Expect(upd.U[0]).To(BeNumerically("~", u, 1e-8))
				x = []float64{
					e.At(0, 0)*x[0] + e.At(0, 1)*x[1] + e.At(0, 2)*u,
					e.At(1, 0)*x[0] + e.At(1, 1)*x[1] + e.At(1, 2)*u,
				}
			}
		})

		It("accumulates the integral once per sample period", func() {
			gain, err := control.NewGain([][]float64{{0}})
			Expect(err).NotTo(HaveOccurred())
			ctl, err := control.NewController(gain, control.FullState(1), 1, control.WithAltitude(control.AltitudeLoop{
				Gains:       control.PIGains{Ki: 1},
				MaxIntegral: 100,
				Index:       0,
				RateIndex:   -1,
			}))
			Expect(err).NotTo(HaveOccurred())
			rec := &recorder{inner: ctl}

			s := sim.New(integrator{}, rec, reference.Constant{1}, sim.WithSampleTime(ts))
			res, err := s.Run(ctx, dynamo.State{0}, dynamo.Options{TEnd: 1, Epsilon: 1e-8, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000})
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.stages).To(Equal(1))
			Expect(rec.commits).To(Equal(len(res.Updates) - 1))
			// u0 = 0 holds x at 0, so the first update adds exactly 1·ts
			Expect(rec.values[1]).To(BeNumerically("~", 0.1, 1e-12))
		})

		It("rejects a negative sample time", func() {
			res, err := oscillatorSim(sim.WithSampleTime(-ts)).Run(ctx, dynamo.State{1, 0}, oscillatorOptions())
			Expect(errors.Is(err, dynamo.ErrInvalidOptions)).To(BeTrue())
			Expect(res).To(BeNil())
		})
	})

	Context("integral memory", func() {
		var rec *recorder

		BeforeEach(func() {
			gain, err := control.NewGain([][]float64{{0}})
			Expect(err).NotTo(HaveOccurred())
			ctl, err := control.NewController(gain, control.FullState(1), 1, control.WithAltitude(control.AltitudeLoop{
				Gains:       control.PIGains{Ki: 1},
				MaxIntegral: 0.5,
				Index:       0,
				RateIndex:   -1,
			}))
			Expect(err).NotTo(HaveOccurred())
			rec = &recorder{inner: ctl}
		})

		It("stays inside the clamp band for the whole run", func() {
			s := sim.New(integrator{}, rec, reference.Constant{100})
			res, err := s.Run(ctx, dynamo.State{0}, dynamo.Options{TEnd: 2, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(sim.StatusSuccess))

			for _, v := range rec.values {
				Expect(math.Abs(v)).To(BeNumerically("<=", 0.5))
			}
			Expect(rec.values[len(rec.values)-1]).To(Equal(0.5))
			Expect(res.Final().U[0]).To(Equal(0.5))
		})

		It("is not advanced by stage evaluations", func() {
			s := sim.New(integrator{}, rec, reference.Constant{100})
			_, err := s.Run(ctx, dynamo.State{0}, dynamo.Options{TEnd: 1, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000})
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.stages).To(BeNumerically(">", 0))
			Expect(rec.moved).To(BeZero())
		})

		It("starts from zero on every run", func() {
			s := sim.New(integrator{}, rec, reference.Constant{100})
			o := dynamo.Options{TEnd: 1, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000}
			_, err := s.Run(ctx, dynamo.State{0}, o)
			Expect(err).NotTo(HaveOccurred())

			rec.values = nil
			_, err = s.Run(ctx, dynamo.State{0}, o)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values[0]).To(BeZero())
		})
	})

	Context("quadrotor", func() {
		var (
			drone *physics.Drone
			ctl   *control.Controller
		)

		BeforeEach(func() {
			var err error
			drone, err = physics.NewDrone(physics.DefaultDroneParams())
			Expect(err).NotTo(HaveOccurred())

			lin := drone.Linearize()
			q := mat.NewDiagDense(6, []float64{10, 10, 10, 0.1, 0.1, 0.1})
			r := mat.NewDiagDense(3, []float64{1, 1, 1})
			gain, err := control.NewLQR(lin.A, lin.B, q, r)
			Expect(err).NotTo(HaveOccurred())

			p := drone.Params()
			ctl, err = control.NewController(gain,
				control.AttitudeError{Quat: physics.IdxQuat, Rate: physics.IdxRate},
				physics.DroneControlDim,
				control.WithChannels(1, 2, 3),
				control.WithAltitude(control.AltitudeLoop{
					Gains:       control.PIGains{Kp: 6, Ki: 0.5, Kd: 4, Kff: drone.HoverThrust()},
					MaxIntegral: 1,
					Index:       physics.IdxPos + 2,
					RateIndex:   physics.IdxVel + 2,
					Channel:     physics.CtlThrust,
				}),
				control.WithLimits(
					control.Limit{Min: 0, Max: p.MaxThrust},
					control.Limit{Min: -p.MaxTorque, Max: p.MaxTorque},
					control.Limit{Min: -p.MaxTorque, Max: p.MaxTorque},
					control.Limit{Min: -p.MaxTorque, Max: p.MaxTorque},
				),
			)
			Expect(err).NotTo(HaveOccurred())
		})

		It("levels out from a roll step and climbs to the target altitude", func() {
			s := sim.New(drone, ctl, reference.Hover([3]float64{0, 0, 1}))
			x0 := reference.Pose{Roll: 10}.DroneState()

			res, err := s.Run(ctx, x0, dynamo.Options{TEnd: 5, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(sim.StatusSuccess))

			final := res.Final().X
			q := attitude.FromSlice(final, physics.IdxQuat)
			Expect(attitude.Angle(q)).To(BeNumerically("<", attitude.Deg(1)))
			Expect(final[physics.IdxPos+2]).To(BeNumerically("~", 1, 0.2))
		})

		It("keeps the quaternion on the unit sphere", func() {
			s := sim.New(drone, ctl, reference.Hover([3]float64{0, 0, 0}))
			x0 := reference.Pose{Roll: 5, Pitch: -5, Yaw: 30}.DroneState()

			res, err := s.Run(ctx, x0, dynamo.Options{TEnd: 2, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000})
			Expect(err).NotTo(HaveOccurred())
			for _, smp := range res.Samples {
				q := attitude.FromSlice(smp.X, physics.IdxQuat)
				n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
				Expect(n).To(BeNumerically("~", 1, 1e-12))
			}
		})

		It("respects actuator limits on every recorded sample", func() {
			s := sim.New(drone, ctl, reference.Hover([3]float64{0, 0, 3}))
			res, err := s.Run(ctx, drone.HoverState([3]float64{}), dynamo.Options{TEnd: 1, Epsilon: 1e-6, HStart: 1e-3, HMin: 1e-10, MaxIter: 100000})
			Expect(err).NotTo(HaveOccurred())

			p := drone.Params()
			for _, smp := range res.Samples {
				Expect(smp.U[physics.CtlThrust]).To(BeNumerically(">=", 0))
				Expect(smp.U[physics.CtlThrust]).To(BeNumerically("<=", p.MaxThrust))
				for i := 1; i < 4; i++ {
					Expect(math.Abs(smp.U[i])).To(BeNumerically("<=", p.MaxTorque))
				}
			}
		})
	})

	Context("open loop", func() {
		It("applies a fixed control", func() {
			s := sim.New(integrator{}, sim.OpenLoop{2}, reference.Constant{0})
			res, err := s.Run(ctx, dynamo.State{0}, dynamo.Options{TEnd: 1, Epsilon: 1e-8, HStart: 1e-2, HMin: 1e-10, MaxIter: 1000})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Final().X[0]).To(BeNumerically("~", 2, 1e-9))
		})
	})

	Context("logging", func() {
		It("reports the finished run with its method and sample count", func() {
			core, logs := observer.New(zapcore.DebugLevel)
			s := oscillatorSim(sim.WithLogger(zap.New(core)))

			res, err := s.Run(ctx, dynamo.State{1, 0}, oscillatorOptions())
			Expect(err).NotTo(HaveOccurred())

			done := logs.FilterMessage("simulation finished").All()
			Expect(done).To(HaveLen(1))
			Expect(done[0].Level).To(Equal(zapcore.InfoLevel))
			fields := done[0].ContextMap()
			Expect(fields["method"]).To(Equal("dopri5"))
			Expect(fields["status"]).To(Equal("success"))
			Expect(fields["samples"]).To(BeEquivalentTo(len(res.Samples)))
			Expect(logs.FilterMessage("step rejected").Len()).To(Equal(res.Stats.Rejected))
		})

		It("warns with the error when the run fails", func() {
			core, logs := observer.New(zapcore.WarnLevel)
			s := sim.New(integrator{}, broken{}, reference.Constant{0}, sim.WithLogger(zap.New(core)))

			res, err := s.Run(ctx, dynamo.State{0}, dynamo.Options{TEnd: 1, Epsilon: 1e-6, HStart: 1e-2, HMin: 1e-10, MaxIter: 100})
			Expect(errors.Is(err, errBroken)).To(BeTrue())
			Expect(res.Status).To(Equal(sim.StatusFailed))

			failed := logs.FilterMessage("simulation failed").All()
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].ContextMap()["error"]).To(ContainSubstring("controller offline"))
		})
	})
})

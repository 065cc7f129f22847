package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/sim"
)

var _ = Describe("Ensemble", func() {
	It("returns one result per job in job order", func() {
		o := oscillatorOptions()
		var jobs []sim.Job
		for _, x := range []float64{1e-3, 2e-3, 3e-3, 4e-3} {
			jobs = append(jobs, sim.Job{Sim: oscillatorSim(), X0: dynamo.State{x, 0}, Opts: o})
		}

		results, err := sim.NewEnsemble(2, jobs...).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(4))

		for i, res := range results {
			Expect(res.Status).To(Equal(sim.StatusSuccess))
			Expect(res.Samples[0].X[0]).To(Equal(jobs[i].X0[0]))
		}
	})

	It("matches sequential runs", func() {
		o := oscillatorOptions()
		seq, err := oscillatorSim().Run(context.Background(), dynamo.State{1e-3, 0}, o)
		Expect(err).NotTo(HaveOccurred())

		results, err := sim.NewEnsemble(0,
			sim.Job{Sim: oscillatorSim(), X0: dynamo.State{1e-3, 0}, Opts: o},
			sim.Job{Sim: oscillatorSim(), X0: dynamo.State{1e-3, 0}, Opts: o},
		).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		for _, res := range results {
			Expect(res.Samples).To(Equal(seq.Samples))
		}
	})

	It("keeps partial results of failed runs", func() {
		bad := oscillatorOptions()
		bad.Epsilon, bad.HStart, bad.HMin = 1e-14, 0.5, 0.5

		results, err := sim.NewEnsemble(0,
			sim.Job{Sim: oscillatorSim(), X0: dynamo.State{1, 0}, Opts: bad},
			sim.Job{Sim: oscillatorSim(), X0: dynamo.State{1e-3, 0}, Opts: oscillatorOptions()},
		).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Status).To(Equal(sim.StatusFailed))
		Expect(errors.Is(results[0].Err, dynamo.ErrStepSizeUnderflow)).To(BeTrue())
		Expect(results[1].Status).To(Equal(sim.StatusSuccess))
	})

	It("aborts when a job cannot start", func() {
		_, err := sim.NewEnsemble(0,
			sim.Job{Sim: oscillatorSim(), X0: dynamo.State{1}, Opts: oscillatorOptions()},
		).Run(context.Background())
		Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	})
})

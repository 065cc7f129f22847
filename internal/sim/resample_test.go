package sim_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/sim"
)

var _ = Describe("Resample", func() {
	samples := []sim.Sample{
		{T: 0, X: dynamo.State{0, 10}, U: dynamo.Control{1}},
		{T: 0.3, X: dynamo.State{3, 10}, U: dynamo.Control{1}},
		{T: 1, X: dynamo.State{10, 0}, U: dynamo.Control{-1}},
	}

	It("interpolates linearly between accepted steps", func() {
		out, err := sim.Resample(samples, 0, 0.25, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(5))

		Expect(out[0].X).To(Equal(dynamo.State{0, 10}))
		Expect(out[1].T).To(Equal(0.25))
		Expect(out[1].X[0]).To(BeNumerically("~", 2.5, 1e-12))
		Expect(out[2].X[0]).To(BeNumerically("~", 5, 1e-12))
		Expect(out[2].X[1]).To(BeNumerically("~", 10-10*0.2/0.7, 1e-12))
		Expect(out[4].X).To(Equal(dynamo.State{10, 0}))
		Expect(out[4].U).To(Equal(dynamo.Control{-1}))
	})

	It("holds the reference of the earlier step", func() {
		withRef := []sim.Sample{
			{T: 0, X: dynamo.State{0}, U: dynamo.Control{0}, Ref: dynamo.State{1}},
			{T: 1, X: dynamo.State{1}, U: dynamo.Control{0}, Ref: dynamo.State{2}},
		}
		out, err := sim.Resample(withRef, 0, 0.5, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(3))
		Expect(out[1].Ref).To(Equal(dynamo.State{1}))
		Expect(out[2].Ref).To(Equal(dynamo.State{2}))

		plain, err := sim.Resample(samples, 0, 0.5, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(plain[1].Ref).To(BeNil())
	})

	It("drops grid points outside the recorded span", func() {
		out, err := sim.Resample(samples, -1, 0.5, 2)
		Expect(err).NotTo(HaveOccurred())
		ts := make([]float64, len(out))
		for i, s := range out {
			ts[i] = s.T
		}
		Expect(ts).To(Equal([]float64{0, 0.5, 1}))
	})

	It("does not alias the input", func() {
		out, err := sim.Resample(samples, 0, 1, 1)
		Expect(err).NotTo(HaveOccurred())
		out[0].X[0] = 42
		Expect(samples[0].X[0]).To(BeZero())
	})

	It("rejects a non-positive step", func() {
		_, err := sim.Resample(samples, 0, 0, 1)
		Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())
	})

	It("returns nothing for an empty trajectory", func() {
		out, err := sim.Resample(nil, 0, 0.1, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})
})

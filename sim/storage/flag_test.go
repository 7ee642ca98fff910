package storage

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

var _ = Describe("Flag", func() {
	var (
		k    *timing.Kernel
		flag *Flag
	)

	BeforeEach(func() {
		k = timing.NewKernel()
		flag = MakeFlagBuilder().WithKernel(k).Build("Flag")
	})

	It("should apply the initial value at the first step", func() {
		id := k.RegisterComponent("Waiter", naming.NoObject,
			compFunc(func(timing.Phase, int) timing.Result {
				return timing.Succeeded
			}), "Main")
		waiter := timing.Source{Component: id}

		initial := MakeFlagBuilder().
			WithKernel(k).
			WithInitialValue(true).
			Build("Initial")
		initial.Sensitive(waiter)

		Expect(initial.IsSet()).To(BeFalse())
		Expect(k.IsScheduled(k.ProcessOf(waiter))).To(BeFalse())

		k.Step(0)

		Expect(initial.IsSet()).To(BeTrue())
		Expect(k.IsScheduled(k.ProcessOf(waiter))).To(BeTrue())
	})

	It("should change at most once per cycle", func() {
		var results [][2]bool

		register(k, "Toggler", func(timing.Phase, int) timing.Result {
			set := flag.Set()
			cleared := flag.Clear()
			results = append(results, [2]bool{set, cleared})

			return timing.Succeeded
		})

		Expect(k.Step(1)).To(Equal(timing.Running))
		Expect(results).To(Equal([][2]bool{
			{true, true},
			{true, false},
			{true, false},
		}))
		Expect(flag.IsSet()).To(BeTrue())
	})

	It("should stop its processes when cleared", func() {
		_, run := register(k, "Once", func(timing.Phase, int) timing.Result {
			return timing.Succeeded
		})

		k.Step(0)
		Expect(run.IsSet()).To(BeTrue())

		Expect(run.Clear()).To(BeTrue())
		Expect(run.Set()).To(BeFalse())

		Expect(k.Step(1)).To(Equal(timing.Idle))
		Expect(run.IsSet()).To(BeFalse())
	})
})

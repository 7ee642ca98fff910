package timing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/naming"
)

// counter is a storage holding a number. It is non-empty while the number is
// positive.
type counter struct {
	StorageBase

	level   int
	delta   int
	updates int
}

func newCounter(k *Kernel, name string) *counter {
	c := &counter{}
	c.StorageBase = MakeStorageBase(k, naming.NoObject, name, c)

	return c
}

func (c *counter) Add(n int) {
	switch c.BeginMutation("add") {
	case AccessProbe:
		return
	case AccessIntent:
		c.RecordIntent(0, n)
		return
	case AccessStage:
		c.ConsumeIntent(0, n)
	}

	c.delta += n
	c.RegisterUpdate()
}

func (c *counter) Update() {
	was := c.level
	c.level += c.delta
	c.delta = 0
	c.updates++

	switch {
	case was <= 0 && c.level > 0:
		c.Notify()
	case was > 0 && c.level <= 0:
		c.Unnotify()
	}
}

func beViolation() OmegaMatcher {
	return PanicWith(BeAssignableToTypeOf(&ContractViolation{}))
}

var _ = Describe("Kernel", func() {
	var (
		mockCtrl *gomock.Controller
		k        *Kernel
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		k = NewKernel()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start in the commit phase", func() {
		Expect(k.Phase()).To(Equal(PhaseCommit))
		Expect(k.CycleNumber()).To(Equal(uint64(0)))
	})

	It("should be idle when nothing is populated", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})

		Expect(k.Step(10)).To(Equal(Idle))
		Expect(k.Step(InfiniteCycles)).To(Equal(Idle))
		Expect(k.CycleNumber()).To(Equal(uint64(0)))
		Expect(k.ExecutedCycles()).To(Equal(uint64(0)))
	})

	It("should apply wiring writes at the first step", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})

		c.Add(1)
		Expect(c.level).To(Equal(0))

		comp.EXPECT().
			Cycle(gomock.Any(), 0).
			DoAndReturn(func(Phase, int) Result {
				c.Add(-1)
				return Succeeded
			}).
			Times(3)

		Expect(k.Step(1)).To(Equal(Running))
		Expect(k.CycleNumber()).To(Equal(uint64(1)))
		Expect(c.level).To(Equal(0))
		Expect(k.Process(0).State()).To(Equal(Idle))
		Expect(k.Process(0).Commits()).To(Equal(uint64(1)))

		Expect(k.Step(1)).To(Equal(Idle))
		Expect(k.CycleNumber()).To(Equal(uint64(1)))
	})

	It("should run phases across all processes in run queue order", func() {
		compA := NewMockComponent(mockCtrl)
		compB := NewMockComponent(mockCtrl)
		a := k.RegisterComponent("A", naming.NoObject, compA, "Main")
		b := k.RegisterComponent("B", naming.NoObject, compB, "Main")
		ca := newCounter(k, "CounterA")
		cb := newCounter(k, "CounterB")
		ca.Sensitive(Source{Component: a})
		cb.Sensitive(Source{Component: b})

		ca.Add(1)
		cb.Add(1)

		var calls []string
		record := func(name string, c *counter) func(Phase, int) Result {
			return func(p Phase, _ int) Result {
				calls = append(calls, name+p.String())
				c.Add(-1)

				return Succeeded
			}
		}

		compA.EXPECT().Cycle(gomock.Any(), 0).
			DoAndReturn(record("A", ca)).Times(3)
		compB.EXPECT().Cycle(gomock.Any(), 0).
			DoAndReturn(record("B", cb)).Times(3)

		Expect(k.Step(1)).To(Equal(Running))

		Expect(calls).To(Equal([]string{
			"BAcquire", "AAcquire",
			"BCheck", "ACheck",
			"BCommit", "ACommit",
		}))
	})

	It("should report the run queue newest activation first", func() {
		comps := make([]*MockComponent, 3)
		counters := make([]*counter, 3)

		for i := range comps {
			comps[i] = NewMockComponent(mockCtrl)
			id := k.RegisterComponent(
				naming.BuildNameWithIndex("", "Comp", i),
				naming.NoObject, comps[i], "Main")
			counters[i] = newCounter(k, naming.BuildNameWithIndex("", "Counter", i))
			counters[i].Sensitive(Source{Component: id})
		}

		counters[1].Add(1)
		counters[0].Add(1)
		counters[2].Add(1)

		Expect(k.Step(0)).To(Equal(Running))
		Expect(k.RunQueue()).To(Equal([]ProcessID{2, 0, 1}))
	})

	It("should keep a process scheduled while any sensitivity is non-empty", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		ca := newCounter(k, "CounterA")
		cb := newCounter(k, "CounterB")
		ca.Sensitive(Source{Component: id})
		cb.Sensitive(Source{Component: id})

		ca.Add(1)
		cb.Add(2)

		Expect(k.Step(0)).To(Equal(Running))
		Expect(k.Process(0).Activations()).To(Equal(uint(2)))

		comp.EXPECT().Cycle(gomock.Any(), 0).
			DoAndReturn(func(Phase, int) Result {
				ca.Add(-1)
				return Succeeded
			}).Times(3)

		Expect(k.Step(1)).To(Equal(Running))
		Expect(k.IsScheduled(0)).To(BeTrue())
		Expect(k.Process(0).Activations()).To(Equal(uint(1)))

		comp.EXPECT().Cycle(gomock.Any(), 0).
			DoAndReturn(func(Phase, int) Result {
				cb.Add(-2)
				return Succeeded
			}).Times(3)

		Expect(k.Step(1)).To(Equal(Running))
		Expect(k.IsScheduled(0)).To(BeFalse())
		Expect(k.Process(0).Activations()).To(Equal(uint(0)))
		Expect(k.Process(0).State()).To(Equal(Idle))
	})

	It("should report a deadlock when nothing commits", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})
		c.Add(1)

		hook := NewMockHook(mockCtrl)
		k.AcceptHook(hook)

		var report DeadlockReport
		hook.EXPECT().Func(gomock.Any()).
			Do(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosProcessDeadlock {
					report = ctx.Detail.(DeadlockReport)
				}
			}).AnyTimes()

		comp.EXPECT().Cycle(PhaseAcquire, 0).
			DoAndReturn(func(Phase, int) Result {
				k.ReportStall(c.ID(), "waiting for nothing")
				return Blocked
			})

		Expect(k.Step(5)).To(Equal(Deadlock))
		Expect(k.CycleNumber()).To(Equal(uint64(0)))
		Expect(k.ExecutedCycles()).To(Equal(uint64(1)))
		Expect(k.Process(0).State()).To(Equal(Deadlock))
		Expect(k.Process(0).Stalls()).To(Equal(uint64(1)))

		Expect(report.Process).To(BeIdenticalTo(k.Process(0)))
		Expect(report.Phase).To(Equal(PhaseAcquire))
		Expect(report.Reasons).To(HaveLen(1))
		Expect(report.Reasons[0].String()).
			To(Equal("[00000000:Counter] waiting for nothing"))
	})

	It("should not call commit after a blocked check", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})
		c.Add(1)

		comp.EXPECT().Cycle(PhaseAcquire, 0).Return(Succeeded)
		comp.EXPECT().Cycle(PhaseCheck, 0).
			DoAndReturn(func(Phase, int) Result {
				c.Add(-1)
				return Blocked
			})

		Expect(k.Step(1)).To(Equal(Deadlock))
		Expect(c.IntentCount(0)).To(Equal(0))
		Expect(c.level).To(Equal(1))
	})

	It("should abort at the next cycle boundary", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})
		c.Add(1)

		commits := 0
		comp.EXPECT().Cycle(gomock.Any(), 0).
			DoAndReturn(func(p Phase, _ int) Result {
				if p == PhaseCommit {
					commits++
					if commits == 3 {
						k.Abort()
					}
				}

				return Succeeded
			}).AnyTimes()

		Expect(k.Step(InfiniteCycles)).To(Equal(Aborted))
		Expect(k.CycleNumber()).To(Equal(uint64(3)))

		Expect(k.Step(2)).To(Equal(Running))
		Expect(k.CycleNumber()).To(Equal(uint64(5)))
	})

	It("should abort before running any cycle", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})
		c.Add(1)

		k.Abort()

		Expect(k.Step(InfiniteCycles)).To(Equal(Aborted))
		Expect(k.ExecutedCycles()).To(Equal(uint64(0)))
	})

	Context("when a component breaks the protocol", func() {
		var (
			comp *MockComponent
			c    *counter
		)

		BeforeEach(func() {
			comp = NewMockComponent(mockCtrl)
			id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
			c = newCounter(k, "Counter")
			c.Sensitive(Source{Component: id})
			c.Add(1)
		})

		It("should reject nothing to do", func() {
			comp.EXPECT().Cycle(PhaseAcquire, 0).Return(NothingToDo)

			Expect(func() { k.Step(1) }).To(beViolation())
		})

		It("should reject a failing commit", func() {
			comp.EXPECT().Cycle(PhaseAcquire, 0).Return(Succeeded)
			comp.EXPECT().Cycle(PhaseCheck, 0).Return(Succeeded)
			comp.EXPECT().Cycle(PhaseCommit, 0).Return(Blocked)

			Expect(func() { k.Step(1) }).To(beViolation())
		})

		It("should reject a check intent that commit did not make", func() {
			comp.EXPECT().Cycle(gomock.Any(), 0).
				DoAndReturn(func(p Phase, _ int) Result {
					if p == PhaseCheck {
						c.Add(-1)
					}

					return Succeeded
				}).Times(3)

			Expect(func() { k.Step(1) }).To(beViolation())
		})

		It("should reject a commit that stages a different change than check", func() {
			comp.EXPECT().Cycle(gomock.Any(), 0).
				DoAndReturn(func(p Phase, _ int) Result {
					switch p {
					case PhaseCheck:
						c.Add(-1)
					case PhaseCommit:
						c.Add(-2)
					}

					return Succeeded
				}).Times(3)

			var violation *ContractViolation

			func() {
				defer func() {
					violation = recover().(*ContractViolation)
				}()
				k.Step(1)
			}()

			Expect(violation.Phase).To(Equal(PhaseCommit))
			Expect(violation.Error()).
				To(ContainSubstring("Commit staged -2 to Counter where Check staged -1"))
			Expect(c.level).To(Equal(1))
		})

		It("should reject a commit change that check did not announce", func() {
			comp.EXPECT().Cycle(gomock.Any(), 0).
				DoAndReturn(func(p Phase, _ int) Result {
					if p == PhaseCommit {
						c.Add(-1)
					}

					return Succeeded
				}).Times(3)

			Expect(func() { k.Step(1) }).To(beViolation())
		})
	})

	It("should reject mutation by a process that is not a writer", func() {
		compA := NewMockComponent(mockCtrl)
		compB := NewMockComponent(mockCtrl)
		a := k.RegisterComponent("A", naming.NoObject, compA, "Main")
		b := k.RegisterComponent("B", naming.NoObject, compB, "Main")
		trigger := newCounter(k, "Trigger")
		trigger.Sensitive(Source{Component: b})
		trigger.Add(1)

		owned := newCounter(k, "Owned")
		owned.AllowWriters(Source{Component: a})

		compB.EXPECT().Cycle(PhaseAcquire, 0).
			DoAndReturn(func(Phase, int) Result {
				owned.Add(1)
				return Succeeded
			})

		var violation *ContractViolation

		func() {
			defer func() {
				violation = recover().(*ContractViolation)
			}()
			k.Step(1)
		}()

		Expect(violation.Process).To(Equal("B:Main"))
		Expect(violation.Phase).To(Equal(PhaseAcquire))
		Expect(violation.Error()).To(ContainSubstring("not a writer"))
	})

	It("should forbid wiring after the simulation started", func() {
		comp := NewMockComponent(mockCtrl)
		id := k.RegisterComponent("Comp", naming.NoObject, comp, "Main")
		c := newCounter(k, "Counter")
		c.Sensitive(Source{Component: id})
		c.Add(1)

		comp.EXPECT().Cycle(gomock.Any(), 0).
			DoAndReturn(func(Phase, int) Result {
				c.Add(-1)
				return Succeeded
			}).Times(3)
		k.Step(1)

		Expect(func() {
			k.RegisterComponent("Late", naming.NoObject, comp, "Main")
		}).To(Panic())
		Expect(func() { newCounter(k, "Late") }).To(Panic())
	})

	It("should keep the objects it refers to in the hierarchy", func() {
		comp := NewMockComponent(mockCtrl)
		parent := k.Objects().Add(naming.NoObject, "Chip")
		id := k.RegisterComponent("Core", parent, comp, "Main")
		c := newCounter(k, "Counter")
		spare := k.Objects().Add(parent, "Spare")

		Expect(func() { k.Objects().Remove(id) }).To(Panic())
		Expect(func() { k.Objects().Remove(parent) }).To(Panic())
		Expect(func() { k.Objects().Remove(c.ID()) }).To(Panic())

		k.Objects().Remove(spare)

		Expect(k.Objects().Exists(spare)).To(BeFalse())
		Expect(k.Process(0).Name()).To(Equal("Chip.Core:Main"))
		Expect(c.Name()).To(Equal("Counter"))
	})

	It("should create one process per state", func() {
		comp := NewMockComponent(mockCtrl)
		parent := k.Objects().Add(naming.NoObject, "Chip")
		id := k.RegisterComponent("Core", parent, comp, "Fetch", "Decode")

		Expect(k.Processes()).To(HaveLen(2))
		Expect(k.Process(k.ProcessOf(Source{Component: id, State: 1})).Name()).
			To(Equal("Chip.Core:Decode"))
		Expect(func() { k.ProcessOf(Source{Component: id, State: 2}) }).
			To(Panic())
		Expect(func() {
			k.RegisterComponent("Empty", parent, comp)
		}).To(Panic())
	})
})

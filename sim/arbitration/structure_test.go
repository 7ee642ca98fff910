package arbitration

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/storage"
	"github.com/sarchlab/cyclesim/sim/timing"
)

var _ = Describe("Structure", func() {
	var (
		k         *timing.Kernel
		structure *Structure[int]
	)

	BeforeEach(func() {
		k = timing.NewKernel()
		structure = MakeStructureBuilder[int]().
			WithKernel(k).
			Build("Mailboxes")
	})

	It("should let the priority writer push into a contended buffer", func() {
		port := structure.NewWritePort("In")
		mailbox := storage.MakeBufferBuilder[string]().
			WithKernel(k).
			WithCapacity(2).
			Build("Mailbox")
		mailbox.GuardWith(port)

		writer := func(payload string) compFunc {
			return func(timing.Phase, int) timing.Result {
				if !port.Invoke(0) {
					return timing.Blocked
				}

				if !mailbox.Push(payload) {
					return timing.Blocked
				}

				return timing.Succeeded
			}
		}

		high, _ := register(k, "High", writer("high"))
		low, _ := register(k, "Low", writer("low"))
		port.SetPriority(high, 1)
		port.SetPriority(low, 2)

		Expect(k.Step(1)).To(Equal(timing.Running))
		Expect(mailbox.Elements()).To(Equal([]string{"high"}))
		Expect(mailbox.Stats().Pushes).To(Equal(uint64(1)))
		Expect(k.Process(k.ProcessOf(low)).State()).To(Equal(timing.Deadlock))
		Expect(k.Process(k.ProcessOf(high)).State()).To(Equal(timing.Running))
		Expect(port.Wins(high)).To(Equal(uint64(1)))
		Expect(port.Wins(low)).To(Equal(uint64(0)))
	})

	It("should let writers of different indices proceed together", func() {
		port := structure.NewWritePort("In")
		won := make(map[int]bool)

		for i := 0; i < 2; i++ {
			index := i
			src, _ := register(k, []string{"A", "B"}[i],
				func(phase timing.Phase, _ int) timing.Result {
					w := port.Invoke(index)
					if phase == timing.PhaseCheck {
						won[index] = w
					}

					return timing.Succeeded
				})
			port.SetPriority(src, i)
		}

		k.Step(1)

		Expect(won).To(Equal(map[int]bool{0: true, 1: true}))
		Expect(port.BusyCycles()).To(Equal(uint64(1)))
		Expect(structure.BusyCycles()).To(Equal(uint64(1)))
	})

	It("should reject a write to an index the writer did not win", func() {
		port := structure.NewWritePort("In")
		slot1 := storage.MakeBufferBuilder[string]().
			WithKernel(k).
			WithCapacity(2).
			Build("Slot1")
		slot1.GuardWith(port.GuardFor(1))

		writer := func(index int, payload string) compFunc {
			return func(timing.Phase, int) timing.Result {
				if !port.Invoke(index) {
					return timing.Blocked
				}

				slot1.Push(payload)

				return timing.Succeeded
			}
		}

		a, _ := register(k, "A", writer(0, "a"))
		b, _ := register(k, "B", writer(1, "b"))
		port.SetPriority(a, 1)
		port.SetPriority(b, 2)

		var violation *timing.ContractViolation

		func() {
			defer func() {
				violation = recover().(*timing.ContractViolation)
			}()
			k.Step(1)
		}()

		Expect(violation.Process).To(Equal("A:Main"))
		Expect(violation.Phase).To(Equal(timing.PhaseCheck))
		Expect(violation.Error()).
			To(ContainSubstring("without having won arbitration"))
		Expect(slot1.IsEmpty()).To(BeTrue())
	})

	It("should check an index guard only against the listed writers", func() {
		port := structure.NewWritePort("In")
		slot := storage.MakeBufferBuilder[string]().
			WithKernel(k).
			WithCapacity(2).
			Build("Slot")

		var (
			writer    timing.Source
			writerRun *storage.Flag
		)

		writer, writerRun = register(k, "Writer",
			func(timing.Phase, int) timing.Result {
				if !port.Invoke(0) || !slot.Push("w") {
					return timing.Blocked
				}

				writerRun.Clear()

				return timing.Succeeded
			})
		port.SetPriority(writer, 0)

		readerID := k.RegisterComponent("Reader", naming.NoObject,
			compFunc(func(timing.Phase, int) timing.Result {
				slot.Pop()
				return timing.Succeeded
			}), "Main")
		slot.Sensitive(timing.Source{Component: readerID})
		slot.GuardWith(port.GuardFor(0), writer)

		Expect(k.Step(2)).To(Equal(timing.Running))
		Expect(slot.IsEmpty()).To(BeTrue())
		Expect(slot.Stats().Pops).To(Equal(uint64(1)))
		Expect(k.Step(1)).To(Equal(timing.Idle))
	})

	It("should select between ports by port priority", func() {
		first := structure.NewWritePort("First")
		second := structure.NewWritePort("Second")
		won := make(map[string]bool)

		through := func(name string, port *WritePort[int]) compFunc {
			return func(phase timing.Phase, _ int) timing.Result {
				w := port.Invoke(7)
				if phase == timing.PhaseCheck {
					won[name] = w
				}

				return timing.Succeeded
			}
		}

		a, _ := register(k, "A", through("A", first))
		b, _ := register(k, "B", through("B", second))
		first.SetPriority(a, 0)
		second.SetPriority(b, 0)

		Expect(structure.PortPriority(first)).To(Equal(0))
		Expect(structure.PortPriority(second)).To(Equal(1))

		structure.SetPortPriority(second, -1)

		k.Step(1)

		Expect(won).To(Equal(map[string]bool{"A": false, "B": true}))
		Expect(first.Wins(a)).To(Equal(uint64(1)))
		Expect(first.BusyCycles()).To(Equal(uint64(0)))
		Expect(second.BusyCycles()).To(Equal(uint64(1)))
	})

	It("should reject shared port priorities", func() {
		first := structure.NewWritePort("First")
		second := structure.NewWritePort("Second")

		Expect(func() { structure.SetPortPriority(second, 0) }).To(Panic())
		Expect(func() { structure.SetPortPriority(first, 0) }).NotTo(Panic())
	})

	It("should arbitrate dedicated ports against shared ports", func() {
		var (
			dedicated *DedicatedWritePort[int]
			results   = make(map[string]bool)
		)

		shared := structure.NewWritePort("Shared")

		owner, _ := register(k, "Owner", func(phase timing.Phase, _ int) timing.Result {
			w := dedicated.Invoke(3)
			if phase == timing.PhaseCheck {
				results["owner"] = w
			}

			return timing.Succeeded
		})
		other, _ := register(k, "Other", func(phase timing.Phase, _ int) timing.Result {
			w := shared.Invoke(3)
			if phase == timing.PhaseCheck {
				results["other"] = w
			}

			return timing.Succeeded
		})

		dedicated = structure.NewDedicatedWritePort("Own", owner)
		shared.SetPriority(other, 0)

		Expect(dedicated.Owner()).To(Equal(owner))
		Expect(structure.PortPriority(shared)).To(Equal(0))
		Expect(structure.PortPriority(dedicated)).To(Equal(1))

		k.Step(1)

		Expect(results).To(Equal(map[string]bool{"owner": false, "other": true}))
		Expect(dedicated.Authorized(k.ProcessOf(owner))).To(BeFalse())
	})

	It("should reject a dedicated port used by another process", func() {
		var dedicated *DedicatedWritePort[int]

		owner, _ := register(k, "Owner", func(timing.Phase, int) timing.Result {
			return timing.Succeeded
		})
		register(k, "Intruder", func(timing.Phase, int) timing.Result {
			dedicated.Invoke(0)
			return timing.Succeeded
		})

		dedicated = structure.NewDedicatedWritePort("Own", owner)

		Expect(func() { k.Step(1) }).To(beViolation())
	})

	It("should arbitrate read ports independently", func() {
		read := structure.NewPort("Read")
		var readers []string

		reader := func(name string) compFunc {
			return func(phase timing.Phase, _ int) timing.Result {
				if !read.Invoke() {
					return timing.Blocked
				}

				if phase == timing.PhaseCommit {
					readers = append(readers, name)
				}

				return timing.Succeeded
			}
		}

		a, _ := register(k, "A", reader("A"))
		b, _ := register(k, "B", reader("B"))
		read.SetPriority(a, 5)
		read.SetPriority(b, 4)

		Expect(k.Step(2)).To(Equal(timing.Running))
		Expect(readers).To(Equal([]string{"B", "B"}))
		Expect(read.Wins(b)).To(Equal(uint64(2)))
		Expect(read.BusyCycles()).To(Equal(uint64(2)))
	})

	It("should rotate port winners with the cyclic policy", func() {
		cyclic := MakeStructureBuilder[int]().
			WithKernel(k).
			WithPolicy(PolicyCyclic).
			Build("Cyclic")
		port := cyclic.NewWritePort("In")
		var winners []string

		writer := func(name string) compFunc {
			return func(phase timing.Phase, _ int) timing.Result {
				if !port.Invoke(0) {
					return timing.Blocked
				}

				if phase == timing.PhaseCommit {
					winners = append(winners, name)
				}

				return timing.Succeeded
			}
		}

		a, _ := register(k, "A", writer("A"))
		b, _ := register(k, "B", writer("B"))
		port.SetPriority(a, 0)
		port.SetPriority(b, 1)

		k.Step(4)

		Expect(winners).To(Equal([]string{"A", "B", "A", "B"}))
	})
})

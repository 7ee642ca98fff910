package naming

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Hierarchy", func() {
	var (
		h    *Hierarchy
		chip ObjectID
	)

	BeforeEach(func() {
		h = NewHierarchy()
		chip = h.Add(NoObject, "Chip")
	})

	It("should build qualified names from the root", func() {
		core := h.Add(chip, "Core[0]")
		fetch := h.Add(core, "Fetch")

		Expect(h.FQN(fetch)).To(Equal("Chip.Core[0].Fetch"))
		Expect(h.Name(fetch)).To(Equal("Fetch"))

		id, ok := h.Lookup("Chip.Core[0]")
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(core))
	})

	It("should keep parent and children consistent", func() {
		a := h.Add(chip, "A")
		b := h.Add(chip, "B")

		Expect(h.Children(chip)).To(Equal([]ObjectID{a, b}))

		parent, ok := h.Parent(a)
		Expect(ok).To(BeTrue())
		Expect(parent).To(Equal(chip))

		_, ok = h.Parent(chip)
		Expect(ok).To(BeFalse())
		Expect(h.Roots()).To(Equal([]ObjectID{chip}))
	})

	It("should unlink removed objects from the parent", func() {
		a := h.Add(chip, "A")
		b := h.Add(chip, "B")
		leaf := h.Add(a, "Leaf")

		h.Remove(a)

		Expect(h.Children(chip)).To(Equal([]ObjectID{b}))
		Expect(h.Exists(a)).To(BeFalse())
		Expect(h.Exists(leaf)).To(BeFalse())
		Expect(h.Len()).To(Equal(2))

		_, ok := h.Lookup("Chip.A.Leaf")
		Expect(ok).To(BeFalse())
	})

	It("should refuse to remove pinned objects and their ancestors", func() {
		a := h.Add(chip, "A")
		leaf := h.Add(a, "Leaf")
		b := h.Add(chip, "B")
		h.Pin(leaf)

		Expect(h.IsPinned(leaf)).To(BeTrue())
		Expect(h.IsPinned(a)).To(BeFalse())
		Expect(func() { h.Remove(a) }).
			To(PanicWith("cannot remove Chip.A, Chip.A.Leaf is in use"))
		Expect(func() { h.Remove(chip) }).To(Panic())
		Expect(func() { h.Remove(leaf) }).To(Panic())

		Expect(h.Exists(leaf)).To(BeTrue())
		Expect(h.Children(chip)).To(Equal([]ObjectID{a, b}))

		h.Remove(b)
		Expect(h.Exists(b)).To(BeFalse())
	})

	It("should reject duplicated siblings", func() {
		h.Add(chip, "A")
		Expect(func() { h.Add(chip, "A") }).To(Panic())
	})

	It("should reject unknown parents", func() {
		Expect(func() { h.Add(ObjectID(42), "A") }).To(Panic())
	})
})

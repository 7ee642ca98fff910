package naming

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Name", func() {
	It("should parse indexed tokens", func() {
		name := ParseName("Chip[0].Core[1][2]")

		Expect(name.Tokens).To(HaveLen(2))
		Expect(name.Tokens[0].ElemName).To(Equal("Chip"))
		Expect(name.Tokens[0].Index).To(Equal([]int{0}))
		Expect(name.Tokens[1].ElemName).To(Equal("Core"))
		Expect(name.Tokens[1].Index).To(Equal([]int{1, 2}))
	})

	DescribeTable("invalid names",
		func(name string) {
			Expect(func() { NameMustBeValid(name) }).To(Panic())
		},
		Entry("empty", ""),
		Entry("underscore", "Core_0"),
		Entry("dash", "Core-0"),
		Entry("lower case", "core"),
		Entry("unclosed bracket", "Core[0"),
		Entry("unopened bracket", "Core0]"),
		Entry("nested bracket", "Core[[0]]"),
		Entry("empty element", "Chip..Core"),
		Entry("non integer index", "Core[x]"),
	)

	It("should accept valid names", func() {
		Expect(func() { NameMustBeValid("Chip.Core[3].Fetch") }).NotTo(Panic())
	})

	It("should reject dotted element names", func() {
		Expect(func() { ElementMustBeValid("Chip.Core") }).To(Panic())
		Expect(func() { ElementMustBeValid("Core[1]") }).NotTo(Panic())
	})

	It("should build names", func() {
		Expect(BuildName("", "Chip")).To(Equal("Chip"))
		Expect(BuildName("Chip", "Core")).To(Equal("Chip.Core"))
		Expect(BuildNameWithIndex("Chip", "Core", 4)).To(Equal("Chip.Core[4]"))
	})
})

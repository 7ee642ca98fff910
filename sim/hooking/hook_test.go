package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HookableBase", func() {
	var h *HookableBase

	BeforeEach(func() {
		h = &HookableBase{}
	})

	It("should invoke hooks in registration order", func() {
		var order []string
		first := NewHookFunc(func(HookCtx) { order = append(order, "first") })
		second := NewHookFunc(func(HookCtx) { order = append(order, "second") })

		h.AcceptHook(first)
		h.AcceptHook(second)
		h.InvokeHook(HookCtx{Pos: &HookPos{Name: "Test"}})

		Expect(h.NumHooks()).To(Equal(2))
		Expect(order).To(Equal([]string{"first", "second"}))
	})

	It("should pass the context through", func() {
		pos := &HookPos{Name: "Test"}
		var got HookCtx
		h.AcceptHook(NewHookFunc(func(ctx HookCtx) { got = ctx }))

		h.InvokeHook(HookCtx{Pos: pos, Item: 3, Detail: "x"})

		Expect(got.Pos).To(BeIdenticalTo(pos))
		Expect(got.Item).To(Equal(3))
		Expect(got.Detail).To(Equal("x"))
	})

	It("should reject the same hook twice", func() {
		hook := NewHookFunc(func(HookCtx) {})
		h.AcceptHook(hook)

		Expect(func() { h.AcceptHook(hook) }).To(Panic())
	})
})

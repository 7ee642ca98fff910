package storage

import (
	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

// HookPosRegWrite marks when a register takes a new value.
var HookPosRegWrite = &hooking.HookPos{Name: "Register Write"}

// HookPosRegClear marks when a register becomes empty.
var HookPosRegClear = &hooking.HookPos{Name: "Register Clear"}

const (
	opWrite = iota
	opClear
)

// A Register holds at most one value. It activates its sensitive processes
// while it is full. A write and a clear in the same cycle leave the written
// value in the register.
type Register[T any] struct {
	timing.StorageBase

	full    bool
	value   T
	next    T
	written bool
	cleared bool
}

// RegisterBuilder builds registers.
type RegisterBuilder[T any] struct {
	kernel  *timing.Kernel
	parent  naming.ObjectID
	initial *T
}

// MakeRegisterBuilder creates a RegisterBuilder for an empty register.
func MakeRegisterBuilder[T any]() RegisterBuilder[T] {
	return RegisterBuilder[T]{parent: naming.NoObject}
}

// WithKernel sets the kernel that owns the register.
func (b RegisterBuilder[T]) WithKernel(k *timing.Kernel) RegisterBuilder[T] {
	b.kernel = k
	return b
}

// WithParent sets the object that owns the register.
func (b RegisterBuilder[T]) WithParent(
	parent naming.ObjectID,
) RegisterBuilder[T] {
	b.parent = parent
	return b
}

// WithInitialValue makes the register full when the simulation starts.
func (b RegisterBuilder[T]) WithInitialValue(v T) RegisterBuilder[T] {
	b.initial = &v
	return b
}

// Build creates the register.
func (b RegisterBuilder[T]) Build(name string) *Register[T] {
	if b.kernel == nil {
		panic("register " + name + " has no kernel")
	}

	r := &Register[T]{}
	r.StorageBase = timing.MakeStorageBase(b.kernel, b.parent, name, r)

	if b.initial != nil {
		r.Write(*b.initial)
	}

	return r
}

// IsEmpty tells whether the register holds no committed value.
func (r *Register[T]) IsEmpty() bool {
	return !r.full
}

// Read returns the committed value. It panics if the register is empty.
func (r *Register[T]) Read() T {
	if !r.full {
		panic("read of empty register " + r.Name())
	}

	return r.value
}

// Write sets the value of the register at the end of the cycle. Writing
// twice in a cycle is a contract violation.
func (r *Register[T]) Write(v T) {
	switch r.BeginMutation("write") {
	case timing.AccessProbe:
		return
	case timing.AccessIntent:
		if r.IntentCount(opWrite) > 0 {
			r.Violationf("%s written twice in one cycle", r.Name())
		}

		r.RecordIntent(opWrite, v)

		return
	case timing.AccessStage:
		r.ConsumeIntent(opWrite, v)
	}

	if r.written {
		r.Violationf("%s written twice in one cycle", r.Name())
	}

	r.next = v
	r.written = true
	r.RegisterUpdate()
}

// Clear empties the register at the end of the cycle, unless it is also
// written. Clearing an empty register or clearing twice in a cycle is a
// contract violation.
func (r *Register[T]) Clear() {
	access := r.BeginMutation("clear")

	if !r.full {
		r.Violationf("clear of empty register %s", r.Name())
	}

	switch access {
	case timing.AccessProbe:
		return
	case timing.AccessIntent:
		if r.IntentCount(opClear) > 0 {
			r.Violationf("%s cleared twice in one cycle", r.Name())
		}

		r.RecordIntent(opClear, nil)

		return
	case timing.AccessStage:
		r.ConsumeIntent(opClear, nil)
	}

	if r.cleared {
		r.Violationf("%s cleared twice in one cycle", r.Name())
	}

	r.cleared = true
	r.RegisterUpdate()
}

// Update applies the write or the clear of the cycle.
func (r *Register[T]) Update() {
	switch {
	case r.written:
		r.value = r.next
		r.invoke(HookPosRegWrite, r.value)

		if !r.full {
			r.full = true
			r.Notify()
		}
	case r.cleared:
		var zero T
		r.value = zero
		r.full = false
		r.invoke(HookPosRegClear, zero)
		r.Unnotify()
	}

	var zero T
	r.next = zero
	r.written = false
	r.cleared = false
}

func (r *Register[T]) invoke(pos *hooking.HookPos, v T) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    pos,
		Item:   v,
	})
}

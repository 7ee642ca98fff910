// Package storage provides the storages of the cycle kernel: FIFO buffers,
// full/empty registers and flags. Reads always return the state committed at
// the end of the previous cycle. Changes made during a cycle become visible
// only after the kernel updates the storage.
package storage

import (
	"fmt"

	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

// HookPosBufPush marks when an element enters the buffer.
var HookPosBufPush = &hooking.HookPos{Name: "Buffer Push"}

// HookPosBufPop marks when an element leaves the buffer.
var HookPosBufPop = &hooking.HookPos{Name: "Buffer Pop"}

// MaxPushesPerCycle is the largest number of pushes a buffer can accept in
// one cycle.
const MaxPushesPerCycle = 4

// Unbounded is the capacity of a buffer that never fills up.
const Unbounded = -1

const (
	opPush = iota
	opPop
)

// A Buffer is a FIFO queue. It activates its sensitive processes while it
// holds at least one element.
type Buffer[T any] struct {
	timing.StorageBase

	capacity  int
	maxPushes int

	data   []T
	pushes []T
	popped bool

	stalls      uint64
	pushCount   uint64
	popCount    uint64
	maxLevel    int
	lastCycle   uint64
	levelCycles uint64
}

// BufferBuilder builds buffers.
type BufferBuilder[T any] struct {
	kernel    *timing.Kernel
	parent    naming.ObjectID
	capacity  int
	maxPushes int
}

// MakeBufferBuilder creates a BufferBuilder with a capacity of 1 and one
// push per cycle.
func MakeBufferBuilder[T any]() BufferBuilder[T] {
	return BufferBuilder[T]{
		parent:    naming.NoObject,
		capacity:  1,
		maxPushes: 1,
	}
}

// WithKernel sets the kernel that owns the buffer.
func (b BufferBuilder[T]) WithKernel(k *timing.Kernel) BufferBuilder[T] {
	b.kernel = k
	return b
}

// WithParent sets the object that owns the buffer.
func (b BufferBuilder[T]) WithParent(parent naming.ObjectID) BufferBuilder[T] {
	b.parent = parent
	return b
}

// WithCapacity sets the number of elements the buffer can hold.
func (b BufferBuilder[T]) WithCapacity(capacity int) BufferBuilder[T] {
	b.capacity = capacity
	return b
}

// WithUnboundedCapacity makes the buffer never fill up.
func (b BufferBuilder[T]) WithUnboundedCapacity() BufferBuilder[T] {
	b.capacity = Unbounded
	return b
}

// WithMaxPushes sets how many elements can be pushed in one cycle.
func (b BufferBuilder[T]) WithMaxPushes(n int) BufferBuilder[T] {
	b.maxPushes = n
	return b
}

// Build creates the buffer.
func (b BufferBuilder[T]) Build(name string) *Buffer[T] {
	if b.kernel == nil {
		panic("buffer " + name + " has no kernel")
	}

	if b.capacity != Unbounded && b.capacity <= 0 {
		panic("buffer capacity must be positive")
	}

	if b.maxPushes < 1 || b.maxPushes > MaxPushesPerCycle {
		panic("buffer max pushes must be between 1 and 4")
	}

	buf := &Buffer[T]{
		capacity:  b.capacity,
		maxPushes: b.maxPushes,
	}
	buf.StorageBase = timing.MakeStorageBase(b.kernel, b.parent, name, buf)

	return buf
}

// Capacity returns the number of elements the buffer can hold, or Unbounded.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// Size returns the number of committed elements.
func (b *Buffer[T]) Size() int {
	return len(b.data)
}

// IsEmpty tells whether the buffer holds no committed element.
func (b *Buffer[T]) IsEmpty() bool {
	return len(b.data) == 0
}

// Front returns the oldest committed element. It panics if the buffer is
// empty.
func (b *Buffer[T]) Front() T {
	if len(b.data) == 0 {
		panic("front of empty buffer " + b.Name())
	}

	return b.data[0]
}

// Elements returns a copy of the committed elements, oldest first.
func (b *Buffer[T]) Elements() []T {
	elements := make([]T, len(b.data))
	copy(elements, b.data)

	return elements
}

// Push appends an element at the end of the cycle if there is room.
func (b *Buffer[T]) Push(item T) bool {
	return b.PushWithSpace(item, 1)
}

// PushWithSpace appends an element at the end of the cycle if at least
// minSpace slots are free before the push. It returns false if the buffer
// does not have enough room or cannot accept another push this cycle.
func (b *Buffer[T]) PushWithSpace(item T, minSpace int) bool {
	if minSpace < 1 {
		panic("push must require at least one free slot")
	}

	access := b.BeginMutation("push")

	switch access {
	case timing.AccessProbe:
		if !b.hasRoom(0, minSpace) {
			b.stalls++
			return false
		}

		return true
	case timing.AccessIntent:
		pending := b.IntentCount(opPush)
		if !b.canPushMore(pending) || !b.hasRoom(pending, minSpace) {
			return false
		}

		b.RecordIntent(opPush, item)

		return true
	case timing.AccessStage:
		pending := len(b.pushes)
		if !b.canPushMore(pending) || !b.hasRoom(pending, minSpace) {
			return false
		}

		b.ConsumeIntent(opPush, item)
	case timing.AccessWiring:
		if !b.hasRoom(len(b.pushes), minSpace) {
			return false
		}
	}

	b.pushes = append(b.pushes, item)
	b.RegisterUpdate()

	return true
}

func (b *Buffer[T]) canPushMore(pending int) bool {
	if pending < b.maxPushes {
		return true
	}

	if b.maxPushes == 1 {
		b.ReportStall("buffer was already pushed this cycle")
	} else {
		b.ReportStall(fmt.Sprintf("buffer took %d pushes this cycle",
			b.maxPushes))
	}

	return false
}

func (b *Buffer[T]) hasRoom(pending, minSpace int) bool {
	if b.capacity == Unbounded || len(b.data)+pending+minSpace <= b.capacity {
		return true
	}

	b.ReportStall("buffer is full")

	return false
}

// Pop removes the front element at the end of the cycle. Popping an empty
// buffer or popping twice in a cycle is a contract violation.
func (b *Buffer[T]) Pop() {
	access := b.BeginMutation("pop")

	if len(b.data) == 0 {
		b.Violationf("pop from empty buffer %s", b.Name())
	}

	switch access {
	case timing.AccessProbe:
		return
	case timing.AccessIntent:
		if b.IntentCount(opPop) > 0 {
			b.Violationf("%s popped twice in one cycle", b.Name())
		}

		b.RecordIntent(opPop, nil)

		return
	case timing.AccessStage:
		b.ConsumeIntent(opPop, nil)
	}

	if b.popped {
		b.Violationf("%s popped twice in one cycle", b.Name())
	}

	b.popped = true
	b.RegisterUpdate()
}

// Update applies the pushes and the pop of the cycle.
func (b *Buffer[T]) Update() {
	b.accumulateLevel()

	wasEmpty := len(b.data) == 0

	for _, item := range b.pushes {
		b.data = append(b.data, item)
		b.pushCount++
		b.invoke(HookPosBufPush, item)
	}

	if b.popped {
		item := b.data[0]

		var zero T
		b.data[0] = zero
		b.data = b.data[1:]
		b.popCount++
		b.invoke(HookPosBufPop, item)
	}

	clear(b.pushes)
	b.pushes = b.pushes[:0]
	b.popped = false

	if len(b.data) > b.maxLevel {
		b.maxLevel = len(b.data)
	}

	isEmpty := len(b.data) == 0

	switch {
	case wasEmpty && !isEmpty:
		b.Notify()
	case !wasEmpty && isEmpty:
		b.Unnotify()
	}
}

func (b *Buffer[T]) accumulateLevel() {
	now := b.Kernel().CycleNumber()
	b.levelCycles += uint64(len(b.data)) * (now - b.lastCycle)
	b.lastCycle = now
}

func (b *Buffer[T]) invoke(pos *hooking.HookPos, item T) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    pos,
		Item:   item,
	})
}

// BufferStats are the statistics of a buffer.
type BufferStats struct {
	Stalls      uint64
	Pushes      uint64
	Pops        uint64
	Level       int
	MaxLevel    int
	LevelCycles uint64
}

// Stats returns the statistics of the buffer. LevelCycles is the sum of the
// buffer level over all cycles up to the last update.
func (b *Buffer[T]) Stats() BufferStats {
	return BufferStats{
		Stalls:      b.stalls,
		Pushes:      b.pushCount,
		Pops:        b.popCount,
		Level:       len(b.data),
		MaxLevel:    b.maxLevel,
		LevelCycles: b.levelCycles,
	}
}

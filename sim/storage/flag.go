package storage

import (
	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

const opUpdateFlag = 0

// A Flag is a boolean storage. It activates its sensitive processes while it
// is set. A flag can change at most once per cycle.
type Flag struct {
	timing.StorageBase

	set     bool
	next    bool
	updated bool
}

// FlagBuilder builds flags.
type FlagBuilder struct {
	kernel  *timing.Kernel
	parent  naming.ObjectID
	initial bool
}

// MakeFlagBuilder creates a FlagBuilder for a cleared flag.
func MakeFlagBuilder() FlagBuilder {
	return FlagBuilder{parent: naming.NoObject}
}

// WithKernel sets the kernel that owns the flag.
func (b FlagBuilder) WithKernel(k *timing.Kernel) FlagBuilder {
	b.kernel = k
	return b
}

// WithParent sets the object that owns the flag.
func (b FlagBuilder) WithParent(parent naming.ObjectID) FlagBuilder {
	b.parent = parent
	return b
}

// WithInitialValue sets the value the flag has when the simulation starts.
func (b FlagBuilder) WithInitialValue(set bool) FlagBuilder {
	b.initial = set
	return b
}

// Build creates the flag. The initial value is staged like any other write
// and takes effect at the start of the first Step.
func (b FlagBuilder) Build(name string) *Flag {
	if b.kernel == nil {
		panic("flag " + name + " has no kernel")
	}

	f := &Flag{}
	f.StorageBase = timing.MakeStorageBase(b.kernel, b.parent, name, f)

	if b.initial {
		f.Set()
	}

	return f
}

// IsSet returns the committed value of the flag.
func (f *Flag) IsSet() bool {
	return f.set
}

// Set sets the flag at the end of the cycle. It returns false if the flag
// already changed this cycle.
func (f *Flag) Set() bool {
	return f.change(true)
}

// Clear clears the flag at the end of the cycle. It returns false if the
// flag already changed this cycle.
func (f *Flag) Clear() bool {
	return f.change(false)
}

func (f *Flag) change(set bool) bool {
	switch f.BeginMutation("flag update") {
	case timing.AccessProbe:
		return true
	case timing.AccessIntent:
		if f.IntentCount(opUpdateFlag) > 0 {
			f.ReportStall("flag already updated this cycle")
			return false
		}

		f.RecordIntent(opUpdateFlag, set)

		return true
	case timing.AccessStage:
		if f.updated {
			f.ReportStall("flag already updated this cycle")
			return false
		}

		f.ConsumeIntent(opUpdateFlag, set)
	case timing.AccessWiring:
		if f.updated {
			return false
		}
	}

	f.next = set
	f.updated = true
	f.RegisterUpdate()

	return true
}

// Update applies the change of the cycle.
func (f *Flag) Update() {
	if f.updated && f.next != f.set {
		f.set = f.next

		if f.set {
			f.Notify()
		} else {
			f.Unnotify()
		}
	}

	f.updated = false
}

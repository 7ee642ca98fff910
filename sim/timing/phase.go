// Package timing provides the cycle kernel. The kernel advances a model one
// clock cycle at a time. Within a cycle, every active process is called in
// the Acquire, Check and Commit phases, with arbitration resolved between
// Acquire and Check, and all storage changes applied together at the end of
// the cycle.
package timing

import "math"

// Phase is the part of a cycle that the kernel is currently executing.
type Phase int

// The phases of a cycle, in execution order.
const (
	PhaseAcquire Phase = iota
	PhaseArbitrate
	PhaseCheck
	PhaseCommit
)

func (p Phase) String() string {
	switch p {
	case PhaseAcquire:
		return "Acquire"
	case PhaseArbitrate:
		return "Arbitrate"
	case PhaseCheck:
		return "Check"
	case PhaseCommit:
		return "Commit"
	}

	return "Unknown"
}

// Result is what a process reports for a phase.
type Result int

// Process results.
const (
	// Succeeded means the process can do, or did, its work for this cycle.
	Succeeded Result = iota

	// Blocked means the process cannot make progress this cycle.
	Blocked

	// NothingToDo means the process was scheduled without work. It is
	// never a valid answer from a scheduled process.
	NothingToDo
)

func (r Result) String() string {
	switch r {
	case Succeeded:
		return "Succeeded"
	case Blocked:
		return "Blocked"
	case NothingToDo:
		return "NothingToDo"
	}

	return "Unknown"
}

// RunState is the state of a process, or the outcome of a Step.
type RunState int

// Run states.
const (
	Idle RunState = iota
	Active
	Running
	Deadlock
	Aborted
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	case Running:
		return "Running"
	case Deadlock:
		return "Deadlock"
	case Aborted:
		return "Aborted"
	}

	return "Unknown"
}

// InfiniteCycles makes Step run until the model is idle, deadlocked or
// aborted.
const InfiniteCycles uint64 = math.MaxUint64

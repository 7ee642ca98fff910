package timing

import (
	"fmt"

	"github.com/sarchlab/cyclesim/sim/hooking"
)

// A ContractViolation is raised, as a panic, when a component breaks the
// rules of the phase protocol. It is a bug in the model, not a simulated
// event.
type ContractViolation struct {
	Process string
	Cycle   uint64
	Phase   Phase
	Msg     string
}

func (v *ContractViolation) Error() string {
	process := v.Process
	if process == "" {
		process = "<no process>"
	}

	return fmt.Sprintf("[%08d:%s] %s phase: %s",
		v.Cycle, process, v.Phase, v.Msg)
}

// A StallReason explains why a mutator or an arbitrator refused the running
// process.
type StallReason struct {
	Cycle  uint64
	Object string
	Reason string
}

func (r StallReason) String() string {
	return fmt.Sprintf("[%08d:%s] %s", r.Cycle, r.Object, r.Reason)
}

// A DeadlockReport is the detail of the HookPosProcessDeadlock hook.
type DeadlockReport struct {
	Process *Process
	Cycle   uint64
	Phase   Phase
	Reasons []StallReason
}

// Hook positions of the kernel.
var (
	// HookPosCycleStart triggers before the Acquire phase. The item is the
	// cycle number.
	HookPosCycleStart = &hooking.HookPos{Name: "CycleStart"}

	// HookPosCycleEnd triggers after the storages are updated. The item is
	// the cycle number and the detail a CycleSummary.
	HookPosCycleEnd = &hooking.HookPos{Name: "CycleEnd"}

	// HookPosProcessCommit triggers after a process committed. The item is
	// the *Process.
	HookPosProcessCommit = &hooking.HookPos{Name: "ProcessCommit"}

	// HookPosProcessDeadlock triggers when a process ends a cycle blocked.
	// The item is the *Process and the detail a DeadlockReport.
	HookPosProcessDeadlock = &hooking.HookPos{Name: "ProcessDeadlock"}

	// HookPosArbitrate triggers after an arbitrator resolved its requests.
	// The item is the Arbitrator.
	HookPosArbitrate = &hooking.HookPos{Name: "Arbitrate"}

	// HookPosStorageUpdate triggers after a storage applied its changes. The
	// item is the Storage.
	HookPosStorageUpdate = &hooking.HookPos{Name: "StorageUpdate"}
)

// CycleSummary counts what happened in one executed cycle.
type CycleSummary struct {
	Scheduled int
	Committed int
	Blocked   int
}

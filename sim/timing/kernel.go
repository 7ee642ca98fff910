package timing

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/naming"
)

// A Kernel owns the objects, processes, storages and arbitrators of a model
// and advances it cycle by cycle.
//
// The kernel is single-threaded. Only Abort may be called from another
// goroutine.
type Kernel struct {
	hooking.HookableBase

	objects    *naming.Hierarchy
	components map[naming.ObjectID]Component
	processes  []*Process
	bySource   map[Source]ProcessID

	storages     []Storage
	arbitrators  []Arbitrator
	updates      []Storage
	arbitrations []Arbitrator

	runQueue runQueue
	snapshot []ProcessID
	checked  []ProcessID

	cycle    uint64
	executed uint64
	phase    Phase
	active   ProcessID

	aborted atomic.Bool
}

// NewKernel creates a kernel with an empty model. Until the first Step, the
// kernel is in the Commit phase, so values written while wiring the model
// are staged and become visible when stepping starts.
func NewKernel() *Kernel {
	k := &Kernel{
		objects:    naming.NewHierarchy(),
		components: make(map[naming.ObjectID]Component),
		bySource:   make(map[Source]ProcessID),
		runQueue:   newRunQueue(),
		phase:      PhaseCommit,
		active:     NoProcess,
	}

	return k
}

// Objects returns the object hierarchy of the model.
func (k *Kernel) Objects() *naming.Hierarchy {
	return k.objects
}

// Component returns the component registered under the object id.
func (k *Kernel) Component(id naming.ObjectID) (Component, bool) {
	c, ok := k.components[id]
	return c, ok
}

// Storages returns all the storages of the model in creation order.
func (k *Kernel) Storages() []Storage {
	return k.storages
}

// Arbitrators returns all the arbitrators of the model in creation order.
func (k *Kernel) Arbitrators() []Arbitrator {
	return k.arbitrators
}

// CycleNumber returns the number of cycles in which at least one process
// committed.
func (k *Kernel) CycleNumber() uint64 {
	return k.cycle
}

// ExecutedCycles returns the number of cycles run so far, including the
// cycles in which nothing committed.
func (k *Kernel) ExecutedCycles() uint64 {
	return k.executed
}

// Phase returns the current phase.
func (k *Kernel) Phase() Phase {
	return k.phase
}

// Started tells whether the kernel has run a cycle.
func (k *Kernel) Started() bool {
	return k.executed > 0
}

// RunQueue returns the scheduled processes in the order they will run.
func (k *Kernel) RunQueue() []ProcessID {
	return k.runQueue.appendTo(nil)
}

// IsScheduled tells whether the process is on the run queue.
func (k *Kernel) IsScheduled(pid ProcessID) bool {
	return k.runQueue.contains(pid)
}

// Abort makes the running, or the next, Step return Aborted at the next
// cycle boundary. It is safe to call from any goroutine.
func (k *Kernel) Abort() {
	k.aborted.Store(true)
}

// Step runs up to n cycles. It returns Idle when no process is scheduled,
// Deadlock when a cycle ends without any commit, Aborted when Abort was
// called, and Running when all n cycles ran.
func (k *Kernel) Step(n uint64) RunState {
	if k.active != NoProcess || k.phase != PhaseCommit {
		panic("kernel stepped from inside a cycle")
	}

	k.updateStorages()

	for i := uint64(0); n == InfiniteCycles || i < n; i++ {
		if k.aborted.Swap(false) {
			return Aborted
		}

		if k.runQueue.len() == 0 {
			return Idle
		}

		if !k.runCycle() {
			return Deadlock
		}
	}

	return Running
}

func (k *Kernel) runCycle() bool {
	k.executed++
	k.snapshot = k.runQueue.appendTo(k.snapshot[:0])
	k.checked = k.checked[:0]

	summary := CycleSummary{Scheduled: len(k.snapshot)}

	k.invokeHook(HookPosCycleStart, k.cycle, nil)

	k.acquire(&summary)
	k.arbitrate()
	k.check(&summary)
	k.commit(&summary)

	k.updateStorages()

	k.invokeHook(HookPosCycleEnd, k.cycle, summary)

	if summary.Committed == 0 {
		return false
	}

	k.cycle++

	return true
}

func (k *Kernel) acquire(summary *CycleSummary) {
	k.phase = PhaseAcquire

	for _, pid := range k.snapshot {
		p := k.enter(pid)

		switch result := p.component.Cycle(PhaseAcquire, p.source.State); result {
		case Succeeded:
			p.state = Running
		case Blocked:
			k.block(p, summary)
		default:
			k.Violationf("scheduled process returned %s", result)
		}
	}

	k.active = NoProcess
}

func (k *Kernel) arbitrate() {
	k.phase = PhaseArbitrate

	for i := 0; i < len(k.arbitrations); i++ {
		a := k.arbitrations[i]
		a.arbitratorBase().queued = false
		a.Arbitrate()

		k.invokeHook(HookPosArbitrate, a, nil)
	}

	k.arbitrations = k.arbitrations[:0]
}

func (k *Kernel) check(summary *CycleSummary) {
	k.phase = PhaseCheck

	for _, pid := range k.snapshot {
		p := k.processes[pid]
		if p.state != Running {
			continue
		}

		k.enter(pid)

		switch result := p.component.Cycle(PhaseCheck, p.source.State); result {
		case Succeeded:
			k.checked = append(k.checked, pid)
		case Blocked:
			for _, s := range p.touched {
				s.revokeIntents(pid)
			}

			p.touched = p.touched[:0]
			k.block(p, summary)
		default:
			k.Violationf("scheduled process returned %s", result)
		}
	}

	k.active = NoProcess
}

func (k *Kernel) commit(summary *CycleSummary) {
	k.phase = PhaseCommit

	for _, pid := range k.checked {
		p := k.enter(pid)

		result := p.component.Cycle(PhaseCommit, p.source.State)
		if result != Succeeded {
			k.Violationf("Commit returned %s after a successful Check",
				result)
		}

		for _, s := range p.touched {
			if s.unmatchedIntents(pid) != 0 {
				k.Violationf("Check announced a change to %s "+
					"that Commit did not make", s.Name())
			}
		}

		p.touched = p.touched[:0]
		p.state = Running
		p.commits++
		summary.Committed++

		k.invokeHook(HookPosProcessCommit, p, nil)
	}

	k.active = NoProcess
}

func (k *Kernel) enter(pid ProcessID) *Process {
	p := k.processes[pid]
	p.reasons = p.reasons[:0]
	k.active = pid

	return p
}

func (k *Kernel) block(p *Process, summary *CycleSummary) {
	p.state = Deadlock
	p.stalls++
	summary.Blocked++

	if k.NumHooks() == 0 {
		return
	}

	reasons := make([]StallReason, len(p.reasons))
	copy(reasons, p.reasons)

	k.invokeHook(HookPosProcessDeadlock, p, DeadlockReport{
		Process: p,
		Cycle:   k.cycle,
		Phase:   k.phase,
		Reasons: reasons,
	})
}

func (k *Kernel) updateStorages() {
	for i := 0; i < len(k.updates); i++ {
		s := k.updates[i]
		s.storageBase().queued = false
		s.Update()

		k.invokeHook(HookPosStorageUpdate, s, nil)
	}

	k.updates = k.updates[:0]
}

func (k *Kernel) invokeHook(pos *hooking.HookPos, item, detail interface{}) {
	if k.NumHooks() == 0 {
		return
	}

	k.InvokeHook(hooking.HookCtx{
		Domain: k,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

// ReportStall records, for the running process, why object refused it. The
// reasons are reported with HookPosProcessDeadlock if the process ends the
// cycle blocked. Outside a process call, ReportStall does nothing.
func (k *Kernel) ReportStall(object naming.ObjectID, reason string) {
	if k.active == NoProcess {
		return
	}

	p := k.processes[k.active]
	p.reasons = append(p.reasons, StallReason{
		Cycle:  k.cycle,
		Object: k.objects.FQN(object),
		Reason: reason,
	})
}

// Violationf panics with a ContractViolation for the running process.
func (k *Kernel) Violationf(format string, args ...interface{}) {
	v := &ContractViolation{
		Cycle: k.cycle,
		Phase: k.phase,
		Msg:   fmt.Sprintf(format, args...),
	}

	if k.active != NoProcess {
		v.Process = k.processes[k.active].name
	}

	panic(v)
}

// addObject creates the object of a kernel-owned entity. The object is
// pinned, since the kernel refers to it for as long as it runs.
func (k *Kernel) addObject(parent naming.ObjectID, name string) naming.ObjectID {
	id := k.objects.Add(parent, name)
	k.objects.Pin(id)

	return id
}

func (k *Kernel) mustBeWiring(what string) {
	if k.Started() {
		panic(fmt.Sprintf("cannot %s after the simulation started", what))
	}
}

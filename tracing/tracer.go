// Package tracing collects what happens in a kernel, cycle by cycle.
package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/timing"
)

// A Tracer is told about the progress of the processes of a kernel.
type Tracer interface {
	// EndCycle is called after the storages are updated.
	EndCycle(cycle uint64, summary timing.CycleSummary)

	// CommitProcess is called after a process committed.
	CommitProcess(cycle uint64, p *timing.Process)

	// BlockProcess is called when a process ends a cycle blocked.
	BlockProcess(report timing.DeadlockReport)
}

// A ProcessFilter selects the processes a tracer is interested in.
type ProcessFilter func(p *timing.Process) bool

// AllProcesses is a ProcessFilter that keeps every process.
func AllProcesses(*timing.Process) bool {
	return true
}

// CollectTrace attaches the tracer to the kernel.
func CollectTrace(kernel *timing.Kernel, tracer Tracer) {
	for _, hook := range kernel.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf("kernel already has tracer %s",
				reflect.TypeOf(tracer)))
		}
	}

	kernel.AcceptHook(&traceHook{t: tracer, kernel: kernel})
}

type traceHook struct {
	t      Tracer
	kernel *timing.Kernel
}

func (h *traceHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case timing.HookPosCycleEnd:
		h.t.EndCycle(ctx.Item.(uint64), ctx.Detail.(timing.CycleSummary))
	case timing.HookPosProcessCommit:
		h.t.CommitProcess(h.kernel.CycleNumber(), ctx.Item.(*timing.Process))
	case timing.HookPosProcessDeadlock:
		h.t.BlockProcess(ctx.Detail.(timing.DeadlockReport))
	}
}

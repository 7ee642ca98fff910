package tracing

import (
	"log"

	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/timing"
)

// DeadlockTracer logs the reasons of every blocked process.
type DeadlockTracer struct {
	hooking.LogHookBase

	filter ProcessFilter
}

// NewDeadlockTracer creates a DeadlockTracer that writes to logger.
func NewDeadlockTracer(logger *log.Logger, filter ProcessFilter) *DeadlockTracer {
	if filter == nil {
		filter = AllProcesses
	}

	return &DeadlockTracer{
		LogHookBase: hooking.LogHookBase{Logger: logger},
		filter:      filter,
	}
}

// EndCycle does nothing.
func (t *DeadlockTracer) EndCycle(uint64, timing.CycleSummary) {}

// CommitProcess does nothing.
func (t *DeadlockTracer) CommitProcess(uint64, *timing.Process) {}

// BlockProcess prints one line per stall reason, or a single line if the
// process gave none.
func (t *DeadlockTracer) BlockProcess(report timing.DeadlockReport) {
	if !t.filter(report.Process) {
		return
	}

	if len(report.Reasons) == 0 {
		t.Printf("[%08d:%s] blocked in %s",
			report.Cycle, report.Process.Name(), report.Phase)

		return
	}

	for _, r := range report.Reasons {
		t.Printf("[%08d:%s] blocked in %s by %s: %s",
			report.Cycle, report.Process.Name(), report.Phase,
			r.Object, r.Reason)
	}
}

package tracing

import (
	"sync"

	"github.com/sarchlab/cyclesim/datarecording"
	"github.com/sarchlab/cyclesim/sim/timing"
	"github.com/tebeka/atexit"
)

// Table names used by DBTracer.
const (
	CycleTable = "cycle"
	StallTable = "stall"
)

// CycleEntry is a row of the cycle table.
type CycleEntry struct {
	Cycle     uint64
	Scheduled int
	Committed int
	Blocked   int
}

// StallEntry is a row of the stall table. A blocked process without reasons
// produces one row with an empty Object.
type StallEntry struct {
	Cycle   uint64
	Process string
	Phase   string
	Object  string
	Reason  string
}

// DBTracer stores cycle summaries and stall reasons through a DataRecorder.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	filter  ProcessFilter

	recordCycles bool
	terminated   bool
}

// NewDBTracer creates a DBTracer. Buffered rows are flushed when the program
// exits through atexit, or when Terminate is called.
func NewDBTracer(
	backend datarecording.DataRecorder,
	filter ProcessFilter,
	recordCycles bool,
) *DBTracer {
	if filter == nil {
		filter = AllProcesses
	}

	t := &DBTracer{
		backend:      backend,
		filter:       filter,
		recordCycles: recordCycles,
	}

	if recordCycles {
		backend.CreateTable(CycleTable, CycleEntry{})
	}

	backend.CreateTable(StallTable, StallEntry{})

	atexit.Register(func() { t.Terminate() })

	return t
}

// EndCycle records the cycle summary if cycles are recorded.
func (t *DBTracer) EndCycle(cycle uint64, summary timing.CycleSummary) {
	if !t.recordCycles {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	t.backend.InsertData(CycleTable, CycleEntry{
		Cycle:     cycle,
		Scheduled: summary.Scheduled,
		Committed: summary.Committed,
		Blocked:   summary.Blocked,
	})
}

// CommitProcess does nothing.
func (t *DBTracer) CommitProcess(uint64, *timing.Process) {}

// BlockProcess records the stall reasons of the process.
func (t *DBTracer) BlockProcess(report timing.DeadlockReport) {
	if !t.filter(report.Process) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	entry := StallEntry{
		Cycle:   report.Cycle,
		Process: report.Process.Name(),
		Phase:   report.Phase.String(),
	}

	if len(report.Reasons) == 0 {
		t.backend.InsertData(StallTable, entry)
		return
	}

	for _, r := range report.Reasons {
		entry.Object = r.Object
		entry.Reason = r.Reason
		t.backend.InsertData(StallTable, entry)
	}
}

// Terminate flushes the buffered rows. Rows reported afterwards are dropped.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true
	t.backend.Flush()
}

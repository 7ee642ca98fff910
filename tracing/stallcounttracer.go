package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/cyclesim/sim/timing"
)

// StallCountTracer counts, per process, the cycles committed and the cycles
// blocked, and how often each object refused a process.
type StallCountTracer struct {
	filter ProcessFilter
	lock   sync.Mutex

	processNames []string
	commits      map[string]uint64
	stalls       map[string]uint64
	refusals     map[string]uint64
	busyCycles   uint64
	idleCycles   uint64
}

// NewStallCountTracer creates a new StallCountTracer.
func NewStallCountTracer(filter ProcessFilter) *StallCountTracer {
	if filter == nil {
		filter = AllProcesses
	}

	return &StallCountTracer{
		filter:   filter,
		commits:  make(map[string]uint64),
		stalls:   make(map[string]uint64),
		refusals: make(map[string]uint64),
	}
}

// ProcessNames returns the processes seen so far, in the order they were
// first seen.
func (t *StallCountTracer) ProcessNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.processNames...)
}

// Commits returns the number of cycles the process committed.
func (t *StallCountTracer) Commits(process string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.commits[process]
}

// Stalls returns the number of cycles the process was blocked.
func (t *StallCountTracer) Stalls(process string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stalls[process]
}

// Refusals returns how many stall reasons the object gave.
func (t *StallCountTracer) Refusals(object string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.refusals[object]
}

// RefusingObjects returns the objects that gave stall reasons, sorted.
func (t *StallCountTracer) RefusingObjects() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	objects := make([]string, 0, len(t.refusals))
	for o := range t.refusals {
		objects = append(objects, o)
	}

	sort.Strings(objects)

	return objects
}

// Cycles returns the number of executed cycles with and without a commit.
func (t *StallCountTracer) Cycles() (busy, idle uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.busyCycles, t.idleCycles
}

// EndCycle counts the cycle.
func (t *StallCountTracer) EndCycle(_ uint64, summary timing.CycleSummary) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if summary.Committed > 0 {
		t.busyCycles++
	} else {
		t.idleCycles++
	}
}

// CommitProcess counts a commit.
func (t *StallCountTracer) CommitProcess(_ uint64, p *timing.Process) {
	if !t.filter(p) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.see(p.Name())
	t.commits[p.Name()]++
}

// BlockProcess counts a stall and its reasons.
func (t *StallCountTracer) BlockProcess(report timing.DeadlockReport) {
	if !t.filter(report.Process) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	name := report.Process.Name()
	t.see(name)
	t.stalls[name]++

	for _, r := range report.Reasons {
		t.refusals[r.Object]++
	}
}

func (t *StallCountTracer) see(name string) {
	_, committed := t.commits[name]
	_, stalled := t.stalls[name]

	if !committed && !stalled {
		t.processNames = append(t.processNames, name)
	}
}

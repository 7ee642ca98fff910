package timing

import (
	"fmt"

	"github.com/sarchlab/cyclesim/sim/naming"
)

// A Component is the owner of one or more processes. The kernel calls Cycle
// once per phase for every active process, passing the index of the state
// the process stands for.
//
// Cycle must behave identically in Check and Commit. The only difference is
// that mutators only record intent during Check.
type Component interface {
	Cycle(phase Phase, state int) Result
}

// ProcessID is the index of a process in the kernel.
type ProcessID int

// NoProcess is the process ID used outside process calls.
const NoProcess ProcessID = -1

// Source identifies a process by its owning component and state index. It
// is the key used for sensitivity and arbitration priority.
type Source struct {
	Component naming.ObjectID
	State     int
}

// A Process is a schedulable (component, state) pair.
type Process struct {
	id        ProcessID
	source    Source
	name      string
	component Component

	state       RunState
	activations uint

	stalls  uint64
	commits uint64

	touched []*StorageBase
	reasons []StallReason
}

// ID returns the index of the process in its kernel.
func (p *Process) ID() ProcessID {
	return p.id
}

// Source returns the (component, state) pair of the process.
func (p *Process) Source() Source {
	return p.source
}

// Name returns the qualified name of the process: the name of the component
// and the name of the state, separated by a colon.
func (p *Process) Name() string {
	return p.name
}

// State returns the run state of the process in the last cycle.
func (p *Process) State() RunState {
	return p.state
}

// Activations returns how many storages currently keep the process
// scheduled.
func (p *Process) Activations() uint {
	return p.activations
}

// Stalls returns the number of cycles the process was blocked.
func (p *Process) Stalls() uint64 {
	return p.stalls
}

// Commits returns the number of cycles the process committed.
func (p *Process) Commits() uint64 {
	return p.commits
}

func (p *Process) touch(s *StorageBase) {
	for _, t := range p.touched {
		if t == s {
			return
		}
	}

	p.touched = append(p.touched, s)
}

// RegisterComponent adds a component to the object hierarchy and creates one
// process per state. Components must register before the first Step.
func (k *Kernel) RegisterComponent(
	name string,
	parent naming.ObjectID,
	c Component,
	states ...string,
) naming.ObjectID {
	if len(states) == 0 {
		panic(fmt.Sprintf("component %s has no state", name))
	}

	k.mustBeWiring("register component " + name)

	id := k.addObject(parent, name)
	k.components[id] = c

	for i, state := range states {
		if state == "" {
			panic(fmt.Sprintf("component %s has an unnamed state", name))
		}

		pid := ProcessID(len(k.processes))
		p := &Process{
			id:        pid,
			source:    Source{Component: id, State: i},
			name:      k.objects.FQN(id) + ":" + state,
			component: c,
			state:     Idle,
		}

		k.processes = append(k.processes, p)
		k.bySource[p.source] = pid
		k.runQueue.grow(len(k.processes))
	}

	return id
}

// ProcessOf returns the process of a source. It panics if the source was
// never registered.
func (k *Kernel) ProcessOf(src Source) ProcessID {
	pid, ok := k.bySource[src]
	if !ok {
		panic(fmt.Sprintf("source (%d, %d) is not a registered process",
			src.Component, src.State))
	}

	return pid
}

// Process returns the process with the given ID.
func (k *Kernel) Process(pid ProcessID) *Process {
	return k.processes[pid]
}

// Processes returns all the processes in registration order.
func (k *Kernel) Processes() []*Process {
	return k.processes
}

// ActiveProcess returns the process being called, if any.
func (k *Kernel) ActiveProcess() (ProcessID, bool) {
	return k.active, k.active != NoProcess
}

// ActiveSource returns the source of the process being called. It is a
// contract violation to ask outside a process call.
func (k *Kernel) ActiveSource() Source {
	if k.active == NoProcess {
		k.Violationf("no process is running")
	}

	return k.processes[k.active].source
}

func (k *Kernel) activate(pid ProcessID) {
	p := k.processes[pid]

	p.activations++
	if p.activations == 1 {
		k.runQueue.pushFront(pid)
		p.state = Active
	}
}

func (k *Kernel) deactivate(pid ProcessID) {
	p := k.processes[pid]

	if p.activations == 0 {
		k.Violationf("process %s deactivated more often than activated",
			p.name)
	}

	p.activations--
	if p.activations == 0 {
		k.runQueue.remove(pid)
		p.state = Idle
	}
}

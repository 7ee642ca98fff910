package arbitration

import (
	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

// A Port is an index-less port of a Structure. At most one process uses it
// per cycle.
type Port struct {
	owner *timing.ArbitratorBase
	id    naming.ObjectID

	contenders contenders[timing.Source, noIndex]
	busyCycles uint64
}

// ID returns the object of the port.
func (p *Port) ID() naming.ObjectID {
	return p.id
}

// Name returns the fully qualified name of the port.
func (p *Port) Name() string {
	return p.owner.Kernel().Objects().FQN(p.id)
}

// SetPriority allows src to use the port. Lower values win.
func (p *Port) SetPriority(src timing.Source, priority int) {
	p.owner.MustBeWiring("set priority of " + p.Name())
	p.owner.Kernel().ProcessOf(src)

	if err := p.contenders.setPriority(src, priority); err != nil {
		panic(p.Name() + ": " + err.Error())
	}
}

// Request records that src wants the port this cycle.
func (p *Port) Request(src timing.Source) {
	if !p.contenders.known(src) {
		p.owner.Violationf("%s has no priority for the requester", p.Name())
	}

	p.owner.RegisterArbitration()
	p.contenders.request(src, noIndex{})
}

// HasWon tells whether src won the port this cycle.
func (p *Port) HasWon(src timing.Source) bool {
	mustBeResolved(p.owner.Kernel(), p.Name())
	return p.contenders.hasWon(src, noIndex{}, p.owner.Stamp())
}

// Invoke requests the port for the running process during Acquire, and
// tells whether the running process won during Check and Commit.
func (p *Port) Invoke() bool {
	k := p.owner.Kernel()
	src := k.ActiveSource()

	if k.Phase() == timing.PhaseAcquire {
		p.Request(src)
		return true
	}

	if !p.HasWon(src) {
		k.ReportStall(p.id, "lost arbitration")
		return false
	}

	return true
}

// Authorized tells whether the process won the port this cycle.
func (p *Port) Authorized(pid timing.ProcessID) bool {
	src := p.owner.Kernel().Process(pid).Source()
	return p.contenders.wonAny(src, p.owner.Stamp())
}

// Wins returns the number of cycles src won the port.
func (p *Port) Wins(src timing.Source) uint64 {
	return p.contenders.wins[src]
}

// BusyCycles returns the number of cycles the port was used.
func (p *Port) BusyCycles() uint64 {
	return p.busyCycles
}

func (p *Port) resolve(stamp uint64) bool {
	if !p.contenders.pending() {
		return false
	}

	p.contenders.resolve(stamp)
	p.busyCycles++

	return true
}

// A WritePort is a port shared by several processes that write indices of a
// Structure. For every index, the port selects one process, then the
// structure selects one port.
type WritePort[I comparable] struct {
	owner *timing.ArbitratorBase
	id    naming.ObjectID

	contenders contenders[timing.Source, I]
	chosen     map[I]uint64
	authorized map[timing.Source]uint64
	lastBusy   uint64
	busyCycles uint64
}

// ID returns the object of the port.
func (p *WritePort[I]) ID() naming.ObjectID {
	return p.id
}

// Name returns the fully qualified name of the port.
func (p *WritePort[I]) Name() string {
	return p.owner.Kernel().Objects().FQN(p.id)
}

// SetPriority allows src to write through the port. Lower values win.
func (p *WritePort[I]) SetPriority(src timing.Source, priority int) {
	p.owner.MustBeWiring("set priority of " + p.Name())
	p.owner.Kernel().ProcessOf(src)

	if err := p.contenders.setPriority(src, priority); err != nil {
		panic(p.Name() + ": " + err.Error())
	}
}

// Request records that src wants to write index this cycle.
func (p *WritePort[I]) Request(src timing.Source, index I) {
	if !p.contenders.known(src) {
		p.owner.Violationf("%s has no priority for the requester", p.Name())
	}

	p.owner.RegisterArbitration()
	p.contenders.request(src, index)
}

// HasWon tells whether src may write index this cycle.
func (p *WritePort[I]) HasWon(src timing.Source, index I) bool {
	mustBeResolved(p.owner.Kernel(), p.Name())

	stamp := p.owner.Stamp()

	return p.contenders.hasWon(src, index, stamp) && p.chosen[index] == stamp
}

// Invoke requests index for the running process during Acquire, and tells
// whether the running process may write index during Check and Commit.
func (p *WritePort[I]) Invoke(index I) bool {
	k := p.owner.Kernel()
	src := k.ActiveSource()

	if k.Phase() == timing.PhaseAcquire {
		p.Request(src, index)
		return true
	}

	if !p.HasWon(src, index) {
		k.ReportStall(p.id, "lost arbitration")
		return false
	}

	return true
}

// Authorized tells whether the process may write through the port this
// cycle, at any index. Use GuardFor to bind a storage to one index.
func (p *WritePort[I]) Authorized(pid timing.ProcessID) bool {
	src := p.owner.Kernel().Process(pid).Source()
	stamp := p.owner.Stamp()

	return stamp != 0 && p.authorized[src] == stamp
}

// GuardFor returns a guard that authorizes only the process that may write
// index this cycle. Guard the storage that holds index with it, so that
// the winner of another index cannot write it.
func (p *WritePort[I]) GuardFor(index I) timing.Guard {
	return writeIndexGuard[I]{port: p, index: index}
}

type writeIndexGuard[I comparable] struct {
	port  *WritePort[I]
	index I
}

func (g writeIndexGuard[I]) Authorized(pid timing.ProcessID) bool {
	p := g.port
	src := p.owner.Kernel().Process(pid).Source()
	stamp := p.owner.Stamp()

	return stamp != 0 && p.contenders.hasWon(src, g.index, stamp) &&
		p.chosen[g.index] == stamp
}

// Wins returns the number of cycles src won the port, before the structure
// selected between ports.
func (p *WritePort[I]) Wins(src timing.Source) uint64 {
	return p.contenders.wins[src]
}

// BusyCycles returns the number of cycles the port wrote to the structure.
func (p *WritePort[I]) BusyCycles() uint64 {
	return p.busyCycles
}

func (p *WritePort[I]) resolve(stamp uint64) []I {
	if !p.contenders.pending() {
		return nil
	}

	return p.contenders.resolve(stamp)
}

func (p *WritePort[I]) choose(index I, stamp uint64) {
	p.chosen[index] = stamp

	if src, ok := p.contenders.winnerOf(index, stamp); ok {
		p.authorized[src] = stamp
	}

	if p.lastBusy != stamp {
		p.lastBusy = stamp
		p.busyCycles++
	}
}

// A DedicatedWritePort is a write port of a Structure that belongs to a
// single process. It only takes part in the selection between ports.
type DedicatedWritePort[I comparable] struct {
	owner   *timing.ArbitratorBase
	id      naming.ObjectID
	process timing.Source

	requests   []I
	chosen     map[I]uint64
	lastChosen uint64
	busyCycles uint64
}

// ID returns the object of the port.
func (p *DedicatedWritePort[I]) ID() naming.ObjectID {
	return p.id
}

// Name returns the fully qualified name of the port.
func (p *DedicatedWritePort[I]) Name() string {
	return p.owner.Kernel().Objects().FQN(p.id)
}

// Owner returns the process that owns the port.
func (p *DedicatedWritePort[I]) Owner() timing.Source {
	return p.process
}

func (p *DedicatedWritePort[I]) mustBeOwner() {
	if p.owner.Kernel().ActiveSource() != p.process {
		p.owner.Violationf("%s used by a process that does not own it",
			p.Name())
	}
}

// Request records that the owner wants to write index this cycle.
func (p *DedicatedWritePort[I]) Request(index I) {
	p.mustBeOwner()
	p.owner.RegisterArbitration()

	for _, r := range p.requests {
		if r == index {
			return
		}
	}

	p.requests = append(p.requests, index)
}

// HasWon tells whether the owner may write index this cycle.
func (p *DedicatedWritePort[I]) HasWon(index I) bool {
	mustBeResolved(p.owner.Kernel(), p.Name())
	return p.chosen[index] == p.owner.Stamp()
}

// Invoke requests index during Acquire, and tells whether the owner may
// write index during Check and Commit.
func (p *DedicatedWritePort[I]) Invoke(index I) bool {
	if p.owner.Kernel().Phase() == timing.PhaseAcquire {
		p.Request(index)
		return true
	}

	p.mustBeOwner()

	if !p.HasWon(index) {
		p.owner.Kernel().ReportStall(p.id, "lost arbitration")
		return false
	}

	return true
}

// Authorized tells whether the process is the owner and the port won at
// least one index this cycle.
func (p *DedicatedWritePort[I]) Authorized(pid timing.ProcessID) bool {
	k := p.owner.Kernel()
	stamp := p.owner.Stamp()

	return k.Process(pid).Source() == p.process &&
		stamp != 0 && p.lastChosen == stamp
}

// GuardFor returns a guard that authorizes the owner only in cycles in
// which the port won index.
func (p *DedicatedWritePort[I]) GuardFor(index I) timing.Guard {
	return dedicatedIndexGuard[I]{port: p, index: index}
}

type dedicatedIndexGuard[I comparable] struct {
	port  *DedicatedWritePort[I]
	index I
}

func (g dedicatedIndexGuard[I]) Authorized(pid timing.ProcessID) bool {
	p := g.port
	stamp := p.owner.Stamp()

	return p.owner.Kernel().Process(pid).Source() == p.process &&
		stamp != 0 && p.chosen[g.index] == stamp
}

// BusyCycles returns the number of cycles the port wrote to the structure.
func (p *DedicatedWritePort[I]) BusyCycles() uint64 {
	return p.busyCycles
}

func (p *DedicatedWritePort[I]) resolve(uint64) []I {
	requests := p.requests
	p.requests = nil

	return requests
}

func (p *DedicatedWritePort[I]) choose(index I, stamp uint64) {
	p.chosen[index] = stamp

	if p.lastChosen != stamp {
		p.lastChosen = stamp
		p.busyCycles++
	}
}

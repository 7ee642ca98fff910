package arbitration

import (
	"fmt"

	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

type writePort[I comparable] interface {
	ID() naming.ObjectID
	resolve(stamp uint64) []I
	choose(index I, stamp uint64)
}

// A Structure is an indexed resource, such as a register file or a cache
// array, accessed through ports. Each port selects its own winners, then the
// structure selects, for every index, the write port with the lowest port
// priority.
type Structure[I comparable] struct {
	timing.ArbitratorBase

	policy       Policy
	readPorts    []*Port
	writePorts   []writePort[I]
	portPriority map[naming.ObjectID]int
}

// StructureBuilder builds structures.
type StructureBuilder[I comparable] struct {
	kernel *timing.Kernel
	parent naming.ObjectID
	policy Policy
}

// MakeStructureBuilder creates a StructureBuilder whose ports use priority
// arbitration.
func MakeStructureBuilder[I comparable]() StructureBuilder[I] {
	return StructureBuilder[I]{
		parent: naming.NoObject,
		policy: PolicyPriority,
	}
}

// WithKernel sets the kernel that owns the structure.
func (b StructureBuilder[I]) WithKernel(k *timing.Kernel) StructureBuilder[I] {
	b.kernel = k
	return b
}

// WithParent sets the object that owns the structure.
func (b StructureBuilder[I]) WithParent(
	parent naming.ObjectID,
) StructureBuilder[I] {
	b.parent = parent
	return b
}

// WithPolicy sets how the ports of the structure select their processes.
func (b StructureBuilder[I]) WithPolicy(p Policy) StructureBuilder[I] {
	b.policy = p
	return b
}

// Build creates the structure.
func (b StructureBuilder[I]) Build(name string) *Structure[I] {
	if b.kernel == nil {
		panic("structure " + name + " has no kernel")
	}

	s := &Structure[I]{
		policy:       b.policy,
		portPriority: make(map[naming.ObjectID]int),
	}
	s.ArbitratorBase = timing.MakeArbitratorBase(b.kernel, b.parent, name, s)

	return s
}

func (s *Structure[I]) addPortObject(name string) naming.ObjectID {
	s.MustBeWiring("add port " + name)
	id := s.Kernel().Objects().Add(s.ID(), name)
	s.Kernel().Objects().Pin(id)

	return id
}

// NewPort creates an index-less port, typically a read port.
func (s *Structure[I]) NewPort(name string) *Port {
	p := &Port{
		owner:      &s.ArbitratorBase,
		id:         s.addPortObject(name),
		contenders: newContenders[timing.Source, noIndex](s.policy),
	}

	s.readPorts = append(s.readPorts, p)

	return p
}

// NewWritePort creates a port shared by several processes that write
// indices of the structure.
func (s *Structure[I]) NewWritePort(name string) *WritePort[I] {
	p := &WritePort[I]{
		owner:      &s.ArbitratorBase,
		id:         s.addPortObject(name),
		contenders: newContenders[timing.Source, I](s.policy),
		chosen:     make(map[I]uint64),
		authorized: make(map[timing.Source]uint64),
	}

	s.addWritePort(p)

	return p
}

// NewDedicatedWritePort creates a write port owned by a single process.
func (s *Structure[I]) NewDedicatedWritePort(
	name string,
	owner timing.Source,
) *DedicatedWritePort[I] {
	s.Kernel().ProcessOf(owner)

	p := &DedicatedWritePort[I]{
		owner:   &s.ArbitratorBase,
		id:      s.addPortObject(name),
		process: owner,
		chosen:  make(map[I]uint64),
	}

	s.addWritePort(p)

	return p
}

func (s *Structure[I]) addWritePort(p writePort[I]) {
	s.writePorts = append(s.writePorts, p)
	s.portPriority[p.ID()] = s.freePortPriority()
}

func (s *Structure[I]) freePortPriority() int {
	p := len(s.portPriority)

	for s.portPriorityUsed(p) {
		p++
	}

	return p
}

func (s *Structure[I]) portPriorityUsed(priority int) bool {
	for _, used := range s.portPriority {
		if used == priority {
			return true
		}
	}

	return false
}

// SetPortPriority changes the priority of a write port. By default, ports
// have the priority of their creation order. Lower values win.
func (s *Structure[I]) SetPortPriority(
	port interface{ ID() naming.ObjectID },
	priority int,
) {
	s.MustBeWiring("set port priority")

	current, ok := s.portPriority[port.ID()]
	if !ok {
		panic(fmt.Sprintf("%s is not a write port of %s",
			s.Kernel().Objects().FQN(port.ID()), s.Name()))
	}

	if current == priority {
		return
	}

	if s.portPriorityUsed(priority) {
		panic(fmt.Sprintf("port priority %d of %s is already used",
			priority, s.Name()))
	}

	s.portPriority[port.ID()] = priority
}

// PortPriority returns the priority of a write port.
func (s *Structure[I]) PortPriority(port interface{ ID() naming.ObjectID }) int {
	return s.portPriority[port.ID()]
}

// Arbitrate resolves the requests of all ports.
func (s *Structure[I]) Arbitrate() {
	stamp := s.Stamp()
	busy := false

	for _, p := range s.readPorts {
		if p.resolve(stamp) {
			busy = true
		}
	}

	var order []I

	candidates := make(map[I][]writePort[I])

	for _, wp := range s.writePorts {
		for _, index := range wp.resolve(stamp) {
			if _, ok := candidates[index]; !ok {
				order = append(order, index)
			}

			candidates[index] = append(candidates[index], wp)
		}
	}

	for _, index := range order {
		ports := candidates[index]
		best := ports[0]

		for _, p := range ports[1:] {
			if s.portPriority[p.ID()] < s.portPriority[best.ID()] {
				best = p
			}
		}

		best.choose(index, stamp)

		busy = true
	}

	if busy {
		s.MarkBusy()
	}
}

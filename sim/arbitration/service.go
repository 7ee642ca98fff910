package arbitration

import (
	"github.com/sarchlab/cyclesim/sim/naming"
	"github.com/sarchlab/cyclesim/sim/timing"
)

type noIndex struct{}

// A Service is a stand-alone resource that at most one process can use per
// cycle.
type Service struct {
	timing.ArbitratorBase

	contenders contenders[timing.Source, noIndex]
}

// ServiceBuilder builds services.
type ServiceBuilder struct {
	kernel *timing.Kernel
	parent naming.ObjectID
	policy Policy
}

// MakeServiceBuilder creates a ServiceBuilder with priority arbitration.
func MakeServiceBuilder() ServiceBuilder {
	return ServiceBuilder{
		parent: naming.NoObject,
		policy: PolicyPriority,
	}
}

// WithKernel sets the kernel that owns the service.
func (b ServiceBuilder) WithKernel(k *timing.Kernel) ServiceBuilder {
	b.kernel = k
	return b
}

// WithParent sets the object that owns the service.
func (b ServiceBuilder) WithParent(parent naming.ObjectID) ServiceBuilder {
	b.parent = parent
	return b
}

// WithPolicy sets how the service selects its winner.
func (b ServiceBuilder) WithPolicy(p Policy) ServiceBuilder {
	b.policy = p
	return b
}

// Build creates the service.
func (b ServiceBuilder) Build(name string) *Service {
	if b.kernel == nil {
		panic("service " + name + " has no kernel")
	}

	s := &Service{
		contenders: newContenders[timing.Source, noIndex](b.policy),
	}
	s.ArbitratorBase = timing.MakeArbitratorBase(b.kernel, b.parent, name, s)

	return s
}

// SetPriority allows src to request the service. Lower values win. Two
// sources cannot share a priority.
func (s *Service) SetPriority(src timing.Source, priority int) {
	s.MustBeWiring("set priority")
	s.Kernel().ProcessOf(src)

	if err := s.contenders.setPriority(src, priority); err != nil {
		panic(s.Name() + ": " + err.Error())
	}
}

// Request records that src wants the service this cycle. Only valid during
// Acquire.
func (s *Service) Request(src timing.Source) {
	if !s.contenders.known(src) {
		s.Violationf("%s has no priority for the requester", s.Name())
	}

	s.RegisterArbitration()
	s.contenders.request(src, noIndex{})
}

// HasWon tells whether src won the service this cycle. Only valid during
// Check and Commit.
func (s *Service) HasWon(src timing.Source) bool {
	mustBeResolved(s.Kernel(), s.Name())
	return s.contenders.hasWon(src, noIndex{}, s.Stamp())
}

// Invoke requests the service for the running process during Acquire, and
// tells whether the running process won during Check and Commit.
func (s *Service) Invoke() bool {
	k := s.Kernel()
	src := k.ActiveSource()

	if k.Phase() == timing.PhaseAcquire {
		s.Request(src)
		return true
	}

	if !s.HasWon(src) {
		s.ReportStall("lost arbitration")
		return false
	}

	return true
}

// Arbitrate selects the winner of the cycle.
func (s *Service) Arbitrate() {
	if !s.contenders.pending() {
		return
	}

	s.contenders.resolve(s.Stamp())
	s.MarkBusy()
}

// Authorized tells whether the process won the service this cycle.
func (s *Service) Authorized(pid timing.ProcessID) bool {
	src := s.Kernel().Process(pid).Source()
	return s.contenders.wonAny(src, s.Stamp())
}

// Wins returns the number of cycles src won the service.
func (s *Service) Wins(src timing.Source) uint64 {
	return s.contenders.wins[src]
}

// Policy returns how the service selects its winner.
func (s *Service) Policy() Policy {
	return s.contenders.policy
}

func mustBeResolved(k *timing.Kernel, name string) {
	switch k.Phase() {
	case timing.PhaseCheck, timing.PhaseCommit:
	default:
		k.Violationf("arbitration outcome of %s queried during %s",
			name, k.Phase())
	}
}

package timing

import "github.com/sarchlab/cyclesim/sim/naming"

// An Arbitrator selects winners among the processes that requested it during
// Acquire.
type Arbitrator interface {
	// ID returns the object of the arbitrator.
	ID() naming.ObjectID

	// Arbitrate resolves the requests of this cycle into winners and clears
	// the requests.
	Arbitrate()

	arbitratorBase() *ArbitratorBase
}

// ArbitratorBase implements the arbitration queue membership and the busy
// statistics of an arbitrator.
type ArbitratorBase struct {
	kernel *Kernel
	id     naming.ObjectID
	self   Arbitrator

	queued     bool
	busyCycles uint64
}

// MakeArbitratorBase creates the object of an arbitrator named name under
// parent and registers self with the kernel.
func MakeArbitratorBase(
	k *Kernel,
	parent naming.ObjectID,
	name string,
	self Arbitrator,
) ArbitratorBase {
	k.mustBeWiring("create arbitrator " + name)

	b := ArbitratorBase{
		kernel: k,
		id:     k.addObject(parent, name),
		self:   self,
	}

	k.arbitrators = append(k.arbitrators, self)

	return b
}

func (b *ArbitratorBase) arbitratorBase() *ArbitratorBase {
	return b
}

// ID returns the object of the arbitrator.
func (b *ArbitratorBase) ID() naming.ObjectID {
	return b.id
}

// Name returns the fully qualified name of the arbitrator.
func (b *ArbitratorBase) Name() string {
	return b.kernel.objects.FQN(b.id)
}

// Kernel returns the kernel that owns the arbitrator.
func (b *ArbitratorBase) Kernel() *Kernel {
	return b.kernel
}

// RegisterArbitration queues the arbitrator for the Arbitrate phase. Only
// valid during Acquire.
func (b *ArbitratorBase) RegisterArbitration() {
	if b.kernel.phase != PhaseAcquire {
		b.kernel.Violationf("requesting %s during %s",
			b.Name(), b.kernel.phase)
	}

	if b.queued {
		return
	}

	b.queued = true
	b.kernel.arbitrations = append(b.kernel.arbitrations, b.self)
}

// Stamp returns the serial number of the executing cycle. Winners stamped
// with an older value belong to an earlier cycle.
func (b *ArbitratorBase) Stamp() uint64 {
	return b.kernel.executed
}

// MarkBusy counts the current cycle as one in which the arbitrator had a
// winner.
func (b *ArbitratorBase) MarkBusy() {
	b.busyCycles++
}

// BusyCycles returns the number of cycles the arbitrator had a winner.
func (b *ArbitratorBase) BusyCycles() uint64 {
	return b.busyCycles
}

// MustBeWiring panics if the kernel already ran a cycle.
func (b *ArbitratorBase) MustBeWiring(what string) {
	b.kernel.mustBeWiring(what + " on " + b.Name())
}

// ReportStall records why the running process lost the arbitrator.
func (b *ArbitratorBase) ReportStall(reason string) {
	b.kernel.ReportStall(b.id, reason)
}

// Violationf raises a contract violation on behalf of the arbitrator.
func (b *ArbitratorBase) Violationf(format string, args ...interface{}) {
	b.kernel.Violationf(format, args...)
}

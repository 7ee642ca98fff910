package timing

import (
	"reflect"

	"github.com/sarchlab/cyclesim/sim/hooking"
	"github.com/sarchlab/cyclesim/sim/naming"
)

// A Storage is a piece of simulated state whose changes are staged during a
// cycle and applied together at the end of it.
type Storage interface {
	// ID returns the object of the storage.
	ID() naming.ObjectID

	// Update applies the staged changes. The kernel calls it once at the end
	// of every cycle in which the storage registered an update.
	Update()

	storageBase() *StorageBase
}

// A Guard authorizes processes to mutate a storage in Check and Commit.
// Arbitrators are guards: a process is authorized if it won this cycle.
type Guard interface {
	Authorized(pid ProcessID) bool
}

// Access tells a mutator what it is allowed to do in the current phase.
type Access int

// Mutator access modes.
const (
	// AccessWiring is used outside process calls. Changes are staged and
	// applied at the start of the next Step.
	AccessWiring Access = iota

	// AccessProbe is used in Acquire. The mutator only answers whether it
	// would succeed.
	AccessProbe

	// AccessIntent is used in Check. The mutator records an intent.
	AccessIntent

	// AccessStage is used in Commit. The mutator consumes the intent of the
	// same process and stages the change.
	AccessStage
)

type intent struct {
	pid   ProcessID
	op    int
	value any
}

// guard restricts mutation by the processes in only, or by every process
// when only is nil.
type guard struct {
	g    Guard
	only map[ProcessID]bool
}

func (g guard) appliesTo(pid ProcessID) bool {
	return g.only == nil || g.only[pid]
}

// StorageBase implements the bookkeeping shared by all storages:
// sensitivity, access control, Check intents and the update queue.
type StorageBase struct {
	hooking.HookableBase

	kernel *Kernel
	id     naming.ObjectID
	self   Storage

	sensitive []ProcessID
	writers   map[ProcessID]bool
	guards    []guard

	queued   bool
	notified bool
	intents  []intent
}

// MakeStorageBase creates the object of a storage named name under parent
// and registers self with the kernel.
func MakeStorageBase(
	k *Kernel,
	parent naming.ObjectID,
	name string,
	self Storage,
) StorageBase {
	k.mustBeWiring("create storage " + name)

	b := StorageBase{
		kernel: k,
		id:     k.addObject(parent, name),
		self:   self,
	}

	k.storages = append(k.storages, self)

	return b
}

func (b *StorageBase) storageBase() *StorageBase {
	return b
}

// ID returns the object of the storage.
func (b *StorageBase) ID() naming.ObjectID {
	return b.id
}

// Name returns the fully qualified name of the storage.
func (b *StorageBase) Name() string {
	return b.kernel.objects.FQN(b.id)
}

// Kernel returns the kernel that owns the storage.
func (b *StorageBase) Kernel() *Kernel {
	return b.kernel
}

// Sensitive makes the storage schedule the given processes while it is
// non-empty.
func (b *StorageBase) Sensitive(sources ...Source) {
	b.kernel.mustBeWiring("add sensitivity to " + b.Name())

	for _, src := range sources {
		pid := b.kernel.ProcessOf(src)

		for _, existing := range b.sensitive {
			if existing == pid {
				panic("storage " + b.Name() +
					" is already sensitive to " +
					b.kernel.processes[pid].name)
			}
		}

		b.sensitive = append(b.sensitive, pid)

		if b.notified {
			b.kernel.activate(pid)
		}
	}
}

// SensitiveProcesses returns the processes the storage schedules.
func (b *StorageBase) SensitiveProcesses() []ProcessID {
	return b.sensitive
}

// AllowWriters restricts mutation to the given processes. Without a call to
// AllowWriters, any process may mutate the storage.
func (b *StorageBase) AllowWriters(sources ...Source) {
	b.kernel.mustBeWiring("restrict writers of " + b.Name())

	if b.writers == nil {
		b.writers = make(map[ProcessID]bool)
	}

	for _, src := range sources {
		b.writers[b.kernel.ProcessOf(src)] = true
	}
}

// GuardWith requires processes to be authorized by g before mutating the
// storage in Check and Commit. If sources are given, only those processes
// are checked against g.
func (b *StorageBase) GuardWith(g Guard, sources ...Source) {
	b.kernel.mustBeWiring("guard " + b.Name())

	entry := guard{g: g}

	if len(sources) > 0 {
		entry.only = make(map[ProcessID]bool, len(sources))
		for _, src := range sources {
			entry.only[b.kernel.ProcessOf(src)] = true
		}
	}

	b.guards = append(b.guards, entry)
}

// BeginMutation checks that the running process may mutate the storage in
// the current phase and tells the mutator how to behave.
func (b *StorageBase) BeginMutation(op string) Access {
	k := b.kernel
	pid := k.active

	if pid == NoProcess {
		if k.phase != PhaseCommit {
			k.Violationf("%s on %s outside of a process", op, b.Name())
		}

		return AccessWiring
	}

	if b.writers != nil && !b.writers[pid] {
		k.Violationf("%s on %s by a process that is not a writer",
			op, b.Name())
	}

	switch k.phase {
	case PhaseAcquire:
		return AccessProbe
	case PhaseCheck, PhaseCommit:
		for _, g := range b.guards {
			if g.appliesTo(pid) && !g.g.Authorized(pid) {
				k.Violationf("%s on %s without having won arbitration",
					op, b.Name())
			}
		}

		if k.phase == PhaseCheck {
			return AccessIntent
		}

		return AccessStage
	}

	k.Violationf("%s on %s during %s", op, b.Name(), k.phase)

	return AccessWiring
}

// RecordIntent remembers that the running process will perform op with value
// in Commit. Use a nil value for operations that carry no data.
func (b *StorageBase) RecordIntent(op int, value any) {
	pid := b.kernel.active
	b.intents = append(b.intents, intent{pid: pid, op: op, value: value})
	b.kernel.processes[pid].touch(b)
}

// IntentCount returns how many intents of op all processes recorded in this
// cycle's Check phase and have not consumed yet.
func (b *StorageBase) IntentCount(op int) int {
	n := 0

	for _, in := range b.intents {
		if in.op == op {
			n++
		}
	}

	return n
}

// ConsumeIntent matches a Commit mutation with the oldest intent of the same
// op recorded in Check by the running process. A mutation with no matching
// intent, or with a value that differs from the intent's, is a contract
// violation.
func (b *StorageBase) ConsumeIntent(op int, value any) {
	pid := b.kernel.active

	for i, in := range b.intents {
		if in.pid != pid || in.op != op {
			continue
		}

		if !reflect.DeepEqual(in.value, value) {
			b.kernel.Violationf("Commit staged %v to %s where Check staged %v",
				value, b.Name(), in.value)
		}

		b.intents = append(b.intents[:i], b.intents[i+1:]...)

		return
	}

	b.kernel.Violationf("Commit changed %s in a way Check did not", b.Name())
}

func (b *StorageBase) revokeIntents(pid ProcessID) {
	kept := b.intents[:0]

	for _, in := range b.intents {
		if in.pid != pid {
			kept = append(kept, in)
		}
	}

	b.intents = kept
}

func (b *StorageBase) unmatchedIntents(pid ProcessID) int {
	n := 0

	for _, in := range b.intents {
		if in.pid == pid {
			n++
		}
	}

	return n
}

// RegisterUpdate queues the storage for the end-of-cycle update.
func (b *StorageBase) RegisterUpdate() {
	if b.queued {
		return
	}

	b.queued = true
	b.kernel.updates = append(b.kernel.updates, b.self)
}

// Notify activates the sensitive processes. Storages call it when they
// become non-empty.
func (b *StorageBase) Notify() {
	if b.notified {
		return
	}

	b.notified = true

	for _, pid := range b.sensitive {
		b.kernel.activate(pid)
	}
}

// Unnotify deactivates the sensitive processes. Storages call it when they
// become empty.
func (b *StorageBase) Unnotify() {
	if !b.notified {
		return
	}

	b.notified = false

	for _, pid := range b.sensitive {
		b.kernel.deactivate(pid)
	}
}

// ReportStall records why the running process could not use the storage.
func (b *StorageBase) ReportStall(reason string) {
	b.kernel.ReportStall(b.id, reason)
}

// Violationf raises a contract violation on behalf of the storage.
func (b *StorageBase) Violationf(format string, args ...interface{}) {
	b.kernel.Violationf(format, args...)
}

// Package proc implements spec.md 4.3's process and thread tables: the
// protection-domain/schedulable-unit pair every other kernel subsystem is
// built on top of. It sits directly above vmm/shm/svc/timer/ipc and below
// the scheduler, which is kept in its own package (kernel/sched) to match
// spec.md's stated dependency order; sched imports proc for the Thread and
// Process types, and proc reaches the scheduler only through the hook
// variables in hooks.go, so proc never imports sched.
package proc

import (
	"nucleus/kernel"
	"nucleus/kernel/ipc"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/pmm/allocator"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/shm"
	"nucleus/kernel/svc"
	"nucleus/kernel/timer"
)

// NameLen bounds a process name the way spec.md's PROCESS_NAME_LENGTH does.
const NameLen = 88

// State is a process's lifecycle stage.
type State uint8

const (
	// StateCreating marks a child process being populated by its parent;
	// it cannot run yet and is torn down if the parent dies first.
	StateCreating State = iota
	// StateRunning marks an independent, schedulable process.
	StateRunning
)

var (
	errProcessNotFound   = &kernel.Error{Module: "proc", Message: "process does not exist"}
	errNotCreating       = &kernel.Error{Module: "proc", Message: "child process is not in the creating state"}
	errNotCreator        = &kernel.Error{Module: "proc", Message: "caller did not create this child process"}
	errCannotCreateProcs = &kernel.Error{Module: "proc", Message: "process is not permitted to create children"}

	processes     = map[uint64]*Process{}
	nextProcessID = uint64(1)

	services = svc.New()
)

// deathSub is one registration of "notify notifyeeID with eventID when I
// die", stored on the target process.
type deathSub struct {
	notifyeeID uint64
	eventID    uint64
}

// IRQBinding is one driver registration of "send me a message (method 0) or
// drain a status/data port pair (method 1) when IRQ fires".
type IRQBinding struct {
	MessageID  uint64
	Method     uint8
	StatusPort uint16
	DataPort   uint16
	Mask       uint8
}

// Process is a protection domain: one address space, a set of threads, and
// every piece of per-process kernel bookkeeping (spec.md's Process record).
type Process struct {
	ID                 uint64
	Name               string
	IsDriver           bool
	CanCreateProcesses bool
	State              State

	Parent   *Process
	Children []*Process

	AddressSpace *vmm.AddressSpace

	Threads      []*Thread
	nextThreadID uint64

	Messages ipc.Queue

	joinedRegions map[uint64]*shm.Region

	deathSubs []deathSub

	irqBindings map[uint8][]IRQBinding

	profilingDepth uint64
	cyclesProfiled uint64

	tearingDown bool
}

// DumpInfo implements coredump.Dumper.
func (p *Process) DumpInfo() (uint64, string, int) {
	return p.ID, p.Name, len(p.Threads)
}

// Lookup returns the process with the given id, if it still exists.
func Lookup(id uint64) (*Process, bool) {
	p, ok := processes[id]
	return p, ok
}

// LookupOrNext returns the process with the given id, or failing that the
// live process with the next-higher id. Used by the paginated
// enumerate-by-name syscalls.
func LookupOrNext(id uint64) (*Process, bool) {
	if p, ok := processes[id]; ok {
		return p, true
	}
	var best *Process
	for _, p := range processes {
		if p.ID >= id && (best == nil || p.ID < best.ID) {
			best = p
		}
	}
	return best, best != nil
}

// FindNextByName returns the first process (in ascending id order, strictly
// after startFrom) whose name matches exactly.
func FindNextByName(name string, startFrom uint64) (*Process, bool) {
	var best *Process
	for _, p := range processes {
		if p.ID <= startFrom || p.Name != name {
			continue
		}
		if best == nil || p.ID < best.ID {
			best = p
		}
	}
	return best, best != nil
}

func truncateName(name string) string {
	if len(name) > NameLen {
		return name[:NameLen]
	}
	return name
}

// newProcess allocates the bookkeeping shared by Create and CreateChild: a
// fresh id, a new user address space, and the global table link.
func newProcess(name string, isDriver, canCreateProcesses bool) (*Process, *kernel.Error) {
	as, err := vmm.New()
	if err != nil {
		return nil, err
	}

	p := &Process{
		ID:                 nextProcessID,
		Name:               truncateName(name),
		IsDriver:           isDriver,
		CanCreateProcesses: canCreateProcesses,
		State:              StateRunning,
		AddressSpace:       as,
		joinedRegions:      map[uint64]*shm.Region{},
		irqBindings:        map[uint8][]IRQBinding{},
	}
	nextProcessID++
	processes[p.ID] = p
	return p, nil
}

// Create allocates a new, immediately-running top-level process (spec.md
// 4.3's "process creation"). Used for processes launched directly from
// multiboot modules rather than spawned by a parent.
func Create(name string, isDriver, canCreateProcesses bool) (*Process, *kernel.Error) {
	return newProcess(name, isDriver, canCreateProcesses)
}

// CreateChild allocates a child of parent in the creating state: it exists,
// has an address space, but runs no threads and is destroyed automatically
// if parent dies before StartChild is called.
func CreateChild(parent *Process, name string, isDriver, canCreateProcesses bool) (*Process, *kernel.Error) {
	if !parent.CanCreateProcesses {
		return nil, errCannotCreateProcs
	}

	child, err := newProcess(name, isDriver, canCreateProcesses)
	if err != nil {
		return nil, err
	}
	child.State = StateCreating
	child.Parent = parent
	parent.Children = append(parent.Children, child)
	return child, nil
}

// SetChildMemoryPage moves one page from the parent's address space into
// the child's, at a possibly different virtual address. The page is always
// unmapped from the parent, even if the child already had something mapped
// at the destination (in which case the move is otherwise a no-op).
func SetChildMemoryPage(parent, child *Process, srcAddr, dstAddr uintptr) *kernel.Error {
	srcPage := vmm.PageFromAddress(srcAddr)
	phys, err := parent.AddressSpace.Translate(srcAddr, true)
	if err != nil {
		return err
	}
	frame := pmm.FrameFromAddress(phys)

	if err := parent.AddressSpace.Unmap(srcPage, false, nil); err != nil {
		return err
	}

	if _, already := child.AddressSpace.Translate(dstAddr, false); already == nil {
		return nil
	}

	dstPage := vmm.PageFromAddress(dstAddr)
	if err := child.AddressSpace.ReserveAt(dstPage, 1); err != nil {
		return err
	}
	return child.AddressSpace.Map(dstPage, frame, true, true, false)
}

// StartChild promotes child out of the creating state by giving it its
// first thread at (entry, arg) and detaching it from its parent; from this
// point the child's lifetime is independent and it is no longer torn down
// if parent dies.
func StartChild(parent, child *Process, entry, arg uintptr) (*Thread, *kernel.Error) {
	if child.State != StateCreating {
		return nil, errNotCreating
	}
	if child.Parent != parent {
		return nil, errNotCreator
	}

	t, err := CreateThread(child, entry, arg)
	if err != nil {
		return nil, err
	}

	child.State = StateRunning
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
	child.Parent = nil

	if scheduleFn != nil {
		scheduleFn(t)
	}
	return t, nil
}

// DestroyChild tears down a still-creating child (one that never reached
// StartChild).
func DestroyChild(parent, child *Process) *kernel.Error {
	if child.State != StateCreating || child.Parent != parent {
		return errNotCreating
	}
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
	return Destroy(child)
}

// NotifyOnDeath registers notifyeeID to receive a message with the given
// event id when targetID's process dies.
func NotifyOnDeath(targetID, notifyeeID, eventID uint64) *kernel.Error {
	target, ok := Lookup(targetID)
	if !ok {
		return errProcessNotFound
	}
	target.deathSubs = append(target.deathSubs, deathSub{notifyeeID: notifyeeID, eventID: eventID})
	return nil
}

// CancelNotifyOnDeath undoes a prior NotifyOnDeath registration. A no-op if
// the target has already died.
func CancelNotifyOnDeath(targetID, notifyeeID, eventID uint64) {
	target, ok := Lookup(targetID)
	if !ok {
		return
	}
	for i, s := range target.deathSubs {
		if s.notifyeeID == notifyeeID && s.eventID == eventID {
			target.deathSubs = append(target.deathSubs[:i], target.deathSubs[i+1:]...)
			return
		}
	}
}

// Destroy tears a process all the way down: every thread, every joined
// shared-memory region, every service it registered, every pending
// timer event and interrupt binding, then the address space itself, firing
// death notifications to subscribers along the way. Threads are destroyed
// directly rather than through DestroyThread's normal last-thread-destroys-
// process path, guarded by tearingDown.
func Destroy(p *Process) *kernel.Error {
	if p.tearingDown {
		return nil
	}
	p.tearingDown = true

	for len(p.Threads) > 0 {
		if err := destroyThreadLocked(p.Threads[0]); err != nil {
			return err
		}
	}

	for _, registered := range services.UnregisterAll(p.ID) {
		for _, sub := range services.MatchDisappearance(registered.ProcessID, registered.MessageID) {
			deliver(sub.WatcherPID, ipc.Message{SenderID: 0, ID: sub.NotifyMID})
		}
	}

	for id, region := range p.joinedRegions {
		_ = shm.Leave(region, p.ID, p.AddressSpace)
		delete(p.joinedRegions, id)
	}

	timer.CancelAllForProcess(p.ID)
	p.irqBindings = nil

	for _, sub := range p.deathSubs {
		deliver(sub.notifyeeID, ipc.Message{SenderID: 0, ID: sub.eventID, Payload: [5]uint64{p.ID}})
	}

	if parent := p.Parent; parent != nil {
		for i, c := range parent.Children {
			if c == p {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				break
			}
		}
	}
	for _, c := range p.Children {
		_ = Destroy(c)
	}

	// Release walks the 3 private page-table levels below p's own PML4,
	// freeing every owned leaf frame and intermediate table. The top-level
	// PML4 frame itself is deliberately never freed here: spec.md 9's open
	// question flags the original teardown walk as only ever freeing three
	// of the four page-table levels, to avoid a shared kernel slot being
	// freed twice across address spaces. This port preserves that
	// asymmetry rather than resolve it.
	_ = p.AddressSpace.Release(frameFreer)
	delete(processes, p.ID)
	return nil
}

// joinSharedMemory records that p has joined region, for Destroy to release
// on teardown. Called by the shm-facing syscall handlers in the syscall
// package after a successful shm.Join.
func (p *Process) joinSharedMemory(region *shm.Region) {
	p.joinedRegions[region.ID] = region
}

// leaveSharedMemory drops the bookkeeping entry Destroy uses, once a
// process has explicitly left a region.
func (p *Process) leaveSharedMemory(regionID uint64) {
	delete(p.joinedRegions, regionID)
}

// JoinSharedMemory wraps shm.Join, additionally recording the join so
// Destroy releases it automatically.
func JoinSharedMemory(p *Process, region *shm.Region, fixed bool, atAddr uintptr) (uintptr, *kernel.Error) {
	addr, err := shm.Join(region, p.ID, p.AddressSpace, fixed, atAddr)
	if err != nil {
		return 0, err
	}
	p.joinSharedMemory(region)
	return addr, nil
}

// LeaveSharedMemory wraps shm.Leave, dropping the bookkeeping entry on
// success.
func LeaveSharedMemory(p *Process, region *shm.Region) *kernel.Error {
	if err := shm.Leave(region, p.ID, p.AddressSpace); err != nil {
		return err
	}
	p.leaveSharedMemory(region.ID)
	return nil
}

// RegisterService registers (p.ID, messageID, name) and notifies any
// matching appearance subscribers.
func RegisterService(p *Process, messageID uint64, name string) (*svc.Service, *kernel.Error) {
	s, err := services.Register(p.ID, messageID, name)
	if err != nil {
		return nil, err
	}
	for _, sub := range services.MatchAppearance(name) {
		deliver(sub.WatcherPID, ipc.Message{SenderID: 0, ID: sub.NotifyMID, Payload: [5]uint64{p.ID, messageID}})
	}
	return s, nil
}

// UnregisterService removes (p.ID, messageID) and notifies any
// disappearance subscribers targeting it.
func UnregisterService(p *Process, messageID uint64) {
	s, ok := services.Unregister(p.ID, messageID)
	if !ok {
		return
	}
	for _, sub := range services.MatchDisappearance(s.ProcessID, s.MessageID) {
		deliver(sub.WatcherPID, ipc.Message{SenderID: 0, ID: sub.NotifyMID})
	}
}

// FindNextService scans the global registry for the next name match after
// the given (pid, mid) cursor.
func FindNextService(name string, minPID, minMID uint64) (*svc.Service, bool) {
	return services.FindNext(name, minPID, minMID)
}

// ServiceName returns the name of the service registered by (pid, mid), if
// any, for the get-name syscall.
func ServiceName(pid, mid uint64) (string, bool) {
	s, ok := services.Find(pid, mid)
	if !ok {
		return "", false
	}
	return s.Name, true
}

// SubscribeServiceAppearance wires svc.Registry.SubscribeAppearance and
// delivers one notification per already-registered match immediately.
func SubscribeServiceAppearance(watcher *Process, name string, notifyMID uint64) {
	for _, s := range services.SubscribeAppearance(watcher.ID, name, notifyMID) {
		deliver(watcher.ID, ipc.Message{SenderID: 0, ID: notifyMID, Payload: [5]uint64{s.ProcessID, s.MessageID}})
	}
}

// CancelServiceAppearance undoes SubscribeServiceAppearance.
func CancelServiceAppearance(watcher *Process, name string, notifyMID uint64) {
	services.CancelAppearance(watcher.ID, name, notifyMID)
}

// SubscribeServiceDisappearance wires svc.Registry.SubscribeDisappearance.
func SubscribeServiceDisappearance(watcher *Process, targetPID, targetMID, notifyMID uint64) {
	services.SubscribeDisappearance(watcher.ID, targetPID, targetMID, notifyMID)
}

// CancelServiceDisappearance undoes SubscribeServiceDisappearance.
func CancelServiceDisappearance(watcher *Process, targetPID, targetMID, notifyMID uint64) {
	services.CancelDisappearance(watcher.ID, targetPID, targetMID, notifyMID)
}

// BindIRQMessage records a driver's method-0 "send me a bare message on
// this IRQ" binding.
func BindIRQMessage(p *Process, line uint8, messageID uint64) {
	p.irqBindings[line] = append(p.irqBindings[line], IRQBinding{MessageID: messageID, Method: 0})
}

// BindIRQPortDrain records a driver's method-1 "drain this status/data port
// pair on this IRQ" binding.
func BindIRQPortDrain(p *Process, line uint8, messageID uint64, statusPort, dataPort uint16, mask uint8) {
	p.irqBindings[line] = append(p.irqBindings[line], IRQBinding{
		MessageID: messageID, Method: 1, StatusPort: statusPort, DataPort: dataPort, Mask: mask,
	})
}

// UnbindIRQMessage removes a previously registered binding for messageID on
// line.
func UnbindIRQMessage(p *Process, line uint8, messageID uint64) {
	list := p.irqBindings[line]
	for i, b := range list {
		if b.MessageID == messageID {
			p.irqBindings[line] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// IRQBindingsFor returns every process with at least one binding on line,
// used by the kernel's IRQ dispatch to drive spec.md 4.8's fan-out.
func IRQBindingsFor(line uint8) map[*Process][]IRQBinding {
	out := map[*Process][]IRQBinding{}
	for _, p := range processes {
		if b := p.irqBindings[line]; len(b) > 0 {
			out[p] = b
		}
	}
	return out
}

// EnableProfiling/DisableProfiling implement the nested enable-count the
// original kernel keeps per process (calls may nest).
func EnableProfiling(p *Process) {
	p.profilingDepth++
}

// DisableProfiling decrements the profiling nesting count and, once it
// reaches zero, returns cyclesProfiled. No kernel path adds to
// cyclesProfiled, so the value returned is zero unless it was set directly.
func DisableProfiling(p *Process) (uint64, bool) {
	if p.profilingDepth == 0 {
		return 0, false
	}
	p.profilingDepth--
	if p.profilingDepth > 0 {
		return 0, false
	}
	return p.cyclesProfiled, true
}

// totalSystemFrames/usedSystemFrames back the total/used-memory syscalls.
func totalSystemFrames() uint64 {
	return allocator.FrameAllocator.FreePages() + usedSystemFrames()
}

func usedSystemFrames() uint64 {
	var used uint64
	for _, p := range processes {
		used += p.AddressSpace.PagesMapped()
	}
	return used
}

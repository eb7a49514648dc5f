package proc

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/mem/pmm/allocator"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/shm"
)

// scheduleFn/unscheduleFn/currentThread are set by the sched package
// during its own Init, letting proc trigger scheduling decisions (wake a
// thread on message delivery, a shared-memory page becoming available, ...)
// without importing sched, which in turn imports proc for the Thread/
// Process types. setFSBaseFn defaults directly to the cpu primitive since
// it carries no scheduler-specific policy.
var (
	scheduleFn    func(*Thread)
	unscheduleFn  func(*Thread)
	currentThread func() *Thread
	setFSBaseFn   = cpu.SetFSBase
)

// SetSchedulerHooks is called once by sched.Init to wire this package's
// scheduling seams.
func SetSchedulerHooks(schedule, unschedule func(*Thread), current func() *Thread) {
	scheduleFn = schedule
	unscheduleFn = unschedule
	currentThread = current
}

// Current returns the thread (and its owning process) currently executing,
// or nil if the CPU is idle.
func Current() *Thread {
	if currentThread == nil {
		return nil
	}
	return currentThread()
}

// Schedule wakes t, for the syscall package's create-thread and start-child
// handlers.
func Schedule(t *Thread) {
	if scheduleFn != nil {
		scheduleFn(t)
	}
}

// Yield implements the explicit-yield syscall: t unschedules and
// immediately reschedules itself, which (per the scheduler's own
// unschedule-while-running handling) moves it to the back of the awake
// ring and switches in whichever thread is now next.
func Yield(t *Thread) {
	if unscheduleFn != nil {
		unscheduleFn(t)
	}
	if scheduleFn != nil {
		scheduleFn(t)
	}
}

// Init wires the proc package's dependencies on the physical allocator and
// shm's lazy-fault hook, and must run after vmm.Init and before any process
// is created.
func Init() *kernel.Error {
	frameAllocator = allocator.AllocFrame
	frameFreer = allocator.FrameAllocator.Free
	shm.SetFrameAllocator(allocator.AllocFrame)
	shm.SetFrameDeallocator(allocator.FrameAllocator.Free)
	vmm.LazyFaultHandler = lazySharedMemoryFault
	vmm.UserFaultHandler = killFaultingProcess
	return nil
}

// TotalSystemFrames returns the total number of physical frames the system
// was booted with (free plus in-use), for the total-system-memory syscall.
func TotalSystemFrames() uint64 {
	return totalSystemFrames()
}

// UsedSystemFrames returns the number of pages currently mapped in p's own
// address space, for the process-used-memory syscall.
func UsedSystemFrames(p *Process) uint64 {
	return p.AddressSpace.PagesMapped()
}

// FreeSystemFrames returns the number of frames still on the free stack,
// for the free-system-memory syscall.
func FreeSystemFrames() uint64 {
	return allocator.FrameAllocator.FreePages()
}

package proc

import (
	"nucleus/kernel"
	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/shm"
)

// lazySharedMemoryFault implements spec.md 4.6's page-fault-handler hook: it
// is wired to vmm.LazyFaultHandler and consulted whenever a user thread
// faults on a dud PTE. If the faulting address falls inside one of the
// current process's joined lazy regions, it either backs the page
// synchronously (when the faulter is the region's creator, or the creator
// has since died) or parks the thread and notifies the creator.
func lazySharedMemoryFault(faultAddr uintptr) (pmm.Frame, bool) {
	t := Current()
	if t == nil {
		return pmm.InvalidFrame, false
	}
	p := t.Process

	region, slot, ok := shm.SlotForAddr(p.ID, faultAddr)
	if !ok {
		return pmm.InvalidFrame, false
	}

	_, creatorAlive := Lookup(region.CreatorID)
	if p.ID == region.CreatorID || !creatorAlive {
		frame, err := frameAllocator()
		if err != nil {
			return pmm.InvalidFrame, false
		}
		woken, merr := shm.MoveIn(region, slot, frame)
		if merr != nil {
			return pmm.InvalidFrame, false
		}
		remapJoiners(region, slot)
		wakeSharedMemoryWaiters(woken)
		return frame, true
	}

	t.WaitingForSharedPage = true
	region.AddWaiter(slot, p.ID, t.ID)
	if unscheduleFn != nil {
		unscheduleFn(t)
	}
	deliver(region.CreatorID, ipc.Message{
		ID:      region.NotifyMID,
		Payload: [5]uint64{slot * uint64(mem.PageSize)},
	})

	// The faulting instruction is retried once the creator installs the
	// page and this thread is rescheduled; until then there is no frame to
	// hand back.
	return pmm.InvalidFrame, false
}

// MovePageIntoSharedMemory implements the creator-installs-page operation:
// it moves a single page out of the creator's address space into the
// region's slot, remaps every joiner, and wakes any threads parked on that
// slot.
func MovePageIntoSharedMemory(creator *Process, region *shm.Region, offset uint64, srcVirt uintptr) *kernel.Error {
	slot := offset / uint64(mem.PageSize)

	phys, err := creator.AddressSpace.Translate(srcVirt, true)
	if err != nil {
		return err
	}
	frame := pmm.FrameFromAddress(phys)

	if err := creator.AddressSpace.Unmap(vmm.PageFromAddress(srcVirt), false, nil); err != nil {
		return err
	}

	woken, merr := shm.MoveIn(region, slot, frame)
	if merr != nil {
		return merr
	}
	remapJoiners(region, slot)
	wakeSharedMemoryWaiters(woken)
	return nil
}

func remapJoiners(region *shm.Region, slot uint64) {
	for _, pid := range region.Joiners() {
		if joiner, ok := Lookup(pid); ok {
			region.Remap(pid, joiner.AddressSpace, slot)
		}
	}
}

func wakeSharedMemoryWaiters(waiters []shm.Waiter) {
	for _, w := range waiters {
		p, ok := Lookup(w.ProcessID)
		if !ok {
			continue
		}
		for _, t := range p.Threads {
			if t.ID == w.ThreadID {
				t.WaitingForSharedPage = false
				if scheduleFn != nil {
					scheduleFn(t)
				}
				break
			}
		}
	}
}

// killFaultingProcess is wired to vmm.UserFaultHandler: any unrecovered
// page or general-protection fault taken from ring 3 destroys the faulting
// process and lets the rest of the system keep running (spec.md 4.8, 7).
func killFaultingProcess(faultAddr uintptr, frame *irq.Frame, regs *irq.Regs) {
	t := Current()
	if t == nil {
		return
	}
	_ = Destroy(t.Process)
}

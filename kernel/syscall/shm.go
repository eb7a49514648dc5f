package syscall

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
	"nucleus/kernel/shm"
)

var errNoSuchRegion = &kernel.Error{Module: "syscall", Message: "no such shared memory region"}

func lookupRegion(id uint64) (*shm.Region, *kernel.Error) {
	r, ok := shm.Lookup(id)
	if !ok {
		return nil, errNoSuchRegion
	}
	return r, nil
}

// shmCreate allocates a new region. Arguments: RBX = page count, RCX =
// flags, RDX = notify message id. Result: RBX = region id.
func shmCreate(t *proc.Thread, regs *irq.Regs) {
	r, err := shm.Create(t.Process.ID, regs.RBX, uint32(regs.RCX), regs.RDX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	regs.RBX = r.ID
	regs.RAX = ErrOK
}

// shmJoin joins the caller to a region, choosing its own placement.
// Arguments: RBX = region id. Result: RBX = virtual address.
func shmJoin(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	addr, jerr := proc.JoinSharedMemory(t.Process, r, false, 0)
	regs.RAX = mapError(jerr)
	regs.RBX = uint64(addr)
}

// shmJoinChildAtAddress joins a not-yet-started child process to a region
// at an exact virtual address, for child address-space setup. Arguments:
// RBX = region id, RCX = child process id, RDX = virtual address.
func shmJoinChildAtAddress(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	child, ok := proc.Lookup(regs.RCX)
	if !ok {
		regs.RAX = ErrProcessDoesNotExist
		return
	}
	_, jerr := proc.JoinSharedMemory(child, r, true, uintptr(regs.RDX))
	regs.RAX = mapError(jerr)
}

// shmLeave drops the caller's join. Arguments: RBX = region id.
func shmLeave(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	regs.RAX = mapError(proc.LeaveSharedMemory(t.Process, r))
}

// shmGetDetails returns a region's page count, flags and creator id.
// Arguments: RBX = region id. Result: RBX = pages, RCX = flags, RDX =
// creator id.
func shmGetDetails(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	regs.RBX = r.Pages
	regs.RCX = uint64(r.Flags)
	regs.RDX = r.CreatorID
	regs.RAX = ErrOK
}

// shmMovePageIn installs a page the caller supplies as a lazy region's
// backing for one slot, notifying and waking any parked joiners.
// Arguments: RBX = region id, RCX = byte offset into the region, RDX =
// source virtual address in the caller's own address space.
func shmMovePageIn(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	regs.RAX = mapError(proc.MovePageIntoSharedMemory(t.Process, r, regs.RCX, uintptr(regs.RDX)))
}

// shmGrantAssignPermission adds another process to a region's delegates
// (see shm.GrantAssignPermission). Arguments: RBX = region id, RCX =
// grantee process id.
func shmGrantAssignPermission(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	shm.GrantAssignPermission(r, regs.RCX)
	regs.RAX = ErrOK
}

// shmIsPageAllocated reports whether a slot already has a backing frame.
// Arguments: RBX = region id, RCX = slot index. Result: RBX = 1 or 0.
func shmIsPageAllocated(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	if r.IsPageAllocated(regs.RCX) {
		regs.RBX = 1
	} else {
		regs.RBX = 0
	}
	regs.RAX = ErrOK
}

// shmPagePhysAddr returns the physical address backing a slot (driver-only).
// Arguments: RBX = region id, RCX = slot index. Result: RBX = physical
// address.
func shmPagePhysAddr(t *proc.Thread, regs *irq.Regs) {
	if !t.Process.IsDriver {
		regs.RAX = ErrUnsupported
		return
	}
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	phys, perr := r.PhysAddr(regs.RCX)
	regs.RAX = mapError(perr)
	regs.RBX = uint64(phys)
}

// shmGrow extends a region by additional pages. Existing joiners must
// rejoin to see the new range. Arguments: RBX = region id, RCX = extra
// pages.
func shmGrow(t *proc.Thread, regs *irq.Regs) {
	r, err := lookupRegion(regs.RBX)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	r.Grow(regs.RCX)
	regs.RAX = ErrOK
}
